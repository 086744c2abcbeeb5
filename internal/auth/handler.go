package auth

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kyoseo/auth-api/internal/session"
	"github.com/kyoseo/auth-api/internal/token"
)

// Handler is the HTTP boundary for the auth endpoints.
type Handler struct {
	service *Service
	store   *session.Store
}

func NewHandler(service *Service, store *session.Store) *Handler {
	return &Handler{service: service, store: store}
}

// Register wires the auth routes onto the router, each behind the guard
// with its route metadata.
func (h *Handler) Register(r *mux.Router, guard *Guard) {
	public := guard.Middleware(RouteMeta{Public: true})
	access := guard.Middleware(RouteMeta{})
	refresh := guard.Middleware(RouteMeta{Kind: token.KindRefresh})

	s := r.PathPrefix("/auth").Subrouter()
	s.Handle("/signin", public(http.HandlerFunc(h.signin))).Methods(http.MethodPost)
	s.Handle("/refresh", refresh(http.HandlerFunc(h.refresh))).Methods(http.MethodPost)
	s.Handle("/signup", public(http.HandlerFunc(h.signup))).Methods(http.MethodPost)
	s.Handle("/profile", access(http.HandlerFunc(h.profile))).Methods(http.MethodGet)
	s.Handle("/logout", access(http.HandlerFunc(h.logout))).Methods(http.MethodPost)

	r.Handle("/healthz", public(http.HandlerFunc(h.health))).Methods(http.MethodGet)
}

func (h *Handler) signin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_REQUEST", Message: "invalid request body"})
		return
	}

	pair, err := h.service.Signin(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	claims, ok := RefreshClaimsFromContext(r.Context())
	if !ok {
		writeError(w, ErrCredentialMissing)
		return
	}
	raw, _ := RefreshTokenFromContext(r.Context())

	pair, err := h.service.Refresh(r.Context(), claims, raw)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pair)
}

func (h *Handler) signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_REQUEST", Message: "invalid request body"})
		return
	}
	if req.Name == "" || req.Email == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "BAD_REQUEST", Message: "name, email, and password are required"})
		return
	}

	if _, err := h.service.Signup(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
}

// profile answers purely from the verified claims; no store lookup.
func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := AccessClaimsFromContext(r.Context())
	if !ok {
		writeError(w, ErrCredentialMissing)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":    claims.Subject,
		"name":  claims.Name,
		"email": claims.Email,
		"role":  claims.Role,
	})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := AccessClaimsFromContext(r.Context())
	if !ok {
		writeError(w, ErrCredentialMissing)
		return
	}

	if err := h.service.Logout(r.Context(), claims.Subject, claims.SessionID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out successfully"})
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.Ping(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
