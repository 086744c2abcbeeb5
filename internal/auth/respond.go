package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kyoseo/auth-api/internal/session"
)

// errorBody is the rejection payload: a stable machine-readable code, a
// human message, and for security violations an action hint so the caller
// knows to clear all local credentials. Sensitive values never appear here.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status, body := mapError(err)
	writeJSON(w, status, body)
}

func mapError(err error) (int, errorBody) {
	switch {
	case errors.Is(err, ErrCredentialMissing):
		return http.StatusUnauthorized, errorBody{Code: "CREDENTIAL_MISSING", Message: "token not found"}
	case errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized, errorBody{Code: "TOKEN_EXPIRED", Message: "expired token"}
	case errors.Is(err, ErrTokenInvalid):
		return http.StatusUnauthorized, errorBody{Code: "TOKEN_INVALID", Message: "invalid token signature"}
	case errors.Is(err, ErrSessionInvalid):
		return http.StatusUnauthorized, errorBody{Code: "SESSION_INVALID", Message: "invalid or expired session"}
	case errors.Is(err, ErrSessionExpired):
		return http.StatusUnauthorized, errorBody{Code: "SESSION_EXPIRED", Message: "session expired"}
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, errorBody{Code: "INVALID_CREDENTIALS", Message: "invalid credentials"}
	case errors.Is(err, ErrUserNotFound):
		return http.StatusUnauthorized, errorBody{Code: "USER_NOT_FOUND", Message: "user not found"}
	case errors.Is(err, ErrUserExists):
		return http.StatusConflict, errorBody{Code: "USER_EXISTS", Message: "user already exists"}
	case errors.Is(err, session.ErrReuseDetected):
		return http.StatusForbidden, errorBody{
			Code:    "TOKEN_REUSE",
			Message: "security violation detected",
			Action:  "full_logout",
		}
	case errors.Is(err, session.ErrLockNotAcquired):
		return http.StatusConflict, errorBody{Code: "ROTATION_CONFLICT", Message: "concurrent refresh in progress, retry"}
	case errors.Is(err, session.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, errorBody{Code: "STORE_UNAVAILABLE", Message: "session store unavailable"}
	default:
		return http.StatusInternalServerError, errorBody{Code: "INTERNAL", Message: "internal error"}
	}
}
