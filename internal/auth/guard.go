package auth

import (
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/kyoseo/auth-api/internal/events"
	"github.com/kyoseo/auth-api/internal/session"
	"github.com/kyoseo/auth-api/internal/token"
)

// RouteMeta is the per-route authorization metadata supplied at
// registration: whether the endpoint is public and, if not, which token kind
// it requires. The zero value means "access token required".
type RouteMeta struct {
	Public bool
	Kind   token.Kind
}

// Guard runs the per-request authorization decision procedure: extract a
// credential, verify it, check the session is still active, run reuse
// detection for refresh credentials, and attach the verified claims to the
// request context — or reject. Each request is evaluated independently;
// the guard keeps no state across requests.
type Guard struct {
	codec    *token.Codec
	store    *session.Store
	detector *session.Detector
	events   *events.Publisher
}

func NewGuard(codec *token.Codec, store *session.Store, detector *session.Detector, publisher *events.Publisher) *Guard {
	return &Guard{codec: codec, store: store, detector: detector, events: publisher}
}

// Middleware wraps a handler with the decision procedure for the given
// route metadata.
func (g *Guard) Middleware(meta RouteMeta) func(http.Handler) http.Handler {
	kind := meta.Kind
	if kind == "" {
		kind = token.KindAccess
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if meta.Public {
				next.ServeHTTP(w, r)
				return
			}

			raw, ok := extractToken(r, kind)
			if !ok {
				g.reject(w, r, "", nil, ErrCredentialMissing)
				return
			}

			claims, err := g.codec.Verify(kind, raw)
			if err != nil {
				mapped := ErrTokenInvalid
				if errors.Is(err, token.ErrExpired) {
					mapped = ErrTokenExpired
				}
				g.reject(w, r, raw, nil, mapped)
				return
			}

			active, err := g.store.SessionActive(r.Context(), claims.Subject, claims.SessionID)
			if err != nil {
				g.reject(w, r, raw, claims, err)
				return
			}
			if !active {
				g.reject(w, r, raw, claims, ErrSessionInvalid)
				return
			}

			if kind == token.KindRefresh {
				remaining := time.Second
				if claims.ExpiresAt != nil {
					remaining = time.Until(claims.ExpiresAt.Time)
				}
				if err := g.detector.Check(r.Context(), claims.Subject, claims.ID, clientIP(r), remaining); err != nil {
					g.reject(w, r, raw, claims, err)
					return
				}
			}

			ctx := r.Context()
			if kind == token.KindRefresh {
				ctx = withRefreshClaims(ctx, claims, raw)
			} else {
				ctx = withAccessClaims(ctx, claims)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// reject emits the audit event and writes the rejection. Identity fields are
// best-effort: when verification itself failed they come from an unverified
// partial decode of the presented token.
func (g *Guard) reject(w http.ResponseWriter, r *http.Request, raw string, claims *token.Claims, err error) {
	partial := token.Claims{}
	if claims != nil {
		partial = *claims
	} else if raw != "" {
		partial = g.codec.DecodePartial(raw)
	}

	g.events.PublishAudit(r.Context(), events.AuditEvent{
		Timestamp:    time.Now(),
		Path:         r.URL.Path,
		Method:       r.Method,
		IP:           clientIP(r),
		UserAgent:    r.UserAgent(),
		ErrorMessage: err.Error(),
		UserID:       partial.Subject,
		SessionID:    partial.SessionID,
		TokenID:      partial.ID,
	})

	writeError(w, err)
}

// extractToken checks candidate sources in order — Authorization bearer
// header, the kind-specific cookie, the token query parameter — and returns
// the first structurally well-formed candidate. Structure, not length,
// decides whether a candidate is considered.
func extractToken(r *http.Request, kind token.Kind) (string, bool) {
	cookieName := "access_token"
	if kind == token.KindRefresh {
		cookieName = "refresh_token"
	}

	var candidates []string
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		candidates = append(candidates, strings.TrimPrefix(header, "Bearer "))
	}
	if cookie, err := r.Cookie(cookieName); err == nil {
		candidates = append(candidates, cookie.Value)
	}
	if query := r.URL.Query().Get("token"); query != "" {
		candidates = append(candidates, query)
	}

	for _, candidate := range candidates {
		if token.WellFormed(candidate) {
			return candidate, true
		}
	}

	return "", false
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if first, _, found := strings.Cut(forwarded, ","); found {
			return strings.TrimSpace(first)
		}
		return strings.TrimSpace(forwarded)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
