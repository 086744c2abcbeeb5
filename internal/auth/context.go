package auth

import (
	"context"

	"github.com/kyoseo/auth-api/internal/token"
)

type accessClaimsKey struct{}
type refreshClaimsKey struct{}
type refreshTokenKey struct{}

// AccessClaimsFromContext returns the verified access claims attached by the
// guard.
func AccessClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(accessClaimsKey{}).(*token.Claims)
	return claims, ok
}

// RefreshClaimsFromContext returns the verified refresh claims attached by
// the guard.
func RefreshClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(refreshClaimsKey{}).(*token.Claims)
	return claims, ok
}

// RefreshTokenFromContext returns the raw refresh token the guard verified,
// so the rotation saga can match it against the stored value.
func RefreshTokenFromContext(ctx context.Context) (string, bool) {
	raw, ok := ctx.Value(refreshTokenKey{}).(string)
	return raw, ok
}

func withAccessClaims(ctx context.Context, claims *token.Claims) context.Context {
	return context.WithValue(ctx, accessClaimsKey{}, claims)
}

func withRefreshClaims(ctx context.Context, claims *token.Claims, raw string) context.Context {
	ctx = context.WithValue(ctx, refreshClaimsKey{}, claims)
	return context.WithValue(ctx, refreshTokenKey{}, raw)
}
