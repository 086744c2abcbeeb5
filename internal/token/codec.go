// Package token signs and verifies the two bearer credential kinds used by
// the auth service: short-lived access tokens and longer-lived, single-use
// refresh tokens. Each kind has its own secret and lifetime.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind selects which credential a codec operation applies to.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// ErrExpired is returned when a token failed verification only because its
// expiry (beyond the configured leeway) has passed.
var ErrExpired = errors.New("token expired")

// ErrInvalid is returned for malformed tokens, bad signatures, and every
// other verification failure that is not a plain expiry.
var ErrInvalid = errors.New("invalid token")

// DefaultLeeway is the clock-skew tolerance applied to expiry checks.
const DefaultLeeway = 30 * time.Second

// Claims is the payload carried inside both token kinds. Access tokens
// additionally carry name, email, and role so authorization does not need a
// store lookup; refresh tokens leave those empty.
type Claims struct {
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	jwt.RegisteredClaims
}

// Config holds per-kind secrets and lifetimes.
type Config struct {
	AccessSecret  []byte
	AccessTTL     time.Duration
	RefreshSecret []byte
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
}

// Codec signs and verifies tokens. A Codec is immutable after construction
// and safe for concurrent use.
type Codec struct {
	config Config
	now    func() time.Time
}

func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("both access and refresh secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway == 0 {
		cfg.Leeway = DefaultLeeway
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	return &Codec{config: cfg, now: time.Now}, nil
}

// TTL returns the configured lifetime for a kind.
func (c *Codec) TTL(kind Kind) time.Duration {
	if kind == KindRefresh {
		return c.config.RefreshTTL
	}
	return c.config.AccessTTL
}

func (c *Codec) secret(kind Kind) []byte {
	if kind == KindRefresh {
		return c.config.RefreshSecret
	}
	return c.config.AccessSecret
}

// Sign issues a token of the given kind. Subject, SessionID, and ID (jti)
// come from the caller; issuance and expiry timestamps are set here.
func (c *Codec) Sign(kind Kind, claims Claims) (string, error) {
	now := c.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.TTL(kind)))
	if c.config.Issuer != "" {
		claims.Issuer = c.config.Issuer
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret(kind))
}

// Verify checks signature and timing for the given kind. Expiry failures
// surface as ErrExpired, everything else as ErrInvalid; both reject.
func (c *Codec) Verify(kind Kind, tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(c.config.Leeway),
		jwt.WithTimeFunc(c.now),
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return c.secret(kind), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}

	return claims, nil
}

// DecodePartial decodes claims without verifying the signature, for audit
// logging on rejection paths. A fully malformed token yields empty claims.
func (c *Codec) DecodePartial(tokenStr string) Claims {
	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, &claims); err != nil {
		return Claims{}
	}
	return claims
}

// WellFormed reports whether a candidate has JWT structure: three non-empty
// base64url segments. It replaces the length heuristic previously used to
// filter extraction candidates and guarantees nothing about validity.
func WellFormed(candidate string) bool {
	parts := strings.Split(candidate, ".")
	if len(parts) != 3 {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, r := range part {
			switch {
			case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			default:
				return false
			}
		}
	}
	return true
}
