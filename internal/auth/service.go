package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kyoseo/auth-api/internal/session"
	"github.com/kyoseo/auth-api/internal/token"
	"github.com/kyoseo/auth-api/internal/user"
)

// UserDirectory is the boundary to the user collaborator: read-only lookup
// plus persistence for signup. Lookups return user.ErrNotFound when no user
// matches.
type UserDirectory interface {
	FindByEmail(ctx context.Context, email string) (*user.User, error)
	FindByID(ctx context.Context, id string) (*user.User, error)
	Create(ctx context.Context, u *user.User) error
}

// TokenPair is the issued credential pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// SignupRequest carries the signup operation's input.
type SignupRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// Service implements sign-in, refresh rotation, sign-out, and sign-up as
// explicit operations over the codec, the session store, and the user
// directory.
type Service struct {
	codec      *token.Codec
	store      *session.Store
	users      UserDirectory
	sessionTTL time.Duration
	lockTTL    time.Duration
}

func NewService(codec *token.Codec, store *session.Store, users UserDirectory, sessionTTL, lockTTL time.Duration) *Service {
	if sessionTTL <= 0 {
		sessionTTL = 24 * time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Second
	}
	return &Service{
		codec:      codec,
		store:      store,
		users:      users,
		sessionTTL: sessionTTL,
		lockTTL:    lockTTL,
	}
}

// Signin verifies credentials and opens a new session. The error does not
// reveal whether the email exists.
func (s *Service) Signin(ctx context.Context, email, password string) (*TokenPair, error) {
	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.CheckPassword(u.Password, password) {
		return nil, ErrInvalidCredentials
	}

	sessionID := uuid.NewString()
	pair, err := s.issuePair(u, sessionID)
	if err != nil {
		return nil, err
	}

	if err := s.store.SaveRefreshToken(ctx, u.ID, sessionID, pair.RefreshToken, s.codec.TTL(token.KindRefresh)); err != nil {
		return nil, err
	}
	if err := s.store.AddSession(ctx, u.ID, sessionID, s.sessionTTL); err != nil {
		return nil, err
	}

	return pair, nil
}

// Refresh redeems a verified refresh credential and rotates the session.
// Rotation is mandatory: the presented token is single-use and the old
// session id is never reused. The whole saga runs under the per-session lock
// so two concurrent redemptions of the same token cannot both succeed; a
// lost lock surfaces as session.ErrLockNotAcquired, a transient conflict.
func (s *Service) Refresh(ctx context.Context, claims *token.Claims, presented string) (*TokenPair, error) {
	userID := claims.Subject
	oldSessionID := claims.SessionID
	if userID == "" || oldSessionID == "" {
		return nil, ErrTokenInvalid
	}

	var pair *TokenPair
	err := s.store.WithLock(ctx, oldSessionID, s.lockTTL, func(ctx context.Context) error {
		stored, ok, err := s.store.RefreshToken(ctx, userID, oldSessionID)
		if err != nil {
			return err
		}
		if !ok || stored != presented {
			return ErrTokenInvalid
		}

		active, err := s.store.SessionActive(ctx, userID, oldSessionID)
		if err != nil {
			return err
		}
		if !active {
			return ErrSessionExpired
		}

		u, err := s.users.FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		newSessionID := uuid.NewString()
		pair, err = s.issuePair(u, newSessionID)
		if err != nil {
			return err
		}

		// New state is written before the old state is invalidated: a crash
		// mid-sequence leaves both sessions valid rather than neither.
		if err := s.store.SaveRefreshToken(ctx, userID, newSessionID, pair.RefreshToken, s.codec.TTL(token.KindRefresh)); err != nil {
			return err
		}
		if err := s.store.AddSession(ctx, userID, newSessionID, s.sessionTTL); err != nil {
			return err
		}
		if err := s.store.DeleteRefreshToken(ctx, userID, oldSessionID); err != nil {
			return err
		}
		return s.store.RemoveSession(ctx, userID, oldSessionID)
	})
	if err != nil {
		return nil, err
	}

	return pair, nil
}

// Logout destroys one session. Idempotent: logging out an already-absent
// session is not an error.
func (s *Service) Logout(ctx context.Context, userID, sessionID string) error {
	if err := s.store.RemoveSession(ctx, userID, sessionID); err != nil {
		return err
	}
	return s.store.DeleteRefreshToken(ctx, userID, sessionID)
}

// Signup creates a user account. The session lifecycle starts at signin;
// signup issues no tokens.
func (s *Service) Signup(ctx context.Context, req SignupRequest) (*user.User, error) {
	_, err := s.users.FindByEmail(ctx, req.Email)
	if err == nil {
		return nil, ErrUserExists
	}
	if !errors.Is(err, user.ErrNotFound) {
		return nil, err
	}

	hash, err := user.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	role := req.Role
	if role == "" {
		role = user.DefaultRole
	}

	u := &user.User{
		ID:       uuid.NewString(),
		Name:     req.Name,
		Email:    req.Email,
		Password: hash,
		Role:     role,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}

	return u, nil
}

func (s *Service) issuePair(u *user.User, sessionID string) (*TokenPair, error) {
	access, err := s.codec.Sign(token.KindAccess, token.Claims{
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: u.ID,
			ID:      uuid.NewString(),
		},
	})
	if err != nil {
		return nil, err
	}

	refresh, err := s.codec.Sign(token.KindRefresh, token.Claims{
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: u.ID,
			ID:      uuid.NewString(),
		},
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
