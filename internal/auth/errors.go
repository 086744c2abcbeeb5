package auth

import "errors"

var (
	// ErrCredentialMissing is returned when no structurally valid token was
	// found in any extraction source.
	ErrCredentialMissing = errors.New("credential missing")
	// ErrTokenInvalid covers bad signatures, malformed tokens, and a
	// presented refresh token that does not match the stored one.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is the expiry-specific rejection; it affects messaging
	// only, the request is rejected either way.
	ErrTokenExpired = errors.New("token expired")
	// ErrSessionInvalid is returned when the token's session is not in the
	// user's active set.
	ErrSessionInvalid = errors.New("invalid or expired session")
	// ErrSessionExpired is returned by refresh when the old session lapsed
	// between issuance and redemption.
	ErrSessionExpired = errors.New("session expired")
	// ErrInvalidCredentials deliberately does not distinguish "no such user"
	// from "wrong password".
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned when a verified token references a user
	// that no longer exists.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists rejects signup for a taken email.
	ErrUserExists = errors.New("user already exists")
)
