// Package user owns user records and password verification. The auth core
// consumes it as a read-only lookup plus a password-check capability; it has
// no knowledge of sessions or tokens.
package user

import (
	"errors"
	"time"
)

// ErrNotFound is returned by lookups when no user matches.
var ErrNotFound = errors.New("user not found")

// DefaultRole is assigned when signup does not specify a role.
const DefaultRole = "user"

// User is the persisted account record. Password holds the bcrypt hash and
// is never serialized.
type User struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Name      string    `gorm:"size:120;not null" json:"name"`
	Email     string    `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password  string    `gorm:"size:255;not null" json:"-"`
	Role      string    `gorm:"size:32;not null;default:user" json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
