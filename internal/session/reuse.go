package session

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/kyoseo/auth-api/internal/events"
)

// ErrReuseDetected reports a replayed refresh token: a credential that was
// already redeemed is being presented again, which can only happen if it was
// copied. The caller must treat this as a security violation and clear all
// local credentials (full logout), not as an ordinary auth failure.
var ErrReuseDetected = errors.New("refresh token reuse detected")

// BreachPublisher receives breach notifications. Delivery is best-effort.
type BreachPublisher interface {
	PublishBreach(ctx context.Context, event events.BreachEvent)
}

// Detector decides whether a refresh token is being replayed and, on a hit,
// revokes the user's full lineage.
type Detector struct {
	store  *Store
	events BreachPublisher
}

func NewDetector(store *Store, publisher BreachPublisher) *Detector {
	return &Detector{store: store, events: publisher}
}

// Check runs reuse detection for a refresh token id before the rotation saga
// trusts it. remaining is the token's remaining validity and bounds the
// marker TTLs: once the token itself has expired the marker has no job left.
//
// First redemption: records the last-used marker and a lineage entry, then
// allows verification to proceed. Replay: revokes every session descended
// from this user, publishes TOKEN_REUSE, and returns ErrReuseDetected.
func (d *Detector) Check(ctx context.Context, userID, tokenID, clientIP string, remaining time.Duration) error {
	fresh, err := d.store.MarkTokenUsed(ctx, tokenID, remaining)
	if err != nil {
		return err
	}

	if !fresh {
		if _, revokeErr := d.store.RevokeUserLineage(ctx, userID); revokeErr != nil {
			// Revocation must not be skipped silently; surface the outage.
			log.Printf("auth: lineage revocation failed for user %s: %v", userID, revokeErr)
			return revokeErr
		}

		if d.events != nil {
			d.events.PublishBreach(ctx, events.BreachEvent{
				Type:      events.EventTokenReuse,
				TokenID:   tokenID,
				IP:        clientIP,
				UserID:    userID,
				Timestamp: time.Now(),
			})
		}

		return ErrReuseDetected
	}

	return d.store.RecordFamilyMember(ctx, userID, uuid.NewString(), tokenID, remaining)
}
