// Package events delivers security and audit notifications on the shared
// store's pub/sub channels. Delivery is fire-and-forget: events are queued
// into a bounded buffer and forwarded by a background worker, and the auth
// path never blocks on a slow subscriber.
package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel names are part of the store namespace contract.
const (
	ChannelSecurityEvents = "security-events"
	ChannelSecurityAudit  = "security-audit"
)

// BreachEvent is published on security-events when credential theft is
// detected.
type BreachEvent struct {
	Type      string    `json:"type"`
	TokenID   string    `json:"jti"`
	IP        string    `json:"ip"`
	UserID    string    `json:"userId"`
	Timestamp time.Time `json:"timestamp"`
}

// EventTokenReuse marks a replayed refresh credential.
const EventTokenReuse = "TOKEN_REUSE"

// AuditEvent is published on security-audit for every guard rejection.
// Identity fields are best-effort: on verification failure they come from an
// unverified partial decode and may be empty.
type AuditEvent struct {
	Timestamp    time.Time `json:"timestamp"`
	Path         string    `json:"path"`
	Method       string    `json:"method"`
	IP           string    `json:"ip"`
	UserAgent    string    `json:"userAgent,omitempty"`
	ErrorMessage string    `json:"errorMessage"`
	UserID       string    `json:"userId,omitempty"`
	SessionID    string    `json:"sessionId,omitempty"`
	TokenID      string    `json:"tokenId,omitempty"`
}

// Sink receives serialized events for a channel.
type Sink interface {
	Emit(ctx context.Context, channel string, payload []byte)
}

// NoOpSink drops events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, string, []byte) {}

// RedisSink publishes events on Redis pub/sub channels.
type RedisSink struct {
	client redis.UniversalClient
}

func NewRedisSink(client redis.UniversalClient) *RedisSink {
	return &RedisSink{client: client}
}

func (s *RedisSink) Emit(ctx context.Context, channel string, payload []byte) {
	// No delivery guarantee is required; a failed publish is dropped.
	_ = s.client.Publish(ctx, channel, payload).Err()
}

// Message pairs a channel with a serialized payload, for test sinks.
type Message struct {
	Channel string
	Payload []byte
}

// ChannelSink writes events into a buffered Go channel.
type ChannelSink struct {
	messages chan Message
}

func NewChannelSink(buffer int) *ChannelSink {
	if buffer <= 0 {
		buffer = 1
	}
	return &ChannelSink{messages: make(chan Message, buffer)}
}

func (s *ChannelSink) Emit(ctx context.Context, channel string, payload []byte) {
	select {
	case s.messages <- Message{Channel: channel, Payload: payload}:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Messages() <-chan Message {
	return s.messages
}
