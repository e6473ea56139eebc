// Package sessions keeps per-conversation state for the channel adapters.
// Channels that deliver one field at a time (WhatsApp especially) accumulate
// a booking request across several messages; the session carries what has
// been collected so far, keyed by channel and sender identity.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotFound is returned when no session exists for the identity.
var ErrNotFound = errors.New("sessions: not found")

// Session is the accumulating state of one conversation. Fields mirror the
// booking request; empty means not yet collected.
type Session struct {
	Channel     string    `json:"channel"`
	Identity    string    `json:"identity"`
	PatientName string    `json:"patient_name,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Email       string    `json:"email,omitempty"`
	DoctorID    string    `json:"doctor_id,omitempty"`
	Date        string    `json:"date,omitempty"`
	Time        string    `json:"time,omitempty"`
	Service     string    `json:"service,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists sessions in Redis with a sliding TTL.
type Store struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewStore creates a session store. ttl bounds how long an abandoned
// conversation keeps its state.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if client == nil {
		panic("sessions: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("bookingengine.internal.sessions"),
	}
}

// Get loads the session for a channel identity, or ErrNotFound.
func (s *Store) Get(ctx context.Context, channel, identity string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "sessions.get")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(channel, identity)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("sessions: load: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("sessions: decode: %w", err)
	}
	return &sess, nil
}

// Save persists the session and resets its TTL.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	ctx, span := s.tracer.Start(ctx, "sessions.save")
	defer span.End()

	sess.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(sess)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("sessions: encode: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(sess.Channel, sess.Identity), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("sessions: persist: %w", err)
	}
	return nil
}

// Clear drops the session once a conversation completes or is abandoned.
func (s *Store) Clear(ctx context.Context, channel, identity string) error {
	ctx, span := s.tracer.Start(ctx, "sessions.clear")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(channel, identity)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("sessions: clear: %w", err)
	}
	return nil
}

func sessionKey(channel, identity string) string {
	return fmt.Sprintf("session:%s:%s", channel, identity)
}
