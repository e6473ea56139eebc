package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrDoctorBusy is returned when the per-doctor lock is already held by a
// concurrent booking attempt.
var ErrDoctorBusy = errors.New("booking: doctor lock not acquired")

// DoctorLocker serializes the conflict-check-then-insert section per doctor
// so two concurrent requests for overlapping slots cannot both pass the
// read-then-write check.
type DoctorLocker interface {
	WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisDoctorLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDoctorLocker creates a locker backed by a per-doctor Redis key.
func NewRedisDoctorLocker(client *redis.Client, ttl time.Duration) DoctorLocker {
	if client == nil {
		panic("booking: redis client required")
	}
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &redisDoctorLocker{client: client, ttl: ttl}
}

func (l *redisDoctorLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:doctor:%s", doctorID)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("booking: acquire doctor lock: %w", err)
	}
	if !ok {
		return ErrDoctorBusy
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

// unlockScript deletes the lock only when it still carries our token, so an
// expired-and-reacquired lock is never released by the previous holder.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisDoctorLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("booking: release doctor lock: %w", err)
	}
	return nil
}

// NoopLocker runs the critical section without locking. Used in tests and
// single-process deployments where the database exclusion constraint is
// considered sufficient.
type NoopLocker struct{}

func (NoopLocker) WithDoctorLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
