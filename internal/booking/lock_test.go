package booking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (DoctorLocker, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDoctorLocker(client, 5*time.Second), client
}

func TestDoctorLockSerializes(t *testing.T) {
	locker, client := newTestLocker(t)
	doctorID := uuid.New()
	ctx := context.Background()

	err := locker.WithDoctorLock(ctx, doctorID, func(ctx context.Context) error {
		// second acquisition for the same doctor fails while held
		inner := locker.WithDoctorLock(ctx, doctorID, func(context.Context) error {
			t.Fatal("critical section entered twice")
			return nil
		})
		assert.ErrorIs(t, inner, ErrDoctorBusy)
		return nil
	})
	require.NoError(t, err)

	// released afterwards
	n, err := client.Exists(ctx, fmt.Sprintf("lock:doctor:%s", doctorID)).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDoctorLockIsPerDoctor(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	err := locker.WithDoctorLock(ctx, uuid.New(), func(ctx context.Context) error {
		return locker.WithDoctorLock(ctx, uuid.New(), func(context.Context) error {
			return nil
		})
	})
	assert.NoError(t, err)
}

func TestDoctorLockReleasedOnError(t *testing.T) {
	locker, _ := newTestLocker(t)
	doctorID := uuid.New()
	ctx := context.Background()

	boom := errors.New("boom")
	err := locker.WithDoctorLock(ctx, doctorID, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	// lock is free again despite the error
	err = locker.WithDoctorLock(ctx, doctorID, func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestExpiredLockNotReleasedByOldHolder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := NewRedisDoctorLocker(client, 100*time.Millisecond)

	doctorID := uuid.New()
	key := fmt.Sprintf("lock:doctor:%s", doctorID)
	ctx := context.Background()

	err := locker.WithDoctorLock(ctx, doctorID, func(context.Context) error {
		// simulate expiry and takeover by another process mid-section
		mr.FastForward(200 * time.Millisecond)
		require.NoError(t, client.Set(ctx, key, "other-holder", time.Minute).Err())
		return nil
	})
	require.NoError(t, err)

	// the compare-and-delete release must not remove the new holder's lock
	val, err := client.Get(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, "other-holder", val)
}
