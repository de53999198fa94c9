package userlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	t.Parallel()
	l := NewLocalLocker()
	userID := uuid.New()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := LockUser(context.Background(), l, userID)
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Zero(t, l.size())
}

func TestLocalLockerDifferentKeysDoNotContend(t *testing.T) {
	t.Parallel()
	l := NewLocalLocker()

	unlockA, err := l.Lock(context.Background(), Key(uuid.New()))
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := l.Lock(ctx, Key(uuid.New()))
	require.NoError(t, err)
	unlockB()
}

func TestLocalLockerHonorsContext(t *testing.T) {
	t.Parallel()
	l := NewLocalLocker()
	key := Key(uuid.New())

	unlock, err := l.Lock(context.Background(), key)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Zero(t, l.size())

	again, err := l.Lock(context.Background(), key)
	require.NoError(t, err)
	again()
}

type recordingLocker struct {
	keys []string
	err  error
}

func (l *recordingLocker) Lock(_ context.Context, key string) (func(), error) {
	l.keys = append(l.keys, key)
	if l.err != nil {
		return nil, l.err
	}
	return func() {}, nil
}

func TestLockUserUsesUserKey(t *testing.T) {
	t.Parallel()
	userID := uuid.New()
	lockErr := errors.New("lock store unavailable")

	tests := []struct {
		name    string
		locker  *recordingLocker
		wantErr error
	}{
		{"acquired", &recordingLocker{}, nil},
		{"failure is returned", &recordingLocker{err: lockErr}, lockErr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var l Locker = tt.locker
			unlock, err := LockUser(context.Background(), l, userID)
			assert.Equal(t, []string{"user:" + userID.String()}, tt.locker.keys)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, unlock)
				return
			}
			require.NoError(t, err)
			unlock()
		})
	}
}
