package locks

import (
	"context"
	"sync"
	"testing"
	"time"

	mr "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exercise(t *testing.T, l Locker) {
	t.Helper()
	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			release, err := l.Lock(ctx, "paper:1")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestMemory_Exclusive(t *testing.T) {
	exercise(t, NewMemory())
}

func TestMemory_ContextExpires(t *testing.T) {
	l := NewMemory()
	release, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "b")
	assert.ErrorIs(t, err, ErrNotAcquired)

	release()
	release() // second call is a no-op
	release2, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	release2()
}

func newRedis(t *testing.T) (*mr.Miniredis, *redis.Client) {
	t.Helper()
	m, err := mr.Run()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m, redis.NewClient(&redis.Options{Addr: m.Addr()})
}

func TestRedis_Exclusive(t *testing.T) {
	_, client := newRedis(t)
	exercise(t, NewRedis(client, time.Second))
}

func TestRedis_ReleaseOnlyOwnToken(t *testing.T) {
	m, client := newRedis(t)
	l := NewRedis(client, time.Second)

	release, err := l.Lock(context.Background(), "paper:2")
	require.NoError(t, err)
	require.True(t, m.Exists("lock:paper:2"))

	// lease expires and someone else takes it
	m.FastForward(2 * time.Second)
	require.NoError(t, m.Set("lock:paper:2", "other"))

	release()
	got, err := m.Get("lock:paper:2")
	require.NoError(t, err)
	assert.Equal(t, "other", got)
}

func TestRedis_ContextExpires(t *testing.T) {
	_, client := newRedis(t)
	l := NewRedis(client, time.Minute)

	release, err := l.Lock(context.Background(), "paper:3")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "paper:3")
	assert.ErrorIs(t, err, ErrNotAcquired)
}
