package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedis(client, nil)
}

func TestRedis_AcquireAndRelease(t *testing.T) {
	mr, locker := newTestRedis(t)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "social-fetch", time.Minute)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !lease.Acquired {
		t.Fatal("first acquire should succeed")
	}
	if lease.Owner == "" {
		t.Error("owner token should be set")
	}

	// Значение ключа — токен владельца, TTL выставлен
	got, err := mr.Get(keyPrefix + "social-fetch")
	if err != nil {
		t.Fatalf("key should exist: %v", err)
	}
	if got != lease.Owner {
		t.Errorf("expected value %q, got %q", lease.Owner, got)
	}
	if mr.TTL(keyPrefix+"social-fetch") <= 0 {
		t.Error("key should have ttl")
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if mr.Exists(keyPrefix + "social-fetch") {
		t.Error("key should be deleted after release")
	}
}

func TestRedis_SecondAcquireNotAcquired(t *testing.T) {
	_, locker := newTestRedis(t)
	ctx := context.Background()

	first, _ := locker.Acquire(ctx, "social-fetch", time.Minute)
	second, err := locker.Acquire(ctx, "social-fetch", time.Minute)
	if err != nil {
		t.Fatalf("contention is not an error: %v", err)
	}
	if !first.Acquired {
		t.Fatal("first should be acquired")
	}
	if second.Acquired {
		t.Error("second should not be acquired")
	}

	// Release незахваченного lease — no-op
	if err := second.Release(ctx); err != nil {
		t.Errorf("release of non-acquired lease should be no-op: %v", err)
	}
}

func TestRedis_OwnerTokenNotReused(t *testing.T) {
	_, locker := newTestRedis(t)
	ctx := context.Background()

	a, _ := locker.Acquire(ctx, "k", time.Minute)
	_ = a.Release(ctx)
	b, _ := locker.Acquire(ctx, "k", time.Minute)

	if !a.Acquired || !b.Acquired {
		t.Fatal("both sequential acquisitions should succeed")
	}
	if a.Owner == b.Owner {
		t.Error("owner token must be new per acquisition")
	}
}

func TestRedis_ReleaseDoesNotDeleteForeignLock(t *testing.T) {
	mr, locker := newTestRedis(t)
	ctx := context.Background()

	stale, _ := locker.Acquire(ctx, "social-fetch", time.Second)

	// TTL истёк, ключ захватил другой процесс
	mr.FastForward(2 * time.Second)
	fresh, _ := locker.Acquire(ctx, "social-fetch", time.Minute)
	if !fresh.Acquired {
		t.Fatal("expired lock should be acquirable")
	}

	if err := stale.Release(ctx); err != nil {
		t.Fatalf("stale release should not error: %v", err)
	}

	got, err := mr.Get(keyPrefix + "social-fetch")
	if err != nil {
		t.Fatal("fresh lock must survive stale release")
	}
	if got != fresh.Owner {
		t.Errorf("expected fresh owner %q, got %q", fresh.Owner, got)
	}
}

func TestRedis_BackendErrorFailsClosed(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	locker := NewRedis(client, nil)
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	lease, err := locker.Acquire(ctx, "social-fetch", time.Minute)
	if err == nil {
		t.Fatal("expected backend error")
	}
	if lease == nil || lease.Acquired {
		t.Error("backend error must be treated as not acquired")
	}
}

func TestRedis_InvalidArguments(t *testing.T) {
	_, locker := newTestRedis(t)
	ctx := context.Background()

	if lease, err := locker.Acquire(ctx, "", time.Minute); err != ErrEmptyKey || lease.Acquired {
		t.Errorf("expected ErrEmptyKey, got %v", err)
	}
	if lease, err := locker.Acquire(ctx, "k", 0); err != ErrInvalidTTL || lease.Acquired {
		t.Errorf("expected ErrInvalidTTL, got %v", err)
	}
}

func TestRedis_ConcurrentAcquireSingleWinner(t *testing.T) {
	_, locker := newTestRedis(t)
	ctx := context.Background()

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lease, err := locker.Acquire(ctx, "social-fetch", time.Minute)
			if err == nil && lease.Acquired {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()

	if winners.Load() != 1 {
		t.Errorf("expected exactly one winner, got %d", winners.Load())
	}
}

// --- Memory ---

func TestMemory_Semantics(t *testing.T) {
	m := NewMemory()
	now := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	a, _ := m.Acquire(ctx, "k", time.Minute)
	b, _ := m.Acquire(ctx, "k", time.Minute)
	if !a.Acquired || b.Acquired {
		t.Fatal("only the first acquire should succeed")
	}

	// После истечения TTL ключ доступен, старый владелец не может его снять
	now = now.Add(2 * time.Minute)
	c, _ := m.Acquire(ctx, "k", time.Minute)
	if !c.Acquired {
		t.Fatal("expired key should be acquirable")
	}
	_ = a.Release(ctx)

	d, _ := m.Acquire(ctx, "k", time.Minute)
	if d.Acquired {
		t.Error("stale release must not free the new owner's lock")
	}

	_ = c.Release(ctx)
	e, _ := m.Acquire(ctx, "k", time.Minute)
	if !e.Acquired {
		t.Error("lock should be free after owner release")
	}
}
