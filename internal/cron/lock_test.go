package cron

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeRedisStore struct {
	values map[string]string
}

func newFakeRedisStore() *fakeRedisStore {
	return &fakeRedisStore{values: map[string]string{}}
}

func (f *fakeRedisStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if _, exists := f.values[key]; exists {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeRedisStore) Get(ctx context.Context, key string) (string, error) {
	value, exists := f.values[key]
	if !exists {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeRedisStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
	}
	return nil
}

func TestRedisLockSingleOwner(t *testing.T) {
	t.Parallel()

	store := newFakeRedisStore()
	ctx := context.Background()

	first, err := NewRedisLock(store, "ck:lock:test", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}
	second, err := NewRedisLock(store, "ck:lock:test", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}

	ok, err := first.Acquire(ctx)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if !ok {
		t.Fatalf("expected first acquire to win")
	}

	ok, err = second.Acquire(ctx)
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if ok {
		t.Fatalf("expected second acquire to lose while held")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}

	ok, err = second.Acquire(ctx)
	if err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	if !ok {
		t.Fatalf("expected acquire to succeed after release")
	}
}

func TestRedisLockReleaseOnlyWhenOwned(t *testing.T) {
	t.Parallel()

	store := newFakeRedisStore()
	ctx := context.Background()

	lock, err := NewRedisLock(store, "ck:lock:test", time.Minute)
	if err != nil {
		t.Fatalf("new lock: %v", err)
	}

	// Never acquired: release is a no-op.
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release without acquire: %v", err)
	}

	if _, err := lock.Acquire(ctx); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Simulate TTL expiry plus takeover by another worker.
	store.values["ck:lock:test"] = "someone-else"
	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release after takeover: %v", err)
	}
	if store.values["ck:lock:test"] != "someone-else" {
		t.Fatalf("expected another worker's lock to survive our release")
	}
}
