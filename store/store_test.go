package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	got, err := s.Get(ctx, "missing")
	if err != nil {
		t.Fatalf("Get missing failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for missing key, got %q", got)
	}

	if err := s.Set(ctx, "k", []byte("v1"), 0); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err = s.Get(ctx, "k")
	if err != nil || string(got) != "v1" {
		t.Fatalf("expected v1, got %q err=%v", got, err)
	}

	if err := s.Set(ctx, "k", []byte("v2"), time.Minute); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	got, _ = s.Get(ctx, "k")
	if string(got) != "v2" {
		t.Fatalf("expected last write to win, got %q", got)
	}

	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("second Delete must be idempotent: %v", err)
	}
	got, _ = s.Get(ctx, "k")
	if got != nil {
		t.Fatalf("expected nil after delete, got %q", got)
	}

	if _, err := s.Get(ctx, ""); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestRedisStoreContract(t *testing.T) {
	_, rdb := newTestRedis(t)
	exerciseStore(t, NewRedis(rdb, "test"))
}

func TestMemoryStoreExpiresLazily(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	m := NewMemory(WithClock(func() time.Time { return now }))
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	now = now.Add(999 * time.Millisecond)
	if got, _ := m.Get(ctx, "k"); string(got) != "v" {
		t.Fatalf("expected value before expiry, got %q", got)
	}
	now = now.Add(time.Millisecond)
	if got, _ := m.Get(ctx, "k"); got != nil {
		t.Fatalf("expected expiry at ttl boundary, got %q", got)
	}
	if m.Len() != 0 {
		t.Fatalf("expected expired entry to be dropped, len=%d", m.Len())
	}
}

func TestMemoryStoreCopiesValues(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	buf := []byte("abc")
	_ = m.Set(ctx, "k", buf, 0)
	buf[0] = 'z'

	got, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Fatalf("stored value aliased caller buffer: %q", got)
	}
	got[1] = 'z'
	again, _ := m.Get(ctx, "k")
	if string(again) != "abc" {
		t.Fatalf("returned value aliased stored buffer: %q", again)
	}
}

func TestRedisStoreAppliesPrefixAndTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedis(rdb, "")
	ctx := context.Background()

	if err := s.Set(ctx, "rl:email_check:a@x.com", []byte{1}, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if !mr.Exists(DefaultRedisPrefix + ":rl:email_check:a@x.com") {
		t.Fatal("expected prefixed key in redis")
	}
	if ttl := mr.TTL(DefaultRedisPrefix + ":rl:email_check:a@x.com"); ttl != time.Minute {
		t.Fatalf("expected 1m ttl, got %v", ttl)
	}

	mr.FastForward(time.Minute)
	got, err := s.Get(ctx, "rl:email_check:a@x.com")
	if err != nil || got != nil {
		t.Fatalf("expected expired key to read as missing, got %v err=%v", got, err)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedis(rdb, "test")
	mr.Close()

	if _, err := s.Get(context.Background(), "k"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from Ping, got %v", err)
	}
}
