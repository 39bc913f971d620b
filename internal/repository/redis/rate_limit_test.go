package redis

import (
	"context"
	"testing"
	"time"
)

func TestIncrementStartsWindowOnFirstHit(t *testing.T) {
	server, client := newTestRedis(t)
	repo := NewRateLimitRepository(client, "test")

	count, remaining, err := repo.Increment(context.Background(), "signin_ip:203.0.113.10", time.Minute)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
	if remaining <= 0 || remaining > time.Minute {
		t.Fatalf("unexpected remaining window %s", remaining)
	}

	if ttl := server.TTL("test:signin_ip:203.0.113.10"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected key to expire with the window, ttl=%s", ttl)
	}
}

func TestIncrementCountsWithinWindow(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewRateLimitRepository(client, "test")

	for i := int64(1); i <= 5; i++ {
		count, _, err := repo.Increment(context.Background(), "signin_account:shopper@example.com", time.Minute)
		if err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
		if count != i {
			t.Fatalf("expected count %d, got %d", i, count)
		}
	}
}

func TestIncrementDoesNotExtendWindow(t *testing.T) {
	server, client := newTestRedis(t)
	repo := NewRateLimitRepository(client, "test")

	if _, _, err := repo.Increment(context.Background(), "signin_ip:203.0.113.10", time.Minute); err != nil {
		t.Fatalf("first increment: %v", err)
	}

	server.FastForward(40 * time.Second)

	_, remaining, err := repo.Increment(context.Background(), "signin_ip:203.0.113.10", time.Minute)
	if err != nil {
		t.Fatalf("second increment: %v", err)
	}
	if remaining > 20*time.Second {
		t.Fatalf("window was extended, remaining=%s", remaining)
	}
}

func TestIncrementResetsAfterWindowElapses(t *testing.T) {
	server, client := newTestRedis(t)
	repo := NewRateLimitRepository(client, "test")

	for i := 0; i < 5; i++ {
		if _, _, err := repo.Increment(context.Background(), "signin_ip:203.0.113.10", time.Minute); err != nil {
			t.Fatalf("increment %d: %v", i, err)
		}
	}

	server.FastForward(61 * time.Second)

	count, _, err := repo.Increment(context.Background(), "signin_ip:203.0.113.10", time.Minute)
	if err != nil {
		t.Fatalf("increment after expiry: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a fresh window, got count %d", count)
	}
}

func TestIncrementIdentifiersAreIsolated(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewRateLimitRepository(client, "test")

	for i := 0; i < 3; i++ {
		if _, _, err := repo.Increment(context.Background(), "signin_ip:203.0.113.10", time.Minute); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}

	count, _, err := repo.Increment(context.Background(), "signin_ip:198.51.100.7", time.Minute)
	if err != nil {
		t.Fatalf("increment other ip: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected isolated counter, got %d", count)
	}
}

func TestIncrementRejectsZeroWindow(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewRateLimitRepository(client, "test")

	if _, _, err := repo.Increment(context.Background(), "x", 0); err == nil {
		t.Fatal("expected error for non-positive window")
	}
}
