package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testStores(t *testing.T) map[string]Store {
	t.Helper()

	badgerStore, err := NewBadgerStore("") // in-memory
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = badgerStore.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"badger": badgerStore,
	}
}

func TestGetSetRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
				t.Fatalf("set: %v", err)
			}
			got, err := store.Get(ctx, "k")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if string(got) != "v" {
				t.Fatalf("got %q, want %q", got, "v")
			}
		})
	}
}

func TestTTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Set(ctx, "short", []byte("x"), 20*time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	if _, err := store.Get(ctx, "short"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestIncrement(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			for want := int64(1); want <= 5; want++ {
				got, err := store.Increment(ctx, "ctr", time.Hour)
				if err != nil {
					t.Fatalf("increment: %v", err)
				}
				if got != want {
					t.Fatalf("counter = %d, want %d", got, want)
				}
			}
		})
	}
}

func TestBadgerHonorsCanceledContext(t *testing.T) {
	store, err := NewBadgerStore("")
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Get(ctx, "k"); !errors.Is(err, context.Canceled) {
		t.Fatalf("get: err = %v, want context.Canceled", err)
	}
	if err := store.Set(ctx, "k", []byte("v"), time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("set: err = %v, want context.Canceled", err)
	}
	if _, err := store.Increment(ctx, "ctr", time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("increment: err = %v, want context.Canceled", err)
	}
}

func TestIncrementConcurrent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	const n = 50
	done := make(chan struct{}, n)
	for i := 0; i < n; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			if _, err := store.Increment(ctx, "ctr", time.Hour); err != nil {
				t.Errorf("increment: %v", err)
			}
		}()
	}
	for i := 0; i < n; i++ {
		<-done
	}

	got, err := store.Increment(ctx, "ctr", time.Hour)
	if err != nil {
		t.Fatalf("final increment: %v", err)
	}
	if got != n+1 {
		t.Fatalf("counter = %d, want %d", got, n+1)
	}
}
