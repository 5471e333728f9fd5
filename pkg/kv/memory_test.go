package kv

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"
)

func TestMemoryStoreTTL(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	if err := s.Set(ctx, "a", []byte("1"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if v, err := s.Get(ctx, "a"); err != nil || string(v) != "1" {
		t.Fatalf("Get = %q, %v", v, err)
	}

	now = now.Add(time.Minute)
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}

	_ = s.Set(ctx, "forever", []byte("x"), 0)
	now = now.Add(24 * time.Hour)
	if _, err := s.Get(ctx, "forever"); err != nil {
		t.Fatalf("zero TTL must not expire: %v", err)
	}
}

func TestMemoryStoreSweepsExpiredKeys(t *testing.T) {
	s := NewMemoryStore()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		if _, err := s.SetNX(ctx, "claim:"+strconv.Itoa(i), []byte("1"), time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.Set(ctx, "kept", []byte("x"), 0)

	now = now.Add(sweepInterval)
	if err := s.Set(ctx, "next", []byte("y"), time.Hour); err != nil {
		t.Fatal(err)
	}

	s.mu.Lock()
	n := len(s.items)
	s.mu.Unlock()
	if n != 2 {
		t.Fatalf("expected expired keys to be dropped, %d items left", n)
	}
	if _, err := s.Get(ctx, "kept"); err != nil {
		t.Errorf("key without TTL was swept: %v", err)
	}
}

func TestMemoryStoreSetNX(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	ok, _ := s.SetNX(ctx, "lock", []byte("1"), 0)
	if !ok {
		t.Fatal("first SetNX should win")
	}
	ok, _ = s.SetNX(ctx, "lock", []byte("2"), 0)
	if ok {
		t.Fatal("second SetNX should lose")
	}
	_ = s.Delete(ctx, "lock")
	if ok, _ := s.SetNX(ctx, "lock", []byte("3"), 0); !ok {
		t.Fatal("SetNX after delete should win")
	}
}

func TestMemoryQueueFIFO(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, m := range []string{"a", "b", "c"} {
		_ = s.Push(ctx, "q", []byte(m))
	}
	if n, _ := s.Len(ctx, "q"); n != 3 {
		t.Fatalf("expected 3 pending, got %d", n)
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := s.Pop(ctx, "q", time.Second)
		if err != nil || string(got) != want {
			t.Fatalf("Pop = %q, %v; want %q", got, err, want)
		}
	}
}

func TestMemoryQueuePopWaits(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.Pop(ctx, "q", 20*time.Millisecond); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var got []byte
	go func() {
		defer wg.Done()
		got, _ = s.Pop(ctx, "q", 2*time.Second)
	}()
	time.Sleep(20 * time.Millisecond)
	_ = s.Push(ctx, "q", []byte("late"))
	wg.Wait()

	if string(got) != "late" {
		t.Errorf("waiting Pop got %q", got)
	}
}

func TestMemoryQueuePopCancelled(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Pop(ctx, "q", time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
