package layer

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemorySetGet(t *testing.T) {
	m := NewMemory[string, string](nil)
	defer m.Close()

	ctx := context.Background()
	if err := m.Set(ctx, "k", "v", time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, ok, err := m.TryGet(ctx, "k")
	if err != nil {
		t.Fatalf("TryGet: %v", err)
	}
	if !ok || v != "v" {
		t.Errorf("TryGet = (%q, %v), want (v, true)", v, ok)
	}
}

func TestMemoryMiss(t *testing.T) {
	m := NewMemory[string, int](nil)
	defer m.Close()

	_, ok, err := m.TryGet(context.Background(), "absent")
	if err != nil {
		t.Fatalf("TryGet: %v", err)
	}
	if ok {
		t.Error("expected miss for absent key")
	}

	stats := m.Stats()
	if stats.Misses != 1 {
		t.Errorf("misses = %d, want 1", stats.Misses)
	}
}

func TestMemoryExpiryOnAccess(t *testing.T) {
	m := NewMemory[string, string](&MemoryConfig{SweepInterval: time.Hour})
	defer m.Close()

	ctx := context.Background()
	_ = m.Set(ctx, "k", "v", 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, ok, _ := m.TryGet(ctx, "k")
	if ok {
		t.Fatal("expired entry served")
	}
	if m.Len() != 0 {
		t.Errorf("expired entry not removed on access, len = %d", m.Len())
	}
	if m.Stats().Expired != 1 {
		t.Errorf("expired counter = %d, want 1", m.Stats().Expired)
	}
}

func TestMemorySweeperRemovesExpired(t *testing.T) {
	m := NewMemory[string, string](&MemoryConfig{SweepInterval: 10 * time.Millisecond})
	defer m.Close()

	ctx := context.Background()
	_ = m.Set(ctx, "short", "v", 5*time.Millisecond)
	_ = m.Set(ctx, "long", "v", time.Minute)

	deadline := time.Now().Add(time.Second)
	for m.Len() > 1 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeper did not remove expired entry, len = %d", m.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, ok, _ := m.TryGet(ctx, "long"); !ok {
		t.Error("unexpired entry removed by sweeper")
	}
}

func TestMemoryReplace(t *testing.T) {
	m := NewMemory[string, string](nil)
	defer m.Close()

	ctx := context.Background()
	_ = m.Set(ctx, "k", "v1", time.Minute)
	_ = m.Set(ctx, "k", "v2", time.Minute)

	v, _, _ := m.TryGet(ctx, "k")
	if v != "v2" {
		t.Errorf("value = %q, want v2", v)
	}
	if m.Len() != 1 {
		t.Errorf("len = %d, want 1", m.Len())
	}
}

func TestMemoryDelete(t *testing.T) {
	m := NewMemory[string, string](nil)
	defer m.Close()

	ctx := context.Background()
	_ = m.Set(ctx, "k", "v", time.Minute)
	_ = m.Delete(ctx, "k")

	if _, ok, _ := m.TryGet(ctx, "k"); ok {
		t.Error("deleted key still present")
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	m := NewMemory[int, int](nil)
	defer m.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := (w*200 + i) % 50
				_ = m.Set(ctx, key, i, time.Minute)
				_, _, _ = m.TryGet(ctx, key)
			}
		}(w)
	}
	wg.Wait()

	if m.Len() > 50 {
		t.Errorf("len = %d, want at most 50 distinct keys", m.Len())
	}
}
