package writepolicy

import (
	"context"
	stderr "errors"
	"sync"
	"testing"
	"time"

	"github.com/tiercache/tiercache/pkg/errors"
	"github.com/tiercache/tiercache/pkg/layer"
	"github.com/tiercache/tiercache/pkg/types"
)

// failingLayer always errors on Set
type failingLayer[K comparable, V any] struct {
	types.Layer[K, V]
	setCalls int
}

func (f *failingLayer[K, V]) Set(ctx context.Context, key K, value V, ttl time.Duration) error {
	f.setCalls++
	return stderr.New("layer down")
}

func (f *failingLayer[K, V]) Name() string { return "failing" }

type persistentStore struct {
	mu     sync.Mutex
	data   map[string]string
	err    error
	writes int
}

func newPersistentStore() *persistentStore {
	return &persistentStore{data: make(map[string]string)}
}

func (s *persistentStore) writer() types.StoreWriter[string, string] {
	return func(ctx context.Context, key, value string) error {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.writes++
		if s.err != nil {
			return s.err
		}
		s.data[key] = value
		return nil
	}
}

func (s *persistentStore) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok
}

func TestWriteThroughWritesAllLayersAndStore(t *testing.T) {
	l1 := layer.NewMemory[string, string](nil)
	l2 := layer.NewMemory[string, string](&layer.MemoryConfig{Name: "memory2"})
	defer l1.Close()
	defer l2.Close()

	store := newPersistentStore()
	p := NewWriteThrough[string, string](&Config{DefaultTTL: time.Minute})

	ctx := context.Background()
	err := p.Write(ctx, "k", "v", []types.Layer[string, string]{l1, l2}, store.writer(), nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	for _, l := range []types.Layer[string, string]{l1, l2} {
		if v, ok, _ := l.TryGet(ctx, "k"); !ok || v != "v" {
			t.Errorf("layer %s = (%q, %v), want (v, true)", l.Name(), v, ok)
		}
	}
	if v, ok := store.get("k"); !ok || v != "v" {
		t.Errorf("store = (%q, %v), want (v, true)", v, ok)
	}
}

func TestWriteThroughLayerFailureDoesNotAbort(t *testing.T) {
	bad := &failingLayer[string, string]{}
	good := layer.NewMemory[string, string](nil)
	defer good.Close()

	store := newPersistentStore()
	p := NewWriteThrough[string, string](&Config{DefaultTTL: time.Minute})

	ctx := context.Background()
	err := p.Write(ctx, "k", "v", []types.Layer[string, string]{bad, good}, store.writer(), nil)
	if err != nil {
		t.Fatalf("layer failures must not fail the write: %v", err)
	}

	if v, ok, _ := good.TryGet(ctx, "k"); !ok || v != "v" {
		t.Errorf("subsequent layer skipped after failure: (%q, %v)", v, ok)
	}
	if _, ok := store.get("k"); !ok {
		t.Error("persistent store skipped after layer failure")
	}
}

func TestWriteThroughPersistenceFailureIsFatal(t *testing.T) {
	l1 := layer.NewMemory[string, string](nil)
	defer l1.Close()

	store := newPersistentStore()
	store.err = stderr.New("disk full")
	p := NewWriteThrough[string, string](&Config{DefaultTTL: time.Minute})

	ctx := context.Background()
	err := p.Write(ctx, "k", "v", []types.Layer[string, string]{l1}, store.writer(), nil)
	if err == nil {
		t.Fatal("persistence failure must surface")
	}
	if errors.GetCode(err) != errors.ErrCodePersistenceFailed {
		t.Errorf("code = %s, want PERSISTENCE_FAILED", errors.GetCode(err))
	}

	// Layers may still hold the value; the write reached them first.
	if v, ok, _ := l1.TryGet(ctx, "k"); !ok || v != "v" {
		t.Errorf("layer write should have landed before the store failure: (%q, %v)", v, ok)
	}
}

func TestWriteThroughMissingWriterSucceeds(t *testing.T) {
	l1 := layer.NewMemory[string, string](nil)
	defer l1.Close()

	p := NewWriteThrough[string, string](&Config{DefaultTTL: time.Minute})
	if err := p.Write(context.Background(), "k", "v", []types.Layer[string, string]{l1}, nil, nil); err != nil {
		t.Fatalf("missing writer should be a warning, not an error: %v", err)
	}
}

func TestWriteThroughPerLayerTTLs(t *testing.T) {
	l1 := layer.NewMemory[string, string](nil)
	l2 := layer.NewMemory[string, string](&layer.MemoryConfig{Name: "memory2"})
	defer l1.Close()
	defer l2.Close()

	p := NewWriteThrough[string, string](&Config{DefaultTTL: time.Minute})

	ctx := context.Background()
	ttls := []time.Duration{15 * time.Millisecond, time.Minute}
	_ = p.Write(ctx, "k", "v", []types.Layer[string, string]{l1, l2}, nil, ttls)

	time.Sleep(30 * time.Millisecond)
	if _, ok, _ := l1.TryGet(ctx, "k"); ok {
		t.Error("layer 0 should have expired under its short TTL")
	}
	if _, ok, _ := l2.TryGet(ctx, "k"); !ok {
		t.Error("layer 1 should still hold the value under its long TTL")
	}
}

func TestWriteBehindSyncPathOnlyLayerZero(t *testing.T) {
	l1 := layer.NewMemory[string, string](nil)
	l2 := layer.NewMemory[string, string](&layer.MemoryConfig{Name: "memory2"})
	defer l1.Close()
	defer l2.Close()

	store := newPersistentStore()
	p := NewWriteBehind[string, string](&Config{DefaultTTL: time.Minute})

	ctx := context.Background()
	err := p.Write(ctx, "k", "v", []types.Layer[string, string]{l1, l2}, store.writer(), nil)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Layer 0 is populated synchronously.
	if v, ok, _ := l1.TryGet(ctx, "k"); !ok || v != "v" {
		t.Fatalf("layer 0 = (%q, %v), want (v, true)", v, ok)
	}

	// Remaining layers and the store converge shortly after.
	deadline := time.Now().Add(time.Second)
	for {
		_, okL2, _ := l2.TryGet(ctx, "k")
		_, okStore := store.get("k")
		if okL2 && okStore {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("async fan-out did not complete: l2=%v store=%v", okL2, okStore)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWriteBehindPersistenceFailureIsSwallowed(t *testing.T) {
	l1 := layer.NewMemory[string, string](nil)
	defer l1.Close()

	store := newPersistentStore()
	store.err = stderr.New("disk full")
	p := NewWriteBehind[string, string](&Config{DefaultTTL: time.Minute})

	ctx := context.Background()
	if err := p.Write(ctx, "k", "v", []types.Layer[string, string]{l1}, store.writer(), nil); err != nil {
		t.Fatalf("write-behind must not surface persistence failures: %v", err)
	}

	// The background writer still ran.
	deadline := time.Now().Add(time.Second)
	for {
		store.mu.Lock()
		writes := store.writes
		store.mu.Unlock()
		if writes > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("background writer never ran")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPolicyDefaultTTL(t *testing.T) {
	p := NewWriteThrough[string, string](&Config{DefaultTTL: 2 * time.Minute})
	if p.DefaultTTL() != 2*time.Minute {
		t.Errorf("DefaultTTL = %v, want 2m", p.DefaultTTL())
	}

	// Zero config falls back to 5 minutes.
	wb := NewWriteBehind[string, string](nil)
	if wb.DefaultTTL() != 5*time.Minute {
		t.Errorf("default DefaultTTL = %v, want 5m", wb.DefaultTTL())
	}
}
