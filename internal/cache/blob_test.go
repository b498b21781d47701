package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dgnsrekt/cuecard/internal/diag"
)

func newTestCache(capacity int64, clock clockwork.Clock) (*BlobCache, *ObjectStore) {
	objects := NewObjectStore()
	cfg := Config{Capacity: capacity, MaxAge: 30 * time.Minute, SweepInterval: time.Minute}
	return NewBlobCache(cfg, objects, WithClock(clock)), objects
}

func TestBlobCache_BasicOperations(t *testing.T) {
	bc, objects := newTestCache(1024, clockwork.NewFakeClock())

	h, err := bc.Set("k", []byte("clip"))
	if err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := bc.Get("k")
	if !ok || got != h {
		t.Fatalf("Get = %q, %v; want %q, true", got, ok, h)
	}

	data, mime, ok := objects.Resolve(h)
	if !ok || string(data) != "clip" || mime != MIMEType {
		t.Errorf("Resolve = %q, %q, %v", data, mime, ok)
	}

	bc.Delete("k")
	if bc.Contains("k") {
		t.Error("key still exists after delete")
	}
	if _, _, ok := objects.Resolve(h); ok {
		t.Error("handle still resolves after delete")
	}
	if bc.Size() != 0 {
		t.Errorf("Size not zero after delete: %d", bc.Size())
	}

	if _, ok := bc.Get("missing"); ok {
		t.Error("Get found a missing key")
	}
	stats := bc.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.HitRate != 0.5 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestBlobCache_OverwriteRevokesOldHandle(t *testing.T) {
	bc, objects := newTestCache(1024, clockwork.NewFakeClock())

	h1, _ := bc.Set("k", make([]byte, 100))
	h2, _ := bc.Set("k", make([]byte, 40))

	if h1 == h2 {
		t.Fatal("overwrite returned the same handle")
	}
	if _, _, ok := objects.Resolve(h1); ok {
		t.Error("old handle still resolves")
	}
	if _, _, ok := objects.Resolve(h2); !ok {
		t.Error("new handle does not resolve")
	}
	if bc.Size() != 40 || bc.Len() != 1 {
		t.Errorf("size=%d len=%d, want 40 and 1", bc.Size(), bc.Len())
	}
	if objects.Live() != 1 {
		t.Errorf("Live() = %d, want 1", objects.Live())
	}
}

func TestBlobCache_LRUEviction(t *testing.T) {
	bc, objects := newTestCache(100, clockwork.NewFakeClock())

	handles := map[Key]Handle{}
	for i := 0; i < 5; i++ {
		key := Key(fmt.Sprintf("key-%d", i))
		h, err := bc.Set(key, make([]byte, 20))
		if err != nil {
			t.Fatalf("Set %s: %v", key, err)
		}
		handles[key] = h
	}

	// key-0 and key-1 become most recently used.
	bc.Get("key-0")
	bc.Get("key-1")

	if _, err := bc.Set("key-new", make([]byte, 30)); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// 30 bytes needed: key-2 and key-3 (oldest) go.
	for _, gone := range []Key{"key-2", "key-3"} {
		if bc.Contains(gone) {
			t.Errorf("%s should have been evicted", gone)
		}
		if _, _, ok := objects.Resolve(handles[gone]); ok {
			t.Errorf("%s handle not revoked on eviction", gone)
		}
	}
	for _, kept := range []Key{"key-0", "key-1", "key-4", "key-new"} {
		if !bc.Contains(kept) {
			t.Errorf("%s should still be cached", kept)
		}
	}
	if bc.Size() > 100 {
		t.Errorf("size %d exceeds capacity", bc.Size())
	}
	if got := bc.Stats().Evictions; got != 2 {
		t.Errorf("Evictions = %d, want 2", got)
	}
}

func TestBlobCache_CapacityInvariant(t *testing.T) {
	bc, objects := newTestCache(1000, clockwork.NewFakeClock())

	sizes := []int{300, 250, 999, 1, 500, 500, 1000, 7, 420, 333}
	for i, n := range sizes {
		if _, err := bc.Set(Key(fmt.Sprintf("k%d", i%4)), make([]byte, n)); err != nil {
			t.Fatalf("Set(%d bytes): %v", n, err)
		}
		if bc.Size() > 1000 {
			t.Fatalf("after set %d size = %d, exceeds capacity", i, bc.Size())
		}
		var sum int64
		for _, e := range bc.Entries() {
			sum += e.Size
		}
		if sum != bc.Size() {
			t.Fatalf("entry sizes sum to %d, Size() = %d", sum, bc.Size())
		}
		if objects.Live() != bc.Len() {
			t.Fatalf("live handles %d != entries %d", objects.Live(), bc.Len())
		}
	}
}

func TestBlobCache_ItemTooLarge(t *testing.T) {
	var rec diag.Recorder
	objects := NewObjectStore()
	bc := NewBlobCache(Config{Capacity: 100}, objects, WithObserver(&rec))

	h, _ := bc.Set("small", make([]byte, 50))
	_, err := bc.Set("big", make([]byte, 101))
	if !errors.Is(err, ErrItemTooLarge) {
		t.Fatalf("err = %v, want ErrItemTooLarge", err)
	}
	if !bc.Contains("small") {
		t.Error("rejected write evicted an existing entry")
	}
	if _, _, ok := objects.Resolve(h); !ok {
		t.Error("rejected write revoked an existing handle")
	}
	if rec.Count(diag.KindResource) != 1 {
		t.Errorf("expected one resource diagnostic, got %v", rec.All())
	}
}

func TestBlobCache_Sweep(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bc, objects := newTestCache(1024, clock)

	old, _ := bc.Set("old", []byte("a"))
	clock.Advance(20 * time.Minute)
	bc.Set("fresh", []byte("b"))
	clock.Advance(11 * time.Minute)

	if n := bc.Sweep(); n != 1 {
		t.Fatalf("Sweep() = %d, want 1", n)
	}
	if bc.Contains("old") || !bc.Contains("fresh") {
		t.Error("wrong entry swept")
	}
	if _, _, ok := objects.Resolve(old); ok {
		t.Error("swept handle still resolves")
	}
	if got := bc.Stats().Expirations; got != 1 {
		t.Errorf("Expirations = %d, want 1", got)
	}
}

func TestBlobCache_GetRefreshesAge(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bc, _ := newTestCache(1024, clock)

	bc.Set("k", []byte("a"))
	clock.Advance(25 * time.Minute)
	bc.Get("k")
	clock.Advance(25 * time.Minute)

	if n := bc.Sweep(); n != 0 {
		t.Errorf("Sweep() = %d, want 0 for a recently read entry", n)
	}
}

func TestBlobCache_StartSweepsOnTicker(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bc, objects := newTestCache(1024, clock)
	bc.Start()

	bc.Set("k", []byte("a"))
	clock.BlockUntil(1)
	clock.Advance(31 * time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for bc.Contains("k") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if bc.Contains("k") {
		t.Fatal("sweeper did not remove the expired entry")
	}

	if err := bc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if objects.Live() != 0 {
		t.Errorf("Live() = %d after Close", objects.Live())
	}
	if _, err := bc.Set("k", []byte("a")); !errors.Is(err, ErrClosed) {
		t.Errorf("Set after Close = %v, want ErrClosed", err)
	}
}

func TestBlobCache_ClearRevokesAll(t *testing.T) {
	bc, objects := newTestCache(1024, clockwork.NewFakeClock())
	for i := 0; i < 5; i++ {
		bc.Set(Key(fmt.Sprint(i)), []byte("x"))
	}
	bc.Clear()
	if bc.Len() != 0 || bc.Size() != 0 || objects.Live() != 0 {
		t.Errorf("len=%d size=%d live=%d after Clear", bc.Len(), bc.Size(), objects.Live())
	}
}

func TestBlobCache_Concurrent(t *testing.T) {
	bc, objects := newTestCache(10*1024, clockwork.NewRealClock())
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := Key(fmt.Sprintf("k%d", (g*7+i)%50))
				if i%3 == 0 {
					bc.Get(key)
				} else {
					bc.Set(key, make([]byte, 100+i))
				}
			}
		}(g)
	}
	wg.Wait()

	if bc.Size() > 10*1024 {
		t.Errorf("size %d exceeds capacity", bc.Size())
	}
	if objects.Live() != bc.Len() {
		t.Errorf("live handles %d != entries %d", objects.Live(), bc.Len())
	}
}
