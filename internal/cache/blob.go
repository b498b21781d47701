package cache

import (
	"container/list"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"

	"github.com/dgnsrekt/cuecard/internal/diag"
)

// MIMEType is the media type of every clip stored in the cache.
const MIMEType = "audio/wav"

// BlobCache is an in-memory LRU of encoded clips bounded by total bytes.
type BlobCache struct {
	config   Config
	objects  *ObjectStore
	clock    clockwork.Clock
	logger   *log.Logger
	observer diag.Observer

	// LRU implementation; front is most recently accessed.
	items    map[Key]*list.Element
	eviction *list.List
	size     int64
	stats    Stats
	closed   bool

	mu sync.Mutex

	// Sweeper
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
}

type blobEntry struct {
	key          Key
	handle       Handle
	size         int64
	lastAccessed time.Time
}

// Option configures a BlobCache.
type Option func(*BlobCache)

// WithClock sets the clock used for ages and the sweep ticker.
func WithClock(c clockwork.Clock) Option {
	return func(bc *BlobCache) {
		bc.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(bc *BlobCache) {
		bc.logger = l
	}
}

// WithObserver sets where rejected writes are reported.
func WithObserver(o diag.Observer) Option {
	return func(bc *BlobCache) {
		bc.observer = o
	}
}

// NewBlobCache creates a cache whose handles come from objects. Zero config
// fields take their defaults.
func NewBlobCache(config Config, objects *ObjectStore, opts ...Option) *BlobCache {
	def := DefaultConfig()
	if config.Capacity <= 0 {
		config.Capacity = def.Capacity
	}
	if config.MaxAge <= 0 {
		config.MaxAge = def.MaxAge
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = def.SweepInterval
	}
	if objects == nil {
		objects = NewObjectStore()
	}

	bc := &BlobCache{
		config:   config,
		objects:  objects,
		clock:    clockwork.NewRealClock(),
		logger:   log.Default(),
		observer: diag.Discard,
		items:    make(map[Key]*list.Element),
		eviction: list.New(),
		stop:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(bc)
	}
	bc.stats.Capacity = config.Capacity
	return bc
}

// Objects returns the store that resolves this cache's handles.
func (bc *BlobCache) Objects() *ObjectStore {
	return bc.objects
}

// Get returns the handle cached under key and marks it recently used.
func (bc *BlobCache) Get(key Key) (Handle, bool) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	elem, ok := bc.items[key]
	if !ok {
		bc.stats.Misses++
		return "", false
	}

	bc.eviction.MoveToFront(elem)
	entry := elem.Value.(*blobEntry)
	entry.lastAccessed = bc.clock.Now()

	bc.stats.Hits++
	return entry.handle, true
}

// Set stores data under key and returns its new handle. A previous entry
// for key is released first. Least recently used entries are released until
// the data fits; data larger than the whole cache is rejected with
// ErrItemTooLarge and leaves the cache untouched.
func (bc *BlobCache) Set(key Key, data []byte) (Handle, error) {
	size := int64(len(data))

	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.closed {
		return "", ErrClosed
	}
	if size > bc.config.Capacity {
		err := fmt.Errorf("%w: %s > %s", ErrItemTooLarge,
			humanize.Bytes(uint64(size)), humanize.Bytes(uint64(bc.config.Capacity)))
		bc.observer.Observe(diag.Diagnostic{Component: "cache", Kind: diag.KindResource, Err: err})
		return "", err
	}

	if elem, ok := bc.items[key]; ok {
		bc.removeElement(elem)
	}

	for bc.size+size > bc.config.Capacity && bc.eviction.Len() > 0 {
		bc.evictOldest()
	}

	handle, err := bc.objects.Create(data, MIMEType)
	if err != nil {
		return "", err
	}

	entry := &blobEntry{
		key:          key,
		handle:       handle,
		size:         size,
		lastAccessed: bc.clock.Now(),
	}
	bc.items[key] = bc.eviction.PushFront(entry)
	bc.size += size

	bc.logger.Debug("cache set", "key", key.Short(), "size", humanize.Bytes(uint64(size)), "total", humanize.Bytes(uint64(bc.size)))
	return handle, nil
}

// Delete removes key and revokes its handle.
func (bc *BlobCache) Delete(key Key) {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if elem, ok := bc.items[key]; ok {
		bc.removeElement(elem)
	}
}

// Contains checks if a key exists in the cache without updating LRU.
func (bc *BlobCache) Contains(key Key) bool {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	_, ok := bc.items[key]
	return ok
}

// Clear removes every entry and revokes every handle.
func (bc *BlobCache) Clear() {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	bc.clearLocked()
}

// Sweep removes entries idle for longer than MaxAge and returns how many
// were removed.
func (bc *BlobCache) Sweep() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	cutoff := bc.clock.Now().Add(-bc.config.MaxAge)
	swept := 0

	// The list is ordered by access time, oldest at the back.
	for elem := bc.eviction.Back(); elem != nil; {
		entry := elem.Value.(*blobEntry)
		if !entry.lastAccessed.Before(cutoff) {
			break
		}
		prev := elem.Prev()
		bc.removeElement(elem)
		swept++
		elem = prev
	}

	if swept > 0 {
		bc.stats.Expirations += int64(swept)
		bc.logger.Debug("cache sweep", "expired", swept, "remaining", len(bc.items))
	}
	return swept
}

// Start runs Sweep every SweepInterval until Close.
func (bc *BlobCache) Start() {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if bc.started || bc.closed {
		return
	}
	bc.started = true

	ticker := bc.clock.NewTicker(bc.config.SweepInterval)
	bc.wg.Add(1)
	go func() {
		defer bc.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ticker.Chan():
				bc.Sweep()
			case <-bc.stop:
				return
			}
		}
	}()
}

// Close stops the sweeper and releases every entry.
func (bc *BlobCache) Close() error {
	bc.mu.Lock()
	if bc.closed {
		bc.mu.Unlock()
		return nil
	}
	bc.closed = true
	close(bc.stop)
	bc.mu.Unlock()

	bc.wg.Wait()

	bc.mu.Lock()
	bc.clearLocked()
	bc.mu.Unlock()
	return nil
}

// Size returns the current cache size in bytes.
func (bc *BlobCache) Size() int64 {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return bc.size
}

// Len returns the number of entries.
func (bc *BlobCache) Len() int {
	bc.mu.Lock()
	defer bc.mu.Unlock()
	return len(bc.items)
}

// Stats returns cache statistics.
func (bc *BlobCache) Stats() Stats {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	stats := bc.stats
	stats.Size = bc.size
	stats.Items = int64(len(bc.items))
	if stats.Hits+stats.Misses > 0 {
		stats.HitRate = float64(stats.Hits) / float64(stats.Hits+stats.Misses)
	}
	return stats
}

// Entries lists entries from most to least recently used.
func (bc *BlobCache) Entries() []EntryInfo {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	out := make([]EntryInfo, 0, len(bc.items))
	for elem := bc.eviction.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*blobEntry)
		out = append(out, EntryInfo{Key: e.key, Handle: e.handle, Size: e.size, LastAccessed: e.lastAccessed})
	}
	return out
}

// evictOldest removes the least recently used item (must be called with lock held).
func (bc *BlobCache) evictOldest() {
	elem := bc.eviction.Back()
	if elem != nil {
		bc.removeElement(elem)
		bc.stats.Evictions++
	}
}

// removeElement removes an element and revokes its handle (must be called with lock held).
func (bc *BlobCache) removeElement(elem *list.Element) {
	bc.eviction.Remove(elem)
	entry := elem.Value.(*blobEntry)
	delete(bc.items, entry.key)
	bc.size -= entry.size
	bc.objects.Revoke(entry.handle)
}

func (bc *BlobCache) clearLocked() {
	for _, elem := range bc.items {
		bc.objects.Revoke(elem.Value.(*blobEntry).handle)
	}
	bc.items = make(map[Key]*list.Element)
	bc.eviction.Init()
	bc.size = 0
}
