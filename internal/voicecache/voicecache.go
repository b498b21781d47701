// Package voicecache resolves (text, voice) pairs to playable clip handles.
//
// A lookup tries the in-memory blob cache, then the durable store, then the
// synthesis service. Concurrent lookups of the same clip share one fetch.
// Whatever happens the caller gets a handle that plays: failures resolve to
// a shared silent clip.
package voicecache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/dgnsrekt/cuecard/internal/audio"
	"github.com/dgnsrekt/cuecard/internal/cache"
	"github.com/dgnsrekt/cuecard/internal/diag"
	"github.com/dgnsrekt/cuecard/internal/store"
	"github.com/dgnsrekt/cuecard/internal/synth"
)

// Synthesizer produces encoded audio or an error.
type Synthesizer interface {
	Fetch(ctx context.Context, req synth.Request) ([]byte, error)
}

// Store is the durable tier.
type Store interface {
	Get(ctx context.Context, hash string) (*store.Record, error)
	Put(ctx context.Context, rec store.Record) error
	Touch(ctx context.Context, hash string) error
	Existing(ctx context.Context, hashes []string) (map[string]bool, error)
	VoiceStats(ctx context.Context) ([]store.VoiceStat, error)
	Clear(ctx context.Context) error
}

// Source says where a handle came from.
type Source int

const (
	SourceSilent Source = iota
	SourceMemory
	SourceStore
	SourceSynth
)

// String returns the source name.
func (s Source) String() string {
	switch s {
	case SourceMemory:
		return "memory"
	case SourceStore:
		return "store"
	case SourceSynth:
		return "synth"
	default:
		return "silent"
	}
}

// Usage counts how often a voice was requested.
type Usage struct {
	Count    int64
	LastUsed time.Time
}

// Cache is the voice clip orchestrator.
type Cache struct {
	blobs     *cache.BlobCache
	store     Store
	synth     Synthesizer
	validator *audio.Validator
	retry     Retry
	clock     clockwork.Clock
	observer  diag.Observer
	logger    *log.Logger

	group singleflight.Group
	// background store writes
	wg sync.WaitGroup

	mu     sync.Mutex
	usage  map[string]*Usage
	silent cache.Handle
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore adds a durable tier.
func WithStore(s Store) Option {
	return func(c *Cache) {
		c.store = s
	}
}

// WithValidator replaces the default validator.
func WithValidator(v *audio.Validator) Option {
	return func(c *Cache) {
		c.validator = v
	}
}

// WithRetry sets the retry policy for store operations.
func WithRetry(r Retry) Option {
	return func(c *Cache) {
		c.retry = r
	}
}

// WithClock sets the clock used for retries and usage timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Cache) {
		c.clock = clock
	}
}

// WithObserver sets where failures are reported.
func WithObserver(o diag.Observer) Option {
	return func(c *Cache) {
		c.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Cache) {
		c.logger = l
	}
}

// New returns a cache over blobs that synthesizes misses with s.
func New(blobs *cache.BlobCache, s Synthesizer, opts ...Option) *Cache {
	c := &Cache{
		blobs:    blobs,
		synth:    s,
		retry:    DefaultRetry(),
		clock:    clockwork.NewRealClock(),
		observer: diag.Discard,
		logger:   log.Default(),
		usage:    make(map[string]*Usage),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.validator == nil {
		c.validator = audio.NewValidator(audio.WithValidatorObserver(c.observer), audio.WithValidatorLogger(c.logger))
	}
	return c
}

type fetchResult struct {
	handle cache.Handle
	source Source
}

// Fetch returns a playable handle for text read by voiceID.
func (c *Cache) Fetch(ctx context.Context, text, voiceID string) cache.Handle {
	h, _ := c.FetchSource(ctx, text, voiceID)
	return h
}

// FetchSource is Fetch that also reports which tier answered.
func (c *Cache) FetchSource(ctx context.Context, text, voiceID string) (cache.Handle, Source) {
	text = cache.NormalizeText(text)
	if text == "" || voiceID == "" {
		return c.Silent(), SourceSilent
	}
	c.recordUse(voiceID)

	key := cache.NewKey(voiceID, text)
	if h, ok := c.blobs.Get(key); ok {
		c.touchLater(key)
		return h, SourceMemory
	}

	// The shared fetch must not die with whichever caller started it.
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(string(key), func() (any, error) {
		return c.load(shared, key, text, voiceID), nil
	})

	select {
	case res := <-ch:
		r := res.Val.(fetchResult)
		return r.handle, r.source
	case <-ctx.Done():
		return c.Silent(), SourceSilent
	}
}

// load runs once per key at a time.
func (c *Cache) load(ctx context.Context, key cache.Key, text, voiceID string) fetchResult {
	// Another caller may have finished while we waited for the group.
	if c.blobs.Contains(key) {
		if h, ok := c.blobs.Get(key); ok {
			return fetchResult{h, SourceMemory}
		}
	}

	if h, ok := c.loadStored(ctx, key); ok {
		return fetchResult{h, SourceStore}
	}

	raw, err := c.synth.Fetch(ctx, synth.Request{Text: text, VoiceID: voiceID})
	if err != nil {
		c.report(diag.KindTransport, err)
		return fetchResult{c.Silent(), SourceSilent}
	}

	res := c.validator.Validate(ctx, raw)
	if res.Fallback {
		return fetchResult{c.Silent(), SourceSilent}
	}

	h, err := c.blobs.Set(key, res.WAV())
	if err != nil {
		c.report(diag.KindResource, err)
		return fetchResult{c.Silent(), SourceSilent}
	}

	c.persistLater(store.Record{
		Hash:    string(key),
		VoiceID: voiceID,
		Text:    text,
		Audio:   raw,
		Format:  res.Format.String(),
	})
	return fetchResult{h, SourceSynth}
}

// loadStored revalidates a stored clip and promotes it into memory.
func (c *Cache) loadStored(ctx context.Context, key cache.Key) (cache.Handle, bool) {
	if c.store == nil {
		return "", false
	}

	var rec *store.Record
	err := c.retry.Do(ctx, c.clock, func() error {
		var err error
		rec, err = c.store.Get(ctx, string(key))
		if errors.Is(err, store.ErrNotFound) {
			return Permanent(err)
		}
		return err
	})
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			c.report(diag.KindResource, err)
		}
		return "", false
	}

	res := c.validator.Validate(ctx, rec.Audio)
	if res.Fallback {
		return "", false
	}
	h, err := c.blobs.Set(key, res.WAV())
	if err != nil {
		c.report(diag.KindResource, err)
		return "", false
	}
	c.touchLater(key)
	return h, true
}

// Silent returns the shared handle of the silent clip, creating it if the
// cache released it.
func (c *Cache) Silent() cache.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	objects := c.blobs.Objects()
	if c.silent != "" {
		if _, _, ok := objects.Resolve(c.silent); ok {
			return c.silent
		}
	}
	h, err := objects.Create(synth.Silence(), cache.MIMEType)
	if err != nil {
		c.logger.Error("creating silent clip", "err", err)
		return ""
	}
	c.silent = h
	return h
}

func (c *Cache) recordUse(voiceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.usage[voiceID]
	if !ok {
		u = &Usage{}
		c.usage[voiceID] = u
	}
	u.Count++
	u.LastUsed = c.clock.Now()
}

// Usage returns per-voice request counts for this process.
func (c *Cache) Usage() map[string]Usage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]Usage, len(c.usage))
	for id, u := range c.usage {
		out[id] = *u
	}
	return out
}

// VoiceStats returns durable per-voice totals, or nil without a store.
func (c *Cache) VoiceStats(ctx context.Context) ([]store.VoiceStat, error) {
	if c.store == nil {
		return nil, nil
	}
	return c.store.VoiceStats(ctx)
}

// Clear empties memory and, if present, the durable store.
func (c *Cache) Clear(ctx context.Context) error {
	c.Wait()
	c.blobs.Clear()
	if c.store == nil {
		return nil
	}
	return c.retry.Do(ctx, c.clock, func() error {
		return c.store.Clear(ctx)
	})
}

// Wait blocks until background store writes finish.
func (c *Cache) Wait() {
	c.wg.Wait()
}

func (c *Cache) persistLater(rec store.Record) {
	if c.store == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx := context.Background()
		err := c.retry.Do(ctx, c.clock, func() error {
			return c.store.Put(ctx, rec)
		})
		if err != nil {
			c.report(diag.KindResource, err)
		}
	}()
}

func (c *Cache) touchLater(key cache.Key) {
	if c.store == nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.store.Touch(context.Background(), string(key)); err != nil && !errors.Is(err, store.ErrNotFound) {
			c.logger.Debug("touch failed", "key", key.Short(), "err", err)
		}
	}()
}

func (c *Cache) report(kind diag.Kind, err error) {
	c.logger.Debug("voice cache fallback", "err", err)
	c.observer.Observe(diag.Diagnostic{Component: "voicecache", Kind: kind, Err: err})
}
