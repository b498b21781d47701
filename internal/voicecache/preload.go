package voicecache

import (
	"context"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgnsrekt/cuecard/internal/cache"
)

// DefaultPreloadSpacing is the minimum gap between preload syntheses.
const DefaultPreloadSpacing = 200 * time.Millisecond

// Item is one clip to warm.
type Item struct {
	Text    string
	VoiceID string
}

// Report summarises a Preload run.
type Report struct {
	Requested   int
	Skipped     int // already cached in memory or the store
	Synthesized int
	Failed      int
}

// Preload warms the cache with items. Clips already held in memory or in
// the store are skipped. The rest are fetched grouped by voice, most used
// voices first, no faster than spacing apart. A zero spacing uses
// DefaultPreloadSpacing.
func (c *Cache) Preload(ctx context.Context, items []Item, spacing time.Duration) (Report, error) {
	if spacing <= 0 {
		spacing = DefaultPreloadSpacing
	}
	report := Report{Requested: len(items)}

	type pending struct {
		Item
		key cache.Key
	}

	seen := make(map[cache.Key]bool, len(items))
	var todo []pending
	for _, it := range items {
		text := cache.NormalizeText(it.Text)
		if text == "" || it.VoiceID == "" {
			report.Skipped++
			continue
		}
		key := cache.NewKey(it.VoiceID, text)
		if seen[key] || c.blobs.Contains(key) {
			report.Skipped++
			continue
		}
		seen[key] = true
		todo = append(todo, pending{Item{text, it.VoiceID}, key})
	}

	if c.store != nil && len(todo) > 0 {
		hashes := make([]string, len(todo))
		for i, p := range todo {
			hashes[i] = string(p.key)
		}
		existing, err := c.store.Existing(ctx, hashes)
		if err != nil {
			return report, err
		}
		kept := todo[:0]
		for _, p := range todo {
			if existing[string(p.key)] {
				report.Skipped++
				continue
			}
			kept = append(kept, p)
		}
		todo = kept
	}

	usage := c.Usage()
	groups := make(map[string][]pending)
	var voices []string
	for _, p := range todo {
		if _, ok := groups[p.VoiceID]; !ok {
			voices = append(voices, p.VoiceID)
		}
		groups[p.VoiceID] = append(groups[p.VoiceID], p)
	}
	sort.SliceStable(voices, func(i, j int) bool {
		return usage[voices[i]].Count > usage[voices[j]].Count
	})

	limiter := rate.NewLimiter(rate.Every(spacing), 1)
	for _, v := range voices {
		for _, p := range groups[v] {
			if err := limiter.Wait(ctx); err != nil {
				return report, err
			}
			_, src := c.FetchSource(ctx, p.Text, p.VoiceID)
			if src == SourceSilent {
				report.Failed++
			} else {
				report.Synthesized++
			}
		}
	}

	c.logger.Info("preload finished", "requested", report.Requested, "skipped", report.Skipped,
		"synthesized", report.Synthesized, "failed", report.Failed)
	return report, nil
}
