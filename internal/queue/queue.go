package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/cuecard/internal/cache"
)

var (
	// ErrQueueFull is returned when the queue is at capacity
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueClosed is returned when operations are attempted on a closed queue
	ErrQueueClosed = errors.New("queue is closed")
)

// DefaultMaxSize bounds pending requests.
const DefaultMaxSize = 16

// Warmer fetches a clip so later lookups hit the cache.
type Warmer interface {
	Fetch(ctx context.Context, text, voiceID string) cache.Handle
}

// Item is one clip to warm. Lower Index is served first.
type Item struct {
	Index   int
	Text    string
	VoiceID string
}

func (it Item) key() cache.Key {
	return cache.NewKey(it.VoiceID, it.Text)
}

// Stats tracks queue activity.
type Stats struct {
	TotalEnqueued int64
	TotalWarmed   int64
	TotalDropped  int64 // rejected because the queue was full
	TotalCleared  int64 // discarded by Reset
	CurrentSize   int
	PeakSize      int
	LastWarm      time.Time
}

// Lookahead is a bounded prefetch queue.
type Lookahead struct {
	warmer  Warmer
	maxSize int
	logger  *log.Logger

	mu       sync.Mutex
	notEmpty *sync.Cond
	items    itemHeap
	queued   map[cache.Key]bool
	closed   bool
	stats    Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts a lookahead queue that warms w. maxSize <= 0 uses
// DefaultMaxSize.
func New(w Warmer, maxSize int, logger *log.Logger) *Lookahead {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	q := &Lookahead{
		warmer:  w,
		maxSize: maxSize,
		logger:  logger,
		queued:  make(map[cache.Key]bool),
		ctx:     ctx,
		cancel:  cancel,
	}
	q.notEmpty = sync.NewCond(&q.mu)
	heap.Init(&q.items)

	q.wg.Add(1)
	go q.run()
	return q
}

// Enqueue adds items. Items already pending are ignored.
func (q *Lookahead) Enqueue(items ...Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}

	for _, it := range items {
		k := it.key()
		if q.queued[k] {
			continue
		}
		if q.items.Len() >= q.maxSize {
			q.stats.TotalDropped++
			return ErrQueueFull
		}
		heap.Push(&q.items, it)
		q.queued[k] = true
		q.stats.TotalEnqueued++
	}

	q.stats.CurrentSize = q.items.Len()
	q.stats.PeakSize = max(q.stats.PeakSize, q.stats.CurrentSize)
	q.notEmpty.Signal()
	return nil
}

// Prefetch queues one clip, dropping it if the queue is full or closed.
func (q *Lookahead) Prefetch(index int, text, voiceID string) {
	if err := q.Enqueue(Item{Index: index, Text: text, VoiceID: voiceID}); err != nil {
		q.logger.Debug("prefetch dropped", "index", index, "err", err)
	}
}

// Reset discards pending requests. A fetch already running finishes.
func (q *Lookahead) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stats.TotalCleared += int64(q.items.Len())
	q.items = q.items[:0]
	q.queued = make(map[cache.Key]bool)
	q.stats.CurrentSize = 0
}

// Size returns the number of pending requests.
func (q *Lookahead) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Stats returns current queue statistics.
func (q *Lookahead) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	s := q.stats
	s.CurrentSize = q.items.Len()
	return s
}

// Close stops the worker and waits for it to exit.
func (q *Lookahead) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.cancel()
	q.notEmpty.Broadcast()
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

func (q *Lookahead) run() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for q.items.Len() == 0 && !q.closed {
			q.notEmpty.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		it := heap.Pop(&q.items).(Item)
		delete(q.queued, it.key())
		q.stats.CurrentSize = q.items.Len()
		q.mu.Unlock()

		q.warmer.Fetch(q.ctx, it.Text, it.VoiceID)

		q.mu.Lock()
		q.stats.TotalWarmed++
		q.stats.LastWarm = time.Now()
		q.mu.Unlock()
		q.logger.Debug("prefetched", "index", it.Index, "voice", it.VoiceID)
	}
}

// itemHeap orders items by line index.
type itemHeap []Item

func (h itemHeap) Len() int           { return len(h) }
func (h itemHeap) Less(i, j int) bool { return h[i].Index < h[j].Index }
func (h itemHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) {
	*h = append(*h, x.(Item))
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
