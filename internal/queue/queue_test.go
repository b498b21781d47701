package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/cuecard/internal/cache"
)

type recordingWarmer struct {
	mu      sync.Mutex
	fetched []string
	gate    chan struct{}
	started chan struct{}
}

func (w *recordingWarmer) Fetch(ctx context.Context, text, voiceID string) cache.Handle {
	if w.started != nil {
		w.started <- struct{}{}
	}
	if w.gate != nil {
		select {
		case <-w.gate:
		case <-ctx.Done():
		}
	}
	w.mu.Lock()
	w.fetched = append(w.fetched, text)
	w.mu.Unlock()
	return cache.Handle("blob:test/" + text)
}

func (w *recordingWarmer) Fetched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.fetched...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestLookahead_NearestLineFirst(t *testing.T) {
	w := &recordingWarmer{gate: make(chan struct{}), started: make(chan struct{}, 10)}
	q := New(w, 10, log.New(nil))
	defer q.Close()

	// Occupy the worker so the rest queue up.
	if err := q.Enqueue(Item{Index: 0, Text: "first", VoiceID: "v"}); err != nil {
		t.Fatal(err)
	}
	<-w.started

	if err := q.Enqueue(
		Item{Index: 9, Text: "nine", VoiceID: "v"},
		Item{Index: 3, Text: "three", VoiceID: "v"},
		Item{Index: 5, Text: "five", VoiceID: "v"},
	); err != nil {
		t.Fatal(err)
	}
	close(w.gate)

	waitFor(t, func() bool { return len(w.Fetched()) == 4 })
	want := []string{"first", "three", "five", "nine"}
	for i, got := range w.Fetched() {
		if got != want[i] {
			t.Errorf("fetch %d = %q, want %q", i, got, want[i])
		}
	}
	if s := q.Stats(); s.TotalWarmed != 4 || s.TotalEnqueued != 4 {
		t.Errorf("stats = %+v", s)
	}
}

func TestLookahead_DedupesAndBounds(t *testing.T) {
	w := &recordingWarmer{gate: make(chan struct{}), started: make(chan struct{}, 10)}
	q := New(w, 2, log.New(nil))
	defer func() {
		close(w.gate)
		q.Close()
	}()

	q.Prefetch(0, "busy", "v")
	<-w.started

	q.Prefetch(1, "a", "v")
	q.Prefetch(1, "a", "v")
	if q.Size() != 1 {
		t.Errorf("size = %d, want 1 after duplicate", q.Size())
	}
	q.Prefetch(2, "b", "v")
	if err := q.Enqueue(Item{Index: 3, Text: "c", VoiceID: "v"}); err != ErrQueueFull {
		t.Errorf("Enqueue() error = %v, want ErrQueueFull", err)
	}
	if s := q.Stats(); s.TotalDropped != 1 || s.PeakSize != 2 {
		t.Errorf("stats = %+v", s)
	}
}

func TestLookahead_Reset(t *testing.T) {
	w := &recordingWarmer{gate: make(chan struct{}), started: make(chan struct{}, 10)}
	q := New(w, 10, log.New(nil))
	defer q.Close()

	q.Prefetch(0, "running", "v")
	<-w.started
	q.Prefetch(1, "stale", "v")
	q.Prefetch(2, "stale too", "v")

	q.Reset()
	if q.Size() != 0 {
		t.Errorf("size = %d after Reset", q.Size())
	}
	close(w.gate)

	waitFor(t, func() bool { return len(w.Fetched()) == 1 })
	time.Sleep(10 * time.Millisecond)
	if got := w.Fetched(); len(got) != 1 || got[0] != "running" {
		t.Errorf("fetched = %v", got)
	}
	if s := q.Stats(); s.TotalCleared != 2 {
		t.Errorf("cleared = %d, want 2", s.TotalCleared)
	}
}

func TestLookahead_Close(t *testing.T) {
	w := &recordingWarmer{gate: make(chan struct{}), started: make(chan struct{}, 10)}
	q := New(w, 10, log.New(nil))

	q.Prefetch(0, "hung", "v")
	<-w.started

	done := make(chan struct{})
	go func() {
		_ = q.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the running fetch")
	}

	if err := q.Enqueue(Item{Text: "late", VoiceID: "v"}); err != ErrQueueClosed {
		t.Errorf("Enqueue() after Close = %v, want ErrQueueClosed", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}
