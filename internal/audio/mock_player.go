package audio

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dgnsrekt/cuecard/internal/cache"
)

// PlayCall records one call to MockPlayer.Play.
type PlayCall struct {
	Handle cache.Handle
	Rate   float64
}

// MockPlayer stands in for the sound device in tests. Each Play lasts
// Duration unless Hang is set, in which case it only returns when stopped
// or cancelled. A zero Duration returns at once.
type MockPlayer struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	duration time.Duration
	hang     bool
	err      error
	calls    []PlayCall
	stops    int
	stopCh   chan struct{}
	playing  bool

	// OnPlay is called at the start of every Play.
	OnPlay func(PlayCall)
}

// MockOption configures a MockPlayer.
type MockOption func(*MockPlayer)

// WithMockClock times clips on c.
func WithMockClock(c clockwork.Clock) MockOption {
	return func(mp *MockPlayer) {
		mp.clock = c
	}
}

// NewMockPlayer returns a mock whose clips last duration.
func NewMockPlayer(duration time.Duration, opts ...MockOption) *MockPlayer {
	mp := &MockPlayer{duration: duration, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(mp)
	}
	return mp
}

// SetHang makes future clips never finish on their own.
func (mp *MockPlayer) SetHang(hang bool) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.hang = hang
}

// SetError makes future clips fail with err.
func (mp *MockPlayer) SetError(err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.err = err
}

// Play implements the sequencer's player.
func (mp *MockPlayer) Play(ctx context.Context, h cache.Handle, rate float64) error {
	call := PlayCall{Handle: h, Rate: rate}

	mp.mu.Lock()
	mp.calls = append(mp.calls, call)
	if mp.err != nil {
		err := mp.err
		mp.mu.Unlock()
		return err
	}
	stopCh := make(chan struct{})
	mp.stopCh = stopCh
	mp.playing = true
	hang := mp.hang
	duration := mp.duration
	onPlay := mp.OnPlay
	clock := mp.clock
	mp.mu.Unlock()

	if onPlay != nil {
		onPlay(call)
	}

	defer func() {
		mp.mu.Lock()
		if mp.stopCh == stopCh {
			mp.playing = false
			mp.stopCh = nil
		}
		mp.mu.Unlock()
	}()

	if !hang && duration <= 0 {
		return nil
	}

	var done <-chan time.Time
	if !hang {
		timer := clock.NewTimer(duration)
		defer timer.Stop()
		done = timer.Chan()
	}

	select {
	case <-done:
		return nil
	case <-stopCh:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop interrupts the current clip.
func (mp *MockPlayer) Stop() {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.stops++
	if mp.stopCh != nil {
		close(mp.stopCh)
		mp.stopCh = nil
		mp.playing = false
	}
}

// IsPlaying reports whether a clip is in progress.
func (mp *MockPlayer) IsPlaying() bool {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.playing
}

// Calls returns every Play call so far.
func (mp *MockPlayer) Calls() []PlayCall {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	out := make([]PlayCall, len(mp.calls))
	copy(out, mp.calls)
	return out
}

// Stops returns how many times Stop was called.
func (mp *MockPlayer) Stops() int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.stops
}

// ErrMockPlayback is a convenience error for SetError.
var ErrMockPlayback = errors.New("simulated playback error")
