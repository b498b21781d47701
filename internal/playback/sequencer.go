// Package playback voices script lines as they scroll into view.
//
// The Sequencer processes one line at a time. Each line either gets
// skipped or goes through voice lookup, clip fetch and playback, and every
// path ends with the line marked spoken so a failure never stalls the
// lines after it.
package playback

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/dgnsrekt/cuecard/internal/audio"
	"github.com/dgnsrekt/cuecard/internal/cache"
	"github.com/dgnsrekt/cuecard/internal/diag"
	"github.com/dgnsrekt/cuecard/internal/script"
)

// Fetcher turns text and a voice into a playable clip. It never fails.
type Fetcher interface {
	Fetch(ctx context.Context, text, voiceID string) cache.Handle
}

// Player plays clips.
type Player interface {
	Play(ctx context.Context, h cache.Handle, rate float64) error
	Stop()
}

// Prefetcher warms clips for lines that come next.
type Prefetcher interface {
	Prefetch(index int, text, voiceID string)
	Reset()
}

// Casting maps characters to voices.
type Casting interface {
	IsFocused(character string) bool
	VoiceFor(character string) string
	NarratorVoice() string
}

// Sequencer is the read-along state machine.
type Sequencer struct {
	fetcher  Fetcher
	player   Player
	clock    clockwork.Clock
	logger   *log.Logger
	observer diag.Observer
	onDone   func(Outcome)
	prefetch Prefetcher

	mu        sync.Mutex
	lines     []script.Line
	casting   Casting
	settings  Settings
	playing   bool
	session   string
	ctx       context.Context
	cancel    context.CancelFunc
	cursor    Cursor
	spoken    map[int]bool
	inFlight  bool
	speaking  string
	listeners map[int]func(string)
	nextID    int

	wg sync.WaitGroup
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithClock sets the clock used for the line timeout.
func WithClock(c clockwork.Clock) Option {
	return func(s *Sequencer) {
		s.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Sequencer) {
		s.logger = l
	}
}

// WithObserver sets where playback failures are reported.
func WithObserver(o diag.Observer) Option {
	return func(s *Sequencer) {
		s.observer = o
	}
}

// WithSettings sets the initial settings.
func WithSettings(settings Settings) Option {
	return func(s *Sequencer) {
		s.settings = settings
	}
}

// WithPrefetcher queues upcoming lines on p while a line plays.
func WithPrefetcher(p Prefetcher) Option {
	return func(s *Sequencer) {
		s.prefetch = p
	}
}

// OnOutcome registers fn to run after every processed line.
func OnOutcome(fn func(Outcome)) Option {
	return func(s *Sequencer) {
		s.onDone = fn
	}
}

// NewSequencer returns an idle sequencer.
func NewSequencer(fetcher Fetcher, player Player, opts ...Option) *Sequencer {
	s := &Sequencer{
		fetcher:   fetcher,
		player:    player,
		clock:     clockwork.NewRealClock(),
		logger:    log.Default(),
		observer:  diag.Discard,
		settings:  DefaultSettings(),
		cursor:    Cursor{Current: -1, LastSpoken: -1},
		spoken:    make(map[int]bool),
		listeners: make(map[int]func(string)),
		ctx:       context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the script and cast. Progress is kept; call Start to
// begin again from the top.
func (s *Sequencer) Load(lines []script.Line, casting Casting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append([]script.Line(nil), lines...)
	s.casting = casting
}

// SetSettings replaces the settings. Turning voice off stops the clip
// that is playing.
func (s *Sequencer) SetSettings(settings Settings) {
	s.mu.Lock()
	wasEnabled := s.settings.VoiceEnabled
	s.settings = settings
	s.mu.Unlock()

	if wasEnabled && !settings.VoiceEnabled {
		s.player.Stop()
	}
}

// Settings returns the current settings.
func (s *Sequencer) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Start begins a new session from the top of the script.
func (s *Sequencer) Start() {
	s.reset(true)
}

// Stop ends the session and silences the player.
func (s *Sequencer) Stop() {
	s.reset(false)
}

func (s *Sequencer) reset(playing bool) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	if playing {
		s.ctx, s.cancel = context.WithCancel(context.Background())
		s.session = uuid.NewString()
	} else {
		s.ctx, s.cancel = context.Background(), nil
		s.session = ""
	}
	s.playing = playing
	s.cursor = Cursor{Current: -1, LastSpoken: -1}
	s.spoken = make(map[int]bool)
	session := s.session
	s.mu.Unlock()

	s.player.Stop()
	if s.prefetch != nil {
		s.prefetch.Reset()
	}
	s.setSpeaking("")
	s.logger.Debug("playback session reset", "playing", playing, "session", session)
}

// Playing reports whether a session is running.
func (s *Sequencer) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Visible is told which line indices are on screen, top first. When a
// session is running, voice is on, nothing is in flight and the top line
// has not been spoken yet, that line is processed in the background and
// Visible returns true.
func (s *Sequencer) Visible(indices []int) bool {
	s.mu.Lock()
	if !s.playing || !s.settings.VoiceEnabled || s.inFlight || len(indices) == 0 {
		s.mu.Unlock()
		return false
	}
	idx := indices[0]
	if idx <= s.cursor.LastSpoken {
		s.mu.Unlock()
		return false
	}
	s.cursor.Current = max(s.cursor.Current, idx)
	s.inFlight = true
	ctx := s.ctx
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, idx)
	}()
	return true
}

// ProcessLine runs line index through the state machine and returns how
// it ended. It returns StateBusy without doing anything if another line
// is in flight.
func (s *Sequencer) ProcessLine(ctx context.Context, index int) Outcome {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		return Outcome{Index: index, State: StateBusy}
	}
	s.inFlight = true
	s.mu.Unlock()

	return s.run(ctx, index)
}

// run expects inFlight to be set and always clears it.
func (s *Sequencer) run(ctx context.Context, index int) Outcome {
	s.mu.Lock()
	session := s.session
	out := s.plan(index)
	settings := s.settings
	var text string
	if out.Skip == SkipNone {
		text = s.lines[index].Text
	}
	var next []Outcome
	if s.prefetch != nil {
		next = s.upcoming(index, settings.Lookahead)
	}
	texts := make([]string, len(next))
	for i, n := range next {
		texts[i] = s.lines[n.Index].Text
	}
	s.mu.Unlock()

	for i, n := range next {
		s.prefetch.Prefetch(n.Index, texts[i], n.VoiceID)
	}

	if out.Skip != SkipNone {
		out.State = StateSkipped
		return s.finish(session, out)
	}

	if !s.speakFor(session, out.Speaker) {
		out.State = StateDiscarded
		return s.finish(session, out)
	}

	h := s.fetcher.Fetch(ctx, text, out.VoiceID)
	if !s.current(session) {
		out.State = StateDiscarded
		return s.finish(session, out)
	}

	out.State, out.Err = s.play(ctx, h, settings)
	return s.finish(session, out)
}

// plan decides whether line index needs audio and with which voice.
// Callers hold s.mu.
func (s *Sequencer) plan(index int) Outcome {
	out := Outcome{Index: index}
	switch {
	case s.spoken[index]:
		out.Skip = SkipAlreadySpoken
		return out
	case index < 0 || index >= len(s.lines):
		out.Skip = SkipOutOfRange
		return out
	case !s.settings.VoiceEnabled:
		out.Skip = SkipVoiceDisabled
		return out
	}

	line := s.lines[index]
	switch {
	case !s.settings.ReadAloud.Enabled(line.Type):
		out.Skip = SkipToggledOff
		return out
	case strings.TrimSpace(line.Text) == "":
		out.Skip = SkipEmptyText
		return out
	case s.casting == nil:
		out.Skip = SkipNoVoice
		return out
	}

	if line.Type.IsNarration() {
		out.Speaker = script.NarratorName
		out.VoiceID = s.casting.NarratorVoice()
	} else {
		out.Speaker = line.Speaker
		if s.casting.IsFocused(line.Speaker) {
			out.Skip = SkipFocusedRole
			return out
		}
		out.VoiceID = s.casting.VoiceFor(line.Speaker)
	}
	if out.VoiceID == "" {
		out.Skip = SkipNoVoice
	}
	return out
}

// upcoming returns plans for the next n voiced lines after index.
// Callers hold s.mu.
func (s *Sequencer) upcoming(index, n int) []Outcome {
	if n <= 0 {
		return nil
	}
	var out []Outcome
	for i := index + 1; i < len(s.lines) && len(out) < n; i++ {
		if p := s.plan(i); p.Skip == SkipNone {
			out = append(out, p)
		}
	}
	return out
}

// play runs the clip, cutting it off at the line timeout.
func (s *Sequencer) play(ctx context.Context, h cache.Handle, settings Settings) (State, error) {
	done := make(chan error, 1)
	go func() {
		done <- s.player.Play(ctx, h, Rate(settings.WordsPerMinute))
	}()

	timeout := settings.LineTimeout
	if timeout <= 0 {
		timeout = DefaultLineTimeout
	}
	timer := s.clock.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		switch {
		case err == nil:
			return StatePlayed, nil
		case errors.Is(err, audio.ErrStopped), errors.Is(err, context.Canceled):
			// Stopped by the user: voice toggled off or a new session.
			return StateDiscarded, err
		}
		return StateFailed, err
	case <-timer.Chan():
		s.player.Stop()
		return StateTimedOut, nil
	case <-ctx.Done():
		s.player.Stop()
		return StateDiscarded, ctx.Err()
	}
}

// finish marks the line spoken, clears the speaker and releases the
// in-flight slot.
func (s *Sequencer) finish(session string, out Outcome) Outcome {
	s.mu.Lock()
	if s.session == session {
		if out.Skip != SkipAlreadySpoken {
			s.spoken[out.Index] = true
		}
		s.cursor.LastSpoken = max(s.cursor.LastSpoken, out.Index)
	} else if out.State != StateSkipped {
		out.State = StateDiscarded
	}
	s.inFlight = false
	s.mu.Unlock()

	s.setSpeaking("")

	switch out.State {
	case StateFailed:
		s.observer.Observe(diag.Diagnostic{Component: "playback", Kind: diag.KindResource, Err: out.Err})
	case StateTimedOut:
		s.observer.Observe(diag.Diagnostic{Component: "playback", Kind: diag.KindResource, Err: errLineTimeout})
	}
	s.logger.Debug("line done", "index", out.Index, "state", out.State, "skip", out.Skip, "speaker", out.Speaker)

	if s.onDone != nil {
		s.onDone(out)
	}
	return out
}

func (s *Sequencer) current(session string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session == session
}

// Cursor returns the current progress.
func (s *Sequencer) Cursor() Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Busy reports whether a line is in flight.
func (s *Sequencer) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Spoken reports whether line index was processed this session.
func (s *Sequencer) Spoken(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spoken[index]
}

// Wait blocks until lines started by Visible finish.
func (s *Sequencer) Wait() {
	s.wg.Wait()
}

// Plan reports how each line would be handled at the start of a session.
// Lines with Skip == SkipNone need a clip.
func Plan(lines []script.Line, casting Casting, settings Settings) []Outcome {
	s := &Sequencer{
		lines:    lines,
		casting:  casting,
		settings: settings,
		spoken:   make(map[int]bool),
	}
	out := make([]Outcome, len(lines))
	for i := range lines {
		out[i] = s.plan(i)
	}
	return out
}
