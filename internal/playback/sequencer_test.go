package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"github.com/dgnsrekt/cuecard/internal/audio"
	"github.com/dgnsrekt/cuecard/internal/cache"
	"github.com/dgnsrekt/cuecard/internal/diag"
	"github.com/dgnsrekt/cuecard/internal/script"
	"github.com/dgnsrekt/cuecard/internal/voice"
)

type fetchCall struct {
	Text    string
	VoiceID string
}

type fakeFetcher struct {
	mu    sync.Mutex
	calls []fetchCall
	gate  chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, text, voiceID string) cache.Handle {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{text, voiceID})
	gate := f.gate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return cache.Handle("blob:test/" + voiceID)
}

func (f *fakeFetcher) Calls() []fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fetchCall(nil), f.calls...)
}

func testLines() []script.Line {
	return []script.Line{
		{Index: 0, Type: script.Location, Text: "INT. KITCHEN - NIGHT"},
		{Index: 1, Type: script.Action, Text: "Bob opens the fridge."},
		{Index: 2, Type: script.Dialogue, Speaker: "BOB", Text: "We're out of milk."},
		{Index: 3, Type: script.Dialogue, Speaker: "ALICE", Text: "Again?"},
		{Index: 4, Type: script.Parenthetical, Speaker: "BOB", Text: "(sighing)"},
		{Index: 5, Type: script.Dialogue, Speaker: "CAROL", Text: "I'll go."},
		{Index: 6, Type: script.Dialogue, Speaker: "BOB", Text: "   "},
	}
}

func testRoster() *voice.Roster {
	r := voice.NewRoster("alice")
	r.SetNarratorVoice("v-narrator")
	r.Assign("BOB", "v-bob")
	r.Assign("CAROL", "")
	return r
}

func newTestSequencer(f Fetcher, p Player, opts ...Option) *Sequencer {
	opts = append([]Option{WithLogger(log.New(nil))}, opts...)
	s := NewSequencer(f, p, opts...)
	s.Load(testLines(), testRoster())
	return s
}

func TestRate(t *testing.T) {
	tests := []struct {
		wpm  int
		want float64
	}{
		{150, 1.0},
		{225, 1.5},
		{300, 2.0},
		{600, 2.0},
		{75, 0.5},
		{10, 0.5},
		{0, 0.5},
		{-50, 0.5},
	}
	for _, tt := range tests {
		if got := Rate(tt.wpm); got != tt.want {
			t.Errorf("Rate(%d) = %v, want %v", tt.wpm, got, tt.want)
		}
	}
}

func TestProcessLine_Decisions(t *testing.T) {
	tests := []struct {
		index   int
		state   State
		skip    SkipReason
		speaker string
		voice   string
	}{
		{0, StateSkipped, SkipToggledOff, "", ""},
		{1, StatePlayed, SkipNone, script.NarratorName, "v-narrator"},
		{2, StatePlayed, SkipNone, "BOB", "v-bob"},
		{3, StateSkipped, SkipFocusedRole, "ALICE", ""},
		{4, StatePlayed, SkipNone, script.NarratorName, "v-narrator"},
		{5, StateSkipped, SkipNoVoice, "CAROL", ""},
		{6, StateSkipped, SkipEmptyText, "", ""},
		{7, StateSkipped, SkipOutOfRange, "", ""},
		{-1, StateSkipped, SkipOutOfRange, "", ""},
	}

	for _, tt := range tests {
		f := &fakeFetcher{}
		p := audio.NewMockPlayer(0)
		s := newTestSequencer(f, p)

		out := s.ProcessLine(context.Background(), tt.index)
		if out.State != tt.state || out.Skip != tt.skip {
			t.Errorf("line %d: got %v/%q, want %v/%q", tt.index, out.State, out.Skip, tt.state, tt.skip)
		}
		if out.Speaker != tt.speaker || out.VoiceID != tt.voice {
			t.Errorf("line %d: speaker=%q voice=%q, want %q %q", tt.index, out.Speaker, out.VoiceID, tt.speaker, tt.voice)
		}

		wantFetch := 0
		if tt.state == StatePlayed {
			wantFetch = 1
		}
		if got := len(f.Calls()); got != wantFetch {
			t.Errorf("line %d: fetch calls = %d, want %d", tt.index, got, wantFetch)
		}
		if tt.index >= 0 && !s.Spoken(tt.index) {
			t.Errorf("line %d not marked spoken", tt.index)
		}
	}
}

func TestProcessLine_ReadAloudToggles(t *testing.T) {
	f := &fakeFetcher{}
	s := newTestSequencer(f, audio.NewMockPlayer(0))

	settings := DefaultSettings()
	settings.ReadAloud = ReadAloud{Locations: true}
	s.SetSettings(settings)

	if out := s.ProcessLine(context.Background(), 0); out.State != StatePlayed {
		t.Errorf("location with toggle on: %v", out.State)
	}
	if out := s.ProcessLine(context.Background(), 2); out.Skip != SkipToggledOff {
		t.Errorf("dialogue with toggle off: %q", out.Skip)
	}
}

func TestProcessLine_VoiceDisabled(t *testing.T) {
	f := &fakeFetcher{}
	s := newTestSequencer(f, audio.NewMockPlayer(0))
	settings := DefaultSettings()
	settings.VoiceEnabled = false
	s.SetSettings(settings)

	if out := s.ProcessLine(context.Background(), 2); out.Skip != SkipVoiceDisabled {
		t.Errorf("skip = %q, want voice disabled", out.Skip)
	}
	if len(f.Calls()) != 0 {
		t.Error("fetched with voice disabled")
	}
}

func TestProcessLine_NeverTwice(t *testing.T) {
	f := &fakeFetcher{}
	p := audio.NewMockPlayer(0)
	s := newTestSequencer(f, p)

	first := s.ProcessLine(context.Background(), 2)
	second := s.ProcessLine(context.Background(), 2)

	if first.State != StatePlayed {
		t.Fatalf("first = %v", first.State)
	}
	if second.Skip != SkipAlreadySpoken {
		t.Errorf("second skip = %q, want already spoken", second.Skip)
	}
	if len(f.Calls()) != 1 || len(p.Calls()) != 1 {
		t.Errorf("fetches=%d plays=%d, want 1 each", len(f.Calls()), len(p.Calls()))
	}
}

func TestProcessLine_PlayerErrorStillAdvances(t *testing.T) {
	rec := &diag.Recorder{}
	p := audio.NewMockPlayer(0)
	p.SetError(audio.ErrMockPlayback)
	s := newTestSequencer(&fakeFetcher{}, p, WithObserver(rec))

	out := s.ProcessLine(context.Background(), 1)
	if out.State != StateFailed || out.Err != audio.ErrMockPlayback {
		t.Errorf("outcome = %+v", out)
	}
	if !s.Spoken(1) || s.Cursor().LastSpoken != 1 {
		t.Errorf("line not marked spoken: cursor=%+v", s.Cursor())
	}
	if s.Speaking() != "" {
		t.Errorf("speaking = %q after failure", s.Speaking())
	}
	if s.Busy() {
		t.Error("still busy after failure")
	}
	if rec.Count(diag.KindResource) != 1 {
		t.Errorf("diagnostics = %v", rec.All())
	}

	if out := s.ProcessLine(context.Background(), 2); out.State != StateFailed {
		t.Errorf("next line state = %v", out.State)
	}
	if s.Cursor().LastSpoken != 2 {
		t.Errorf("cursor = %+v", s.Cursor())
	}
}

func TestProcessLine_HungPlayerTimesOut(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := audio.NewMockPlayer(time.Hour)
	p.SetHang(true)
	s := newTestSequencer(&fakeFetcher{}, p, WithClock(clock))

	done := make(chan Outcome, 1)
	go func() {
		done <- s.ProcessLine(context.Background(), 2)
	}()

	clock.BlockUntil(1)
	if s.Speaking() != "BOB" {
		t.Errorf("speaking = %q while playing", s.Speaking())
	}
	clock.Advance(DefaultLineTimeout - time.Millisecond)
	select {
	case out := <-done:
		t.Fatalf("finished early: %+v", out)
	default:
	}
	clock.Advance(time.Millisecond)

	out := <-done
	if out.State != StateTimedOut {
		t.Errorf("state = %v, want timed out", out.State)
	}
	if p.Stops() == 0 {
		t.Error("player was not stopped")
	}
	if s.Speaking() != "" {
		t.Errorf("speaking = %q after timeout", s.Speaking())
	}
	if !s.Spoken(2) {
		t.Error("timed out line not marked spoken")
	}
}

func TestProcessLine_Busy(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	s := newTestSequencer(f, audio.NewMockPlayer(0))

	done := make(chan Outcome, 1)
	go func() {
		done <- s.ProcessLine(context.Background(), 1)
	}()
	for len(f.Calls()) == 0 {
		time.Sleep(time.Millisecond)
	}

	if out := s.ProcessLine(context.Background(), 2); out.State != StateBusy {
		t.Errorf("state = %v, want busy", out.State)
	}
	if s.Spoken(2) {
		t.Error("busy line was marked spoken")
	}

	close(f.gate)
	if out := <-done; out.State != StatePlayed {
		t.Errorf("first line state = %v", out.State)
	}
}

func TestSubscribe(t *testing.T) {
	s := newTestSequencer(&fakeFetcher{}, audio.NewMockPlayer(0))

	var mu sync.Mutex
	var got []string
	cancel := s.Subscribe(func(speaker string) {
		mu.Lock()
		got = append(got, speaker)
		mu.Unlock()
	})

	s.ProcessLine(context.Background(), 2)
	s.ProcessLine(context.Background(), 1)
	cancel()
	s.ProcessLine(context.Background(), 4)

	mu.Lock()
	defer mu.Unlock()
	want := []string{"BOB", "", script.NarratorName, ""}
	if len(got) != len(want) {
		t.Fatalf("speakers = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("speakers[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestVisible_Guards(t *testing.T) {
	f := &fakeFetcher{}
	s := newTestSequencer(f, audio.NewMockPlayer(0))

	if s.Visible([]int{1, 2}) {
		t.Error("Visible accepted a line while stopped")
	}

	s.Start()
	if s.Visible(nil) {
		t.Error("Visible accepted an empty list")
	}

	if !s.Visible([]int{1, 2, 3}) {
		t.Fatal("Visible rejected the first line")
	}
	s.Wait()
	if c := s.Cursor(); c.Current != 1 || c.LastSpoken != 1 {
		t.Errorf("cursor = %+v", c)
	}

	if s.Visible([]int{1, 2}) {
		t.Error("Visible accepted an already spoken line")
	}
	if s.Visible([]int{0, 1}) {
		t.Error("Visible accepted a line above the last spoken one")
	}

	settings := DefaultSettings()
	settings.VoiceEnabled = false
	s.SetSettings(settings)
	if s.Visible([]int{2}) {
		t.Error("Visible accepted a line with voice off")
	}
}

func TestVisible_OneLineInFlight(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	s := newTestSequencer(f, audio.NewMockPlayer(0))
	s.Start()

	if !s.Visible([]int{1}) {
		t.Fatal("first Visible rejected")
	}
	if s.Visible([]int{2}) {
		t.Error("second line started while one was in flight")
	}
	close(f.gate)
	s.Wait()

	if !s.Visible([]int{2}) {
		t.Error("next line rejected after the first finished")
	}
	s.Wait()
	if len(f.Calls()) != 2 {
		t.Errorf("fetch calls = %d, want 2", len(f.Calls()))
	}
}

func TestVisible_ForwardProgressThroughScript(t *testing.T) {
	p := audio.NewMockPlayer(0)
	p.SetError(audio.ErrMockPlayback)
	s := newTestSequencer(&fakeFetcher{}, p)
	s.Start()

	for i := range testLines() {
		if !s.Visible([]int{i}) {
			t.Fatalf("line %d rejected", i)
		}
		s.Wait()
	}
	if c := s.Cursor(); c.LastSpoken != len(testLines())-1 {
		t.Errorf("cursor = %+v", c)
	}
}

func TestStart_DiscardsStaleSession(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	p := audio.NewMockPlayer(0)

	var mu sync.Mutex
	var outcomes []Outcome
	s := newTestSequencer(f, p, OnOutcome(func(o Outcome) {
		mu.Lock()
		outcomes = append(outcomes, o)
		mu.Unlock()
	}))

	s.Start()
	if !s.Visible([]int{2}) {
		t.Fatal("Visible rejected line 2")
	}
	for len(f.Calls()) == 0 {
		time.Sleep(time.Millisecond)
	}

	s.Start()
	close(f.gate)
	s.Wait()

	if len(p.Calls()) != 0 {
		t.Errorf("stale clip was played: %v", p.Calls())
	}
	if s.Spoken(2) {
		t.Error("stale line marked spoken in the new session")
	}
	if c := s.Cursor(); c.Current != -1 || c.LastSpoken != -1 {
		t.Errorf("cursor = %+v, want reset", c)
	}
	if s.Speaking() != "" {
		t.Errorf("speaking = %q", s.Speaking())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(outcomes) != 1 || outcomes[0].State != StateDiscarded {
		t.Errorf("outcomes = %+v", outcomes)
	}
}

func TestStop(t *testing.T) {
	p := audio.NewMockPlayer(0)
	p.SetHang(true)
	s := newTestSequencer(&fakeFetcher{}, p)
	s.Start()
	if !s.Playing() {
		t.Fatal("not playing after Start")
	}

	if !s.Visible([]int{2}) {
		t.Fatal("Visible rejected line 2")
	}
	for !p.IsPlaying() {
		time.Sleep(time.Millisecond)
	}
	s.Stop()
	s.Wait()

	if s.Playing() {
		t.Error("still playing after Stop")
	}
	if s.Busy() {
		t.Error("busy after Stop")
	}
	if s.Speaking() != "" {
		t.Errorf("speaking = %q after Stop", s.Speaking())
	}
}

func TestSettingsValidate(t *testing.T) {
	if err := DefaultSettings().Validate(); err != nil {
		t.Errorf("default settings invalid: %v", err)
	}
	bad := DefaultSettings()
	bad.WordsPerMinute = 0
	if bad.Validate() == nil {
		t.Error("zero words per minute accepted")
	}
	bad = DefaultSettings()
	bad.LineTimeout = 0
	if bad.Validate() == nil {
		t.Error("zero line timeout accepted")
	}
	bad = DefaultSettings()
	bad.Lookahead = -1
	if bad.Validate() == nil {
		t.Error("negative lookahead accepted")
	}
}

type prefetchCall struct {
	Index   int
	Text    string
	VoiceID string
}

type fakePrefetcher struct {
	mu     sync.Mutex
	calls  []prefetchCall
	resets int
}

func (p *fakePrefetcher) Prefetch(index int, text, voiceID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, prefetchCall{index, text, voiceID})
}

func (p *fakePrefetcher) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resets++
}

func TestProcessLine_PrefetchesUpcomingVoicedLines(t *testing.T) {
	pf := &fakePrefetcher{}
	settings := DefaultSettings()
	settings.Lookahead = 2
	s := newTestSequencer(&fakeFetcher{}, audio.NewMockPlayer(0),
		WithPrefetcher(pf), WithSettings(settings))

	s.ProcessLine(context.Background(), 1)

	// Line 3 is the focused role and line 5 has no voice.
	want := []prefetchCall{
		{2, "We're out of milk.", "v-bob"},
		{4, "(sighing)", "v-bob"},
	}
	if len(pf.calls) != len(want) {
		t.Fatalf("prefetched %v, want %v", pf.calls, want)
	}
	for i := range want {
		if pf.calls[i] != want[i] {
			t.Errorf("prefetch %d = %+v, want %+v", i, pf.calls[i], want[i])
		}
	}

	settings.Lookahead = 0
	s.SetSettings(settings)
	s.ProcessLine(context.Background(), 2)
	if len(pf.calls) != len(want) {
		t.Errorf("lookahead 0 still prefetched: %v", pf.calls[len(want):])
	}

	s.Start()
	s.Stop()
	if pf.resets != 2 {
		t.Errorf("resets = %d, want 2", pf.resets)
	}
}

func TestPlan(t *testing.T) {
	out := Plan(testLines(), testRoster(), DefaultSettings())
	want := []SkipReason{SkipToggledOff, SkipNone, SkipNone, SkipFocusedRole, SkipNone, SkipNoVoice, SkipEmptyText}
	if len(out) != len(want) {
		t.Fatalf("got %d outcomes, want %d", len(out), len(want))
	}
	for i, w := range want {
		if out[i].Skip != w {
			t.Errorf("line %d: skip = %v, want %v", i, out[i].Skip, w)
		}
	}
	if out[1].VoiceID != "v-narrator" || out[2].VoiceID != "v-bob" {
		t.Errorf("voices = %q, %q", out[1].VoiceID, out[2].VoiceID)
	}
}

func TestProcessLine_PlaysForClipLength(t *testing.T) {
	clock := clockwork.NewFakeClock()
	p := audio.NewMockPlayer(2*time.Second, audio.WithMockClock(clock))
	s := newTestSequencer(&fakeFetcher{}, p, WithClock(clock))

	done := make(chan Outcome, 1)
	go func() {
		done <- s.ProcessLine(context.Background(), 2)
	}()

	// The line timeout and the clip share the clock.
	clock.BlockUntil(2)
	clock.Advance(2 * time.Second)

	out := <-done
	if out.State != StatePlayed {
		t.Errorf("state = %v, want played", out.State)
	}
	if p.Stops() != 0 {
		t.Errorf("player stopped %d times", p.Stops())
	}
}

func TestSetSettings_VoiceOffDiscardsPlayingLine(t *testing.T) {
	rec := &diag.Recorder{}
	p := audio.NewMockPlayer(0)
	p.SetHang(true)
	started := make(chan struct{})
	p.OnPlay = func(audio.PlayCall) { close(started) }
	s := newTestSequencer(&fakeFetcher{}, p, WithObserver(rec))

	done := make(chan Outcome, 1)
	go func() {
		done <- s.ProcessLine(context.Background(), 2)
	}()
	<-started

	settings := s.Settings()
	settings.VoiceEnabled = false
	s.SetSettings(settings)

	out := <-done
	if out.State != StateDiscarded {
		t.Errorf("state = %v, want discarded", out.State)
	}
	if n := len(rec.All()); n != 0 {
		t.Errorf("user stop reported %d diagnostics: %v", n, rec.All())
	}
	if !s.Spoken(2) {
		t.Error("stopped line not marked spoken")
	}
}

// stoppingPrefetcher ends the session from inside run, after the line
// was planned but before its speaker is announced.
type stoppingPrefetcher struct {
	s *Sequencer
}

func (p *stoppingPrefetcher) Prefetch(int, string, string) { p.s.Stop() }
func (p *stoppingPrefetcher) Reset()                       {}

func TestRun_StopBeforeSpeakingLeavesNoSpeaker(t *testing.T) {
	f := &fakeFetcher{}
	pf := &stoppingPrefetcher{}
	s := newTestSequencer(f, audio.NewMockPlayer(0), WithPrefetcher(pf))
	pf.s = s

	var mu sync.Mutex
	var seen []string
	cancel := s.Subscribe(func(speaker string) {
		mu.Lock()
		seen = append(seen, speaker)
		mu.Unlock()
	})
	defer cancel()

	s.Start()
	out := s.ProcessLine(context.Background(), 1)

	if out.State != StateDiscarded {
		t.Errorf("state = %v, want discarded", out.State)
	}
	if len(f.Calls()) != 0 {
		t.Errorf("fetched %v for a stopped session", f.Calls())
	}
	if s.Speaking() != "" {
		t.Errorf("speaking = %q after Stop", s.Speaking())
	}
	mu.Lock()
	defer mu.Unlock()
	for _, sp := range seen {
		if sp != "" {
			t.Errorf("listener saw speaker %q from a stopped session", sp)
		}
	}
}
