package audio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dgnsrekt/cuecard/internal/cache"
)

func TestMockPlayer_PlaysForDuration(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mp := NewMockPlayer(2*time.Second, WithMockClock(clock))

	done := make(chan error, 1)
	go func() {
		done <- mp.Play(context.Background(), cache.Handle("blob:a"), 1.5)
	}()

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	select {
	case err := <-done:
		t.Fatalf("Play returned early: %v", err)
	default:
	}
	clock.Advance(time.Second)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Play: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Play did not finish after its duration")
	}
	calls := mp.Calls()
	if len(calls) != 1 || calls[0].Handle != "blob:a" || calls[0].Rate != 1.5 {
		t.Errorf("Calls() = %+v", calls)
	}
	if mp.IsPlaying() {
		t.Error("still playing after Play returned")
	}
}

func TestMockPlayer_StopInterruptsHang(t *testing.T) {
	mp := NewMockPlayer(0)
	mp.SetHang(true)

	started := make(chan struct{})
	mp.OnPlay = func(PlayCall) { close(started) }

	done := make(chan error, 1)
	go func() {
		done <- mp.Play(context.Background(), "blob:b", 1)
	}()

	<-started
	if !mp.IsPlaying() {
		t.Error("IsPlaying() = false during playback")
	}
	mp.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("err = %v, want ErrStopped", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Stop did not interrupt playback")
	}
	if mp.Stops() != 1 {
		t.Errorf("Stops() = %d, want 1", mp.Stops())
	}
}

func TestMockPlayer_ContextAndError(t *testing.T) {
	mp := NewMockPlayer(0)
	mp.SetHang(true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := mp.Play(ctx, "blob:c", 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want DeadlineExceeded", err)
	}

	mp.SetError(ErrMockPlayback)
	if err := mp.Play(context.Background(), "blob:d", 1); !errors.Is(err, ErrMockPlayback) {
		t.Errorf("err = %v, want ErrMockPlayback", err)
	}
}

func TestPlayerConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PlayerConfig)
		wantErr bool
	}{
		{"default", func(*PlayerConfig) {}, false},
		{"48k mono", func(c *PlayerConfig) { c.SampleRate, c.Channels = 48000, 1 }, false},
		{"bad rate", func(c *PlayerConfig) { c.SampleRate = 22050 }, true},
		{"bad channels", func(c *PlayerConfig) { c.Channels = 3 }, true},
		{"no poll", func(c *PlayerConfig) { c.PollInterval = 0 }, true},
		{"loud", func(c *PlayerConfig) { c.Volume = 1.5 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPlayerConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
