package audio

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dgnsrekt/cuecard/internal/diag"
)

func assertPlayable(t *testing.T, r Result) {
	t.Helper()
	if r.Audio == nil {
		t.Fatal("Audio is nil")
	}
	if r.Audio.NumChannels() < 1 || r.Audio.Frames() < 1 {
		t.Fatalf("Audio has %d channels, %d frames", r.Audio.NumChannels(), r.Audio.Frames())
	}
}

func assertSilentFallback(t *testing.T, r Result, want error) {
	t.Helper()
	assertPlayable(t, r)
	if !r.Fallback {
		t.Fatal("expected fallback")
	}
	if r.Audio.NumChannels() != 2 || r.Audio.SampleRate != DefaultSampleRate {
		t.Errorf("fallback is %d ch @ %d Hz, want stereo @ %d", r.Audio.NumChannels(), r.Audio.SampleRate, DefaultSampleRate)
	}
	if r.Audio.Duration() != 500*time.Millisecond {
		t.Errorf("fallback duration = %v, want 500ms", r.Audio.Duration())
	}
	if !r.Audio.IsSilent() {
		t.Error("fallback is not silent")
	}
	if want != nil && !errors.Is(r.Reason, want) {
		t.Errorf("Reason = %v, want %v", r.Reason, want)
	}
}

func TestValidate_AcceptsWAV(t *testing.T) {
	var rec diag.Recorder
	v := NewValidator(WithValidatorObserver(&rec))

	r := v.Validate(context.Background(), EncodeWAV(tone(44100, 4410, 1)))
	assertPlayable(t, r)
	if r.Fallback {
		t.Fatalf("unexpected fallback: %v", r.Reason)
	}
	if r.Format != FormatWAV || r.Audio.Frames() != 4410 {
		t.Errorf("got %s with %d frames", r.Format, r.Audio.Frames())
	}
	if len(rec.All()) != 0 {
		t.Errorf("unexpected diagnostics: %v", rec.All())
	}
}

func TestValidate_Totality(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	random := func(n int) []byte {
		b := make([]byte, n)
		rng.Read(b)
		return b
	}
	withPrefix := func(prefix string, n int) []byte {
		b := random(n)
		copy(b, prefix)
		return b
	}

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"nil", nil, ErrEmpty},
		{"empty", []byte{}, ErrEmpty},
		{"one byte short", make([]byte, DefaultMinSize-1), ErrTooSmall},
		{"50MB random", random(50 * 1024 * 1024), ErrTooLarge},
		{"random 4KB", withPrefix("junk", 4096), ErrUnknownFormat},
		{"truncated riff", withPrefix("RIFF", 2048), nil},
		{"riff header without data", append(EncodeSilentWAV(0, 44100, 2)[:36], make([]byte, 2048)...), nil},
		{"garbage after id3", withPrefix("ID3", 8192), nil},
		{"garbage after OggS", withPrefix("OggS", 8192), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var rec diag.Recorder
			v := NewValidator(WithDecodeTimeout(time.Second), WithValidatorObserver(&rec))
			r := v.Validate(context.Background(), tt.data)

			assertPlayable(t, r)
			if tt.want != nil {
				assertSilentFallback(t, r, tt.want)
			}
			if r.Fallback && rec.Count(diag.KindIntegrity) != 1 {
				t.Errorf("fallback without an integrity diagnostic")
			}
		})
	}
}

func TestValidate_ZeroFramesFallsBack(t *testing.T) {
	// A header-only WAV padded past the size floor with a junk chunk.
	data := EncodeSilentWAV(0, 44100, 2)
	data = append(data[:12:12], append([]byte("junk\x00\x04\x00\x00"), make([]byte, 1024)...)...)
	data = append(data, EncodeSilentWAV(0, 44100, 2)[12:]...)

	r := NewValidator().Validate(context.Background(), data)
	assertSilentFallback(t, r, ErrNoFrames)
}

func TestValidate_DecoderOutcomes(t *testing.T) {
	payload := EncodeSilentWAV(0.1, 44100, 2)

	tests := []struct {
		name    string
		decoder DecoderFunc
		want    error
	}{
		{
			name: "error",
			decoder: func([]byte, Format) (*Buffer, error) {
				return nil, ErrMalformedWAV
			},
			want: ErrMalformedWAV,
		},
		{
			name: "panic",
			decoder: func([]byte, Format) (*Buffer, error) {
				panic("boom")
			},
			want: ErrDecodePanic,
		},
		{
			name: "no channels",
			decoder: func([]byte, Format) (*Buffer, error) {
				return &Buffer{SampleRate: 44100}, nil
			},
			want: ErrNoChannels,
		},
		{
			name: "nil buffer",
			decoder: func([]byte, Format) (*Buffer, error) {
				return nil, nil
			},
			want: ErrNoChannels,
		},
		{
			name: "no frames",
			decoder: func([]byte, Format) (*Buffer, error) {
				return NewBuffer(1, 0, 44100), nil
			},
			want: ErrNoFrames,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(WithDecoder(tt.decoder))
			assertSilentFallback(t, v.Validate(context.Background(), payload), tt.want)
		})
	}
}

func TestValidate_DecodeTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	release := make(chan struct{})
	defer close(release)

	hung := DecoderFunc(func([]byte, Format) (*Buffer, error) {
		<-release
		return nil, nil
	})
	v := NewValidator(WithDecoder(hung), WithValidatorClock(clock))

	done := make(chan Result, 1)
	go func() {
		done <- v.Validate(context.Background(), EncodeSilentWAV(0.1, 44100, 2))
	}()

	clock.BlockUntil(1)
	clock.Advance(DefaultDecodeTimeout)

	select {
	case r := <-done:
		assertSilentFallback(t, r, ErrDecodeTimeout)
	case <-time.After(2 * time.Second):
		t.Fatal("Validate did not honour the decode timeout")
	}
}

func TestValidate_CancelledContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	hung := DecoderFunc(func([]byte, Format) (*Buffer, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := NewValidator(WithDecoder(hung)).Validate(ctx, EncodeSilentWAV(0.1, 44100, 2))
	assertSilentFallback(t, r, context.Canceled)
}

func TestValidate_FallbackSampleRate(t *testing.T) {
	v := NewValidator(WithFallbackSampleRate(48000))
	r := v.Validate(context.Background(), nil)
	if r.Audio.SampleRate != 48000 {
		t.Errorf("fallback sample rate = %d, want 48000", r.Audio.SampleRate)
	}
	if r.Audio.Frames() != 24000 {
		t.Errorf("fallback frames = %d, want 24000", r.Audio.Frames())
	}
}
