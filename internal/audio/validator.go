package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jonboulle/clockwork"

	"github.com/dgnsrekt/cuecard/internal/diag"
)

// Validation limits.
const (
	DefaultMinSize       = 1024
	DefaultMaxSize       = 10 * 1024 * 1024
	DefaultDecodeTimeout = 5 * time.Second
)

// Reasons a payload was replaced with silence.
var (
	ErrEmpty         = errors.New("audio payload is empty")
	ErrTooSmall      = errors.New("audio payload too small")
	ErrTooLarge      = errors.New("audio payload too large")
	ErrUnknownFormat = errors.New("unrecognised audio format")
	ErrDecodeTimeout = errors.New("audio decode timed out")
	ErrDecodePanic   = errors.New("audio decoder panicked")
	ErrNoChannels    = errors.New("decoded audio has no channels")
	ErrNoFrames      = errors.New("decoded audio has no frames")
)

// Result is the outcome of Validate. Audio is always playable.
type Result struct {
	Audio    *Buffer
	Format   Format
	Fallback bool  // Audio is the silent substitute
	Reason   error // why the fallback was used, nil otherwise
}

// WAV encodes the result audio.
func (r Result) WAV() []byte {
	return EncodeWAV(r.Audio)
}

// Validator checks untrusted audio bytes and always produces something
// playable.
type Validator struct {
	minSize      int
	maxSize      int
	fallbackRate int
	timeout      time.Duration
	decoder      Decoder
	clock        clockwork.Clock
	observer     diag.Observer
	logger       *log.Logger
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithSizeLimits sets the accepted payload size range in bytes.
func WithSizeLimits(minSize, maxSize int) ValidatorOption {
	return func(v *Validator) {
		v.minSize = minSize
		v.maxSize = maxSize
	}
}

// WithFallbackSampleRate sets the sample rate of the silent substitute.
func WithFallbackSampleRate(rate int) ValidatorOption {
	return func(v *Validator) {
		if rate > 0 {
			v.fallbackRate = rate
		}
	}
}

// WithDecodeTimeout bounds how long a single decode may take.
func WithDecodeTimeout(d time.Duration) ValidatorOption {
	return func(v *Validator) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithDecoder replaces the default decoder.
func WithDecoder(d Decoder) ValidatorOption {
	return func(v *Validator) {
		v.decoder = d
	}
}

// WithValidatorClock sets the clock used for the decode deadline.
func WithValidatorClock(c clockwork.Clock) ValidatorOption {
	return func(v *Validator) {
		v.clock = c
	}
}

// WithValidatorObserver sets where fallback reasons are reported.
func WithValidatorObserver(o diag.Observer) ValidatorOption {
	return func(v *Validator) {
		v.observer = o
	}
}

// WithValidatorLogger sets the logger.
func WithValidatorLogger(l *log.Logger) ValidatorOption {
	return func(v *Validator) {
		v.logger = l
	}
}

// NewValidator returns a validator with the default limits.
func NewValidator(opts ...ValidatorOption) *Validator {
	v := &Validator{
		minSize:      DefaultMinSize,
		maxSize:      DefaultMaxSize,
		fallbackRate: DefaultSampleRate,
		timeout:      DefaultDecodeTimeout,
		decoder:      DefaultDecoder{},
		clock:        clockwork.NewRealClock(),
		observer:     diag.Discard,
		logger:       log.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks raw and decodes it. It never fails: on any problem the
// result carries half a second of stereo silence and the reason.
func (v *Validator) Validate(ctx context.Context, raw []byte) Result {
	format := Sniff(raw)
	audio, err := v.validate(ctx, raw, format)
	if err != nil {
		v.logger.Debug("audio rejected", "size", len(raw), "format", format, "err", err)
		v.observer.Observe(diag.Diagnostic{Component: "audio", Kind: diag.KindIntegrity, Err: err})
		return Result{
			Audio:    Silent(v.fallbackRate),
			Format:   format,
			Fallback: true,
			Reason:   err,
		}
	}
	return Result{Audio: audio, Format: format}
}

func (v *Validator) validate(ctx context.Context, raw []byte, format Format) (*Buffer, error) {
	switch {
	case len(raw) == 0:
		return nil, ErrEmpty
	case len(raw) < v.minSize:
		return nil, fmt.Errorf("%w: %d bytes", ErrTooSmall, len(raw))
	case len(raw) > v.maxSize:
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, len(raw))
	case format == FormatUnknown:
		return nil, ErrUnknownFormat
	}

	buf, err := v.decode(ctx, raw, format)
	if err != nil {
		return nil, err
	}
	if buf.NumChannels() == 0 {
		return nil, ErrNoChannels
	}
	if buf.Frames() == 0 {
		return nil, ErrNoFrames
	}
	return buf, nil
}

type decodeResult struct {
	buf *Buffer
	err error
}

// decode runs the decoder on its own goroutine so a stuck decoder only
// costs the caller the timeout.
func (v *Validator) decode(ctx context.Context, raw []byte, format Format) (*Buffer, error) {
	done := make(chan decodeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- decodeResult{err: fmt.Errorf("%w: %v", ErrDecodePanic, r)}
			}
		}()
		buf, err := v.decoder.Decode(raw, format)
		done <- decodeResult{buf: buf, err: err}
	}()

	timer := v.clock.NewTimer(v.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		return res.buf, res.err
	case <-timer.Chan():
		return nil, fmt.Errorf("%w after %v", ErrDecodeTimeout, v.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
