package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/cuecard/internal/cache"
)

var (
	// ErrHandleRevoked is returned when a handle no longer resolves.
	ErrHandleRevoked = errors.New("audio handle revoked")

	// ErrStopped is returned by Play when Stop interrupts it.
	ErrStopped = errors.New("playback stopped")
)

// PlayerConfig contains configuration for the audio device.
type PlayerConfig struct {
	SampleRate   int           // 44100 or 48000 Hz only
	Channels     int           // 1 = mono, 2 = stereo
	BufferSize   time.Duration // device buffer
	PollInterval time.Duration // how often completion is checked
	Volume       float64
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate:   DefaultSampleRate,
		Channels:     DefaultChannels,
		BufferSize:   100 * time.Millisecond,
		PollInterval: 15 * time.Millisecond,
		Volume:       1.0,
	}
}

// Validate checks the configuration.
func (c PlayerConfig) Validate() error {
	if c.SampleRate != 44100 && c.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", c.SampleRate)
	}
	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", c.Channels)
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	if c.Volume < 0 || c.Volume > 1 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", c.Volume)
	}
	return nil
}

// Player plays cached WAV handles on the sound device. Only one clip plays
// at a time; starting a new one stops the previous.
type Player struct {
	context *oto.Context
	objects *cache.ObjectStore
	config  PlayerConfig

	mu      sync.Mutex
	current *oto.Player
	// Keep the PCM alive while oto streams it.
	pcm []byte
}

// NewPlayer opens the audio device. oto allows one context per process so
// only one Player should exist.
func NewPlayer(config PlayerConfig, objects *cache.ObjectStore) (*Player, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   config.BufferSize,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	return &Player{
		context: ctx,
		objects: objects,
		config:  config,
	}, nil
}

// Play resolves h and plays it at the given speed, returning when the clip
// ends, Stop is called, or ctx is done.
func (p *Player) Play(ctx context.Context, h cache.Handle, rate float64) error {
	data, _, ok := p.objects.Resolve(h)
	if !ok {
		return fmt.Errorf("%w: %s", ErrHandleRevoked, h)
	}
	return p.PlayWAV(ctx, data, rate)
}

// PlayWAV plays a 16-bit PCM WAV clip. See Play.
func (p *Player) PlayWAV(ctx context.Context, wav []byte, rate float64) error {
	buf, err := DecodeWAV(wav)
	if err != nil {
		return err
	}
	pcm := PCM16(Resample(buf, p.config.SampleRate, rate), p.config.Channels)

	player := p.context.NewPlayer(bytes.NewReader(pcm))
	player.SetVolume(p.config.Volume)

	p.mu.Lock()
	p.stopLocked()
	p.current = player
	p.pcm = pcm
	p.mu.Unlock()

	log.Debug("playing clip", "bytes", len(pcm), "rate", rate, "duration", buf.Duration())
	player.Play()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.release(player)
			return ctx.Err()
		case <-ticker.C:
			if p.active() != player {
				return ErrStopped
			}
			if !player.IsPlaying() {
				err := player.Err()
				p.release(player)
				return err
			}
		}
	}
}

// Stop halts the current clip, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// IsPlaying reports whether a clip is playing.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil && p.current.IsPlaying()
}

// SetVolume changes the volume of the current and future clips.
func (p *Player) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.config.Volume = volume
	if p.current != nil {
		p.current.SetVolume(volume)
	}
	return nil
}

func (p *Player) active() *oto.Player {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// release stops player if it is still the current one.
func (p *Player) release(player *oto.Player) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == player {
		p.stopLocked()
	}
}

func (p *Player) stopLocked() {
	if p.current == nil {
		return
	}
	p.current.Pause()
	if err := p.current.Close(); err != nil {
		log.Debug("closing player", "err", err)
	}
	p.current = nil
	p.pcm = nil
}
