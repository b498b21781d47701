// Package config loads cuecard's settings from the config file, the
// environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgnsrekt/cuecard/internal/audio"
	"github.com/dgnsrekt/cuecard/internal/cache"
	"github.com/dgnsrekt/cuecard/internal/playback"
	"github.com/dgnsrekt/cuecard/internal/ratelimit"
	"github.com/dgnsrekt/cuecard/internal/synth"
	"github.com/dgnsrekt/cuecard/internal/voicecache"
)

// Config is the complete cuecard configuration.
type Config struct {
	Synth     SynthConfig     `yaml:"synth" mapstructure:"synth"`
	Validator ValidatorConfig `yaml:"validator" mapstructure:"validator"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Playback  PlaybackConfig  `yaml:"playback" mapstructure:"playback"`
	Audio     AudioConfig     `yaml:"audio" mapstructure:"audio"`
	UI        UIConfig        `yaml:"ui" mapstructure:"ui"`

	// Secrets come from the environment only.
	Secrets Secrets `yaml:"-" mapstructure:"-"`

	// File is the config file that was read, if any.
	File string `yaml:"-" mapstructure:"-"`
}

// SynthConfig configures the ElevenLabs client.
type SynthConfig struct {
	BaseURL       string              `yaml:"base_url" mapstructure:"base_url"`
	Model         string              `yaml:"model" mapstructure:"model"`
	TextLimit     int                 `yaml:"text_limit" mapstructure:"text_limit"`
	Timeout       time.Duration       `yaml:"timeout" mapstructure:"timeout"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit" mapstructure:"rate_limit"`
	VoiceSettings synth.VoiceSettings `yaml:"voice_settings" mapstructure:"voice_settings"`
}

// RateLimitConfig bounds requests per interval.
type RateLimitConfig struct {
	Tokens   int           `yaml:"tokens" mapstructure:"tokens"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// ValidatorConfig configures audio validation.
type ValidatorConfig struct {
	MinSize            int           `yaml:"min_size" mapstructure:"min_size"`
	MaxSize            int           `yaml:"max_size" mapstructure:"max_size"`
	FallbackSampleRate int           `yaml:"fallback_sample_rate" mapstructure:"fallback_sample_rate"`
	DecodeTimeout      time.Duration `yaml:"decode_timeout" mapstructure:"decode_timeout"`
}

// CacheConfig configures the memory and durable caches.
type CacheConfig struct {
	CapacityMB       int           `yaml:"capacity_mb" mapstructure:"capacity_mb"`
	MaxAge           time.Duration `yaml:"max_age" mapstructure:"max_age"`
	SweepInterval    time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
	Durable          bool          `yaml:"durable" mapstructure:"durable"`
	DBPath           string        `yaml:"db_path" mapstructure:"db_path"` // empty means the user data dir
	CompressionLevel int           `yaml:"compression_level" mapstructure:"compression_level"`
	PreloadSpacing   time.Duration `yaml:"preload_spacing" mapstructure:"preload_spacing"`
}

// PlaybackConfig configures the sequencer and cast.
type PlaybackConfig struct {
	playback.Settings `yaml:",inline" mapstructure:",squash"`

	NarratorVoice string `yaml:"narrator_voice" mapstructure:"narrator_voice"`
	FocusedRole   string `yaml:"focused_role" mapstructure:"focused_role"`
	// VoicePolicy picks default voices: "roundrobin" or "fuzzy".
	VoicePolicy string `yaml:"voice_policy" mapstructure:"voice_policy"`
}

// AudioConfig configures the sound device.
type AudioConfig struct {
	SampleRate int     `yaml:"sample_rate" mapstructure:"sample_rate"`
	Volume     float64 `yaml:"volume" mapstructure:"volume"`
}

// UIConfig configures the teleprompter.
type UIConfig struct {
	// ScrollSpeed is lines per second of auto-scroll.
	ScrollSpeed float64 `yaml:"scroll_speed" mapstructure:"scroll_speed"`
	Width       int     `yaml:"width" mapstructure:"width"`
	Mouse       bool    `yaml:"mouse" mapstructure:"mouse"`
}

// Secrets are read from the environment.
type Secrets struct {
	APIKey     string `env:"ELEVENLABS_API_KEY"`
	ConfigHome string `env:"CUECARD_CONFIG_HOME"`
	Debug      bool   `env:"CUECARD_DEBUG"`
}

// Voice policies.
const (
	PolicyRoundRobin = "roundrobin"
	PolicyFuzzy      = "fuzzy"
)

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	cacheCfg := cache.DefaultConfig()
	synthCfg := synth.DefaultConfig()
	return Config{
		Synth: SynthConfig{
			BaseURL:   synthCfg.BaseURL,
			Model:     synthCfg.ModelID,
			TextLimit: synthCfg.TextLimit,
			Timeout:   synthCfg.Timeout,
			RateLimit: RateLimitConfig{
				Tokens:   ratelimit.DefaultTokens,
				Interval: ratelimit.DefaultInterval,
			},
			VoiceSettings: synthCfg.Settings,
		},
		Validator: ValidatorConfig{
			MinSize:            audio.DefaultMinSize,
			MaxSize:            audio.DefaultMaxSize,
			FallbackSampleRate: audio.DefaultSampleRate,
			DecodeTimeout:      audio.DefaultDecodeTimeout,
		},
		Cache: CacheConfig{
			CapacityMB:       int(cacheCfg.Capacity >> 20),
			MaxAge:           cacheCfg.MaxAge,
			SweepInterval:    cacheCfg.SweepInterval,
			Durable:          true,
			CompressionLevel: 3,
			PreloadSpacing:   voicecache.DefaultPreloadSpacing,
		},
		Playback: PlaybackConfig{
			Settings:    playback.DefaultSettings(),
			VoicePolicy: PolicyRoundRobin,
		},
		Audio: AudioConfig{
			SampleRate: audio.DefaultSampleRate,
			Volume:     1.0,
		},
		UI: UIConfig{
			ScrollSpeed: 0.5,
			Width:       0,
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Synth.BaseURL == "" {
		return errors.New("synth.base_url must not be empty")
	}
	if c.Synth.TextLimit <= 0 {
		return fmt.Errorf("synth.text_limit must be positive, got %d", c.Synth.TextLimit)
	}
	if c.Synth.Timeout <= 0 {
		return fmt.Errorf("synth.timeout must be positive, got %v", c.Synth.Timeout)
	}
	if c.Synth.RateLimit.Tokens <= 0 || c.Synth.RateLimit.Interval <= 0 {
		return fmt.Errorf("synth.rate_limit must allow at least one request per interval, got %d per %v",
			c.Synth.RateLimit.Tokens, c.Synth.RateLimit.Interval)
	}

	if c.Validator.MinSize < 0 || c.Validator.MaxSize <= c.Validator.MinSize {
		return fmt.Errorf("validator sizes must satisfy 0 <= min < max, got %d and %d",
			c.Validator.MinSize, c.Validator.MaxSize)
	}
	if c.Validator.FallbackSampleRate <= 0 {
		return fmt.Errorf("validator.fallback_sample_rate must be positive, got %d", c.Validator.FallbackSampleRate)
	}
	if c.Validator.DecodeTimeout <= 0 {
		return fmt.Errorf("validator.decode_timeout must be positive, got %v", c.Validator.DecodeTimeout)
	}

	if c.Cache.CapacityMB < 1 || c.Cache.CapacityMB > 10000 {
		return fmt.Errorf("cache.capacity_mb must be between 1 and 10000, got %d", c.Cache.CapacityMB)
	}
	if c.Cache.MaxAge <= 0 || c.Cache.SweepInterval <= 0 {
		return errors.New("cache.max_age and cache.sweep_interval must be positive")
	}
	if c.Cache.CompressionLevel < 1 || c.Cache.CompressionLevel > 22 {
		return fmt.Errorf("cache.compression_level must be between 1 and 22, got %d", c.Cache.CompressionLevel)
	}

	if err := c.Playback.Settings.Validate(); err != nil {
		return fmt.Errorf("playback: %w", err)
	}
	switch c.Playback.VoicePolicy {
	case PolicyRoundRobin, PolicyFuzzy:
	default:
		return fmt.Errorf("playback.voice_policy must be %q or %q, got %q",
			PolicyRoundRobin, PolicyFuzzy, c.Playback.VoicePolicy)
	}

	if err := c.PlayerConfig().Validate(); err != nil {
		return fmt.Errorf("audio: %w", err)
	}
	if c.UI.ScrollSpeed <= 0 {
		return fmt.Errorf("ui.scroll_speed must be positive, got %v", c.UI.ScrollSpeed)
	}
	return nil
}

// ClientConfig returns the synthesis client configuration.
func (c Config) ClientConfig() synth.Config {
	return synth.Config{
		APIKey:    c.Secrets.APIKey,
		BaseURL:   c.Synth.BaseURL,
		ModelID:   c.Synth.Model,
		TextLimit: c.Synth.TextLimit,
		Timeout:   c.Synth.Timeout,
		Settings:  c.Synth.VoiceSettings,
	}
}

// BlobCacheConfig returns the memory cache configuration.
func (c Config) BlobCacheConfig() cache.Config {
	return cache.Config{
		Capacity:      int64(c.Cache.CapacityMB) << 20,
		MaxAge:        c.Cache.MaxAge,
		SweepInterval: c.Cache.SweepInterval,
	}
}

// PlayerConfig returns the sound device configuration.
func (c Config) PlayerConfig() audio.PlayerConfig {
	pc := audio.DefaultPlayerConfig()
	pc.SampleRate = c.Audio.SampleRate
	pc.Volume = c.Audio.Volume
	return pc
}

// ValidatorOptions returns options for audio.NewValidator.
func (c Config) ValidatorOptions() []audio.ValidatorOption {
	return []audio.ValidatorOption{
		audio.WithSizeLimits(c.Validator.MinSize, c.Validator.MaxSize),
		audio.WithFallbackSampleRate(c.Validator.FallbackSampleRate),
		audio.WithDecodeTimeout(c.Validator.DecodeTimeout),
	}
}
