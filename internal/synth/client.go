// Package synth is the ElevenLabs text-to-speech client.
//
// The client never fails. Missing configuration, placeholder voices,
// transport errors and bad responses all produce half a second of silent
// WAV, and the reason goes to the diagnostics observer.
package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/cuecard/internal/audio"
	"github.com/dgnsrekt/cuecard/internal/diag"
	"github.com/dgnsrekt/cuecard/internal/ratelimit"
)

// Defaults for the ElevenLabs API.
const (
	DefaultBaseURL   = "https://api.elevenlabs.io/v1"
	DefaultModelID   = "eleven_monolingual_v1"
	DefaultTextLimit = 100
	DefaultTimeout   = 10 * time.Second

	// maxResponseSize bounds how much of a response body is read.
	maxResponseSize = 64 << 20
)

// VoiceSettings tunes a synthesis request.
type VoiceSettings struct {
	Stability       float64 `json:"stability" yaml:"stability" mapstructure:"stability"`
	SimilarityBoost float64 `json:"similarity_boost" yaml:"similarity_boost" mapstructure:"similarity_boost"`
	Style           float64 `json:"style" yaml:"style" mapstructure:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost" yaml:"use_speaker_boost" mapstructure:"use_speaker_boost"`
}

// DefaultVoiceSettings returns the settings used when none are given.
func DefaultVoiceSettings() VoiceSettings {
	return VoiceSettings{
		Stability:       0.5,
		SimilarityBoost: 0.75,
		Style:           0.5,
		UseSpeakerBoost: true,
	}
}

// Config configures a Client.
type Config struct {
	APIKey    string
	BaseURL   string
	ModelID   string
	TextLimit int // runes sent per request
	Timeout   time.Duration
	Settings  VoiceSettings
}

// DefaultConfig returns the default client configuration without a key.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		ModelID:   DefaultModelID,
		TextLimit: DefaultTextLimit,
		Timeout:   DefaultTimeout,
		Settings:  DefaultVoiceSettings(),
	}
}

// Request is one synthesis call.
type Request struct {
	Text    string
	VoiceID string
	// Settings overrides the configured voice settings when non-nil.
	Settings *VoiceSettings
}

// HTTPDoer is the subset of *http.Client the client needs.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client talks to the ElevenLabs API.
type Client struct {
	config   Config
	http     HTTPDoer
	limiter  *ratelimit.Limiter
	observer diag.Observer
	logger   *log.Logger
	maxBody  int64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h HTTPDoer) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithLimiter sets the rate limiter shared by all calls.
func WithLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithObserver sets where failures are reported.
func WithObserver(o diag.Observer) Option {
	return func(c *Client) {
		c.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New returns a client. Zero config fields take their defaults.
func New(config Config, opts ...Option) *Client {
	def := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = def.BaseURL
	}
	if config.ModelID == "" {
		config.ModelID = def.ModelID
	}
	if config.TextLimit <= 0 {
		config.TextLimit = def.TextLimit
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Settings == (VoiceSettings{}) {
		config.Settings = def.Settings
	}

	c := &Client{
		config:   config,
		http:     &http.Client{},
		observer: diag.Discard,
		logger:   log.Default(),
		maxBody:  maxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.limiter == nil {
		c.limiter = ratelimit.New(ratelimit.DefaultTokens, ratelimit.DefaultInterval)
	}
	return c
}

// HasAPIKey reports whether requests will reach the network.
func (c *Client) HasAPIKey() bool {
	return c.config.APIKey != ""
}

// Silence is the clip returned for every failed request.
func Silence() []byte {
	return audio.EncodeSilentWAV(audio.SilenceDuration, audio.DefaultSampleRate, audio.DefaultChannels)
}

// Synthesize returns encoded audio for req, or Silence when anything goes
// wrong. Successful response bodies are returned byte for byte.
func (c *Client) Synthesize(ctx context.Context, req Request) []byte {
	data, err := c.Fetch(ctx, req)
	if err != nil {
		c.report(err)
		return Silence()
	}
	return data
}

// Fetch is Synthesize without the fallback: it returns the reason instead
// of silence.
func (c *Client) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if c.config.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	text := Truncate(Sanitize(req.Text), c.config.TextLimit)
	if text == "" {
		return nil, ErrEmptyText
	}
	if req.VoiceID == "" {
		return nil, ErrNoVoice
	}
	if IsFallbackVoice(req.VoiceID) {
		return nil, ErrFallbackVoice
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, classify(err)
	}

	settings := c.config.Settings
	if req.Settings != nil {
		settings = *req.Settings
	}
	body, err := json.Marshal(struct {
		Text          string        `json:"text"`
		ModelID       string        `json:"model_id"`
		VoiceSettings VoiceSettings `json:"voice_settings"`
	}{text, c.config.ModelID, settings})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.config.BaseURL + "/text-to-speech/" + url.PathEscape(req.VoiceID)
	data, err := c.do(ctx, http.MethodPost, endpoint, "audio/mpeg", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmptyResponse
	}

	c.logger.Debug("synthesized", "voice", req.VoiceID, "chars", len(text), "bytes", len(data))
	return data, nil
}

// Voices lists the voices available to the configured account. Without a
// key, or on any failure, it returns FallbackVoices.
func (c *Client) Voices(ctx context.Context) []Voice {
	voices, err := c.fetchVoices(ctx)
	if err != nil {
		c.report(err)
		return FallbackVoices()
	}
	return voices
}

func (c *Client) fetchVoices(ctx context.Context) ([]Voice, error) {
	if c.config.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, classify(err)
	}

	data, err := c.do(ctx, http.MethodGet, c.config.BaseURL+"/voices", "application/json", nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Voices []Voice `json:"voices"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &Error{Code: ErrorCodeDecode, Message: "voices response", Cause: err}
	}
	if resp.Voices == nil {
		return nil, &Error{Code: ErrorCodeDecode, Message: "voices response has no voices"}
	}
	return resp.Voices, nil
}

// do sends one request bounded by the configured timeout and returns the
// body of a 2xx response.
func (c *Client) do(ctx context.Context, method, endpoint, accept string, body io.Reader) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, &Error{Code: ErrorCodeTransport, Message: "build request", Cause: err}
	}
	req.Header.Set("xi-api-key", c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, statusError(resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, classify(err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, &Error{Code: ErrorCodeDecode, Message: fmt.Sprintf("response larger than %d bytes", c.maxBody)}
	}
	return data, nil
}

func (c *Client) report(err error) {
	c.logger.Debug("synthesis fallback", "err", err)
	c.observer.Observe(diag.Diagnostic{Component: "synth", Kind: kindOf(err), Err: err})
}

func classify(err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: ErrorCodeTimeout, Message: "request timed out", Cause: err}
	case errors.Is(err, context.Canceled):
		return &Error{Code: ErrorCodeCanceled, Message: "request canceled", Cause: err}
	default:
		return &Error{Code: ErrorCodeTransport, Message: "request failed", Cause: err}
	}
}
