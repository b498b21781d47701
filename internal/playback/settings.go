package playback

import (
	"fmt"
	"time"

	"github.com/dgnsrekt/cuecard/internal/script"
)

const (
	// BaseWordsPerMinute is the pace that plays at 1x.
	BaseWordsPerMinute = 150

	MinRate = 0.5
	MaxRate = 2.0

	// DefaultLineTimeout caps how long one line may play.
	DefaultLineTimeout = 5 * time.Second

	// DefaultLookahead is how many upcoming voiced lines are prefetched.
	DefaultLookahead = 1
)

// ReadAloud selects which line types are voiced.
type ReadAloud struct {
	Locations      bool `yaml:"read_locations" mapstructure:"read_locations"`
	Actions        bool `yaml:"read_actions" mapstructure:"read_actions"`
	Parentheticals bool `yaml:"read_parentheticals" mapstructure:"read_parentheticals"`
	Dialogue       bool `yaml:"read_dialogue" mapstructure:"read_dialogue"`
}

// Enabled reports whether lines of type t are voiced.
func (r ReadAloud) Enabled(t script.LineType) bool {
	switch t {
	case script.Location:
		return r.Locations
	case script.Action:
		return r.Actions
	case script.Parenthetical:
		return r.Parentheticals
	case script.Dialogue:
		return r.Dialogue
	}
	return false
}

// Settings controls the sequencer.
type Settings struct {
	VoiceEnabled   bool          `yaml:"voice_enabled" mapstructure:"voice_enabled"`
	WordsPerMinute int           `yaml:"words_per_minute" mapstructure:"words_per_minute"`
	LineTimeout    time.Duration `yaml:"line_timeout" mapstructure:"line_timeout"`
	Lookahead      int           `yaml:"lookahead" mapstructure:"lookahead"`
	ReadAloud      ReadAloud     `yaml:",inline" mapstructure:",squash"`
}

// DefaultSettings voices everything except scene headings at 1x.
func DefaultSettings() Settings {
	return Settings{
		VoiceEnabled:   true,
		WordsPerMinute: BaseWordsPerMinute,
		LineTimeout:    DefaultLineTimeout,
		Lookahead:      DefaultLookahead,
		ReadAloud: ReadAloud{
			Locations:      false,
			Actions:        true,
			Parentheticals: true,
			Dialogue:       true,
		},
	}
}

// Validate checks the settings.
func (s Settings) Validate() error {
	if s.WordsPerMinute <= 0 {
		return fmt.Errorf("words per minute must be positive, got %d", s.WordsPerMinute)
	}
	if s.LineTimeout <= 0 {
		return fmt.Errorf("line timeout must be positive, got %v", s.LineTimeout)
	}
	if s.Lookahead < 0 {
		return fmt.Errorf("lookahead must not be negative, got %d", s.Lookahead)
	}
	return nil
}

// Rate converts a reading pace to a playback rate in [MinRate, MaxRate].
func Rate(wordsPerMinute int) float64 {
	r := float64(wordsPerMinute) / BaseWordsPerMinute
	return min(max(r, MinRate), MaxRate)
}
