package ui

import "time"

// Config contains teleprompter settings.
type Config struct {
	// Script file, watched for edits when set.
	Path string

	// Title shown in the status bar.
	Title string

	// MaxWidth caps the text column; 0 fits the terminal.
	MaxWidth int

	// ScrollSpeed is rows per second of auto-scroll.
	ScrollSpeed float64

	EnableMouse bool

	// For debugging the UI
	HighPerformancePager bool `env:"CUECARD_HIGH_PERFORMANCE_PAGER" envDefault:"false"`
	AltScreen            bool `env:"CUECARD_ALT_SCREEN" envDefault:"true"`
}

// scrollInterval is the time between auto-scroll steps.
func (c Config) scrollInterval() time.Duration {
	if c.ScrollSpeed <= 0 {
		return 2 * time.Second
	}
	return time.Duration(float64(time.Second) / c.ScrollSpeed)
}
