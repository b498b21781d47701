// Package diag collects the failures the audio pipeline swallows on purpose.
//
// Every public operation of the pipeline returns a usable default instead of
// an error. The reason for the fallback is reported to an Observer so it can
// be logged or asserted on.
package diag

import (
	"sync"

	"github.com/charmbracelet/log"
)

// Kind classifies a swallowed failure.
type Kind int

const (
	// KindInput is malformed or missing input (no API key, empty text).
	KindInput Kind = iota
	// KindTransport is a network, HTTP status or timeout failure.
	KindTransport
	// KindIntegrity is audio that failed validation or decoding.
	KindIntegrity
	// KindResource is an exhausted budget (cache full, playback timeout).
	KindResource
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindTransport:
		return "transport"
	case KindIntegrity:
		return "integrity"
	case KindResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Diagnostic describes a single swallowed failure.
type Diagnostic struct {
	Component string
	Kind      Kind
	Err       error
}

// Observer receives diagnostics. Implementations must be safe for concurrent use.
type Observer interface {
	Observe(Diagnostic)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Diagnostic)

// Observe calls f(d).
func (f ObserverFunc) Observe(d Diagnostic) { f(d) }

// Discard drops every diagnostic.
var Discard Observer = ObserverFunc(func(Diagnostic) {})

// LogObserver writes diagnostics to a charm logger at warn level.
type LogObserver struct {
	Logger *log.Logger
}

// NewLogObserver returns an observer that logs to l, or to the default
// logger when l is nil.
func NewLogObserver(l *log.Logger) *LogObserver {
	if l == nil {
		l = log.Default()
	}
	return &LogObserver{Logger: l}
}

// Observe implements Observer.
func (o *LogObserver) Observe(d Diagnostic) {
	o.Logger.Warn("fallback", "component", d.Component, "kind", d.Kind, "err", d.Err)
}

// Recorder keeps every diagnostic it sees. Used by tests.
type Recorder struct {
	mu    sync.Mutex
	diags []Diagnostic
}

// Observe implements Observer.
func (r *Recorder) Observe(d Diagnostic) {
	r.mu.Lock()
	r.diags = append(r.diags, d)
	r.mu.Unlock()
}

// All returns a copy of the recorded diagnostics.
func (r *Recorder) All() []Diagnostic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Diagnostic, len(r.diags))
	copy(out, r.diags)
	return out
}

// Count returns how many diagnostics of kind k were recorded.
func (r *Recorder) Count(k Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, d := range r.diags {
		if d.Kind == k {
			n++
		}
	}
	return n
}

// Reset forgets all recorded diagnostics.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.diags = nil
	r.mu.Unlock()
}
