// Package voice tracks which synthesis voice reads each character.
package voice

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Assignment binds a character to a voice. An empty VoiceID means the
// character is silent.
type Assignment struct {
	Character string `yaml:"character"`
	VoiceID   string `yaml:"voice_id,omitempty"`
}

// Roster holds the assignments for one script plus the narrator voice and
// the role the user is reading. The focused role never gets a voice.
type Roster struct {
	mu          sync.RWMutex
	focusedRole string
	narrator    string
	order       []string
	voices      map[string]string
}

// NewRoster returns an empty roster for a user reading focusedRole.
func NewRoster(focusedRole string) *Roster {
	return &Roster{
		focusedRole: canonical(focusedRole),
		voices:      make(map[string]string),
	}
}

func canonical(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}

// FocusedRole returns the role read by the user.
func (r *Roster) FocusedRole() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.focusedRole
}

// SetFocusedRole changes the user's role. Its voice, if any, is dropped.
func (r *Roster) SetFocusedRole(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.focusedRole = canonical(name)
	if _, ok := r.voices[r.focusedRole]; ok {
		r.voices[r.focusedRole] = ""
	}
}

// IsFocused reports whether name is the user's role.
func (r *Roster) IsFocused(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.focusedRole != "" && canonical(name) == r.focusedRole
}

// NarratorVoice returns the voice used for non-dialogue lines.
func (r *Roster) NarratorVoice() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.narrator
}

// SetNarratorVoice sets the narrator voice.
func (r *Roster) SetNarratorVoice(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.narrator = id
}

// Sync adds every character in names that is missing and drops characters
// no longer in names. Existing assignments are kept.
func (r *Roster) Sync(names []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	present := make(map[string]bool, len(names))
	var order []string
	for _, n := range names {
		n = canonical(n)
		if n == "" || present[n] {
			continue
		}
		present[n] = true
		order = append(order, n)
		if _, ok := r.voices[n]; !ok {
			r.voices[n] = ""
		}
	}
	for n := range r.voices {
		if !present[n] {
			delete(r.voices, n)
		}
	}
	r.order = order
}

// Assign sets the voice for a character, adding it if needed. Assigning to
// the focused role is ignored.
func (r *Roster) Assign(character, voiceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	character = canonical(character)
	if character == "" || character == r.focusedRole {
		return
	}
	if _, ok := r.voices[character]; !ok {
		r.order = append(r.order, character)
	}
	r.voices[character] = voiceID
}

// Remove forgets a character.
func (r *Roster) Remove(character string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	character = canonical(character)
	delete(r.voices, character)
	for i, n := range r.order {
		if n == character {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// VoiceFor returns the voice of character. The focused role and unknown
// characters have none.
func (r *Roster) VoiceFor(character string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	character = canonical(character)
	if character == r.focusedRole {
		return ""
	}
	return r.voices[character]
}

// Assignments lists every character in script order.
func (r *Roster) Assignments() []Assignment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Assignment, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, Assignment{Character: n, VoiceID: r.voices[n]})
	}
	return out
}

// Unassigned lists characters other than the focused role without a voice.
func (r *Roster) Unassigned() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for _, n := range r.order {
		if n != r.focusedRole && r.voices[n] == "" {
			out = append(out, n)
		}
	}
	return out
}

// rosterFile is the on-disk form of a Roster.
type rosterFile struct {
	FocusedRole string       `yaml:"focused_role,omitempty"`
	Narrator    string       `yaml:"narrator,omitempty"`
	Assignments []Assignment `yaml:"assignments"`
}

// SidecarPath returns where the roster for scriptPath is kept.
func SidecarPath(scriptPath string) string {
	return strings.TrimSuffix(scriptPath, filepath.Ext(scriptPath)) + ".voices.yaml"
}

// Load reads a roster. A missing file yields an empty roster.
func Load(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewRoster(""), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}

	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse roster %s: %w", path, err)
	}

	r := NewRoster(f.FocusedRole)
	r.narrator = f.Narrator
	for _, a := range f.Assignments {
		r.Assign(a.Character, a.VoiceID)
	}
	return r, nil
}

// Save writes the roster to path.
func (r *Roster) Save(path string) error {
	r.mu.RLock()
	f := rosterFile{FocusedRole: r.focusedRole, Narrator: r.narrator}
	r.mu.RUnlock()
	f.Assignments = r.Assignments()

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode roster: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write roster: %w", err)
	}
	return nil
}
