// Package script reads the classified screenplay lines produced by the
// formatter and watches the file for edits.
package script

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LineType classifies a screenplay line.
type LineType string

const (
	Location      LineType = "location"
	Action        LineType = "action"
	Parenthetical LineType = "parenthetical"
	Dialogue      LineType = "dialogue"
)

// Valid reports whether t is a known type.
func (t LineType) Valid() bool {
	switch t {
	case Location, Action, Parenthetical, Dialogue:
		return true
	}
	return false
}

// IsNarration reports whether the line is read by the narrator.
func (t LineType) IsNarration() bool {
	return t == Location || t == Action || t == Parenthetical
}

// NarratorName is the speaker shown while narration plays.
const NarratorName = "Narrator"

// Line is one classified screenplay line. Index is its position in the
// script and is what the teleprompter reports as visible.
type Line struct {
	Index   int      `yaml:"index" json:"index"`
	Type    LineType `yaml:"type" json:"type"`
	Text    string   `yaml:"text" json:"text"`
	Speaker string   `yaml:"speaker,omitempty" json:"speaker,omitempty"`
}

// Script is a formatted screenplay.
type Script struct {
	Title       string `yaml:"title,omitempty" json:"title,omitempty"`
	FocusedRole string `yaml:"focused_role,omitempty" json:"focused_role,omitempty"`
	Lines       []Line `yaml:"lines" json:"lines"`
}

var (
	// ErrNoLines is returned for a script without lines.
	ErrNoLines = errors.New("script has no lines")

	// ErrBadLineType is returned for an unknown line type.
	ErrBadLineType = errors.New("unknown line type")
)

// Load reads a script from a YAML or JSON file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a script. JSON is accepted as YAML. Line indices are
// reassigned from file order; dialogue speakers are upper-cased.
func Parse(data []byte) (*Script, error) {
	var s Script
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if len(s.Lines) == 0 {
		return nil, ErrNoLines
	}

	for i := range s.Lines {
		l := &s.Lines[i]
		l.Index = i
		l.Type = LineType(strings.ToLower(strings.TrimSpace(string(l.Type))))
		if l.Type == "dialog" {
			l.Type = Dialogue
		}
		if !l.Type.Valid() {
			return nil, fmt.Errorf("line %d: %w %q", i, ErrBadLineType, l.Type)
		}
		l.Text = strings.TrimSpace(l.Text)
		l.Speaker = normalizeName(l.Speaker)
	}
	s.FocusedRole = normalizeName(s.FocusedRole)
	return &s, nil
}

// Characters returns the distinct dialogue speakers in order of first line.
func (s *Script) Characters() []string {
	seen := make(map[string]bool)
	var names []string
	for _, l := range s.Lines {
		if l.Type != Dialogue || l.Speaker == "" || seen[l.Speaker] {
			continue
		}
		seen[l.Speaker] = true
		names = append(names, l.Speaker)
	}
	return names
}

// LineCounts returns how many dialogue lines each character has.
func (s *Script) LineCounts() map[string]int {
	counts := make(map[string]int)
	for _, l := range s.Lines {
		if l.Type == Dialogue && l.Speaker != "" {
			counts[l.Speaker]++
		}
	}
	return counts
}

func normalizeName(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}
