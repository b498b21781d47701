package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"

	"github.com/dgnsrekt/cuecard/internal/script"
)

const (
	gutterWidth         = 2
	characterIndent     = 20
	dialogueIndent      = 10
	parentheticalIndent = 15
	minTextWidth        = 20
)

// layout is a rendered script. rows maps every rendered row to the line
// it belongs to, or -1 for spacing.
type layout struct {
	content string
	rows    []int
	first   map[int]int // first row of each line
}

// renderScript lays lines out screenplay style in width columns. Lines
// spoken by the focused role are tinted and line current gets a marker.
func renderScript(lines []script.Line, width int, isFocused func(string) bool, current int) layout {
	textWidth := max(width-gutterWidth, minTextWidth)
	l := layout{first: make(map[int]int, len(lines))}
	var b strings.Builder

	emit := func(idx int, row string) {
		gutter := "  "
		if idx == current && idx >= 0 {
			if _, seen := l.first[idx]; !seen {
				gutter = gutterStyle.Render("▶ ")
			}
		}
		if _, seen := l.first[idx]; !seen && idx >= 0 {
			l.first[idx] = len(l.rows)
		}
		if len(l.rows) > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(gutter)
		b.WriteString(row)
		l.rows = append(l.rows, idx)
	}

	block := func(idx int, text string, margin, w int, style lipgloss.Style) {
		wrapped := wordwrap.String(text, max(w, 1))
		for _, row := range strings.Split(wrapped, "\n") {
			emit(idx, strings.Repeat(" ", margin)+style.Render(row))
		}
	}

	prevSpeaker := ""
	for i, line := range lines {
		style := lineStyle(line.Type)
		speaks := line.Type == script.Dialogue || line.Type == script.Parenthetical
		if speaks && line.Speaker != "" && isFocused != nil && isFocused(line.Speaker) {
			style = style.Inherit(focusedStyle)
		}
		if i == current {
			style = currentStyle.Inherit(style)
		}

		newSpeaker := speaks && line.Speaker != "" && line.Speaker != prevSpeaker
		if i > 0 && (!speaks || newSpeaker) {
			emit(-1, "")
		}

		switch line.Type {
		case script.Location:
			block(i, strings.ToUpper(line.Text), 0, textWidth, style)
		case script.Dialogue, script.Parenthetical:
			if newSpeaker {
				pad := max((textWidth-runewidth.StringWidth(line.Speaker))/2, 0)
				name := characterStyle.Inherit(style).Render(line.Speaker)
				emit(i, strings.Repeat(" ", min(characterIndent, pad))+name)
			}
			margin := min(dialogueIndent, textWidth/4)
			if line.Type == script.Parenthetical {
				margin = min(parentheticalIndent, textWidth/3)
			}
			block(i, line.Text, margin, textWidth-2*margin, style)
		default:
			block(i, line.Text, 0, textWidth, style)
		}

		if speaks {
			prevSpeaker = line.Speaker
		} else {
			prevSpeaker = ""
		}
	}

	l.content = b.String()
	return l
}

func lineStyle(t script.LineType) lipgloss.Style {
	switch t {
	case script.Location:
		return locationStyle
	case script.Parenthetical:
		return parentheticalStyle
	case script.Dialogue:
		return dialogueStyle
	default:
		return actionStyle
	}
}

// visibleLines returns the distinct line indices shown in rows
// [from, to), top first.
func (l layout) visibleLines(from, to int) []int {
	from = max(from, 0)
	to = min(to, len(l.rows))
	var out []int
	last := -1
	for _, idx := range l.rows[from:max(from, to)] {
		if idx < 0 || idx == last {
			continue
		}
		out = append(out, idx)
		last = idx
	}
	return out
}

// indentHelp shifts the help block right by n columns.
func indentHelp(s string, n int) string {
	return indent.String(s, uint(max(n, 0))) //nolint:gosec
}
