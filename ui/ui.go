// Package ui is the teleprompter: it scrolls a script and voices the lines
// that reach the reading mark.
package ui

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/charmbracelet/x/editor"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/cuecard/internal/playback"
	"github.com/dgnsrekt/cuecard/internal/script"
	"github.com/dgnsrekt/cuecard/internal/voice"
)

const (
	statusBarHeight      = 1
	statusMessageTimeout = time.Second * 3
	ellipsis             = "…"

	wpmStep = 25
	minWPM  = 25
	maxWPM  = 400
)

// Sequencer is the playback engine the teleprompter drives.
type Sequencer interface {
	Load(lines []script.Line, casting playback.Casting)
	Start()
	Stop()
	Playing() bool
	Visible(indices []int) bool
	Cursor() playback.Cursor
	Busy() bool
	Speaking() string
	Subscribe(fn func(speaker string)) (cancel func())
	Settings() playback.Settings
	SetSettings(playback.Settings)
}

type (
	scrollTickMsg   time.Time
	speakingMsg     string
	scriptLoadedMsg struct {
		script *script.Script
		err    error
	}
	editorFinishedMsg struct{ err error }
	statusTimeoutMsg  int
)

type statusMessage struct {
	text    string
	isError bool
}

type model struct {
	cfg    Config
	seq    Sequencer
	roster *voice.Roster
	script *script.Script

	viewport viewport.Model
	layout   layout
	keys     keyMap
	help     help.Model
	spinner  spinner.Model

	width, height int
	showHelp      bool
	paused        bool
	speaking      string
	highlight     int

	status   *statusMessage
	statusID int
}

func newModel(cfg Config, seq Sequencer, roster *voice.Roster, sc *script.Script) model {
	vp := viewport.New(0, 0)
	vp.HighPerformanceRendering = cfg.HighPerformancePager
	// Scrolling keys are handled here so they stay in the help.
	vp.KeyMap = viewport.KeyMap{
		PageDown:     key.NewBinding(key.WithKeys("pgdown", "f")),
		PageUp:       key.NewBinding(key.WithKeys("pgup", "b")),
		HalfPageUp:   key.NewBinding(key.WithKeys("u")),
		HalfPageDown: key.NewBinding(key.WithKeys("d")),
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := model{
		cfg:       cfg,
		seq:       seq,
		roster:    roster,
		script:    sc,
		viewport:  vp,
		keys:      defaultKeyMap(),
		help:      help.New(),
		spinner:   sp,
		highlight: -1,
	}
	if sc != nil {
		m.loadScript(sc)
	}
	return m
}

// NewProgram returns the teleprompter program.
func NewProgram(cfg Config, seq Sequencer, roster *voice.Roster, sc *script.Script) *tea.Program {
	log.Debug("Starting teleprompter", "high_perf_pager", cfg.HighPerformancePager, "path", cfg.Path)

	var opts []tea.ProgramOption
	if cfg.AltScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	return tea.NewProgram(newModel(cfg, seq, roster, sc), opts...)
}

// Run shows the teleprompter until the user quits. The speaker indicator
// follows seq and the script is reloaded when its file changes.
func Run(ctx context.Context, cfg Config, seq Sequencer, roster *voice.Roster, sc *script.Script) error {
	p := NewProgram(cfg, seq, roster, sc)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	stopForwarding := forwardSpeaking(ctx, seq, p.Send)
	defer stopForwarding()
	defer seq.Stop()
	if cfg.Path != "" {
		go func() {
			err := script.Watch(ctx, cfg.Path, func(s *script.Script, err error) {
				p.Send(scriptLoadedMsg{script: s, err: err})
			})
			if err != nil {
				log.Error("error watching script", "path", cfg.Path, "error", err)
			}
		}()
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

// forwardSpeaking delivers speaker changes from seq to send. The
// sequencer calls listeners on whatever goroutine changed the speaker,
// including the event loop when a key stops playback, so the listener
// only flags the change and a separate goroutine does the send. Bursts
// collapse to the latest speaker.
func forwardSpeaking(ctx context.Context, seq Sequencer, send func(tea.Msg)) (stop func()) {
	changed := make(chan struct{}, 1)
	unsubscribe := seq.Subscribe(func(string) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
				send(speakingMsg(seq.Speaking()))
			}
		}
	}()

	return func() {
		unsubscribe()
		cancel()
		<-done
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.scrollTick())
}

func (m model) scrollTick() tea.Cmd {
	return tea.Tick(m.cfg.scrollInterval(), func(t time.Time) tea.Msg {
		return scrollTickMsg(t)
	})
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.setSize()
		m.render()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.seq.Stop()
			return m, tea.Quit

		case key.Matches(msg, m.keys.Toggle):
			if m.seq.Playing() {
				m.seq.Stop()
				cmds = append(cmds, m.showStatus("Stopped", false))
			} else {
				m.paused = false
				m.seq.Start()
				cmds = append(cmds, m.showStatus("Reading", false))
			}

		case key.Matches(msg, m.keys.Pause):
			m.paused = !m.paused

		case key.Matches(msg, m.keys.Voice):
			s := m.seq.Settings()
			s.VoiceEnabled = !s.VoiceEnabled
			m.seq.SetSettings(s)
			if s.VoiceEnabled {
				cmds = append(cmds, m.showStatus("Voice on", false))
			} else {
				cmds = append(cmds, m.showStatus("Voice off", false))
			}

		case key.Matches(msg, m.keys.Faster), key.Matches(msg, m.keys.Slower):
			s := m.seq.Settings()
			if key.Matches(msg, m.keys.Faster) {
				s.WordsPerMinute = min(s.WordsPerMinute+wpmStep, maxWPM)
			} else {
				s.WordsPerMinute = max(s.WordsPerMinute-wpmStep, minWPM)
			}
			m.seq.SetSettings(s)
			cmds = append(cmds, m.showStatus(
				fmt.Sprintf("%d wpm (%.2fx)", s.WordsPerMinute, playback.Rate(s.WordsPerMinute)), false))

		case key.Matches(msg, m.keys.Restart):
			m.paused = false
			m.seq.Start()
			m.viewport.GotoTop()

		case key.Matches(msg, m.keys.Up):
			m.viewport.LineUp(1)
		case key.Matches(msg, m.keys.Down):
			m.viewport.LineDown(1)
		case key.Matches(msg, m.keys.Top):
			m.viewport.GotoTop()
		case key.Matches(msg, m.keys.Bottom):
			m.viewport.GotoBottom()

		case key.Matches(msg, m.keys.Edit):
			if m.cfg.Path != "" {
				return m, openEditor(m.cfg.Path)
			}

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			m.setSize()
		}

	case scrollTickMsg:
		m.advance()
		m.syncHighlight()
		cmds = append(cmds, m.scrollTick())

	case speakingMsg:
		m.speaking = string(msg)
		m.syncHighlight()

	case scriptLoadedMsg:
		if msg.err != nil {
			cmds = append(cmds, m.showStatus("Reload failed: "+msg.err.Error(), true))
			break
		}
		m.loadScript(msg.script)
		m.render()
		cmds = append(cmds, m.showStatus("Script reloaded", false))

	case editorFinishedMsg:
		if msg.err != nil {
			cmds = append(cmds, m.showStatus("Editor: "+msg.err.Error(), true))
			break
		}
		cmds = append(cmds, loadScriptCmd(m.cfg.Path))

	case statusTimeoutMsg:
		if int(msg) == m.statusID {
			m.status = nil
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// advance hands the lines at the reading mark to the sequencer and, while
// nothing is being voiced, scrolls one row.
func (m *model) advance() {
	if !m.seq.Playing() || m.paused {
		return
	}
	if m.seq.Visible(m.visibleLines()) || m.seq.Busy() {
		return
	}
	if !m.viewport.AtBottom() {
		m.viewport.LineDown(1)
	}
}

// readingMark is the viewport row lines are read at, a third of the way
// down.
func (m model) readingMark() int {
	return m.viewport.Height / 3
}

func (m model) visibleLines() []int {
	top := m.viewport.YOffset
	return m.layout.visibleLines(top+m.readingMark(), top+m.viewport.Height)
}

// syncHighlight re-renders when the line being voiced changes.
func (m *model) syncHighlight() {
	want := -1
	if m.speaking != "" {
		want = m.seq.Cursor().Current
	}
	if want != m.highlight {
		m.highlight = want
		m.render()
	}
}

func (m *model) loadScript(sc *script.Script) {
	m.script = sc
	if m.roster != nil {
		m.roster.Sync(sc.Characters())
		m.seq.Load(sc.Lines, m.roster)
	} else {
		m.seq.Load(sc.Lines, nil)
	}
	if m.cfg.Title == "" {
		m.cfg.Title = sc.Title
	}
}

func (m *model) setSize() {
	m.viewport.Width = m.width
	m.viewport.Height = m.height - statusBarHeight
	if m.showHelp {
		m.viewport.Height -= strings.Count(m.helpView(), "\n") + 1
	}
	m.viewport.Height = max(m.viewport.Height, 1)
}

func (m *model) render() {
	if m.script == nil {
		return
	}
	width := m.width
	if m.cfg.MaxWidth > 0 {
		width = min(width, m.cfg.MaxWidth)
	}
	var focused func(string) bool
	if m.roster != nil {
		focused = m.roster.IsFocused
	}
	m.layout = renderScript(m.script.Lines, width, focused, m.highlight)
	m.viewport.SetContent(m.layout.content)
}

func (m *model) showStatus(text string, isError bool) tea.Cmd {
	m.statusID++
	m.status = &statusMessage{text: text, isError: isError}
	id := m.statusID
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusTimeoutMsg(id)
	})
}

func (m model) View() string {
	var b strings.Builder
	fmt.Fprint(&b, m.viewport.View()+"\n")
	m.statusBarView(&b)
	if m.showHelp {
		fmt.Fprint(&b, "\n"+m.helpView())
	}
	return b.String()
}

func (m model) statusBarView(b *strings.Builder) {
	logo := logoStyle.Render(" cuecard ")

	percent := math.Max(0, math.Min(1, m.viewport.ScrollPercent()))
	pos := statusBarPosStyle(fmt.Sprintf(" %d wpm %3.f%% ", m.seq.Settings().WordsPerMinute, percent*100))
	helpNote := statusBarHelpStyle(" ? Help ")

	var indicator string
	switch {
	case m.speaking != "":
		indicator = speakingStyle(" ♪ " + m.speaking + " ")
	case m.seq.Busy():
		indicator = statusBarNoteStyle(" " + m.spinner.View())
	}

	var note string
	if m.status != nil {
		note = m.status.text
	} else {
		note = m.stateNote()
	}
	avail := max(0, m.width-
		ansi.PrintableRuneWidth(logo)-
		ansi.PrintableRuneWidth(indicator)-
		ansi.PrintableRuneWidth(pos)-
		ansi.PrintableRuneWidth(helpNote))
	note = truncate.StringWithTail(" "+note+" ", uint(avail), ellipsis) //nolint:gosec

	style := statusBarNoteStyle
	if m.status != nil {
		style = statusBarMessageStyle
		if m.status.isError {
			style = statusBarErrorStyle
		}
	}
	note = style(note)

	padding := max(0, avail-ansi.PrintableRuneWidth(note))
	fmt.Fprintf(b, "%s%s%s%s%s%s",
		logo,
		indicator,
		note,
		style(strings.Repeat(" ", padding)),
		pos,
		helpNote,
	)
}

func (m model) stateNote() string {
	var state string
	switch {
	case !m.seq.Playing():
		state = "■ stopped"
	case m.paused:
		state = "⏸ paused"
	default:
		state = "▶ reading"
	}
	if !m.seq.Settings().VoiceEnabled {
		state += " (muted)"
	}
	if m.cfg.Title != "" {
		return m.cfg.Title + " | " + state
	}
	return state
}

func (m model) helpView() string {
	h := m.help
	h.ShowAll = true
	s := indentHelp("\n"+h.View(m.keys)+"\n", 2)

	// Fill up empty cells with spaces for background coloring
	if m.width > 0 {
		lines := strings.Split(s, "\n")
		for i := range lines {
			n := max(m.width-ansi.PrintableRuneWidth(lines[i]), 0)
			lines[i] += strings.Repeat(" ", n)
		}
		s = strings.Join(lines, "\n")
	}
	return helpViewStyle(s)
}

func openEditor(path string) tea.Cmd {
	cb := func(err error) tea.Msg {
		return editorFinishedMsg{err}
	}
	c, err := editor.Cmd("cuecard", path)
	if err != nil {
		return func() tea.Msg { return cb(err) }
	}
	return tea.ExecProcess(c, cb)
}

func loadScriptCmd(path string) tea.Cmd {
	return func() tea.Msg {
		sc, err := script.Load(path)
		return scriptLoadedMsg{script: sc, err: err}
	}
}
