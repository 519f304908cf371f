// Package tui is the on-screen keyboard: it is both an input source and a
// live view of the key colours and melody progress.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chase3718/lou-piano/internal/engine"
	"github.com/chase3718/lou-piano/internal/input"
	"github.com/chase3718/lou-piano/internal/melody"
	"github.com/chase3718/lou-piano/internal/note"
)

// keyBindings follow piano fingering on a qwerty layout: home row for the
// naturals, the row above for the accidentals.
var keyBindings = [note.NumKeys]string{"a", "w", "s", "e", "d", "f", "t", "g", "y", "h", "u", "j"}

// Engine is the part of *engine.Engine the view needs.
type Engine interface {
	Snapshot() engine.Snapshot
	Restart()
	Stop()
	StartNamed(title string) error
}

// Notifier collects engine and router callbacks and wakes the program.
// Every method is safe to call from any goroutine and never blocks.
type Notifier struct {
	wake chan struct{}
	act  chan []int
}

func NewNotifier() *Notifier {
	return &Notifier{wake: make(chan struct{}, 1), act: make(chan []int, 1)}
}

func (n *Notifier) poke() {
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

// Paint satisfies engine.Painter.
func (n *Notifier) Paint(engine.Keys) { n.poke() }

// Progress is a progress observer.
func (n *Notifier) Progress(string) { n.poke() }

// Active records the keys held down; only the latest set is kept.
func (n *Notifier) Active(keys []int) {
	select {
	case <-n.act:
	default:
	}
	select {
	case n.act <- keys:
	default:
	}
	n.poke()
}

type updateMsg struct{}

type activeMsg []int

// Model is the bubbletea model.
type Model struct {
	eng      Engine
	submit   func(input.Event) bool
	notifier *Notifier

	snap     engine.Snapshot
	active   map[int]bool
	library  []string
	nextSong int
	status   string
	quitting bool
}

func NewModel(eng Engine, submit func(input.Event) bool, n *Notifier) Model {
	return Model{
		eng:      eng,
		submit:   submit,
		notifier: n,
		snap:     eng.Snapshot(),
		active:   map[int]bool{},
		library:  melody.Library(),
	}
}

func (m Model) listen() tea.Cmd {
	n := m.notifier
	return func() tea.Msg {
		select {
		case keys := <-n.act:
			return activeMsg(keys)
		default:
		}
		select {
		case keys := <-n.act:
			return activeMsg(keys)
		case <-n.wake:
			return updateMsg{}
		}
	}
}

func (m Model) Init() tea.Cmd {
	return m.listen()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case updateMsg:
		m.snap = m.eng.Snapshot()
		return m, m.listen()

	case activeMsg:
		m.active = make(map[int]bool, len(msg))
		for _, i := range msg {
			m.active[i] = true
		}
		m.snap = m.eng.Snapshot()
		return m, m.listen()
	}
	return m, nil
}

func (m Model) handleKey(k string) (tea.Model, tea.Cmd) {
	switch k {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "r":
		m.eng.Restart()
		m.status = "restarted"
	case "x":
		m.eng.Stop()
		m.status = "stopped"
	case "m":
		if len(m.library) > 0 {
			title := m.library[m.nextSong%len(m.library)]
			m.nextSong++
			if err := m.eng.StartNamed(title); err != nil {
				m.status = err.Error()
			} else {
				m.status = title
			}
		}
	default:
		for i, b := range keyBindings {
			if b == k {
				if !m.submit(input.Event{Source: input.SourceTUI, Kind: input.Press, Index: i}) {
					m.status = "input queue full"
				}
				break
			}
		}
	}
	m.snap = m.eng.Snapshot()
	return m, nil
}

// -------------------- View --------------------

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	keyStyle    = lipgloss.NewStyle().Width(5).Align(lipgloss.Center).Padding(0, 0)

	keyColors = map[engine.Color]lipgloss.Color{
		engine.Idle:   lipgloss.Color("250"),
		engine.Target: lipgloss.Color("34"),
		engine.Wrong:  lipgloss.Color("160"),
	}
	accidentalIdle = lipgloss.Color("238")
	heldColor      = lipgloss.Color("220")
)

func (m Model) renderKey(i int) string {
	c := m.snap.Keys[i]
	bg := keyColors[c]
	if c == engine.Idle && note.IsAccidental(i) {
		bg = accidentalIdle
	}
	fg := lipgloss.Color("16")
	if bg == accidentalIdle {
		fg = lipgloss.Color("255")
	}
	style := keyStyle.Background(bg).Foreground(fg)
	if m.active[i] {
		style = style.Bold(true).Underline(true)
	}
	label := strings.TrimSuffix(note.Name(i), "4")
	bind := keyBindings[i]
	if m.active[i] {
		bind = lipgloss.NewStyle().Foreground(heldColor).Render("*" + bind)
	}
	return style.Render(label + "\n" + bind)
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	keys := make([]string, note.NumKeys)
	for i := range keys {
		keys[i] = m.renderKey(i)
	}

	header := headerStyle.Render(fmt.Sprintf("lou-piano  %s  step %d/%d", m.snap.State, m.snap.Step, len(m.snap.Sequence)))
	if m.snap.State == engine.Completed {
		header += "  " + headerStyle.Render("melody complete!")
	}

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, keys...))
	out.WriteString("\n\n")
	out.WriteString(m.snap.Progress)
	out.WriteString("\n")
	if m.status != "" {
		out.WriteString(dimStyle.Render(m.status))
		out.WriteString("\n")
	}
	out.WriteString("\n")
	out.WriteString(dimStyle.Render("a-j:keys  r:restart  x:stop  m:next melody  q:quit"))
	return out.String()
}
