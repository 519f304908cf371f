package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chase3718/lou-piano/internal/engine"
	"github.com/chase3718/lou-piano/internal/input"
	"github.com/chase3718/lou-piano/internal/melody"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newModel(t *testing.T) (*engine.Engine, *[]input.Event, Model) {
	t.Helper()
	n := NewNotifier()
	eng := engine.New(engine.Options{Source: melody.Source{Indices: []int{0, 4}}, Painter: n})
	t.Cleanup(eng.Close)
	eng.Restart()

	var got []input.Event
	submit := func(ev input.Event) bool {
		got = append(got, ev)
		eng.Press(ev.Index)
		return true
	}
	return eng, &got, NewModel(eng, submit, n)
}

func TestKeyBindingsSubmitPresses(t *testing.T) {
	eng, got, m := newModel(t)

	next, _ := m.Update(runes("a"))
	m = next.(Model)
	require.Len(t, *got, 1)
	assert.Equal(t, input.Event{Source: input.SourceTUI, Kind: input.Press, Index: 0}, (*got)[0])
	assert.Equal(t, 4, eng.Expected())
	assert.Equal(t, 1, m.snap.Step)

	next, _ = m.Update(runes("j"))
	m = next.(Model)
	assert.Equal(t, 11, (*got)[1].Index)
	assert.Equal(t, engine.Wrong, m.snap.Keys[11])
	assert.Equal(t, engine.Target, m.snap.Keys[4])

	next, _ = m.Update(runes("z"))
	assert.Len(t, *got, 2)
	_ = next
}

func TestControlKeys(t *testing.T) {
	eng, _, m := newModel(t)

	next, _ := m.Update(runes("x"))
	m = next.(Model)
	assert.Equal(t, engine.Stopped, eng.Snapshot().State)
	assert.Equal(t, "stopped", m.status)

	next, _ = m.Update(runes("r"))
	m = next.(Model)
	assert.Equal(t, engine.Running, m.snap.State)

	next, _ = m.Update(runes("m"))
	m = next.(Model)
	title := melody.Library()[0]
	want, _ := melody.Lookup(title)
	assert.Equal(t, []int(want), eng.Snapshot().Sequence)
	assert.Equal(t, title, m.status)

	_, cmd := m.Update(runes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestNotifierWakesListener(t *testing.T) {
	eng, _, m := newModel(t)
	cmd := m.Init()

	eng.Press(0)
	msg := cmd()
	assert.Equal(t, updateMsg{}, msg)

	next, _ := m.Update(msg)
	assert.Equal(t, 1, next.(Model).snap.Step)
}

func TestNotifierKeepsLatestActiveSet(t *testing.T) {
	_, _, m := newModel(t)
	n := m.notifier
	// drain the wake left by Restart
	select {
	case <-n.wake:
	default:
	}

	n.Active([]int{1})
	n.Active([]int{2, 3})
	msg := m.listen()()
	assert.Equal(t, activeMsg{2, 3}, msg)

	next, _ := m.Update(msg)
	assert.True(t, next.(Model).active[3])
	assert.False(t, next.(Model).active[1])
}

func TestViewShowsProgress(t *testing.T) {
	_, _, m := newModel(t)
	v := m.View()
	assert.Contains(t, v, "Melody: [C4] E4")
	assert.Contains(t, v, "running")

	next, _ := m.Update(runes("a"))
	next, _ = next.Update(runes("d"))
	assert.Contains(t, next.View(), "melody complete!")
}
