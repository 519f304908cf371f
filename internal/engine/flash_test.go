package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chase3718/lou-piano/internal/melody"
)

func TestSameKeyTwiceCancelsFirstFlash(t *testing.T) {
	f := newFixture(t, melody.Source{})
	f.eng.Start(melody.Melody{0, 2, 4})

	f.eng.Press(5)
	first := f.sched.last()
	f.eng.Press(5)
	second := f.sched.last()

	require.NotSame(t, first, second)
	assert.True(t, first.stopped)
	assert.False(t, second.stopped)

	// the first callback may still run if Stop lost the race; it must not act
	first.fn()
	assert.Equal(t, Wrong, f.eng.Keys()[5])

	second.fn()
	assert.Equal(t, Idle, f.eng.Keys()[5])
	assert.Equal(t, Target, f.eng.Keys()[0])
}

func TestSecondFlashReconcilesAgainstStateAtItsExpiry(t *testing.T) {
	f := newFixture(t, melody.Source{})
	f.eng.Start(melody.Melody{0, 5, 4})

	f.eng.Press(5) // wrong: expected 0
	f.eng.Press(5) // wrong again, replaces the first
	second := f.sched.last()

	f.eng.Press(0) // now 5 is the expected note

	second.fn()
	keys := f.eng.Keys()
	assert.Equal(t, Target, keys[5], "corrected flash resolves into the new target")
	assert.Equal(t, Idle, keys[0])
}

func TestFlashRevertsWhenStillLive(t *testing.T) {
	f := newFixture(t, melody.Source{})
	f.eng.Start(melody.Melody{0, 2})
	f.eng.Press(7)

	_, calls := f.painter.snapshot()
	f.sched.last().fn()

	keys, after := f.painter.snapshot()
	assert.Equal(t, calls+1, after)
	assert.Equal(t, onlyTarget(0), keys)
	_, _, pending := f.eng.PendingFlash()
	assert.False(t, pending)
}

func TestStaleFlashAfterCorrectPressIsNoop(t *testing.T) {
	f := newFixture(t, melody.Source{})
	f.eng.Start(melody.Melody{0, 2, 4})

	f.eng.Press(9) // wrong while expecting 0
	flash := f.sched.last()
	f.eng.Press(0) // expected moves to 2

	keysBefore, callsBefore := f.painter.snapshot()
	flash.fn()
	keysAfter, callsAfter := f.painter.snapshot()

	assert.Equal(t, callsBefore, callsAfter)
	assert.Equal(t, keysBefore, keysAfter)
	assert.Equal(t, onlyTarget(2), keysAfter)
}

func TestStaleFlashAfterRestartIsNoop(t *testing.T) {
	f := newFixture(t, melody.Source{Indices: []int{0, 2}})
	f.eng.Restart()

	f.eng.Press(9)
	flash := f.sched.last()
	f.eng.Restart()
	assert.True(t, flash.stopped)

	// expected is 0 again, exactly what the flash captured; the
	// generation check is what keeps it from touching the new playthrough
	f.eng.Press(3)
	_, callsBefore := f.painter.snapshot()
	flash.fn()
	_, callsAfter := f.painter.snapshot()

	assert.Equal(t, callsBefore, callsAfter)
	assert.Equal(t, Wrong, f.eng.Keys()[3])
}

func TestSupersededFlashOnOtherKeyIsSettled(t *testing.T) {
	f := newFixture(t, melody.Source{})
	f.eng.Start(melody.Melody{0, 2})

	f.eng.Press(5)
	first := f.sched.last()
	f.eng.Press(7)

	assert.True(t, first.stopped)
	keys := f.eng.Keys()
	assert.Equal(t, Idle, keys[5])
	assert.Equal(t, Wrong, keys[7])
	assert.Equal(t, Target, keys[0])

	pressed, deadline, ok := f.eng.PendingFlash()
	assert.True(t, ok)
	assert.Equal(t, 7, pressed)
	assert.False(t, deadline.IsZero())
}

func TestCloseCancelsFlash(t *testing.T) {
	f := newFixture(t, melody.Source{})
	f.eng.Start(melody.Melody{0})
	f.eng.Press(1)
	f.eng.Close()
	assert.True(t, f.sched.last().stopped)
}
