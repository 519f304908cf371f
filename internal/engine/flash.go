package engine

import (
	"time"

	"github.com/chase3718/lou-piano/internal/note"
)

// Timer is the handle returned by a scheduler; *time.Timer satisfies it.
type Timer interface {
	Stop() bool
}

// wrongFlash is the pending revert of a wrong key. expectedAt is captured
// when the mismatch happens, never re-read later.
type wrongFlash struct {
	pressed    int
	expectedAt int
	deadline   time.Time
	gen        uint64
	timer      Timer
}

// flashLocked paints pressed as wrong and schedules its reconciliation,
// replacing any flash still pending.
func (e *Engine) flashLocked(pressed, expectedAt int) {
	if prev := e.flash; prev != nil {
		prev.timer.Stop()
		e.flash = nil
		// Only one flash is pending at a time, so a superseded flash on a
		// different key is settled now instead of staying red.
		if prev.pressed != pressed {
			e.reconcileLocked(prev)
		}
	}

	e.flashGen++
	f := &wrongFlash{
		pressed:    pressed,
		expectedAt: expectedAt,
		deadline:   time.Now().Add(e.flashDur),
		gen:        e.flashGen,
	}
	e.keys[pressed] = Wrong
	if note.Valid(expectedAt) {
		e.keys[expectedAt] = Target
	}
	gen := f.gen
	f.timer = e.afterFunc(e.flashDur, func() { e.expireFlash(gen) })
	e.flash = f
}

// expireFlash runs on the timer goroutine.
func (e *Engine) expireFlash(gen uint64) {
	e.apply(func() effects {
		f := e.flash
		if f == nil || f.gen != gen {
			// cancelled or superseded after the timer already fired
			return effects{}
		}
		e.flash = nil
		return effects{paint: e.reconcileLocked(f)}
	})
}

// reconcileLocked settles a flash against the state current now and reports
// whether any key changed colour.
func (e *Engine) reconcileLocked(f *wrongFlash) bool {
	now := e.expected
	var want Color
	switch {
	case now == f.expectedAt && f.pressed != now:
		want = Idle
	case f.pressed == now:
		want = Target
	default:
		e.logger.Debug("engine: stale flash dropped", "pressed", note.Name(f.pressed))
		return false
	}
	if e.keys[f.pressed] == want {
		return false
	}
	e.keys[f.pressed] = want
	return true
}

func (e *Engine) cancelFlashLocked() {
	if e.flash == nil {
		return
	}
	e.flash.timer.Stop()
	e.flash = nil
}

// PendingFlash reports the key currently flashing wrong and when it will be
// settled.
func (e *Engine) PendingFlash() (pressed int, deadline time.Time, ok bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.flash == nil {
		return note.None, time.Time{}, false
	}
	return e.flash.pressed, e.flash.deadline, true
}
