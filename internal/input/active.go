package input

import (
	"sort"

	"github.com/chase3718/lou-piano/internal/note"
)

type keyState struct {
	held bool
	// tap is the generation of a tap press; it expires on its own.
	tap uint64
}

// ActiveKeys tracks which keys are down right now. Held keys come from
// sources that report their release; taps come from sources that only
// report presses and are lifted by the router after a short hold. It is
// display state only and never affects matching.
type ActiveKeys struct {
	down map[int]keyState
	taps uint64
}

func NewActiveKeys() *ActiveKeys {
	return &ActiveKeys{down: make(map[int]keyState)}
}

// Press marks i as down. A held press stays until its Release. A tap
// replaces any earlier tap and returns the generation to pass to Expire.
func (a *ActiveKeys) Press(i int, held bool) uint64 {
	if held {
		a.down[i] = keyState{held: true}
		return 0
	}
	for k, s := range a.down {
		if !s.held {
			delete(a.down, k)
		}
	}
	a.taps++
	if s, ok := a.down[i]; ok && s.held {
		return a.taps
	}
	a.down[i] = keyState{tap: a.taps}
	return a.taps
}

// Expire lifts a tap unless it has since been replaced or the key is held.
// It reports whether anything changed.
func (a *ActiveKeys) Expire(i int, gen uint64) bool {
	s, ok := a.down[i]
	if !ok || s.held || s.tap != gen {
		return false
	}
	delete(a.down, i)
	return true
}

// Release lifts one key, or every key when i is note.None.
func (a *ActiveKeys) Release(i int) {
	if i == note.None {
		a.ClearAll()
		return
	}
	delete(a.down, i)
}

// ClearAll releases every key (used on source disconnect).
func (a *ActiveKeys) ClearAll() {
	a.down = make(map[int]keyState)
}

// Sorted returns the keys that are down, lowest first.
func (a *ActiveKeys) Sorted() []int {
	out := make([]int, 0, len(a.down))
	for i := range a.down {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Mask packs the active set into a bitmask, bit N = key N.
func (a *ActiveKeys) Mask() uint16 {
	var m uint16
	for i := range a.down {
		if note.Valid(i) {
			m |= 1 << i
		}
	}
	return m
}
