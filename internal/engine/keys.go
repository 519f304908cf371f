package engine

import (
	"fmt"

	"github.com/chase3718/lou-piano/internal/note"
)

// Color is the highlight a single key shows.
type Color uint8

const (
	Idle Color = iota
	Target
	Wrong
)

func (c Color) String() string {
	switch c {
	case Idle:
		return "idle"
	case Target:
		return "target"
	case Wrong:
		return "wrong"
	}
	return fmt.Sprintf("color(%d)", uint8(c))
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// Keys is a full colour snapshot of the keyboard, indexed by key.
type Keys [note.NumKeys]Color

// Painter receives a full snapshot every time any key changes colour.
// Implementations must not call back into the Engine's mutating methods.
type Painter interface {
	Paint(Keys)
}

// PainterFunc adapts a function to Painter.
type PainterFunc func(Keys)

func (f PainterFunc) Paint(k Keys) { f(k) }

// Painters fans a snapshot out to several painters in order.
type Painters []Painter

func (ps Painters) Paint(k Keys) {
	for _, p := range ps {
		if p != nil {
			p.Paint(k)
		}
	}
}
