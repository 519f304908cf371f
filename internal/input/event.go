// Package input turns raw tokens from the hardware, network and on-screen
// sources into key events and hands them to the engine one at a time.
package input

import (
	"strconv"
	"strings"

	"github.com/chase3718/lou-piano/internal/note"
)

// Source names where an event came from; used for logging only.
type Source string

const (
	SourceSerial Source = "serial"
	SourceSSE    Source = "sse"
	SourceMIDI   Source = "midi"
	SourceTUI    Source = "tui"
	SourceHTTP   Source = "http"
)

// Kind distinguishes presses from releases.
type Kind uint8

const (
	Press Kind = iota
	Release
	// expire lifts a tap from the active set; only the router emits it.
	expire
)

func (k Kind) String() string {
	switch k {
	case Release:
		return "release"
	case expire:
		return "expire"
	}
	return "press"
}

// Event is a single normalized key event. A Release with Index note.None
// releases every key.
type Event struct {
	Source Source
	Kind   Kind
	Index  int
	// Held is set by sources that send a matching Release later. Presses
	// from other sources are taps: they replace the previous tap and are
	// lifted after RouterOptions.TapHold.
	Held bool

	tap uint64
}

// ParseToken resolves one line from the hardware stream. Blank and
// unresolvable lines report false.
func ParseToken(line string) (int, bool) {
	i, err := note.Parse(line)
	if err != nil {
		return note.None, false
	}
	return i, true
}

// ParseEvent decodes a network payload of the form "<type>:<value>". Only
// note_on is understood; value -1 is a release of every key.
func ParseEvent(data string) (Event, bool) {
	typ, val, ok := strings.Cut(strings.TrimSpace(data), ":")
	if !ok || strings.TrimSpace(typ) != "note_on" {
		return Event{}, false
	}
	v, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return Event{}, false
	}
	if v == -1 {
		return Event{Source: SourceSSE, Kind: Release, Index: note.None}, true
	}
	return Event{Source: SourceSSE, Kind: Press, Index: v, Held: true}, true
}
