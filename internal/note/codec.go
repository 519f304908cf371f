// Package note maps between canonical key indices (0-11, C4..B4) and note names.
package note

import (
	"errors"
	"strings"
)

// NumKeys is the size of the chromatic input surface.
const NumKeys = 12

// None marks "no expected note" (not started, stopped or completed).
const None = -1

// Placeholder is returned by Name for indices outside the keyboard.
const Placeholder = "?"

// ErrUnknownNote is returned by Parse when a name does not resolve to a key.
var ErrUnknownNote = errors.New("unknown note")

var names = [NumKeys]string{"C4", "C#4", "D4", "D#4", "E4", "F4", "F#4", "G4", "G#4", "A4", "A#4", "B4"}

// index is built once from names plus the flat spellings and the bare
// pitch-class forms an ESP firmware or a hand-written melody file may send.
var index = func() map[string]int {
	m := make(map[string]int, NumKeys*3)
	for i, n := range names {
		m[n] = i
		m[strings.TrimSuffix(n, "4")] = i
	}
	flats := map[string]int{"DB4": 1, "EB4": 3, "GB4": 6, "AB4": 8, "BB4": 10}
	for n, i := range flats {
		m[n] = i
		m[strings.TrimSuffix(n, "4")] = i
	}
	return m
}()

// Normalize trims surrounding whitespace, upper-cases and drops interior
// spaces. It never fails; garbage simply won't resolve in Index.
func Normalize(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	return strings.ReplaceAll(s, " ", "")
}

// Index looks up an already-normalized name.
func Index(name string) (int, bool) {
	i, ok := index[name]
	return i, ok
}

// Parse normalizes raw and resolves it to a key index.
func Parse(raw string) (int, error) {
	n := Normalize(raw)
	i, ok := Index(n)
	if !ok {
		return None, ErrUnknownNote
	}
	return i, nil
}

// Name returns the canonical name for a key, or Placeholder when out of range.
func Name(i int) string {
	if !Valid(i) {
		return Placeholder
	}
	return names[i]
}

// Names returns the canonical names of all twelve keys in order.
func Names() []string {
	out := make([]string, NumKeys)
	copy(out, names[:])
	return out
}

// Valid reports whether i addresses a key on the surface.
func Valid(i int) bool {
	return i >= 0 && i < NumKeys
}

// FromMIDI folds a MIDI pitch onto the keyboard by pitch class, so C of any
// octave lands on key 0. Negative pitches do not map.
func FromMIDI(pitch int) (int, bool) {
	if pitch < 0 || pitch > 127 {
		return None, false
	}
	return pitch % NumKeys, true
}

// IsAccidental reports whether the key is a black key.
func IsAccidental(i int) bool {
	switch i {
	case 1, 3, 6, 8, 10:
		return true
	}
	return false
}
