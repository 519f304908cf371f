// Package melody resolves the note sequence a player has to match.
package melody

import (
	"log/slog"
	"strings"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/chase3718/lou-piano/internal/note"
)

// Melody is an ordered, non-empty sequence of key indices. It is never
// mutated once a playthrough has started.
type Melody []int

// Demo is substituted whenever the configured melody has no valid notes.
var Demo = Melody{0, 2, 4, 5, 7, 9, 11}

// Source is the configured description of a melody. Indices win over Names
// when both are set.
type Source struct {
	Indices []int
	Names   []string
}

// Build resolves s with the package logger defaults.
func (s Source) Build() Melody {
	m, _ := Build(s.Indices, s.Names, nil)
	return m
}

// Build resolves the active melody. Out-of-range indices and unresolvable
// names are dropped in place; if nothing survives the demo sequence is used
// and fallback is true.
func Build(indices []int, names []string, logger *slog.Logger) (m Melody, fallback bool) {
	if logger == nil {
		logger = slog.Default()
	}

	switch {
	case len(indices) > 0:
		for _, v := range indices {
			if note.Valid(v) {
				m = append(m, v)
			} else {
				logger.Debug("melody: index dropped", "index", v)
			}
		}
	case len(names) > 0:
		for _, raw := range names {
			i, err := note.Parse(raw)
			if err != nil {
				logger.Debug("melody: name dropped", "name", raw)
				continue
			}
			m = append(m, i)
		}
	}

	if len(m) == 0 {
		logger.Warn("melody: empty song, using demo", "notes", Demo.String())
		return Demo.Clone(), true
	}
	return m, false
}

// Clone returns an independent copy.
func (m Melody) Clone() Melody {
	out := make(Melody, len(m))
	copy(out, m)
	return out
}

// Names renders each entry with its canonical note name.
func (m Melody) Names() []string {
	out := make([]string, len(m))
	for i, v := range m {
		out[i] = note.Name(v)
	}
	return out
}

func (m Melody) String() string {
	return strings.Join(m.Names(), " ")
}

// -------------------- Library --------------------

var library = map[string]Melody{
	"Twinkle Twinkle":        {0, 0, 7, 7, 9, 9, 7},
	"Mary Had a Little Lamb": {4, 2, 0, 2, 4, 4, 4},
	"Ode to Joy":             {4, 4, 5, 7, 7, 5, 4, 2, 0},
	"Happy Birthday":         {0, 0, 2, 0, 5, 4},
	"Jingle Bells":           {4, 4, 4, 4, 4, 4, 4, 0, 2, 4, 5, 4},
}

// Library returns the built-in melody titles, sorted.
func Library() []string {
	titles := maps.Keys(library)
	slices.Sort(titles)
	return titles
}

// Lookup finds a built-in melody by title, ignoring case and spacing.
func Lookup(title string) (Melody, bool) {
	want := key(title)
	for t, m := range library {
		if key(t) == want {
			return m.Clone(), true
		}
	}
	return nil, false
}

func key(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}
