// Package engine is the melody matching state machine: it tracks progress
// through a melody, judges each key press and drives the wrong-note flash.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chase3718/lou-piano/internal/melody"
	"github.com/chase3718/lou-piano/internal/note"
)

// DefaultFlash is how long a wrong key stays red.
const DefaultFlash = 2 * time.Second

// State is the lifecycle position of a playthrough.
type State int

const (
	NotStarted State = iota
	Running
	Completed
	// Stopped means the surface was lost mid-melody; step is kept but no
	// press has any effect until the next Start or Restart.
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Options configures an Engine. Zero values pick sensible defaults.
type Options struct {
	// Flash is the wrong-note feedback window.
	Flash time.Duration
	// Source is rebuilt into a melody on every Restart.
	Source melody.Source
	// Format controls the progress line. Nil means DefaultFormat.
	Format *FormatOptions

	Painter    Painter
	OnComplete func()
	Logger     *slog.Logger

	// AfterFunc schedules the flash reconciliation; defaults to time.AfterFunc.
	AfterFunc func(time.Duration, func()) Timer
}

// Snapshot is a consistent, read-only copy of the engine's state.
type Snapshot struct {
	State        State    `json:"state"`
	Session      string   `json:"session,omitempty"`
	Sequence     []int    `json:"sequence"`
	Notes        []string `json:"notes"`
	Step         int      `json:"step"`
	Expected     int      `json:"expected"`
	ExpectedName string   `json:"expected_name,omitempty"`
	Keys         Keys     `json:"keys"`
	Progress     string   `json:"progress"`
}

// Engine owns the match state. All mutating calls are serialized; observers
// and painters run on the caller's goroutine after the state change is
// committed, and must not call Start, Press, Stop or Restart themselves.
type Engine struct {
	op sync.Mutex // serializes operations together with their notifications
	mu sync.RWMutex

	flashDur   time.Duration
	format     FormatOptions
	painter    Painter
	onComplete func()
	logger     *slog.Logger
	afterFunc  func(time.Duration, func()) Timer

	source   melody.Source
	seq      melody.Melody
	step     int
	expected int
	state    State
	keys     Keys
	session  uuid.UUID
	starts   int

	flash    *wrongFlash
	flashGen uint64

	pub *Publisher
}

// New returns an engine in the NotStarted state.
func New(opts Options) *Engine {
	e := &Engine{
		flashDur:   opts.Flash,
		format:     DefaultFormat(),
		painter:    opts.Painter,
		onComplete: opts.OnComplete,
		logger:     opts.Logger,
		afterFunc:  opts.AfterFunc,
		source:     opts.Source,
		expected:   note.None,
		pub:        NewPublisher(),
	}
	if e.flashDur <= 0 {
		e.flashDur = DefaultFlash
	}
	if opts.Format != nil {
		e.format = *opts.Format
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.afterFunc == nil {
		e.afterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	return e
}

type effects struct {
	paint    bool
	progress bool
	complete bool
}

// apply runs fn under the state lock, then delivers its side effects in the
// order they were produced.
func (e *Engine) apply(fn func() effects) {
	e.op.Lock()
	defer e.op.Unlock()

	e.mu.Lock()
	fx := fn()
	keys := e.keys
	var text string
	if fx.progress {
		text = e.progressLocked()
	}
	e.mu.Unlock()

	if fx.paint && e.painter != nil {
		e.painter.Paint(keys)
	}
	if fx.progress {
		e.pub.Publish(text)
	}
	if fx.complete && e.onComplete != nil {
		e.onComplete()
	}
}

// Start begins a playthrough of m from its first note. An empty melody is
// replaced by the demo sequence.
func (e *Engine) Start(m melody.Melody) {
	if len(m) == 0 {
		e.logger.Warn("engine: start with empty melody, using demo")
		m = melody.Demo
	}
	e.apply(func() effects {
		e.cancelFlashLocked()
		e.seq = m.Clone()
		e.step = 0
		e.expected = e.seq[0]
		e.state = Running
		e.session = uuid.New()
		e.starts++
		e.repaintLocked()
		e.logger.Debug("engine: melody started",
			"session", e.session.String(),
			"notes", e.seq.String(),
			"expected", note.Name(e.expected),
		)
		return effects{paint: true, progress: true}
	})
}

// StartNamed starts a melody from the built-in library. The melody also
// becomes the source, so a later Restart replays it.
func (e *Engine) StartNamed(title string) error {
	m, ok := melody.Lookup(title)
	if !ok {
		return fmt.Errorf("melody %q: not in library", title)
	}
	e.logger.Info("engine: library melody selected", "title", title)
	e.SetSource(melody.Source{Indices: m.Clone()})
	e.Start(m)
	return nil
}

// SetSource replaces the melody description used by Restart.
func (e *Engine) SetSource(src melody.Source) {
	e.mu.Lock()
	e.source = src
	e.mu.Unlock()
}

// Restart rebuilds the melody from the current source and starts it. The
// source is the configured one until SetSource or StartNamed replaces it.
func (e *Engine) Restart() {
	e.mu.RLock()
	src := e.source
	first := e.starts == 0
	e.mu.RUnlock()

	m, _ := melody.Build(src.Indices, src.Names, e.logger)
	if first {
		e.logger.Info("engine: melody start", "notes", m.String())
	} else {
		e.logger.Info("engine: melody restart", "notes", m.String())
	}
	e.Start(m)
}

// Press judges a single key press. Out-of-range keys and presses outside a
// running playthrough are ignored.
func (e *Engine) Press(i int) {
	if !note.Valid(i) {
		e.logger.Debug("engine: key out of range ignored", "index", i)
		return
	}
	e.apply(func() effects {
		if e.state == Completed {
			e.logger.Debug("engine: song has no more notes", "pressed", note.Name(i))
		}
		if e.state != Running {
			return effects{}
		}
		if i != e.expected {
			e.logger.Debug("engine: wrong note",
				"pressed", note.Name(i),
				"expected", note.Name(e.expected),
				"step", e.step,
			)
			e.flashLocked(i, e.expected)
			return effects{paint: true}
		}

		e.keys[i] = Idle
		e.step++
		if e.step >= len(e.seq) {
			e.expected = note.None
			e.state = Completed
			e.repaintLocked()
			e.logger.Info("engine: melody completed", "session", e.session.String(), "notes", len(e.seq))
			return effects{paint: true, progress: true, complete: true}
		}
		e.expected = e.seq[e.step]
		e.repaintLocked()
		e.logger.Debug("engine: advanced", "step", e.step, "expected", note.Name(e.expected))
		return effects{paint: true, progress: true}
	})
}

// Stop drops the expected note and freezes progress until the next Start or
// Restart. It cancels any pending flash. Before the first Start it is a no-op.
func (e *Engine) Stop() {
	e.apply(func() effects {
		if e.state == NotStarted {
			return effects{}
		}
		e.cancelFlashLocked()
		e.expected = note.None
		e.state = Stopped
		e.repaintLocked()
		e.logger.Info("engine: stopped", "step", e.step)
		return effects{paint: true, progress: true}
	})
}

// Close cancels any pending flash so no timer outlives the engine.
func (e *Engine) Close() {
	e.op.Lock()
	defer e.op.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelFlashLocked()
}

// Subscribe registers a progress observer. It is not called with the current
// value; use Progress for that.
func (e *Engine) Subscribe(fn func(string)) (cancel func()) {
	return e.pub.Subscribe(fn)
}

// Progress returns the current progress line.
func (e *Engine) Progress() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.progressLocked()
}

// ProgressWith renders the current state with custom format options.
func (e *Engine) ProgressWith(o FormatOptions) string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Format(e.seq, e.step, e.expected, o)
}

// Keys returns the current key colours.
func (e *Engine) Keys() Keys {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.keys
}

// Expected returns the key that advances the melody, or note.None.
func (e *Engine) Expected() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.expected
}

// Snapshot returns a copy of the full state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := Snapshot{
		State:    e.state,
		Sequence: e.seq.Clone(),
		Notes:    e.seq.Names(),
		Step:     e.step,
		Expected: e.expected,
		Keys:     e.keys,
		Progress: e.progressLocked(),
	}
	if e.session != uuid.Nil {
		s.Session = e.session.String()
	}
	if e.expected != note.None {
		s.ExpectedName = note.Name(e.expected)
	}
	return s
}

func (e *Engine) progressLocked() string {
	return Format(e.seq, e.step, e.expected, e.format)
}

// repaintLocked paints the expected key as the target and everything else idle.
func (e *Engine) repaintLocked() {
	for i := range e.keys {
		if i == e.expected {
			e.keys[i] = Target
		} else {
			e.keys[i] = Idle
		}
	}
}
