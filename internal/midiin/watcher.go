// Package midiin lets a USB MIDI keyboard stand in for the 12-key surface.
package midiin

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/chase3718/lou-piano/internal/note"
)

// DefaultPreferred devices are picked first when several inputs exist.
var DefaultPreferred = []string{"Launchkey", "Novation"}

// DefaultExcluded are virtual/system ports that are never auto-connected.
var DefaultExcluded = []string{"Midi Through", "Through Port", "Dummy"}

// DefaultRescan is how often the device list is checked.
const DefaultRescan = time.Second

// ports is the MIDI backend: list inputs by name and listen to one.
type ports interface {
	Names() ([]string, error)
	// Open starts listening; onErr is called from the listener when the
	// device fails. The returned stop closes the port.
	Open(name string, onMsg func(midi.Message), onErr func(error)) (stop func(), err error)
	Close()
}

// Options configures a Watcher.
type Options struct {
	Preferred []string
	Excluded  []string
	Rescan    time.Duration
	// OnKey is called with a folded key index for every note on / note off.
	OnKey func(index int, down bool)
	// OnDisconnect is called (from a goroutine) when the active device is lost.
	OnDisconnect func()
	Logger       *slog.Logger
}

// Watcher keeps a connection to the preferred keyboard, surviving hot-plug
// and unplug.
type Watcher struct {
	mu     sync.Mutex
	ports  ports
	device string
	stop   func()

	opts   Options
	logger *slog.Logger
}

// NewWatcher opens the rtmidi backend. Call Close when done.
func NewWatcher(opts Options) (*Watcher, error) {
	p, err := openRtmidi()
	if err != nil {
		return nil, err
	}
	return newWatcher(p, opts), nil
}

func newWatcher(p ports, opts Options) *Watcher {
	if opts.Preferred == nil {
		opts.Preferred = DefaultPreferred
	}
	if opts.Excluded == nil {
		opts.Excluded = DefaultExcluded
	}
	if opts.Rescan <= 0 {
		opts.Rescan = DefaultRescan
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{ports: p, opts: opts, logger: logger}
}

// Close drops the device and shuts the backend down.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.release()
	w.ports.Close()
}

// Connected reports the name of the device in use, if any.
func (w *Watcher) Connected() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.device, w.device != ""
}

// Run scans immediately and then every Rescan until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.Scan()
	ticker := time.NewTicker(w.opts.Rescan)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.Scan()
		}
	}
}

// Scan connects to the best available keyboard, or notices that the current
// one is gone.
func (w *Watcher) Scan() {
	w.mu.Lock()
	defer w.mu.Unlock()

	names, err := w.ports.Names()
	if err != nil {
		w.logger.Error("midi: list inputs failed", "err", err)
		return
	}
	names = filterExcluded(names, w.opts.Excluded)
	w.logger.Debug("midi: inputs found", "count", len(names), "devices", strings.Join(names, ", "))

	if w.device != "" {
		for _, n := range names {
			if n == w.device {
				return
			}
		}
		w.logger.Warn("midi: device disappeared", "device", w.device)
		w.lostLocked()
		return
	}

	name, ok := pickPreferred(names, w.opts.Preferred)
	if !ok {
		return
	}
	if err := w.connectLocked(name); err != nil {
		w.logger.Error("midi: connect failed", "device", name, "err", err)
	}
}

func (w *Watcher) connectLocked(name string) error {
	stop, err := w.ports.Open(name, w.onMessage, func(err error) {
		// the listener goroutine must not wait on the watcher lock
		go w.failed(name, err)
	})
	if err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}
	w.device = name
	w.stop = stop
	w.logger.Info("midi: connected", "device", name)
	return nil
}

func (w *Watcher) failed(name string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.device != name {
		return
	}
	w.logger.Warn("midi: listener error", "device", name, "err", err)
	w.lostLocked()
}

// lostLocked drops the device and tells the owner to release held keys.
func (w *Watcher) lostLocked() {
	w.release()
	if w.opts.OnDisconnect != nil {
		go w.opts.OnDisconnect()
	}
}

func (w *Watcher) release() {
	if w.stop != nil {
		w.stop()
		w.stop = nil
	}
	w.device = ""
}

func (w *Watcher) onMessage(msg midi.Message) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		w.dispatch(int(key), true)
	case msg.GetNoteEnd(&ch, &key):
		w.dispatch(int(key), false)
	default:
		w.logger.Debug("midi: unhandled message", "msg", msg.String())
	}
}

func (w *Watcher) dispatch(pitch int, down bool) {
	i, ok := note.FromMIDI(pitch)
	if !ok || w.opts.OnKey == nil {
		return
	}
	w.logger.Debug("midi: key", "pitch", pitch, "note", note.Name(i), "down", down)
	w.opts.OnKey(i, down)
}

// -------------------- selection --------------------

func filterExcluded(names, excluded []string) []string {
	out := names[:0:0]
	for _, name := range names {
		skip := false
		for _, pat := range excluded {
			if containsCI(name, pat) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, name)
		}
	}
	return out
}

// pickPreferred returns the first input matching a preferred pattern, or the
// only input when there is exactly one.
func pickPreferred(inputs, preferred []string) (string, bool) {
	for _, pat := range preferred {
		for _, name := range inputs {
			if containsCI(name, pat) {
				return name, true
			}
		}
	}
	if len(inputs) == 1 {
		return inputs[0], true
	}
	return "", false
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
