package input

import (
	"context"
	"log/slog"
	"time"

	"github.com/chase3718/lou-piano/internal/note"
)

const (
	defaultQueueSize = 64
	// DefaultTapHold is how long a key from a press-only source shows as down.
	DefaultTapHold = 150 * time.Millisecond
)

// Target is what the router feeds presses into; *engine.Engine satisfies it.
type Target interface {
	Press(index int)
}

// RouterOptions configures a Router.
type RouterOptions struct {
	QueueSize int
	// TapHold is how long a press without a matching release stays in the
	// active set.
	TapHold time.Duration
	// OnActive receives the sorted set of keys that are down after every
	// change. It runs on the router goroutine.
	OnActive func(mask uint16, keys []int)
	Logger   *slog.Logger
}

// Router is the single consumer between every input source and the engine.
// Producers call Submit from any goroutine; Run applies events strictly in
// arrival order.
type Router struct {
	events   chan Event
	target   Target
	active   *ActiveKeys
	tapHold  time.Duration
	onActive func(uint16, []int)
	logger   *slog.Logger
}

func NewRouter(target Target, opts RouterOptions) *Router {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.TapHold <= 0 {
		opts.TapHold = DefaultTapHold
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Router{
		events:   make(chan Event, opts.QueueSize),
		target:   target,
		active:   NewActiveKeys(),
		tapHold:  opts.TapHold,
		onActive: opts.OnActive,
		logger:   opts.Logger,
	}
}

// Submit queues ev without blocking. It reports false if the queue is full
// and the event was dropped.
func (r *Router) Submit(ev Event) bool {
	select {
	case r.events <- ev:
		return true
	default:
		r.logger.Warn("input: queue full, event dropped", "source", ev.Source, "kind", ev.Kind, "index", ev.Index)
		return false
	}
}

// Run consumes events until ctx is done.
func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-r.events:
			r.handle(ev)
		}
	}
}

func (r *Router) handle(ev Event) {
	switch ev.Kind {
	case Press:
		if !note.Valid(ev.Index) {
			r.logger.Debug("input: key out of range dropped", "source", ev.Source, "index", ev.Index)
			return
		}
		r.logger.Debug("input: press", "source", ev.Source, "note", note.Name(ev.Index))
		gen := r.active.Press(ev.Index, ev.Held)
		if !ev.Held {
			r.scheduleExpire(ev.Source, ev.Index, gen)
		}
		r.notifyActive()
		r.target.Press(ev.Index)
	case Release:
		if ev.Index != note.None && !note.Valid(ev.Index) {
			return
		}
		r.active.Release(ev.Index)
		r.notifyActive()
	case expire:
		if r.active.Expire(ev.Index, ev.tap) {
			r.notifyActive()
		}
	}
}

// scheduleExpire queues the lift of a tap through the normal event path so
// the active set is only ever touched by Run.
func (r *Router) scheduleExpire(src Source, i int, gen uint64) {
	time.AfterFunc(r.tapHold, func() {
		select {
		case r.events <- Event{Source: src, Kind: expire, Index: i, tap: gen}:
		default:
		}
	})
}

func (r *Router) notifyActive() {
	if r.onActive != nil {
		r.onActive(r.active.Mask(), r.active.Sorted())
	}
}
