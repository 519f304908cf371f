package engine

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chase3718/lou-piano/internal/note"
)

const (
	progressLabel = "Melody: "
	emptyProgress = "—"
)

// FormatOptions controls how the progress line is rendered.
type FormatOptions struct {
	IncludeLabel bool
	MarkCurrent  bool
	Separator    string
}

// DefaultFormat is a labelled, space separated line with the current note
// bracketed.
func DefaultFormat() FormatOptions {
	return FormatOptions{IncludeLabel: true, MarkCurrent: true, Separator: " "}
}

// Format renders a sequence as note names. With MarkCurrent, the entry at
// step is bracketed as long as something is still expected.
func Format(seq []int, step, expected int, o FormatOptions) string {
	body := emptyProgress
	if len(seq) > 0 {
		parts := make([]string, len(seq))
		for i, v := range seq {
			name := note.Name(v)
			if o.MarkCurrent && expected != note.None && i == step {
				name = "[" + name + "]"
			}
			parts[i] = name
		}
		body = strings.Join(parts, o.Separator)
	}
	if o.IncludeLabel {
		return progressLabel + body
	}
	return body
}

type subscriber struct {
	fn     func(string)
	active atomic.Bool
}

// Publisher fans progress strings out to registered observers. Delivery is
// synchronous on the publishing goroutine.
//
// The subscriber list is copy-on-write: Publish walks the slice it loaded,
// so a concurrent Subscribe or cancel never shifts entries under it. A
// cancelled subscriber that has not been reached yet is skipped.
type Publisher struct {
	mu   sync.Mutex
	subs atomic.Pointer[[]*subscriber]
}

// NewPublisher returns a publisher with no observers.
func NewPublisher() *Publisher {
	p := &Publisher{}
	p.subs.Store(&[]*subscriber{})
	return p
}

// Subscribe registers fn and returns a function that unregisters it.
// The returned cancel is idempotent.
func (p *Publisher) Subscribe(fn func(string)) (cancel func()) {
	s := &subscriber{fn: fn}
	s.active.Store(true)

	p.mu.Lock()
	cur := *p.subs.Load()
	next := make([]*subscriber, len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, s)
	p.subs.Store(&next)
	p.mu.Unlock()

	return func() { p.remove(s) }
}

func (p *Publisher) remove(s *subscriber) {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	cur := *p.subs.Load()
	next := make([]*subscriber, 0, len(cur))
	for _, c := range cur {
		if c != s {
			next = append(next, c)
		}
	}
	p.subs.Store(&next)
}

// Len reports the number of registered observers.
func (p *Publisher) Len() int {
	return len(*p.subs.Load())
}

// Publish delivers text to every observer registered at the time of the call.
func (p *Publisher) Publish(text string) {
	for _, s := range *p.subs.Load() {
		if s.active.Load() {
			s.fn(text)
		}
	}
}
