package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chase3718/lou-piano/internal/note"
)

func TestFormatMarksCurrent(t *testing.T) {
	got := Format([]int{0, 2, 4}, 1, 2, FormatOptions{MarkCurrent: true, Separator: " "})
	assert.Equal(t, "C4 [D4] E4", got)
}

func TestFormatVariants(t *testing.T) {
	seq := []int{0, 2, 4}
	cases := []struct {
		name     string
		step     int
		expected int
		opts     FormatOptions
		want     string
	}{
		{"default", 0, 0, DefaultFormat(), "Melody: [C4] D4 E4"},
		{"no mark", 0, 0, FormatOptions{IncludeLabel: true, Separator: " "}, "Melody: C4 D4 E4"},
		{"completed", 3, note.None, DefaultFormat(), "Melody: C4 D4 E4"},
		{"stopped mid way", 1, note.None, DefaultFormat(), "Melody: C4 D4 E4"},
		{"separator", 2, 4, FormatOptions{MarkCurrent: true, Separator: " - "}, "C4 - D4 - [E4]"},
		{"comma", 0, 0, FormatOptions{MarkCurrent: true, Separator: ","}, "[C4],D4,E4"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Format(seq, tc.step, tc.expected, tc.opts))
		})
	}

	assert.Equal(t, "?", Format([]int{13}, 1, note.None, FormatOptions{}))
}

func TestFormatEmpty(t *testing.T) {
	assert.Equal(t, "—", Format(nil, 0, note.None, FormatOptions{MarkCurrent: true}))
	assert.Equal(t, "Melody: —", Format(nil, 0, note.None, DefaultFormat()))
}

func TestPublisherFanOut(t *testing.T) {
	p := NewPublisher()
	var a, b []string
	cancelA := p.Subscribe(func(s string) { a = append(a, s) })
	p.Subscribe(func(s string) { b = append(b, s) })
	assert.Equal(t, 2, p.Len())

	p.Publish("one")
	cancelA()
	cancelA()
	p.Publish("two")

	assert.Equal(t, []string{"one"}, a)
	assert.Equal(t, []string{"one", "two"}, b)
	assert.Equal(t, 1, p.Len())
}

func TestPublisherRemovalDuringPublish(t *testing.T) {
	p := NewPublisher()
	var got []string
	var cancelLater func()

	p.Subscribe(func(s string) {
		got = append(got, "first:"+s)
		cancelLater()
	})
	cancelLater = p.Subscribe(func(s string) { got = append(got, "second:"+s) })
	p.Subscribe(func(s string) { got = append(got, "third:"+s) })

	p.Publish("x")
	p.Publish("y")

	assert.Equal(t, []string{"first:x", "third:x", "first:y", "third:y"}, got)
}

func TestPublisherConcurrentSubscribe(t *testing.T) {
	p := NewPublisher()
	var mu sync.Mutex
	stable := 0
	p.Subscribe(func(string) {
		mu.Lock()
		stable++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			cancel := p.Subscribe(func(string) {})
			cancel()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			p.Publish("tick")
		}
	}()
	wg.Wait()

	assert.Equal(t, 200, stable)
}

func TestEngineProgressWith(t *testing.T) {
	e := New(Options{})
	defer e.Close()
	e.Start([]int{0, 2, 4})
	e.Press(0)
	assert.Equal(t, "C4 [D4] E4", e.ProgressWith(FormatOptions{MarkCurrent: true, Separator: " "}))
	assert.Equal(t, "Melody: C4 [D4] E4", e.Progress())
}

func TestEngineCustomFormat(t *testing.T) {
	e := New(Options{Format: &FormatOptions{Separator: "|"}})
	defer e.Close()
	e.Start([]int{0, 2})
	assert.Equal(t, "C4|D4", e.Progress())
}
