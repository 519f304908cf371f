package melody

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildEmptyFallsBackToDemo(t *testing.T) {
	m, fallback := Build(nil, nil, nil)
	assert.True(t, fallback)
	assert.Equal(t, Melody{0, 2, 4, 5, 7, 9, 11}, m)

	// the returned melody must not alias Demo
	m[0] = 11
	assert.Equal(t, 0, Demo[0])
}

func TestBuildIndicesWinOverNames(t *testing.T) {
	m, fallback := Build([]int{4, 4, 2}, []string{"C4"}, nil)
	assert.False(t, fallback)
	assert.Equal(t, Melody{4, 4, 2}, m)
}

func TestBuildDropsInvalidIndices(t *testing.T) {
	m, fallback := Build([]int{-1, 3, 12, 11, 99}, nil, nil)
	assert.False(t, fallback)
	assert.Equal(t, Melody{3, 11}, m)
}

func TestBuildAllInvalidIndicesFallsBack(t *testing.T) {
	// indices are non-empty, so names are never consulted
	m, fallback := Build([]int{-3, 40}, []string{"E4"}, nil)
	assert.True(t, fallback)
	assert.Equal(t, Demo, m)
}

func TestBuildNames(t *testing.T) {
	m, fallback := Build(nil, []string{" e4", "zz", "d#4", "C 4"}, nil)
	assert.False(t, fallback)
	assert.Equal(t, Melody{4, 3, 0}, m)
	assert.Equal(t, "E4 D#4 C4", m.String())
}

func TestSourceBuild(t *testing.T) {
	assert.Equal(t, Melody{7}, Source{Names: []string{"G4"}}.Build())
	assert.Equal(t, Demo, Source{}.Build())
}

func TestLibrary(t *testing.T) {
	titles := Library()
	assert.Len(t, titles, 5)
	assert.Equal(t, "Happy Birthday", titles[0])

	m, ok := Lookup("ode  TO joy")
	assert.True(t, ok)
	assert.Equal(t, Melody{4, 4, 5, 7, 7, 5, 4, 2, 0}, m)

	_, ok = Lookup("Never Gonna Give You Up")
	assert.False(t, ok)
}
