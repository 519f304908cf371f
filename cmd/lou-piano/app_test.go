package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chase3718/lou-piano/internal/config"
	"github.com/chase3718/lou-piano/internal/device"
	"github.com/chase3718/lou-piano/internal/engine"
)

type frameLog struct {
	mu     sync.Mutex
	frames []device.Frame
}

func (l *frameLog) SendFrame(f device.Frame) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frames = append(l.frames, f)
	return nil
}

func (l *frameLog) last() device.Frame {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.frames) == 0 {
		return device.Frame{}
	}
	return l.frames[len(l.frames)-1]
}

func newTestApp(t *testing.T, indices ...int) (*app, *frameLog) {
	t.Helper()
	cfg := config.Default()
	cfg.TUI.Enabled = false
	cfg.Serial.LEDs = true
	cfg.Melody.Indices = indices

	a := newApp(cfg)
	t.Cleanup(a.eng.Close)
	frames := &frameLog{}
	a.leds.Attach(frames)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.router.Run(ctx)
	a.eng.Restart()
	return a, frames
}

func TestSerialLinesDriveEngineAndLEDs(t *testing.T) {
	a, frames := newTestApp(t, 0, 2)
	assert.Equal(t, byte(engine.Target), frames.last().Colors[0])

	a.onSerialLine("garbage")
	a.onSerialLine("C4")
	require.Eventually(t, func() bool { return a.eng.Expected() == 2 }, time.Second, 5*time.Millisecond)

	f := frames.last()
	assert.Equal(t, byte(engine.Idle), f.Colors[0])
	assert.Equal(t, byte(engine.Target), f.Colors[2])
}

func TestMIDIHeldKeysReachLEDOverlay(t *testing.T) {
	a, frames := newTestApp(t, 4, 5)

	a.onMIDIKey(4, true)
	require.Eventually(t, func() bool { return a.eng.Expected() == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint16(1<<4), frames.last().ActiveMask)

	a.onMIDIDisconnect()
	require.Eventually(t, func() bool { return frames.last().ActiveMask == 0 }, time.Second, 5*time.Millisecond)
}

func TestReloadRestartsWithNewMelody(t *testing.T) {
	a, _ := newTestApp(t, 0)

	next := config.Default()
	next.Melody.Library = "Happy Birthday"
	a.reload(next)

	s := a.eng.Snapshot()
	assert.Equal(t, engine.Running, s.State)
	assert.Equal(t, []int{0, 0, 2, 0, 5, 4}, s.Sequence)
}

func TestApplyRunFlags(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, runCmd.Flags().Set("serial", "/dev/ttyACM0"))
	require.NoError(t, runCmd.Flags().Set("no-tui", "true"))
	require.NoError(t, runCmd.Flags().Set("melody", "Ode to Joy"))
	applyRunFlags(runCmd, cfg)

	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Device)
	assert.False(t, cfg.TUI.Enabled)
	assert.Equal(t, "Ode to Joy", cfg.Melody.Library)
	assert.Empty(t, cfg.SSE.URL)
}

func TestListCommands(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"melodies"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "Ode to Joy")
	assert.Contains(t, out.String(), "E4 E4 F4 G4")

	out.Reset()
	rootCmd.SetArgs([]string{"notes"})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), " 1  C#4  accidental")
	assert.Contains(t, out.String(), `"?"`)
}

func TestInitWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lou-piano.yaml")
	require.NoError(t, writeDefaultConfig(path, false))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	require.NoError(t, os.WriteFile(path, []byte("melody:\n  library: Ode to Joy\n"), 0644))
	assert.Error(t, writeDefaultConfig(path, false))
	cfg, err = config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Ode to Joy", cfg.Melody.Library)

	require.NoError(t, writeDefaultConfig(path, true))
	cfg, err = config.Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.Melody.Library)
}

func TestMIDIDeviceWithoutWatcher(t *testing.T) {
	a, _ := newTestApp(t, 0)
	name, ok := a.midiDevice()
	assert.False(t, ok)
	assert.Empty(t, name)
}
