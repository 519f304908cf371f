package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/chase3718/lou-piano/internal/config"
	"github.com/chase3718/lou-piano/internal/device"
	"github.com/chase3718/lou-piano/internal/engine"
	"github.com/chase3718/lou-piano/internal/input"
	"github.com/chase3718/lou-piano/internal/midiin"
	"github.com/chase3718/lou-piano/internal/note"
	"github.com/chase3718/lou-piano/internal/server"
	"github.com/chase3718/lou-piano/internal/tui"
)

var runFlags struct {
	serial  string
	baud    int
	leds    bool
	sse     string
	http    string
	midi    bool
	noTUI   bool
	melody  string
	flash   time.Duration
	logFile string
	watch   bool
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.serial, "serial", "", "serial port device of the board, e.g. /dev/ttyUSB0")
	f.IntVar(&runFlags.baud, "baud", 0, "serial baud rate")
	f.BoolVar(&runFlags.leds, "leds", false, "send key colours back to the board")
	f.StringVar(&runFlags.sse, "sse", "", "URL of the board's event stream, e.g. http://172.17.38.226/sse")
	f.StringVar(&runFlags.http, "http", "", "address for the HTTP API, e.g. :8080")
	f.BoolVar(&runFlags.midi, "midi", false, "accept a USB MIDI keyboard as input")
	f.BoolVar(&runFlags.noTUI, "no-tui", false, "run headless and log progress instead")
	f.StringVar(&runFlags.melody, "melody", "", "built-in melody title to play")
	f.DurationVar(&runFlags.flash, "flash", 0, "how long a wrong key stays red")
	f.StringVar(&runFlags.logFile, "log-file", "lou-piano.log", "log destination while the on-screen keyboard owns the terminal")
	f.BoolVar(&runFlags.watch, "watch", true, "reload the melody when the config file changes")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine with every configured input source",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyRunFlags(cmd, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}

		var logOut io.Writer = os.Stderr
		if cfg.TUI.Enabled {
			f, err := os.OpenFile(runFlags.logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer f.Close()
			logOut = f
		}
		initLogger(logOut, debug)
		logger.Info("lou-piano starting",
			"config", configPath,
			"serial", cfg.Serial.Device,
			"sse", cfg.SSE.URL,
			"http", cfg.HTTP.Addr,
			"midi", cfg.MIDI.Enabled,
			"tui", cfg.TUI.Enabled,
			"flash", cfg.Feedback.Flash,
		)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a := newApp(cfg)
		defer a.eng.Close()
		return a.run(ctx)
	},
}

// applyRunFlags lets explicitly set flags override the file.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("serial") {
		cfg.Serial.Device = runFlags.serial
	}
	if f.Changed("baud") {
		cfg.Serial.Baud = runFlags.baud
	}
	if f.Changed("leds") {
		cfg.Serial.LEDs = runFlags.leds
	}
	if f.Changed("sse") {
		cfg.SSE.URL = runFlags.sse
	}
	if f.Changed("http") {
		cfg.HTTP.Addr = runFlags.http
	}
	if f.Changed("midi") {
		cfg.MIDI.Enabled = runFlags.midi
	}
	if f.Changed("no-tui") {
		cfg.TUI.Enabled = !runFlags.noTUI
	}
	if f.Changed("melody") {
		cfg.Melody = config.MelodyConfig{Library: runFlags.melody}
	}
	if f.Changed("flash") {
		cfg.Feedback.Flash = runFlags.flash
	}
}

// -------------------- App --------------------

// app holds the engine and the collaborators wired around it.
type app struct {
	cfg    *config.Config
	eng    *engine.Engine
	router *input.Router
	leds   *device.FramePainter
	view   *tui.Notifier
	midi   atomic.Pointer[midiin.Watcher]
}

func newApp(cfg *config.Config) *app {
	a := &app{cfg: cfg}

	var painters engine.Painters
	if cfg.Serial.LEDs {
		a.leds = device.NewFramePainter(func(err error) {
			logger.Warn("serial: frame send failed", "err", err)
		})
		painters = append(painters, a.leds)
	}
	if cfg.TUI.Enabled {
		a.view = tui.NewNotifier()
		painters = append(painters, a.view)
	}

	format := cfg.Format()
	a.eng = engine.New(engine.Options{
		Flash:   cfg.Feedback.Flash,
		Source:  cfg.Source(),
		Format:  &format,
		Painter: painters,
		OnComplete: func() {
			logger.Info("melody complete")
		},
		Logger: logger,
	})
	a.router = input.NewRouter(a.eng, input.RouterOptions{
		OnActive: a.onActive,
		Logger:   logger,
	})
	return a
}

func (a *app) onActive(mask uint16, keys []int) {
	if a.leds != nil {
		a.leds.SetActive(mask)
	}
	if a.view != nil {
		a.view.Active(keys)
	}
}

// reload swaps in the melody from a changed config file and starts over.
func (a *app) reload(cfg *config.Config) {
	a.eng.SetSource(cfg.Source())
	a.eng.Restart()
}

func (a *app) run(parent context.Context) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var wg sync.WaitGroup
	spawn := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error(name+": stopped", "err", err)
			}
		}()
	}
	defer wg.Wait()
	defer cancel()

	spawn("input", a.router.Run)

	if a.cfg.Serial.Device != "" {
		r := &device.Reader{
			Config: device.Config{
				Device:      a.cfg.Serial.Device,
				Baud:        a.cfg.Serial.Baud,
				ReadTimeout: a.cfg.Serial.ReadTimeout,
			},
			OnLine:  a.onSerialLine,
			OnOpen:  a.onSerialOpen,
			OnClose: a.onSerialClose,
			Logger:  logger,
		}
		spawn("serial", r.Run)
	}

	if a.cfg.SSE.URL != "" {
		c := &input.SSEClient{
			URL:    a.cfg.SSE.URL,
			Retry:  a.cfg.SSE.Retry,
			Submit: a.router.Submit,
			Logger: logger,
		}
		spawn("sse", c.Run)
	}

	if a.cfg.MIDI.Enabled {
		spawn("midi", a.runMIDI)
	}

	if a.cfg.HTTP.Addr != "" {
		srv := server.New(a.eng, a.router.Submit, server.Options{
			CORSOrigins: a.cfg.HTTP.CORSOrigins,
			MIDIDevice:  a.midiDevice,
			Logger:      logger,
		})
		spawn("http", func(ctx context.Context) error {
			defer srv.Close()
			return srv.ListenAndServe(ctx, a.cfg.HTTP.Addr)
		})
	}

	if runFlags.watch {
		spawn("config", func(ctx context.Context) error {
			return config.Watch(ctx, configPath, config.WatchOptions{Logger: logger}, a.reload)
		})
	}

	if a.view != nil {
		unsubscribe := a.eng.Subscribe(a.view.Progress)
		defer unsubscribe()
	} else {
		unsubscribe := a.eng.Subscribe(func(line string) {
			logger.Info("progress", "line", line)
		})
		defer unsubscribe()
	}

	a.eng.Restart()

	if a.view == nil {
		<-ctx.Done()
		logger.Info("shutting down")
		return nil
	}

	p := tea.NewProgram(tui.NewModel(a.eng, a.router.Submit, a.view),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("tui: %w", err)
	}
	logger.Info("shutting down")
	return nil
}

// -------------------- Sources --------------------

func (a *app) onSerialLine(line string) {
	i, ok := input.ParseToken(line)
	if !ok {
		logger.Debug("serial: unrecognised line", "line", line)
		return
	}
	a.router.Submit(input.Event{Source: input.SourceSerial, Kind: input.Press, Index: i})
}

func (a *app) onSerialOpen(p *device.Port) {
	if a.leds != nil {
		a.leds.Attach(p)
	}
}

func (a *app) onSerialClose() {
	if a.leds != nil {
		a.leds.Detach()
	}
}

func (a *app) onMIDIKey(i int, down bool) {
	kind := input.Press
	if !down {
		kind = input.Release
	}
	a.router.Submit(input.Event{Source: input.SourceMIDI, Kind: kind, Index: i, Held: true})
}

func (a *app) onMIDIDisconnect() {
	logger.Warn("midi: disconnect, releasing held keys")
	a.router.Submit(input.Event{Source: input.SourceMIDI, Kind: input.Release, Index: note.None})
}

func (a *app) runMIDI(ctx context.Context) error {
	w, err := midiin.NewWatcher(midiin.Options{
		Preferred:    a.cfg.MIDI.Preferred,
		Excluded:     a.cfg.MIDI.Excluded,
		OnKey:        a.onMIDIKey,
		OnDisconnect: a.onMIDIDisconnect,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	defer w.Close()
	a.midi.Store(w)
	defer a.midi.Store(nil)

	logger.Info("midi: waiting for device")
	return w.Run(ctx)
}

// midiDevice reports the connected MIDI keyboard for the HTTP state.
func (a *app) midiDevice() (string, bool) {
	w := a.midi.Load()
	if w == nil {
		return "", false
	}
	return w.Connected()
}
