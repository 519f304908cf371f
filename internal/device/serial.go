// Package device talks to the microcontroller behind the physical keys: it
// reads note tokens off the serial line and writes LED frames back.
package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultBaud        = 115200
	DefaultReadTimeout = 25 * time.Millisecond
	reopenInterval     = time.Second
	maxLineLen         = 64
)

// Config describes the serial link.
type Config struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

// Port wraps a go.bug.st/serial port with line reading and a frame-send helper.
type Port struct {
	name   string
	port   io.ReadWriteCloser
	wmu    sync.Mutex
	logger *slog.Logger
}

// Open opens the serial device. DTR and RTS are held low so the board is
// not reset on connect.
func Open(cfg Config, logger *slog.Logger) (*Port, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Baud <= 0 {
		cfg.Baud = DefaultBaud
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	mode := &serial.Mode{
		BaudRate:          cfg.Baud,
		InitialStatusBits: &serial.ModemOutputBits{DTR: false, RTS: false},
	}
	p, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", cfg.Device, err)
	}
	if err := p.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serial: read timeout on %s: %w", cfg.Device, err)
	}
	logger.Info("serial: port opened", "device", cfg.Device, "baud", cfg.Baud, "read_timeout", cfg.ReadTimeout)
	return &Port{name: cfg.Device, port: p, logger: logger}, nil
}

// ReadLines calls fn for every newline-terminated line until ctx is done or
// the port fails. Read timeouts are expected and ignored.
func (p *Port) ReadLines(ctx context.Context, fn func(line string)) error {
	return readLines(ctx, p.port, fn)
}

// readLines treats a zero-byte read without error as the read timeout
// expiring, which is how go.bug.st/serial reports it.
func readLines(ctx context.Context, r io.Reader, fn func(string)) error {
	buf := make([]byte, 256)
	line := make([]byte, 0, maxLineLen)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			if b == '\n' {
				fn(string(line))
				line = line[:0]
				continue
			}
			if len(line) < maxLineLen {
				line = append(line, b)
			}
		}
		if err != nil {
			return err
		}
	}
}

// SendFrame encodes and writes a Frame to the serial port.
func (p *Port) SendFrame(f Frame) error {
	data := f.Encode()
	p.wmu.Lock()
	defer p.wmu.Unlock()
	n, err := p.port.Write(data)
	if err != nil {
		return fmt.Errorf("serial: write frame: %w", err)
	}
	p.logger.Debug("serial: frame sent", "bytes", n, "seq", f.Seq, "active_mask", f.ActiveMask)
	return nil
}

// Close closes the underlying serial port.
func (p *Port) Close() error {
	p.logger.Info("serial: closing port", "device", p.name)
	return p.port.Close()
}

// -------------------- Reader --------------------

// Reader keeps a serial link open and turns every line into a callback.
// The board can be unplugged and replugged; the reader reopens it.
type Reader struct {
	Config Config
	OnLine func(line string)
	// OnOpen runs after every successful open, e.g. to attach a frame painter.
	OnOpen  func(*Port)
	OnClose func()
	Logger  *slog.Logger
	// open is swapped in tests.
	open func(Config, *slog.Logger) (*Port, error)
}

// Run blocks until ctx is done.
func (r *Reader) Run(ctx context.Context) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	open := r.open
	if open == nil {
		open = Open
	}

	for {
		p, err := open(r.Config, logger)
		if err != nil {
			logger.Warn("serial: unavailable", "device", r.Config.Device, "err", err)
		} else {
			if r.OnOpen != nil {
				r.OnOpen(p)
			}
			err = p.ReadLines(ctx, r.OnLine)
			if r.OnClose != nil {
				r.OnClose()
			}
			_ = p.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, io.EOF) {
				logger.Warn("serial: read error", "device", r.Config.Device, "err", err)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reopenInterval):
		}
	}
}
