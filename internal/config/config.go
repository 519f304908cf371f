// Package config loads lou-piano settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chase3718/lou-piano/internal/engine"
	"github.com/chase3718/lou-piano/internal/melody"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "lou-piano.yaml"

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// MelodyConfig defines the song. Indices win over Names, Names over Library.
type MelodyConfig struct {
	Indices []int    `yaml:"indices,omitempty"`
	Names   []string `yaml:"names,omitempty"`
	Library string   `yaml:"library,omitempty"`
}

type FeedbackConfig struct {
	Flash time.Duration `yaml:"flash"`
}

type ProgressConfig struct {
	Label       bool   `yaml:"label"`
	MarkCurrent bool   `yaml:"mark_current"`
	Separator   string `yaml:"separator"`
}

type SerialConfig struct {
	Device      string        `yaml:"device,omitempty"`
	Baud        int           `yaml:"baud"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// LEDs enables writing key colours back to the board.
	LEDs bool `yaml:"leds"`
}

type SSEConfig struct {
	URL   string        `yaml:"url,omitempty"`
	Retry time.Duration `yaml:"retry"`
}

type MIDIConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Preferred []string `yaml:"preferred,omitempty"`
	Excluded  []string `yaml:"excluded,omitempty"`
}

type HTTPConfig struct {
	Addr        string   `yaml:"addr,omitempty"`
	CORSOrigins []string `yaml:"cors_origins,omitempty"`
}

type TUIConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the main configuration structure.
type Config struct {
	Melody   MelodyConfig   `yaml:"melody"`
	Feedback FeedbackConfig `yaml:"feedback"`
	Progress ProgressConfig `yaml:"progress"`
	Serial   SerialConfig   `yaml:"serial"`
	SSE      SSEConfig      `yaml:"sse"`
	MIDI     MIDIConfig     `yaml:"midi"`
	HTTP     HTTPConfig     `yaml:"http"`
	TUI      TUIConfig      `yaml:"tui"`
}

// Default returns a config with sensible defaults. Every input source is off
// until configured, except the on-screen keyboard.
func Default() *Config {
	return &Config{
		Feedback: FeedbackConfig{Flash: engine.DefaultFlash},
		Progress: ProgressConfig{Label: true, MarkCurrent: true, Separator: " "},
		Serial:   SerialConfig{Baud: 115200, ReadTimeout: 25 * time.Millisecond},
		SSE:      SSEConfig{Retry: 2 * time.Second},
		HTTP:     HTTPConfig{CORSOrigins: []string{"*"}},
		TUI:      TUIConfig{Enabled: true},
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the runtime cannot work with. Bad melody entries
// are not errors; the builder drops them.
func (c *Config) Validate() error {
	switch {
	case c.Feedback.Flash <= 0:
		return fmt.Errorf("%w: feedback.flash must be positive", ErrInvalid)
	case c.Serial.Baud <= 0:
		return fmt.Errorf("%w: serial.baud must be positive", ErrInvalid)
	case c.Serial.ReadTimeout <= 0:
		return fmt.Errorf("%w: serial.read_timeout must be positive", ErrInvalid)
	case c.SSE.Retry <= 0:
		return fmt.Errorf("%w: sse.retry must be positive", ErrInvalid)
	}
	return nil
}

// Source turns the melody section into builder input. A library title only
// counts when neither indices nor names are set.
func (c *Config) Source() melody.Source {
	src := melody.Source{Indices: c.Melody.Indices, Names: c.Melody.Names}
	if len(src.Indices) == 0 && len(src.Names) == 0 && c.Melody.Library != "" {
		if m, ok := melody.Lookup(c.Melody.Library); ok {
			src.Indices = m
		}
	}
	return src
}

// Format returns the progress line options.
func (c *Config) Format() engine.FormatOptions {
	return engine.FormatOptions{
		IncludeLabel: c.Progress.Label,
		MarkCurrent:  c.Progress.MarkCurrent,
		Separator:    c.Progress.Separator,
	}
}

// Save writes the config to path.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
