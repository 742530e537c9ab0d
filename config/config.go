package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// BusConfig configures the optional event bus
type BusConfig struct {
	URL       string `yaml:"url,omitempty"`
	Topic     string `yaml:"topic,omitempty"`
	Broadcast bool   `yaml:"broadcast,omitempty"`
	Receive   bool   `yaml:"receive,omitempty"`
}

// Config holds startup settings. It is read once and never written back.
type Config struct {
	Input         int           `yaml:"input"`  // -1 = system default
	Output        int           `yaml:"output"` // -1 = system default
	EchoChannel   int           `yaml:"echo_channel"`
	SplitPoint    int           `yaml:"split_point"`
	Threshold     int           `yaml:"threshold"`
	NoEcho        bool          `yaml:"no_echo,omitempty"`
	DebugEcho     bool          `yaml:"debug_echo,omitempty"`
	BPM           int           `yaml:"bpm"`
	TimeSignature int           `yaml:"time_signature"` // 0 free, 1..5 = 2/4..6/8
	Metronome     bool          `yaml:"metronome,omitempty"`
	Script        string        `yaml:"script,omitempty"`
	WatchInterval time.Duration `yaml:"watch_interval"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	AckTimeout    time.Duration `yaml:"ack_timeout"`
	Bus           BusConfig     `yaml:"bus,omitempty"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		Input:         -1,
		Output:        -1,
		EchoChannel:   1,
		SplitPoint:    62,
		BPM:           100,
		WatchInterval: 5 * time.Second,
		PollInterval:  time.Millisecond,
		AckTimeout:    2 * time.Second,
		Bus: BusConfig{
			Topic:     "pianomirror",
			Broadcast: true,
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pianomirror"), nil
}

// ConfigPath returns the full path to config.yaml
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads path over the defaults, then applies .env and environment
// overrides. An empty path means the default location, where a missing
// file is fine; a missing explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		p, err := ConfigPath()
		if err == nil {
			path = p
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist) && !explicit:
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// .env is optional
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Bus.URL = getEnv("PIANOMIRROR_BUS_URL", c.Bus.URL)
	c.Bus.Topic = getEnv("PIANOMIRROR_BUS_TOPIC", c.Bus.Topic)
	c.Script = getEnv("PIANOMIRROR_SCRIPT", c.Script)
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

// Validate checks ranges
func (c *Config) Validate() error {
	switch {
	case c.Input < -1:
		return fmt.Errorf("input device %d: must be -1 (default) or a device id", c.Input)
	case c.Output < -1:
		return fmt.Errorf("output device %d: must be -1 (default) or a device id", c.Output)
	case c.EchoChannel < 0 || c.EchoChannel > 15:
		return fmt.Errorf("echo_channel %d: must be 0-15", c.EchoChannel)
	case c.SplitPoint < 0 || c.SplitPoint > 127:
		return fmt.Errorf("split_point %d: must be 0-127", c.SplitPoint)
	case c.Threshold < 0 || c.Threshold > 127:
		return fmt.Errorf("threshold %d: must be 0-127", c.Threshold)
	case c.BPM < 20 || c.BPM > 300:
		return fmt.Errorf("bpm %d: must be 20-300", c.BPM)
	case c.TimeSignature < 0 || c.TimeSignature > 5:
		return fmt.Errorf("time_signature %d: must be 0-5", c.TimeSignature)
	case c.WatchInterval <= 0 || c.PollInterval <= 0 || c.AckTimeout <= 0:
		return fmt.Errorf("intervals and timeouts must be positive")
	}
	return nil
}
