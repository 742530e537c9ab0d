package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	validConfig := `input: 2
output: 3
echo_channel: 0
threshold: 50
bpm: 120
time_signature: 3
metronome: true
script: /tmp/mirror.lua
watch_interval: 1s
bus:
  url: redis://localhost:6379/0
  receive: true
`
	require.NoError(t, os.WriteFile(configPath, []byte(validConfig), 0644))

	cfg, err := Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Input)
	assert.Equal(t, 3, cfg.Output)
	assert.Equal(t, 0, cfg.EchoChannel)
	assert.Equal(t, 50, cfg.Threshold)
	assert.Equal(t, 120, cfg.BPM)
	assert.Equal(t, 3, cfg.TimeSignature)
	assert.True(t, cfg.Metronome)
	assert.Equal(t, "/tmp/mirror.lua", cfg.Script)
	assert.Equal(t, time.Second, cfg.WatchInterval)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Bus.URL)
	assert.True(t, cfg.Bus.Receive)

	// untouched fields keep defaults
	assert.Equal(t, 62, cfg.SplitPoint)
	assert.Equal(t, 2*time.Second, cfg.AckTimeout)
	assert.Equal(t, "pianomirror", cfg.Bus.Topic)
	assert.True(t, cfg.Bus.Broadcast)
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestLoad_DefaultPathMissingIsFine(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().BPM, cfg.BPM)
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("bpm: [fast\n"), 0644))

	cfg, err := Load(configPath)
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_OutOfRange(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("echo_channel: 16\n"), 0644))

	_, err := Load(configPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "echo_channel")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PIANOMIRROR_BUS_URL", "redis://bus:6379")
	t.Setenv("PIANOMIRROR_SCRIPT", "/scripts/x.lua")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "redis://bus:6379", cfg.Bus.URL)
	assert.Equal(t, "/scripts/x.lua", cfg.Script)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"input", func(c *Config) { c.Input = -2 }},
		{"split", func(c *Config) { c.SplitPoint = 128 }},
		{"threshold", func(c *Config) { c.Threshold = -1 }},
		{"bpm", func(c *Config) { c.BPM = 5 }},
		{"time signature", func(c *Config) { c.TimeSignature = 6 }},
		{"ack timeout", func(c *Config) { c.AckTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}
