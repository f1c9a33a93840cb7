package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/mix/config"
	"pipelined.dev/mix/format"
)

var envVars = []string{
	"MIX_DEBUG", "MIX_PERIOD", "MIX_CPU_PER_PERIOD", "MIX_FRAME_RATE",
	"MIX_CHANNELS", "MIX_PACKET_FRAMES", "MIX_PACKET_SLOTS", "MIX_LISTEN_ADDR",
}

func clearEnv(t *testing.T) {
	for _, k := range envVars {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg := config.Load()

	assert.False(t, cfg.Debug)
	assert.Equal(t, 10*time.Millisecond, cfg.Period)
	assert.Equal(t, 2*time.Millisecond, cfg.CPUPerPeriod)
	assert.Equal(t, 48000, cfg.FrameRate)
	assert.Equal(t, 2, cfg.Channels)
	assert.Equal(t, 480, cfg.PacketFrames)
	assert.Equal(t, 64, cfg.PacketSlots)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	require.NoError(t, cfg.Validate())

	f, err := cfg.Format()
	require.NoError(t, err)
	assert.Equal(t, format.Format{SampleType: format.Signed16, Channels: 2, FramesPerSecond: 48000}, f)
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("MIX_DEBUG", "true")
	t.Setenv("MIX_PERIOD", "20ms")
	t.Setenv("MIX_CPU_PER_PERIOD", "5")
	t.Setenv("MIX_FRAME_RATE", "44100")
	t.Setenv("MIX_CHANNELS", "1")
	t.Setenv("MIX_PACKET_FRAMES", "441")
	t.Setenv("MIX_PACKET_SLOTS", "8")
	t.Setenv("MIX_LISTEN_ADDR", "127.0.0.1:9000")

	cfg := config.Load()
	assert.True(t, cfg.Debug)
	assert.Equal(t, 20*time.Millisecond, cfg.Period)
	assert.Equal(t, 5*time.Millisecond, cfg.CPUPerPeriod)
	assert.Equal(t, 44100, cfg.FrameRate)
	assert.Equal(t, 1, cfg.Channels)
	assert.Equal(t, 441, cfg.PacketFrames)
	assert.Equal(t, 8, cfg.PacketSlots)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
}

func TestLoadInvalidFallsBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("MIX_DEBUG", "maybe")
	t.Setenv("MIX_PERIOD", "soon")
	t.Setenv("MIX_CHANNELS", "two")

	cfg := config.Load()
	assert.False(t, cfg.Debug)
	assert.Equal(t, 10*time.Millisecond, cfg.Period)
	assert.Equal(t, 2, cfg.Channels)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	valid := config.Load()
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"zero period", func(c *config.Config) { c.Period = 0 }},
		{"cpu exceeds period", func(c *config.Config) { c.CPUPerPeriod = c.Period }},
		{"negative cpu", func(c *config.Config) { c.CPUPerPeriod = -1 }},
		{"no channels", func(c *config.Config) { c.Channels = 0 }},
		{"low frame rate", func(c *config.Config) { c.FrameRate = 10 }},
		{"no packet frames", func(c *config.Config) { c.PacketFrames = 0 }},
		{"no packet slots", func(c *config.Config) { c.PacketSlots = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), config.ErrInvalidConfig)
		})
	}
}
