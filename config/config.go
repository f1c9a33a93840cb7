// Package config loads runtime configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"pipelined.dev/mix/format"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	Debug bool

	// Mix thread
	Period       time.Duration
	CPUPerPeriod time.Duration

	// Stream format, samples are always signed 16 bit
	FrameRate int
	Channels  int

	// Packet transport
	PacketFrames int // frames per packet produced by feeders
	PacketSlots  int // slab slots for captured packets

	// Network
	ListenAddr string
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Debug: envBool("MIX_DEBUG", false),

		Period:       envDuration("MIX_PERIOD", 10*time.Millisecond),
		CPUPerPeriod: envDuration("MIX_CPU_PER_PERIOD", 2*time.Millisecond),

		FrameRate: envInt("MIX_FRAME_RATE", 48000),
		Channels:  envInt("MIX_CHANNELS", 2),

		PacketFrames: envInt("MIX_PACKET_FRAMES", 480),
		PacketSlots:  envInt("MIX_PACKET_SLOTS", 64),

		ListenAddr: envStr("MIX_LISTEN_ADDR", ":8080"),
	}
}

// Validate checks that values are in range.
func (c Config) Validate() error {
	if c.Period <= 0 {
		return fmt.Errorf("%w: period %v", ErrInvalidConfig, c.Period)
	}
	if c.CPUPerPeriod < 0 || c.CPUPerPeriod >= c.Period {
		return fmt.Errorf("%w: cpu per period %v", ErrInvalidConfig, c.CPUPerPeriod)
	}
	if _, err := c.Format(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.PacketFrames <= 0 {
		return fmt.Errorf("%w: packet frames %d", ErrInvalidConfig, c.PacketFrames)
	}
	if c.PacketSlots <= 0 {
		return fmt.Errorf("%w: packet slots %d", ErrInvalidConfig, c.PacketSlots)
	}
	return nil
}

// Format returns stream format described by config.
func (c Config) Format() (format.Format, error) {
	return format.New(format.Signed16, c.Channels, c.FrameRate)
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// envDuration accepts Go durations ("10ms") or bare milliseconds.
func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	return fallback
}
