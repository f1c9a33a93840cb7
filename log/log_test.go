package log_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"

	"pipelined.dev/mix/log"
)

func TestGetLogger(t *testing.T) {
	tests := []struct {
		env   string
		debug bool
		level logrus.Level
	}{
		{"", false, logrus.InfoLevel},
		{"true", true, logrus.DebugLevel},
		{"1", true, logrus.DebugLevel},
		{"false", false, logrus.InfoLevel},
		{"verbose", false, logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			t.Setenv(log.EnvDebug, tt.env)
			assert.Equal(t, tt.debug, log.Debug())
			assert.Equal(t, tt.level, log.GetLogger().GetLevel())
		})
	}
}

func TestNew(t *testing.T) {
	assert.Equal(t, logrus.DebugLevel, log.New(true).GetLevel())
	assert.Equal(t, logrus.InfoLevel, log.New(false).GetLevel())
}
