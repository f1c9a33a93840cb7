// Package log creates loggers for mix components.
package log

import (
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
)

// EnvDebug enables debug level when it parses true.
const EnvDebug = "MIX_DEBUG"

// Logger is the logging interface accepted by mix components.
type Logger = logrus.FieldLogger

// Debug returns true if debug logging is enabled by environment.
func Debug() bool {
	debug, err := strconv.ParseBool(os.Getenv(EnvDebug))
	return err == nil && debug
}

// GetLogger returns a new logger instance, debug level if enabled by
// environment.
func GetLogger() *logrus.Logger {
	return New(Debug())
}

// New returns logger writing text records with full timestamps to stderr.
func New(debug bool) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}
