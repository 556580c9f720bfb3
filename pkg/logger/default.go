package logger

import (
	"sync"

	"github.com/rs/zerolog"
)

var (
	defaultLogger Logger
	defaultMu     sync.RWMutex
)

// Initialize sets up the package-level default logger
func Initialize(cfg *Config) error {
	log, err := New(cfg)
	if err != nil {
		return err
	}

	defaultMu.Lock()
	defaultLogger = log
	defaultMu.Unlock()
	return nil
}

// GetLogger returns the default logger, creating a console logger if
// Initialize has not been called yet
func GetLogger() Logger {
	defaultMu.RLock()
	log := defaultLogger
	defaultMu.RUnlock()
	if log != nil {
		return log
	}

	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		l, err := New(&Config{Level: "info"})
		if err != nil {
			panic(err)
		}
		defaultLogger = l
	}
	return defaultLogger
}

// NewNop returns a logger that discards everything, for tests
func NewNop() Logger {
	zlog := zerolog.Nop()
	return &zerologLogger{
		logger: &zlog,
		fields: make(map[string]interface{}),
	}
}
