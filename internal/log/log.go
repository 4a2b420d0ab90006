// Package log provides the process-wide structured logger facade.
package log

import (
	"sync"
)

type Logger interface {
	Print(args ...interface{})
	Printf(format string, args ...interface{})

	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

// LoggerConfig controls level, the pattern formatter and outputs.
// Console output is always on; the file appender is optional.
type LoggerConfig struct {
	Level   string              `mapstructure:"level"`
	Pattern string              `mapstructure:"pattern"`
	Time    string              `mapstructure:"time"`
	File    *FileAppenderConfig `mapstructure:"file"`
}

// FileAppenderConfig configures rotated file output.
type FileAppenderConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	once   sync.Once
	logger Logger
)

// GetLogger returns the global logger. Init must run first; before that
// a default console logger is lazily installed so early code paths and
// tests never hit a nil logger.
func GetLogger() Logger {
	if logger == nil {
		Init(defaultConfig())
	}
	return logger
}

// Init installs the global logger from cfg. Subsequent calls are no-ops.
func Init(cfg *LoggerConfig) {
	once.Do(func() {
		if err := initByConfig(cfg); err != nil {
			panic(err)
		}
	})
}

func defaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:   "info",
		Pattern: "%time [%level] %msg%n",
		Time:    "2006-01-02 15:04:05.000",
	}
}
