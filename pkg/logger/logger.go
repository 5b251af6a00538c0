// Package logger builds the structured logger used by the command line tools.
// Records go to a size-rotated file; with Debug they are mirrored to stderr.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logger configuration.
type Config struct {
	// Debug lowers the level to debug and mirrors records to Stderr.
	Debug bool

	// Dir is where the log file lives; empty disables the file.
	Dir string

	// File is the log file name inside Dir (default: "<Prefix>.log").
	File string

	// Level is used when Debug is off (default: warn).
	Level string

	// Prefix is printed before every record.
	Prefix string

	// Stderr is the debug mirror (default: os.Stderr).
	Stderr io.Writer
}

// Logger is a slog logger plus the file it owns.
type Logger struct {
	*slog.Logger
	file *lumberjack.Logger
}

// New creates the logger and the log directory.
func New(cfg Config) (*Logger, error) {
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "streakhub"
	}

	var (
		writers []io.Writer
		file    *lumberjack.Logger
	)
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, err
		}
		name := cfg.File
		if name == "" {
			name = cfg.Prefix + ".log"
		}
		file = &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Dir, name),
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		writers = append(writers, file)
	}
	if cfg.Debug {
		writers = append(writers, cfg.Stderr)
	}

	var w io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	level := ParseLevel(cfg.Level)
	if cfg.Debug {
		level = log.DebugLevel
	}

	handler := log.NewWithOptions(w, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          cfg.Prefix,
	})

	return &Logger{Logger: slog.New(handler), file: file}, nil
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// ParseLevel parses a level name; unknown names mean warn.
func ParseLevel(s string) log.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.WarnLevel
	}
}
