package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/decred/slog"
	"github.com/jrick/logrotate/rotator"
)

// LogConfig controls where the backend writes and at which level.
type LogConfig struct {
	LogFile        string // rotating log file; empty disables file logging
	DebugLevel     string // trace, debug, info, warn, error
	MaxLogFiles    int
	MaxBufferLines int
}

// LogBackend multiplexes log writes to stderr and an optional rotating file
// and hands out per-subsystem loggers.
type LogBackend struct {
	backend  *slog.Backend
	rotator  *rotator.Rotator
	level    slog.Level
	mu       sync.Mutex
	loggers  map[string]slog.Logger
}

type logWriter struct {
	r *rotator.Rotator
}

func (w *logWriter) Write(p []byte) (int, error) {
	os.Stderr.Write(p)
	if w.r != nil {
		return w.r.Write(p)
	}
	return len(p), nil
}

// NewLogBackend creates the backend, opening the rotating log file if one is
// configured.
func NewLogBackend(cfg LogConfig) (*LogBackend, error) {
	b := &LogBackend{
		level:   slog.LevelInfo,
		loggers: make(map[string]slog.Logger),
	}
	if lvl, ok := slog.LevelFromString(cfg.DebugLevel); ok {
		b.level = lvl
	}

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %v", err)
		}
		maxFiles := cfg.MaxLogFiles
		if maxFiles == 0 {
			maxFiles = 8
		}
		r, err := rotator.New(cfg.LogFile, 1024, false, maxFiles)
		if err != nil {
			return nil, fmt.Errorf("failed to create log rotator: %v", err)
		}
		b.rotator = r
	}

	b.backend = slog.NewBackend(&logWriter{r: b.rotator})
	return b, nil
}

// Logger returns (creating if needed) the logger for the given subsystem tag.
func (b *LogBackend) Logger(subsystem string) slog.Logger {
	b.mu.Lock()
	defer b.mu.Unlock()
	if l, ok := b.loggers[subsystem]; ok {
		return l
	}
	l := b.backend.Logger(subsystem)
	l.SetLevel(b.level)
	b.loggers[subsystem] = l
	return l
}

// SetLevel changes the level of all current and future loggers.
func (b *LogBackend) SetLevel(level string) {
	lvl, ok := slog.LevelFromString(level)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.level = lvl
	for _, l := range b.loggers {
		l.SetLevel(lvl)
	}
}

// Close flushes and closes the rotating log file.
func (b *LogBackend) Close() error {
	if b.rotator != nil {
		return b.rotator.Close()
	}
	return nil
}
