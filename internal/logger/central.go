package logger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "time/tzdata"
)

// levelTrace sits below slog.LevelDebug.
const levelTrace = slog.Level(-8)

var (
	global      atomic.Pointer[CentralLogger]
	fallbackLog = sync.OnceValue(func() *CentralLogger {
		return NewWriterLogger(os.Stdout, LogLevelTrace)
	})
)

// SetGlobal installs cl as the process-wide logger returned by Global.
func SetGlobal(cl *CentralLogger) {
	global.Store(cl)
}

// Global returns the installed logger, or a stdout logger before SetGlobal
// has been called.
func Global() *CentralLogger {
	if cl := global.Load(); cl != nil {
		return cl
	}
	return fallbackLog()
}

type contextKey struct{ name string }

// TraceIDKey is the context key read by Logger.WithContext.
var TraceIDKey = contextKey{"trace_id"}

// WithTraceID returns ctx carrying traceID for request-scoped logging.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// CentralLogger owns the output handlers and hands out module loggers.
type CentralLogger struct {
	handler      slog.Handler
	defaultLevel slog.Level
	moduleLevels map[string]slog.Level

	mu   sync.Mutex
	file *logFile
}

// NewCentralLogger builds the logger described by cfg.
func NewCentralLogger(cfg Config) (*CentralLogger, error) {
	return newCentralLogger(cfg, os.Stdout)
}

// NewWriterLogger returns a text logger writing to w at the given level.
func NewWriterLogger(w io.Writer, level LogLevel) *CentralLogger {
	return &CentralLogger{
		handler:      newTextHandler(w),
		defaultLevel: parseLogLevel(string(level)),
	}
}

func newCentralLogger(cfg Config, console io.Writer) (*CentralLogger, error) {
	tz, err := loadTimezone(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	if cfg.Level == "" {
		cfg.Level = DefaultLogLevel
	}

	cl := &CentralLogger{
		defaultLevel: parseLogLevel(cfg.Level),
		moduleLevels: make(map[string]slog.Level, len(cfg.ModuleLevels)),
	}
	for module, level := range cfg.ModuleLevels {
		cl.moduleLevels[module] = parseLogLevel(level)
	}

	// Handlers pass everything through; module loggers do the filtering.
	var handlers []slog.Handler
	if cfg.Console || cfg.FilePath == "" {
		handlers = append(handlers, newTextHandler(console))
	}
	if cfg.FilePath != "" {
		f, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, err
		}
		cl.file = f
		handlers = append(handlers, newJSONHandler(f, tz))
	}

	if len(handlers) == 1 {
		cl.handler = handlers[0]
	} else {
		cl.handler = newMultiWriterHandler(handlers...)
	}
	return cl, nil
}

func loadTimezone(name string) (*time.Location, error) {
	switch name {
	case "", "Local":
		return time.Local, nil
	case "UTC":
		return time.UTC, nil
	}
	tz, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %s: %w", name, err)
	}
	return tz, nil
}

// Module returns a logger for the named module, at that module's level.
func (cl *CentralLogger) Module(name string) Logger {
	if cl == nil {
		return nil
	}
	level, ok := cl.moduleLevels[name]
	if !ok {
		level = cl.defaultLevel
	}
	return &moduleLogger{
		module: name,
		logger: slog.New(cl.handler),
		level:  level,
	}
}

// Flush pushes buffered file output to the OS.
func (cl *CentralLogger) Flush() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.file == nil {
		return nil
	}
	return cl.file.Flush()
}

// Close flushes and closes the log file. Later writes to it are dropped.
func (cl *CentralLogger) Close() error {
	if cl == nil {
		return nil
	}
	cl.mu.Lock()
	defer cl.mu.Unlock()
	if cl.file == nil {
		return nil
	}
	err := cl.file.Close()
	cl.file = nil
	return err
}

// logFile serializes writes from concurrent handlers into one buffered file.
type logFile struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
	closed bool
}

func openLogFile(path string) (*logFile, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create log directory %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640) //nolint:gosec // path comes from config
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return &logFile{f: f, w: bufio.NewWriter(f)}, nil
}

func (l *logFile) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return len(p), nil
	}
	return l.w.Write(p)
}

func (l *logFile) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Flush()
}

func (l *logFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return errors.Join(l.w.Flush(), l.f.Sync(), l.f.Close())
}

func parseLogLevel(level string) slog.Level {
	switch LogLevel(level) {
	case LogLevelTrace:
		return levelTrace
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
