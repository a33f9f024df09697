package engine

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

// LevelTrace is below slog.LevelDebug; only the file sink records it.
const LevelTrace = slog.Level(-8)

// ErrLoggingInitialised is returned by every InitLogging call after the first.
var ErrLoggingInitialised = errors.New("logging already initialised")

// multiHandler hands every record to each handler that accepts its level.
type multiHandler []slog.Handler

func (m multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range m {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (m multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs error
	for _, h := range m {
		if h.Enabled(ctx, r.Level) {
			errs = errors.CombineErrors(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errs
}

func (m multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (m multiHandler) WithGroup(name string) slog.Handler {
	out := make(multiHandler, len(m))
	for i, h := range m {
		out[i] = h.WithGroup(name)
	}
	return out
}

func replaceLevel(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey && len(groups) == 0 {
		if level, ok := a.Value.Any().(slog.Level); ok && level <= LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// LogFileName is the file the log sink writes for a process started at now.
func LogFileName(now time.Time) string {
	return "bs-rt-" + now.UTC().Format("15:04:05")
}

// LogSetup builds a logger at most once.
type LogSetup struct {
	once   sync.Once
	logger *slog.Logger
	file   *os.File
	err    error

	// Terminal defaults to os.Stderr.
	Terminal io.Writer
}

// Init creates the logger writing to the terminal at Info and to a file in
// dir at Trace. Later calls return the first logger with ErrLoggingInitialised.
func (s *LogSetup) Init(dir string, now time.Time) (*slog.Logger, error) {
	first := false
	s.once.Do(func() {
		first = true
		s.logger, s.file, s.err = newLogger(s.Terminal, dir, now)
	})

	if !first {
		return s.logger, ErrLoggingInitialised
	}
	return s.logger, s.err
}

// Close closes the log file.
func (s *LogSetup) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

func newLogger(terminal io.Writer, dir string, now time.Time) (*slog.Logger, *os.File, error) {
	if terminal == nil {
		terminal = os.Stderr
	}
	termHandler := slog.NewTextHandler(terminal, &slog.HandlerOptions{
		Level:       slog.LevelInfo,
		ReplaceAttr: replaceLevel,
	})

	path := filepath.Join(dir, LogFileName(now))
	file, err := os.Create(path)
	if err != nil {
		// Still usable on the terminal.
		return slog.New(termHandler), nil, errors.Wrapf(err, "create log file %s", path)
	}

	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level:       LevelTrace,
		AddSource:   true,
		ReplaceAttr: replaceLevel,
	})

	return slog.New(multiHandler{termHandler, fileHandler}), file, nil
}

var processLogging LogSetup

// InitLogging initialises the process-wide logger.
func InitLogging(dir string, now time.Time) (*slog.Logger, error) {
	return processLogging.Init(dir, now)
}

// CloseLogging closes the process-wide log file.
func CloseLogging() error {
	return processLogging.Close()
}
