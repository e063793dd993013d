// Package logging builds the slog logger used across biogate.
//
// Records go to stderr, or to a time-rotated file when a path is set.
// Biometric vectors are never passed to the logger; callers log identities,
// session handles, states and reasons only.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

// Options configures New.
type Options struct {
	Level        string // debug | info | warn | error
	Format       string // text | json
	File         string // empty: write to the fallback writer
	MaxAge       time.Duration
	RotationTime time.Duration
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// New builds a logger. The returned closer releases the log file and is
// safe to call when logging to fallback.
func New(opts Options, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	w := fallback
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rl, err := newRotatingFile(opts)
		if err != nil {
			return nil, nil, err
		}
		w, closer = rl, rl
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch opts.Format {
	case "", "text":
		handler = slog.NewTextHandler(w, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	default:
		closer.Close()
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	return slog.New(handler), closer, nil
}

// newRotatingFile opens path.YYYYMMDDHHMM style files with a stable symlink
// at path pointing to the current one.
func newRotatingFile(opts Options) (*rotatelogs.RotateLogs, error) {
	rotation := opts.RotationTime
	if rotation <= 0 {
		rotation = 24 * time.Hour
	}
	rlOpts := []rotatelogs.Option{
		rotatelogs.WithLinkName(opts.File),
		rotatelogs.WithRotationTime(rotation),
	}
	if opts.MaxAge > 0 {
		rlOpts = append(rlOpts, rotatelogs.WithMaxAge(opts.MaxAge))
	}

	rl, err := rotatelogs.New(opts.File+".%Y%m%d%H%M", rlOpts...)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", opts.File, err)
	}
	return rl, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
