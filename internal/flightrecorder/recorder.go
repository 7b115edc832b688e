// Package flightrecorder keeps a rolling execution trace in memory and writes it to disk when an
// operation turns out slow.
package flightrecorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/trace"
	"sync/atomic"
	"time"
)

const (
	defaultMinAge   = time.Minute
	defaultMaxBytes = 16 * 1024 * 1024
	defaultCooldown = 10 * time.Minute
)

// Config configures a Recorder. Zero durations and sizes select the defaults.
type Config struct {
	Directory string
	MinAge    time.Duration
	MaxBytes  uint64
	Cooldown  time.Duration
}

// Recorder dumps the flight recorder buffer at most once per cooldown.
type Recorder struct {
	logger    *slog.Logger
	fr        *trace.FlightRecorder
	directory string
	cooldown  time.Duration
	// lastCapture holds the unix nanoseconds of the last dump.
	lastCapture atomic.Int64
}

// New creates the trace directory when missing and returns a stopped Recorder.
func New(logger *slog.Logger, cfg Config) (*Recorder, error) {
	if cfg.Directory == "" {
		return nil, errors.New("trace directory is required")
	}
	if err := os.MkdirAll(cfg.Directory, 0o700); err != nil {
		return nil, fmt.Errorf("create trace directory: %w", err)
	}
	if cfg.MinAge == 0 {
		cfg.MinAge = defaultMinAge
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = defaultMaxBytes
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = defaultCooldown
	}
	return &Recorder{
		logger:      logger,
		fr:          trace.NewFlightRecorder(trace.FlightRecorderConfig{MinAge: cfg.MinAge, MaxBytes: cfg.MaxBytes}),
		directory:   cfg.Directory,
		cooldown:    cfg.Cooldown,
		lastCapture: atomic.Int64{},
	}, nil
}

// Start begins recording.
func (r *Recorder) Start(ctx context.Context) error {
	if err := r.fr.Start(); err != nil {
		return fmt.Errorf("start flight recorder: %w", err)
	}
	r.logger.LogAttrs(ctx, slog.LevelDebug, "flight recorder started", slog.String("directory", r.directory))
	return nil
}

// Stop ends recording.
func (r *Recorder) Stop() {
	r.fr.Stop()
}

// CaptureSlow writes the buffered trace to a file named after operation unless a trace was written
// within the cooldown. It returns the path of the written file, or "" when nothing was written.
func (r *Recorder) CaptureSlow(ctx context.Context, operation string, took time.Duration) string {
	now := time.Now()
	last := r.lastCapture.Load()
	if last != 0 && now.Sub(time.Unix(0, last)) < r.cooldown {
		return ""
	}
	if !r.lastCapture.CompareAndSwap(last, now.UnixNano()) {
		return ""
	}

	path := filepath.Join(r.directory, fmt.Sprintf("slow-%s-%s.trace", operation, now.UTC().Format("20060102-150405")))
	f, err := os.Create(path)
	if err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "failed to create trace file",
			slog.String("file", path), slog.Any("error", err))
		return ""
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			r.logger.LogAttrs(ctx, slog.LevelError, "failed to close trace file",
				slog.String("file", path), slog.Any("error", closeErr))
		}
	}()
	n, err := r.fr.WriteTo(f)
	if err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "failed to write trace",
			slog.String("file", path), slog.Any("error", err))
		return ""
	}
	r.logger.LogAttrs(ctx, slog.LevelWarn, "captured slow operation trace",
		slog.String("operation", operation),
		slog.Duration("took", took),
		slog.String("file", path),
		slog.Int64("bytes", n))
	return path
}
