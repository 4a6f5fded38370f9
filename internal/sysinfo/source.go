// Package sysinfo reads host and process metrics from procfs pseudo-files.
//
// Every operation re-reads the underlying files; nothing is cached between
// calls. Callers that want rates over time must keep previous samples
// themselves.
package sysinfo

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
)

const (
	// DefaultProcRoot is the usual procfs mount point.
	DefaultProcRoot = "/proc"
	// DefaultEtcRoot holds os-release and passwd.
	DefaultEtcRoot = "/etc"
)

// Source reads metrics from a procfs tree and an etc tree.
type Source struct {
	proc       fs.FS
	etc        fs.FS
	clockTicks int64
	logger     *slog.Logger
	root       *os.Root
}

// Option customises a Source.
type Option func(*Source)

// WithClockTicks overrides the detected clock ticks per second.
func WithClockTicks(hz int64) Option {
	return func(s *Source) {
		if hz > 0 {
			s.clockTicks = hz
		}
	}
}

// WithLogger sets the logger used for debug output on partial reads.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New builds a Source over arbitrary filesystems. Paths are resolved relative
// to each filesystem root, e.g. "stat", "1234/status", "os-release".
func New(procFS, etcFS fs.FS, opts ...Option) *Source {
	s := &Source{
		proc:   procFS,
		etc:    etcFS,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clockTicks <= 0 {
		s.clockTicks = ClockTicks()
	}
	return s
}

// Open builds a Source backed by the real filesystem.
func Open(procRoot, etcRoot string, opts ...Option) (*Source, error) {
	if procRoot == "" {
		procRoot = DefaultProcRoot
	}
	if etcRoot == "" {
		etcRoot = DefaultEtcRoot
	}

	root, err := os.OpenRoot(procRoot)
	if err != nil {
		return nil, fmt.Errorf("open proc root: %w", err)
	}

	// os-release is commonly a symlink into /usr/lib, which os.Root refuses
	// to follow.
	s := New(root.FS(), os.DirFS(etcRoot), opts...)
	s.root = root
	return s, nil
}

// ClockTicksPerSecond reports the tick rate used to convert jiffies.
func (s *Source) ClockTicksPerSecond() int64 {
	return s.clockTicks
}

// Close releases the proc root handle, if any.
func (s *Source) Close() error {
	if s.root == nil {
		return nil
	}
	err := s.root.Close()
	if errors.Is(err, os.ErrClosed) {
		return nil
	}
	return err
}
