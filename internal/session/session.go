// Package session provides privileged device access: through systemd-logind
// over D-Bus when available, or by opening devices directly otherwise.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// DRMMajor is the device major number of DRM cards.
const DRMMajor = 226

// EventKind is a session activity transition.
type EventKind int

const (
	// Paused means the session lost the seat, e.g. after a VT switch away.
	Paused EventKind = iota
	// Activated means the session got the seat back.
	Activated
)

func (k EventKind) String() string {
	if k == Paused {
		return "paused"
	}
	return "activated"
}

// Event is a session activity transition.
type Event struct {
	Kind EventKind
}

// Session hands out device files and reports activity changes.
type Session interface {
	Open(path string, flags int) (*os.File, error)
	Close(f *os.File) error
	Seat() string
	Active() bool
	// Run delivers events to handler until ctx is cancelled.
	Run(ctx context.Context, handler func(Event)) error
	Shutdown() error
}

// Config holds configuration for session backends.
type Config struct {
	Logger *slog.Logger
}

// Open connects to logind, falling back to direct device access when
// logind is not reachable.
func Open(cfg Config) (Session, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	l, err := ConnectLogind(cfg)
	if err == nil {
		return l, nil
	}
	logger.Warn("logind unavailable, opening devices directly", "error", err)
	return NewDirect(cfg), nil
}

// Direct opens devices with plain open(2). It needs sufficient privileges
// and never pauses.
type Direct struct {
	seat   string
	logger *slog.Logger
}

// NewDirect creates a direct session on seat0 or $XDG_SEAT.
func NewDirect(cfg Config) *Direct {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	seat := os.Getenv("XDG_SEAT")
	if seat == "" {
		seat = "seat0"
	}
	return &Direct{seat: seat, logger: logger}
}

func (d *Direct) Open(path string, flags int) (*os.File, error) {
	fd, err := unix.Open(path, flags, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return os.NewFile(uintptr(fd), path), nil
}

func (d *Direct) Close(f *os.File) error {
	return f.Close()
}

func (d *Direct) Seat() string { return d.seat }

func (d *Direct) Active() bool { return true }

func (d *Direct) Run(ctx context.Context, _ func(Event)) error {
	<-ctx.Done()
	return nil
}

func (d *Direct) Shutdown() error { return nil }

func deviceNumber(path string) (major, minor uint32, err error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, 0, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return unix.Major(uint64(st.Rdev)), unix.Minor(uint64(st.Rdev)), nil
}

func fileDeviceNumber(f *os.File) (major, minor uint32, err error) {
	var st unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &st); err != nil {
		return 0, 0, fmt.Errorf("failed to stat %s: %w", f.Name(), err)
	}
	return unix.Major(uint64(st.Rdev)), unix.Minor(uint64(st.Rdev)), nil
}
