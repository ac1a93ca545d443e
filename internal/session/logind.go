package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	logindDest   = "org.freedesktop.login1"
	logindPath   = dbus.ObjectPath("/org/freedesktop/login1")
	managerIface = "org.freedesktop.login1.Manager"
	sessionIface = "org.freedesktop.login1.Session"
)

// Logind takes control of the current logind session and opens devices
// through TakeDevice.
type Logind struct {
	conn        *dbus.Conn
	session     dbus.BusObject
	sessionPath dbus.ObjectPath
	seat        string
	logger      *slog.Logger

	mu     sync.Mutex
	active bool
	paused map[uint64]bool
}

// ConnectLogind resolves the caller's session on the system bus and takes
// control of it.
func ConnectLogind(cfg Config) (*Logind, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}

	id := os.Getenv("XDG_SESSION_ID")
	if id == "" {
		id = "auto"
	}
	var sessionPath dbus.ObjectPath
	manager := conn.Object(logindDest, logindPath)
	if err := manager.Call(managerIface+".GetSession", 0, id).Store(&sessionPath); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to resolve session %q: %w", id, err)
	}
	session := conn.Object(logindDest, sessionPath)

	seatProp, err := session.GetProperty(sessionIface + ".Seat")
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read session seat: %w", err)
	}
	seat := parseSeat(seatProp.Value())

	if err := session.Call(sessionIface+".TakeControl", 0, false).Err; err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to take control of session: %w", err)
	}

	active := true
	if v, err := session.GetProperty(sessionIface + ".Active"); err == nil {
		if b, ok := v.Value().(bool); ok {
			active = b
		}
	}

	logger.Info("logind session acquired", "session", string(sessionPath), "seat", seat, "active", active)
	return &Logind{
		conn:        conn,
		session:     session,
		sessionPath: sessionPath,
		seat:        seat,
		logger:      logger,
		active:      active,
		paused:      make(map[uint64]bool),
	}, nil
}

func parseSeat(v interface{}) string {
	parts, ok := v.([]interface{})
	if !ok || len(parts) != 2 {
		return "seat0"
	}
	name, _ := parts[0].(string)
	if name == "" {
		name = "seat0"
	}
	return name
}

// Open takes the device from logind. flags are decided by logind, which
// opens DRM devices read-write, non-blocking and close-on-exec.
func (l *Logind) Open(path string, _ int) (*os.File, error) {
	major, minor, err := deviceNumber(path)
	if err != nil {
		return nil, err
	}
	var (
		fd       dbus.UnixFD
		inactive bool
	)
	if err := l.session.Call(sessionIface+".TakeDevice", 0, major, minor).Store(&fd, &inactive); err != nil {
		return nil, fmt.Errorf("failed to take device %s: %w", path, err)
	}
	if inactive {
		l.logger.Debug("device taken while session inactive", "path", path)
	}
	return os.NewFile(uintptr(fd), path), nil
}

// Close hands the device back to logind and closes f.
func (l *Logind) Close(f *os.File) error {
	major, minor, err := fileDeviceNumber(f)
	if err == nil {
		if callErr := l.session.Call(sessionIface+".ReleaseDevice", 0, major, minor).Err; callErr != nil {
			l.logger.Warn("failed to release device", "path", f.Name(), "error", callErr)
		}
	}
	closeErr := f.Close()
	if err != nil {
		return err
	}
	return closeErr
}

func (l *Logind) Seat() string { return l.seat }

func (l *Logind) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Run listens for PauseDevice/ResumeDevice signals on the session and turns
// DRM device transitions into session events.
func (l *Logind) Run(ctx context.Context, handler func(Event)) error {
	for _, member := range []string{"PauseDevice", "ResumeDevice"} {
		if err := l.conn.AddMatchSignal(
			dbus.WithMatchObjectPath(l.sessionPath),
			dbus.WithMatchInterface(sessionIface),
			dbus.WithMatchMember(member),
		); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", member, err)
		}
	}
	signals := make(chan *dbus.Signal, 16)
	l.conn.Signal(signals)
	defer l.conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			if sig.Path != l.sessionPath {
				continue
			}
			if ev, ok := l.handleSignal(sig); ok {
				handler(ev)
			}
		}
	}
}

// handleSignal updates the per-device pause state and reports a session
// event on the first DRM pause and the last DRM resume.
func (l *Logind) handleSignal(sig *dbus.Signal) (Event, bool) {
	if len(sig.Body) < 3 {
		return Event{}, false
	}
	major, ok1 := sig.Body[0].(uint32)
	minor, ok2 := sig.Body[1].(uint32)
	if !ok1 || !ok2 {
		return Event{}, false
	}
	key := uint64(major)<<32 | uint64(minor)

	switch sig.Name {
	case sessionIface + ".PauseDevice":
		kind, _ := sig.Body[2].(string)
		if kind == "pause" {
			if err := l.session.Call(sessionIface+".PauseDeviceComplete", 0, major, minor).Err; err != nil {
				l.logger.Warn("failed to acknowledge device pause", "major", major, "minor", minor, "error", err)
			}
		}
		if major != DRMMajor || kind == "gone" {
			return Event{}, false
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		l.paused[key] = true
		if !l.active {
			return Event{}, false
		}
		l.active = false
		return Event{Kind: Paused}, true

	case sessionIface + ".ResumeDevice":
		// The resumed fd duplicates the one we already hold.
		if fd, ok := sig.Body[2].(dbus.UnixFD); ok {
			_ = os.NewFile(uintptr(fd), "resumed").Close()
		}
		if major != DRMMajor {
			return Event{}, false
		}
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.paused, key)
		if l.active || len(l.paused) > 0 {
			return Event{}, false
		}
		l.active = true
		return Event{Kind: Activated}, true
	}
	return Event{}, false
}

// Shutdown releases control of the session and closes the bus connection.
func (l *Logind) Shutdown() error {
	err := l.session.Call(sessionIface+".ReleaseControl", 0).Err
	if closeErr := l.conn.Close(); err == nil {
		err = closeErr
	}
	return err
}
