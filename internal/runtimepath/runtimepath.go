package runtimepath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultSeat is the seat whose socket carries no seat suffix.
const DefaultSeat = "seat0"

// Dir returns the runtime directory used for the control socket. Priority:
// 1) XDG_RUNTIME_DIR (if set)
// 2) /run/user/<uid> (if present)
// 3) /tmp/raven-runtime-<uid> (created)
func Dir() (string, error) {
	if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
		return runtimeDir, nil
	}

	uid := os.Getuid()
	runUserDir := fmt.Sprintf("/run/user/%d", uid)
	if info, err := os.Stat(runUserDir); err == nil && info.IsDir() {
		return runUserDir, nil
	}

	tmpDir := fmt.Sprintf("/tmp/raven-runtime-%d", uid)
	if err := os.MkdirAll(tmpDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create runtime dir: %w", err)
	}
	return tmpDir, nil
}

// SocketPath returns the control socket path for the default seat.
func SocketPath() (string, error) {
	return SocketPathForSeat(DefaultSeat)
}

// SocketPathForSeat returns the control socket of a compositor running on
// seat. Non-default seats get their own socket so instances do not collide.
func SocketPathForSeat(seat string) (string, error) {
	runtimeDir, err := Dir()
	if err != nil {
		return "", err
	}
	seat = strings.TrimSpace(seat)
	if seat == "" || seat == DefaultSeat {
		return filepath.Join(runtimeDir, "raven.sock"), nil
	}
	if strings.ContainsAny(seat, "/\x00") {
		return "", fmt.Errorf("invalid seat name %q", seat)
	}
	return filepath.Join(runtimeDir, "raven-"+seat+".sock"), nil
}
