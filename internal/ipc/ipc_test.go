package ipc

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ravenwm/raven/internal/backend"
	"github.com/ravenwm/raven/internal/display"
)

type fakeHandler struct {
	mu            sync.Mutex
	outputs       []backend.OutputInfo
	redrawn       []string
	cursorReloads int
	reloadErr     error
}

func (h *fakeHandler) Status() (backend.Status, error) {
	return backend.Status{Seat: "seat0", Devices: 1, Outputs: len(h.outputs), CursorTheme: "default", CursorSize: 24}, nil
}

func (h *fakeHandler) Outputs() ([]backend.OutputInfo, error) { return h.outputs, nil }

func (h *fakeHandler) Redraw(name string) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if name == "" {
		var all []string
		for _, o := range h.outputs {
			all = append(all, o.Name)
		}
		h.redrawn = append(h.redrawn, all...)
		return all, nil
	}
	for _, o := range h.outputs {
		if display.NamesMatch(name, o.Name) {
			h.redrawn = append(h.redrawn, o.Name)
			return []string{o.Name}, nil
		}
	}
	return nil, errors.New("no such output")
}

func (h *fakeHandler) ReloadCursorTheme() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cursorReloads++
	return nil
}

func (h *fakeHandler) Reload() (ReloadData, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.reloadErr != nil {
		return ReloadData{}, h.reloadErr
	}
	return ReloadData{Files: []string{"/etc/raven.yaml"}}, nil
}

func (h *fakeHandler) ConfigFiles() []string { return []string{"/etc/raven.yaml"} }

func startServer(t *testing.T, h Handler) (*Server, *Client) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "raven.sock")
	srv, err := NewServer(ServerConfig{
		SocketPath: path,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, h)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(srv.Stop)
	return srv, NewClientWithPath(path)
}

func TestServer_StatusAndOutputs(t *testing.T) {
	h := &fakeHandler{outputs: []backend.OutputInfo{
		{Name: "DP-1", Mode: display.Mode{Width: 2560, Height: 1440, RefreshMHz: 143912}, Transform: "normal", Scale: 1},
		{Name: "HDMI-A-1", Mode: display.Mode{Width: 1920, Height: 1080, RefreshMHz: 60000}, Transform: "90", Scale: 2},
	}}
	_, client := startServer(t, h)

	status, err := client.GetStatus()
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if status.Seat != "seat0" || status.Outputs != 2 || status.CursorSize != 24 {
		t.Fatalf("unexpected status: %#v", status)
	}
	if len(status.ConfigFiles) != 1 {
		t.Fatalf("expected config files in status, got %v", status.ConfigFiles)
	}

	outputs, err := client.GetOutputs()
	if err != nil {
		t.Fatalf("GetOutputs: %v", err)
	}
	if len(outputs.Outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outputs.Outputs))
	}
	if got := outputs.Outputs[0].Mode.RefreshMHz; got != 143912 {
		t.Fatalf("expected refresh 143912, got %d", got)
	}
	if outputs.Outputs[1].Transform != "90" {
		t.Fatalf("expected transform 90, got %q", outputs.Outputs[1].Transform)
	}
}

func TestServer_Redraw(t *testing.T) {
	h := &fakeHandler{outputs: []backend.OutputInfo{{Name: "DP-1"}, {Name: "eDP-1"}}}
	_, client := startServer(t, h)

	names, err := client.Redraw("edp-1")
	if err != nil {
		t.Fatalf("Redraw: %v", err)
	}
	if len(names) != 1 || names[0] != "eDP-1" {
		t.Fatalf("expected [eDP-1], got %v", names)
	}

	names, err = client.Redraw("")
	if err != nil {
		t.Fatalf("Redraw all: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected both outputs, got %v", names)
	}

	if _, err := client.Redraw("VGA-1"); err == nil || !strings.Contains(err.Error(), "no such output") {
		t.Fatalf("expected unknown output error, got %v", err)
	}
}

func TestServer_ReloadCommands(t *testing.T) {
	h := &fakeHandler{}
	_, client := startServer(t, h)

	if err := client.ReloadCursorTheme(); err != nil {
		t.Fatalf("ReloadCursorTheme: %v", err)
	}
	h.mu.Lock()
	reloads := h.cursorReloads
	h.mu.Unlock()
	if reloads != 1 {
		t.Fatalf("expected 1 cursor reload, got %d", reloads)
	}

	data, err := client.Reload()
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if len(data.Files) != 1 {
		t.Fatalf("expected reload files, got %v", data.Files)
	}

	h.mu.Lock()
	h.reloadErr = errors.New("monitors.0.name: name is required")
	h.mu.Unlock()
	if _, err := client.Reload(); err == nil || !strings.Contains(err.Error(), "name is required") {
		t.Fatalf("expected reload error to reach the client, got %v", err)
	}
}

func TestServer_UnknownCommand(t *testing.T) {
	_, client := startServer(t, &fakeHandler{})
	err := client.call(CommandType("UNDO"), nil, nil)
	if err == nil || !strings.Contains(err.Error(), "Unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestClient_NotRunning(t *testing.T) {
	client := NewClientWithPath(filepath.Join(t.TempDir(), "missing.sock"))
	if err := client.Ping(); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}
