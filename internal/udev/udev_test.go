package udev

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pilebones/go-udev/netlink"

	"github.com/ravenwm/raven/internal/render"
)

func writeCard(t *testing.T, root, name, dev string, bootVGA bool) {
	t.Helper()
	dir := filepath.Join(root, "class", "drm", name)
	if err := os.MkdirAll(filepath.Join(dir, "device"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if dev != "" {
		if err := os.WriteFile(filepath.Join(dir, "dev"), []byte(dev+"\n"), 0o644); err != nil {
			t.Fatalf("write dev: %v", err)
		}
	}
	if bootVGA {
		if err := os.WriteFile(filepath.Join(dir, "device", "boot_vga"), []byte("1\n"), 0o644); err != nil {
			t.Fatalf("write boot_vga: %v", err)
		}
	}
}

func TestEnumerate(t *testing.T) {
	root := t.TempDir()
	writeCard(t, root, "card1", "226:1", true)
	writeCard(t, root, "card0", "226:0", false)
	writeCard(t, root, "card0-HDMI-A-1", "", false)

	gpus, err := Enumerate(root, "/dev/dri")
	if err != nil {
		t.Fatalf("enumerate: %v", err)
	}
	if len(gpus) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(gpus))
	}
	if gpus[0].Path != "/dev/dri/card0" || gpus[0].Node != (render.Node{Major: 226, Minor: 0}) {
		t.Fatalf("unexpected first card %+v", gpus[0])
	}

	primary, ok := Primary(gpus, "")
	if !ok || primary.Path != "/dev/dri/card1" {
		t.Fatalf("expected boot_vga card1 to be primary, got %+v", primary)
	}
	primary, _ = Primary(gpus, "card0")
	if primary.Path != "/dev/dri/card0" {
		t.Fatalf("expected configured card0 to win, got %+v", primary)
	}
	if _, ok := Primary(nil, ""); ok {
		t.Fatalf("expected no primary without cards")
	}
}

func TestParseEvent(t *testing.T) {
	ue := netlink.UEvent{
		Action: netlink.KObjAction("change"),
		KObj:   "/devices/pci0000:00/0000:00:02.0/drm/card0",
		Env: map[string]string{
			"SUBSYSTEM": "drm",
			"DEVNAME":   "dri/card0",
			"MAJOR":     "226",
			"MINOR":     "0",
			"HOTPLUG":   "1",
		},
	}
	ev, ok := ParseEvent(ue, "/dev/dri")
	if !ok {
		t.Fatalf("expected drm card event to parse")
	}
	if ev.Action != Change || ev.Path != "/dev/dri/card0" || ev.Node.Minor != 0 || ev.Node.Major != 226 {
		t.Fatalf("unexpected event %+v", ev)
	}

	ue.Env["DEVNAME"] = "dri/renderD128"
	if _, ok := ParseEvent(ue, "/dev/dri"); ok {
		t.Fatalf("expected render node event to be ignored")
	}

	ue.Env["DEVNAME"] = "dri/card0"
	ue.Env["SUBSYSTEM"] = "input"
	if _, ok := ParseEvent(ue, "/dev/dri"); ok {
		t.Fatalf("expected non-drm event to be ignored")
	}
}
