package kms

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/NeowayLabs/drm/mode"

	"github.com/ravenwm/raven/internal/render"
)

func topology() *Snapshot {
	return &Snapshot{
		CRTCs: []uint32{40, 41},
		Encoders: map[uint32]EncoderInfo{
			10: {ID: 10, CRTC: 41, PossibleCRTCs: 0b11},
			11: {ID: 11, PossibleCRTCs: 0b11},
		},
		Connectors: []ConnectorInfo{
			{ID: 1, Type: 11, TypeID: 1, Connected: true, Encoders: []uint32{10}, Encoder: 10},
			{ID: 2, Type: 10, TypeID: 1, Connected: true, Encoders: []uint32{11}},
			{ID: 3, Type: 10, TypeID: 2, Connected: false, Encoders: []uint32{11}},
		},
	}
}

func TestScanner_AssignsDistinctCRTCs(t *testing.T) {
	s := NewScanner()
	events := s.Scan(topology())
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Connector.ID != 1 || events[0].CRTC != 41 {
		t.Fatalf("expected connector 1 to keep its current crtc 41, got %+v", events[0])
	}
	if events[1].Connector.ID != 2 || events[1].CRTC != 40 {
		t.Fatalf("expected connector 2 on free crtc 40, got %+v", events[1])
	}

	if again := s.Scan(topology()); len(again) != 0 {
		t.Fatalf("expected no events for an unchanged topology, got %v", again)
	}
}

func TestScanner_DisconnectFreesCRTC(t *testing.T) {
	s := NewScanner()
	s.Scan(topology())

	snap := topology()
	snap.Connectors[1].Connected = false
	snap.Connectors[2].Connected = true
	events := s.Scan(snap)
	if len(events) != 2 {
		t.Fatalf("expected disconnect and connect, got %v", events)
	}
	if events[0].Kind != Disconnected || events[0].Connector.ID != 2 || events[0].CRTC != 40 {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	if events[1].Kind != Connected || events[1].Connector.ID != 3 || events[1].CRTC != 40 {
		t.Fatalf("expected connector 3 to reuse crtc 40, got %+v", events[1])
	}
}

func TestScanner_VanishedConnector(t *testing.T) {
	s := NewScanner()
	s.Scan(topology())

	snap := topology()
	snap.Connectors = snap.Connectors[:1]
	events := s.Scan(snap)
	if len(events) != 1 || events[0].Kind != Disconnected || events[0].Connector.ID != 2 {
		t.Fatalf("expected vanished connector 2 to disconnect, got %v", events)
	}
}

func TestScanner_ForgetReportsAgain(t *testing.T) {
	s := NewScanner()
	s.Scan(topology())
	s.Forget(2)
	events := s.Scan(topology())
	if len(events) != 1 || events[0].Connector.ID != 2 {
		t.Fatalf("expected forgotten connector to reconnect, got %v", events)
	}
}

func TestConnectorName(t *testing.T) {
	c := ConnectorInfo{Type: 11, TypeID: 2}
	if got := c.Name(); got != "HDMI-A-2" {
		t.Fatalf("expected HDMI-A-2, got %q", got)
	}
	if got := ConnectorTypeName(99); got != "Unknown" {
		t.Fatalf("expected Unknown, got %q", got)
	}
}

func TestModeFromInfo(t *testing.T) {
	info := mode.Info{
		Clock:    148500,
		Hdisplay: 1920,
		Htotal:   2200,
		Vdisplay: 1080,
		Vtotal:   1125,
		Type:     modeTypePreferred,
	}
	m := modeFromInfo(info)
	if m.Width != 1920 || m.Height != 1080 || !m.Preferred {
		t.Fatalf("unexpected mode %+v", m)
	}
	if m.RefreshMHz != 60000 {
		t.Fatalf("expected 60000 mHz, got %d", m.RefreshMHz)
	}
}

func TestConnectorFromMode_SkipsEmptyModes(t *testing.T) {
	c := connectorFromMode(&mode.Connector{
		ID:         7,
		Connection: mode.Disconnected,
		Modes:      []mode.Info{{}},
	})
	if c.Connected || len(c.Modes) != 0 {
		t.Fatalf("expected disconnected connector without modes, got %+v", c)
	}
	if _, err := c.modeInfo(0); err == nil {
		t.Fatalf("expected error for missing mode")
	}
}

func TestResolveRenderNode(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "dev", "char", "226:0", "device", "drm")
	for _, name := range []string{"card0", "renderD128"} {
		if err := os.MkdirAll(filepath.Join(dir, name), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "renderD128", "dev"), []byte("226:128\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	node, ok := ResolveRenderNode(root, render.Node{Major: 226, Minor: 0})
	if !ok || node != (render.Node{Major: 226, Minor: 128}) {
		t.Fatalf("expected 226:128, got %v (ok=%v)", node, ok)
	}
	if _, ok := ResolveRenderNode(root, render.Node{Major: 226, Minor: 1}); ok {
		t.Fatalf("expected no render node for unknown card")
	}
}

func TestBlitXRGB(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 2))
	src.SetRGBA(1, 1, color.RGBA{R: 10, G: 20, B: 30, A: 255})
	pitch := 4 * 4
	dst := make([]byte, pitch*2)

	blitXRGB(dst, pitch, src, image.Rect(1, 1, 2, 2))
	px := dst[pitch+4 : pitch+8]
	if px[0] != 30 || px[1] != 20 || px[2] != 10 || px[3] != 0xff {
		t.Fatalf("expected BGRX pixel, got %v", px)
	}
	if dst[0] != 0 {
		t.Fatalf("expected pixels outside the rect untouched")
	}
}
