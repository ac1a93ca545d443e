// Package kms drives DRM/KMS devices through dumb buffers: connector
// scanning with CRTC assignment, per-CRTC scanout surfaces, and emulated
// vblank events.
package kms

import (
	"fmt"
	"sort"

	"github.com/NeowayLabs/drm/mode"

	"github.com/ravenwm/raven/internal/display"
)

var connectorTypeNames = map[uint32]string{
	0:  "Unknown",
	1:  "VGA",
	2:  "DVI-I",
	3:  "DVI-D",
	4:  "DVI-A",
	5:  "Composite",
	6:  "SVIDEO",
	7:  "LVDS",
	8:  "Component",
	9:  "DIN",
	10: "DP",
	11: "HDMI-A",
	12: "HDMI-B",
	13: "TV",
	14: "eDP",
	15: "Virtual",
	16: "DSI",
	17: "DPI",
	18: "Writeback",
	19: "SPI",
	20: "USB",
}

// ConnectorTypeName returns the kernel's name for a connector type.
func ConnectorTypeName(t uint32) string {
	if name, ok := connectorTypeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// ConnectorInfo is a connector as seen during one scan.
type ConnectorInfo struct {
	ID        uint32
	Type      uint32
	TypeID    uint32
	Connected bool
	Modes     []display.Mode
	SizeMM    display.Size
	// Encoders lists the encoders the connector can use; Encoder is the
	// one currently bound, or zero.
	Encoders []uint32
	Encoder  uint32

	infos []mode.Info
}

// Name is the conventional connector name, e.g. "HDMI-A-1".
func (c ConnectorInfo) Name() string {
	return display.OutputName(ConnectorTypeName(c.Type), c.TypeID)
}

// EncoderInfo is the subset of an encoder needed for CRTC assignment.
type EncoderInfo struct {
	ID   uint32
	CRTC uint32
	// PossibleCRTCs is a bitmask over the device's CRTC list.
	PossibleCRTCs uint32
}

// Snapshot is the connector topology of a device at one point in time.
type Snapshot struct {
	Connectors []ConnectorInfo
	Encoders   map[uint32]EncoderInfo
	CRTCs      []uint32
}

// EventKind tells whether a connector appeared or went away.
type EventKind int

const (
	Connected EventKind = iota
	Disconnected
)

func (k EventKind) String() string {
	if k == Connected {
		return "connected"
	}
	return "disconnected"
}

// ConnectorEvent reports a connector state change together with the CRTC
// it was (or had been) assigned.
type ConnectorEvent struct {
	Kind      EventKind
	Connector ConnectorInfo
	CRTC      uint32
}

// Scanner diffs successive snapshots into connect/disconnect events and
// keeps each connected connector on its own CRTC.
type Scanner struct {
	assigned map[uint32]uint32 // connector -> crtc
	last     map[uint32]ConnectorInfo
}

// NewScanner returns a scanner that has seen nothing yet.
func NewScanner() *Scanner {
	return &Scanner{
		assigned: make(map[uint32]uint32),
		last:     make(map[uint32]ConnectorInfo),
	}
}

// Scan processes snap. Disconnect events come first so their CRTCs can be
// reused by connectors appearing in the same scan.
func (s *Scanner) Scan(snap *Snapshot) []ConnectorEvent {
	var events []ConnectorEvent
	seen := make(map[uint32]bool, len(snap.Connectors))

	for _, c := range snap.Connectors {
		seen[c.ID] = true
		crtc, tracked := s.assigned[c.ID]
		if tracked && !c.Connected {
			events = append(events, ConnectorEvent{Kind: Disconnected, Connector: c, CRTC: crtc})
			delete(s.assigned, c.ID)
			delete(s.last, c.ID)
		}
	}
	for _, id := range sortedKeys(s.assigned) {
		if seen[id] {
			continue
		}
		events = append(events, ConnectorEvent{Kind: Disconnected, Connector: s.last[id], CRTC: s.assigned[id]})
		delete(s.assigned, id)
		delete(s.last, id)
	}

	for _, c := range snap.Connectors {
		if !c.Connected {
			continue
		}
		if _, tracked := s.assigned[c.ID]; tracked {
			continue
		}
		crtc, ok := s.pickCRTC(snap, c)
		if !ok {
			continue
		}
		s.assigned[c.ID] = crtc
		s.last[c.ID] = c
		events = append(events, ConnectorEvent{Kind: Connected, Connector: c, CRTC: crtc})
	}
	return events
}

// Forget drops a connector's assignment without producing an event, e.g.
// after its output failed to initialize. The next scan reports it again.
func (s *Scanner) Forget(connector uint32) {
	delete(s.assigned, connector)
	delete(s.last, connector)
}

// Reset forgets every assignment.
func (s *Scanner) Reset() {
	s.assigned = make(map[uint32]uint32)
	s.last = make(map[uint32]ConnectorInfo)
}

func (s *Scanner) pickCRTC(snap *Snapshot, c ConnectorInfo) (uint32, bool) {
	taken := make(map[uint32]bool, len(s.assigned))
	for _, crtc := range s.assigned {
		taken[crtc] = true
	}
	known := make(map[uint32]bool, len(snap.CRTCs))
	for _, crtc := range snap.CRTCs {
		known[crtc] = true
	}

	if enc, ok := snap.Encoders[c.Encoder]; ok && enc.CRTC != 0 && known[enc.CRTC] && !taken[enc.CRTC] {
		return enc.CRTC, true
	}
	for _, encID := range c.Encoders {
		enc, ok := snap.Encoders[encID]
		if !ok {
			continue
		}
		for i, crtc := range snap.CRTCs {
			if enc.PossibleCRTCs&(1<<uint(i)) == 0 || taken[crtc] {
				continue
			}
			return crtc, true
		}
	}
	return 0, false
}

func sortedKeys(m map[uint32]uint32) []uint32 {
	keys := make([]uint32, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// modeFromInfo converts a kernel mode, computing refresh in millihertz.
func modeFromInfo(info mode.Info) display.Mode {
	m := display.Mode{
		Width:     int(info.Hdisplay),
		Height:    int(info.Vdisplay),
		Preferred: info.Type&modeTypePreferred != 0,
	}
	total := uint64(info.Htotal) * uint64(info.Vtotal)
	if total == 0 {
		m.RefreshMHz = int(info.Vrefresh) * 1000
		return m
	}
	mhz := uint64(info.Clock) * 1_000_000 / total
	if info.Flags&modeFlagInterlace != 0 {
		mhz *= 2
	}
	if info.Flags&modeFlagDoubleScan != 0 {
		mhz /= 2
	}
	if info.Vscan > 1 {
		mhz /= uint64(info.Vscan)
	}
	m.RefreshMHz = int(mhz)
	return m
}

const (
	modeTypePreferred  = 1 << 3
	modeFlagInterlace  = 1 << 4
	modeFlagDoubleScan = 1 << 5
)

func connectorFromMode(c *mode.Connector) ConnectorInfo {
	info := ConnectorInfo{
		ID:        c.ID,
		Type:      c.Type,
		TypeID:    c.TypeID,
		Connected: c.Connection == mode.Connected,
		SizeMM:    display.Size{Width: int(c.Width), Height: int(c.Height)},
		Encoders:  append([]uint32(nil), c.Encoders...),
		Encoder:   c.EncoderID,
	}
	for _, mi := range c.Modes {
		if mi.Hdisplay == 0 || mi.Vdisplay == 0 {
			continue
		}
		info.infos = append(info.infos, mi)
		info.Modes = append(info.Modes, modeFromInfo(mi))
	}
	return info
}

func (c ConnectorInfo) modeInfo(index int) (mode.Info, error) {
	if index < 0 || index >= len(c.infos) {
		return mode.Info{}, fmt.Errorf("connector %s has no mode %d", c.Name(), index)
	}
	return c.infos[index], nil
}
