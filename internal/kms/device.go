package kms

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/NeowayLabs/drm/mode"
	"golang.org/x/sys/unix"

	"github.com/ravenwm/raven/internal/render"
)

var (
	// ErrFramePending is returned when a frame is queued before the previous
	// one was acknowledged with FrameSubmitted.
	ErrFramePending = errors.New("kms: frame already pending")
	// ErrPaused is returned while the device is paused by the session.
	ErrPaused = errors.New("kms: device paused")
)

// OpenFlags are the flags devices are opened with through the session.
const OpenFlags = unix.O_RDWR | unix.O_CLOEXEC | unix.O_NOCTTY | unix.O_NONBLOCK

// DefaultSysfsRoot is where device attributes are looked up.
const DefaultSysfsRoot = "/sys"

// VBlank is delivered when a queued frame has been presented.
type VBlank struct {
	CRTC     uint32
	Sequence uint64
	Time     time.Time
}

// DeviceConfig holds configuration for a Device.
type DeviceConfig struct {
	Path      string
	SysfsRoot string
	Logger    *slog.Logger
}

// Device is an opened DRM card.
type Device struct {
	file       *os.File
	path       string
	node       render.Node
	renderNode render.Node
	sysfsRoot  string
	logger     *slog.Logger
	scanner    *Scanner

	mu       sync.Mutex
	paused   bool
	surfaces map[uint32]*Surface
	onVBlank func(VBlank)
}

// NewDevice wraps an already opened card. The caller keeps ownership of
// file and closes it after Close.
func NewDevice(file *os.File, cfg DeviceConfig) (*Device, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	root := cfg.SysfsRoot
	if root == "" {
		root = DefaultSysfsRoot
	}

	var st unix.Stat_t
	if err := unix.Fstat(int(file.Fd()), &st); err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", cfg.Path, err)
	}
	node := render.Node{Major: unix.Major(uint64(st.Rdev)), Minor: unix.Minor(uint64(st.Rdev))}

	if _, err := mode.GetResources(file); err != nil {
		return nil, fmt.Errorf("%s does not support modesetting: %w", cfg.Path, err)
	}

	renderNode, ok := ResolveRenderNode(root, node)
	if !ok {
		logger.Debug("no render node, using scanout node", "path", cfg.Path, "node", node.String())
		renderNode = node
	}

	return &Device{
		file:       file,
		path:       cfg.Path,
		node:       node,
		renderNode: renderNode,
		sysfsRoot:  root,
		logger:     logger,
		scanner:    NewScanner(),
		surfaces:   make(map[uint32]*Surface),
	}, nil
}

func (d *Device) Path() string            { return d.path }
func (d *Device) Node() render.Node       { return d.node }
func (d *Device) RenderNode() render.Node { return d.renderNode }

// SetVBlankHandler registers fn for vblank events of every surface. fn runs
// on a timer goroutine. Passing nil unregisters.
func (d *Device) SetVBlankHandler(fn func(VBlank)) {
	d.mu.Lock()
	d.onVBlank = fn
	d.mu.Unlock()
}

func (d *Device) deliver(ev VBlank) {
	d.mu.Lock()
	fn := d.onVBlank
	d.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// Snapshot reads the current connector topology.
func (d *Device) Snapshot() (*Snapshot, error) {
	res, err := mode.GetResources(d.file)
	if err != nil {
		return nil, fmt.Errorf("failed to read resources: %w", err)
	}
	snap := &Snapshot{
		Encoders: make(map[uint32]EncoderInfo, len(res.Encoders)),
		CRTCs:    append([]uint32(nil), res.Crtcs...),
	}
	for _, id := range res.Encoders {
		enc, err := mode.GetEncoder(d.file, id)
		if err != nil {
			d.logger.Debug("failed to read encoder", "encoder", id, "error", err)
			continue
		}
		snap.Encoders[id] = EncoderInfo{ID: enc.ID, CRTC: enc.CrtcID, PossibleCRTCs: enc.PossibleCrtcs}
	}
	for _, id := range res.Connectors {
		conn, err := mode.GetConnector(d.file, id)
		if err != nil {
			d.logger.Debug("failed to read connector", "connector", id, "error", err)
			continue
		}
		snap.Connectors = append(snap.Connectors, connectorFromMode(conn))
	}
	return snap, nil
}

// Scan rescans connectors and reports what changed since the last scan.
func (d *Device) Scan() ([]ConnectorEvent, error) {
	snap, err := d.Snapshot()
	if err != nil {
		return nil, err
	}
	return d.scanner.Scan(snap), nil
}

// ForgetConnector drops a connector's CRTC assignment so the next scan
// reports it as newly connected.
func (d *Device) ForgetConnector(id uint32) {
	d.scanner.Forget(id)
}

// EDID returns the raw EDID blob of a connector from sysfs.
func (d *Device) EDID(c ConnectorInfo) ([]byte, error) {
	dir := filepath.Join(d.sysfsRoot, "class", "drm", fmt.Sprintf("%s-%s", filepath.Base(d.path), c.Name()))
	data, err := os.ReadFile(filepath.Join(dir, "edid"))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty edid")
	}
	return data, nil
}

// Pause stops presenting on every surface until Activate.
func (d *Device) Pause() {
	d.mu.Lock()
	d.paused = true
	surfaces := d.surfaceList()
	d.mu.Unlock()
	for _, s := range surfaces {
		s.pause()
	}
}

// Activate restores every surface after a pause. The first error is
// returned after all surfaces were tried.
func (d *Device) Activate() error {
	d.mu.Lock()
	d.paused = false
	surfaces := d.surfaceList()
	d.mu.Unlock()

	var first error
	for _, s := range surfaces {
		if err := s.activate(); err != nil && first == nil {
			first = fmt.Errorf("crtc %d: %w", s.crtc, err)
		}
	}
	return first
}

// Paused reports whether the device is paused.
func (d *Device) Paused() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.paused
}

// Close releases every surface and drops the vblank registration. The
// file itself is left to the caller.
func (d *Device) Close() error {
	d.SetVBlankHandler(nil)
	d.mu.Lock()
	surfaces := d.surfaceList()
	d.mu.Unlock()

	var first error
	for _, s := range surfaces {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (d *Device) surfaceList() []*Surface {
	out := make([]*Surface, 0, len(d.surfaces))
	for _, s := range d.surfaces {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].crtc < out[j].crtc })
	return out
}

func (d *Device) removeSurface(crtc uint32) {
	d.mu.Lock()
	delete(d.surfaces, crtc)
	d.mu.Unlock()
}

// ResolveRenderNode finds the renderD* node belonging to the card with the
// given device number by walking sysfs.
func ResolveRenderNode(sysfsRoot string, card render.Node) (render.Node, bool) {
	dir := filepath.Join(sysfsRoot, "dev", "char", card.String(), "device", "drm")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return render.Node{}, false
	}
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "renderD") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name(), "dev"))
		if err != nil {
			continue
		}
		if node, ok := render.ParseNode(strings.TrimSpace(string(raw))); ok {
			return node, true
		}
	}
	return render.Node{}, false
}
