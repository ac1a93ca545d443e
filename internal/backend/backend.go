// Package backend drives DRM/KMS outputs: GPU hot-plug, connector to output
// mapping, per-output frame pacing and session pause/resume.
//
// All state is owned by the event loop goroutine. Every exported method must
// be called from the loop, and every method tolerates a nil *Backend so
// callers running without hardware can pass nil through.
package backend

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"sort"
	"time"

	"github.com/ravenwm/raven/internal/config"
	"github.com/ravenwm/raven/internal/cursor"
	"github.com/ravenwm/raven/internal/display"
	"github.com/ravenwm/raven/internal/render"
	"github.com/ravenwm/raven/internal/udev"
)

// ErrNoGPU is returned by Init when no adapter could be opened.
var ErrNoGPU = errors.New("backend: no usable gpu")

// clearColor is the backdrop behind every output.
var clearColor = color.NRGBA{R: 150, G: 154, B: 171, A: 255}

// OutputKey identifies an output surface by adapter and CRTC.
type OutputKey struct {
	Node render.Node
	CRTC uint32
}

func (k OutputKey) String() string {
	return fmt.Sprintf("%s/%d", k.Node, k.CRTC)
}

func (k OutputKey) less(o OutputKey) bool {
	if k.Node.Major != o.Node.Major {
		return k.Node.Major < o.Node.Major
	}
	if k.Node.Minor != o.Node.Minor {
		return k.Node.Minor < o.Node.Minor
	}
	return k.CRTC < o.CRTC
}

// Config holds configuration for a Backend.
type Config struct {
	Loop    Loop
	Session Session
	// Open defaults to KMSOpener over /sys.
	Open DeviceOpener
	// Renderers creates the renderer of each adapter. Defaults to the
	// software renderer.
	Renderers render.Factory
	// Cursor defaults to a manager configured from the environment.
	Cursor *cursor.Manager

	Scene   SceneProvider
	Pointer Pointer
	Globals Globals
	Input   InputStack

	Monitors        []config.MonitorConfig
	ForceFullRedraw bool

	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
}

// Backend is the hardware output backend.
type Backend struct {
	loop      Loop
	session   Session
	open      DeviceOpener
	renderers render.Factory
	cursor    *cursor.Manager
	scene     SceneProvider
	pointer   Pointer
	globals   Globals
	input     InputStack
	logger    *slog.Logger
	now       func() time.Time
	start     time.Time

	monitors  []config.MonitorConfig
	forceFull bool

	pool    *render.Pool
	primary render.Node
	space   *display.Space
	devices map[render.Node]*device
	paused  bool

	queued      map[OutputKey]struct{}
	drainPosted bool
}

// New creates a backend. No device is opened until Init.
func New(cfg Config) (*Backend, error) {
	if cfg.Loop == nil {
		return nil, errors.New("backend: loop is required")
	}
	if cfg.Session == nil {
		return nil, errors.New("backend: session is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	open := cfg.Open
	if open == nil {
		open = KMSOpener("", logger)
	}
	cur := cfg.Cursor
	if cur == nil {
		ccfg := cursor.ConfigFromEnv()
		ccfg.Logger = logger
		cur = cursor.NewManager(ccfg)
	}
	var scene SceneProvider = emptyScene{}
	if cfg.Scene != nil {
		scene = cfg.Scene
	}
	var pointer Pointer = hiddenPointer{}
	if cfg.Pointer != nil {
		pointer = cfg.Pointer
	}
	var globals Globals = &noGlobals{}
	if cfg.Globals != nil {
		globals = cfg.Globals
	}
	var input InputStack = noInput{}
	if cfg.Input != nil {
		input = cfg.Input
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Backend{
		loop:      cfg.Loop,
		session:   cfg.Session,
		open:      open,
		renderers: cfg.Renderers,
		cursor:    cur,
		scene:     scene,
		pointer:   pointer,
		globals:   globals,
		input:     input,
		logger:    logger,
		now:       now,
		start:     now(),
		monitors:  cfg.Monitors,
		forceFull: cfg.ForceFullRedraw,
		space:     display.NewSpace(),
		devices:   make(map[render.Node]*device),
		queued:    make(map[OutputKey]struct{}),
	}, nil
}

// Init sets up the renderer pool around primary and opens every candidate
// adapter. It fails only when none of them could be opened.
func (b *Backend) Init(gpus []udev.GPU, primary udev.GPU) error {
	if b == nil {
		return ErrNoGPU
	}
	b.primary = primary.Node
	b.pool = render.NewPool(render.PoolConfig{
		Primary: primary.Node,
		Factory: b.renderers,
		Logger:  b.logger,
	})
	b.logger.Info("initializing drm backend",
		"seat", b.session.Seat(),
		"primary_gpu", primary.Path,
		"candidates", len(gpus),
	)

	opened := 0
	for _, g := range gpus {
		if err := b.addDevice(g.Node, g.Path); err != nil {
			b.logger.Warn("skipping gpu", "path", g.Path, "node", g.Node.String(), "error", err)
			continue
		}
		opened++
	}
	if opened == 0 {
		return ErrNoGPU
	}
	return nil
}

// Shutdown tears down every device and its outputs.
func (b *Backend) Shutdown() {
	if b == nil {
		return
	}
	for _, d := range b.deviceList() {
		b.removeDevice(d)
	}
}

// Space returns the logical output space.
func (b *Backend) Space() *display.Space {
	if b == nil {
		return nil
	}
	return b.space
}

// Paused reports whether the session is paused.
func (b *Backend) Paused() bool {
	return b != nil && b.paused
}

// SetMonitors replaces the monitor configuration. It applies to outputs
// connected afterwards.
func (b *Backend) SetMonitors(monitors []config.MonitorConfig) {
	if b == nil {
		return
	}
	b.monitors = monitors
}

// SetForceFullRedraw toggles full damage on every frame.
func (b *Backend) SetForceFullRedraw(v bool) {
	if b == nil {
		return
	}
	b.forceFull = v
}

// ReloadCursorTheme reloads the cursor theme and drops every cached cursor
// buffer.
func (b *Backend) ReloadCursorTheme() {
	if b == nil {
		return
	}
	b.cursor.Invalidate()
}

// SetCursorTheme switches the cursor theme and size.
func (b *Backend) SetCursorTheme(theme string, size uint32) {
	if b == nil {
		return
	}
	b.cursor.SetTheme(theme, size)
}

// EarlyImport stages a freshly committed client buffer on the primary
// adapter ahead of the next render. Failures are only logged.
func (b *Backend) EarlyImport(buf render.Buffer) {
	if b == nil || b.pool == nil {
		return
	}
	if err := b.pool.EarlyImport(buf); err != nil {
		b.logger.Debug("early import failed", "buffer", buf.ID(), "error", err)
	}
}

// ReleaseBuffer is called when a client buffer is destroyed. It drops the
// buffer's cross-adapter copies and renderer state.
func (b *Backend) ReleaseBuffer(id uint64) {
	if b == nil || b.pool == nil {
		return
	}
	b.pool.Release(id)
}

// ImportExternal validates a client or device buffer through the primary
// adapter. Errors wrap render.ErrImportFailed.
func (b *Backend) ImportExternal(buf render.Buffer) error {
	if b == nil || b.pool == nil {
		return fmt.Errorf("%w: backend not active", render.ErrImportFailed)
	}
	return b.pool.ImportExternal(buf)
}

// Status is a summary of the backend state.
type Status struct {
	Seat         string `json:"seat"`
	Paused       bool   `json:"paused"`
	PrimaryGPU   string `json:"primary_gpu"`
	Devices      int    `json:"devices"`
	Outputs      int    `json:"outputs"`
	CursorTheme  string `json:"cursor_theme"`
	CursorSize   uint32 `json:"cursor_size"`
	CursorFrames int    `json:"cursor_frames"`
	// Renderers lists the adapters that currently have a renderer.
	Renderers []string `json:"renderers,omitempty"`
}

// Status returns a snapshot of the backend state.
func (b *Backend) Status() Status {
	if b == nil {
		return Status{}
	}
	outputs := 0
	for _, d := range b.devices {
		outputs += len(d.surfaces)
	}
	var renderers []string
	if b.pool != nil {
		for _, n := range b.pool.Nodes() {
			renderers = append(renderers, n.String())
		}
	}
	return Status{
		Seat:         b.session.Seat(),
		Paused:       b.paused,
		PrimaryGPU:   b.primary.String(),
		Devices:      len(b.devices),
		Outputs:      outputs,
		CursorTheme:  b.cursor.Theme(),
		CursorSize:   b.cursor.Size(),
		CursorFrames: b.cursor.CachedFrames(),
		Renderers:    renderers,
	}
}

// OutputInfo describes one active output.
type OutputInfo struct {
	Name      string       `json:"name"`
	Key       string       `json:"key"`
	Make      string       `json:"make"`
	Model     string       `json:"model"`
	Serial    string       `json:"serial"`
	Mode      display.Mode `json:"mode"`
	Transform string       `json:"transform"`
	Scale     float64      `json:"scale"`
	X         int          `json:"x"`
	Y         int          `json:"y"`
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	FrameSeq  uint32       `json:"frame_seq"`
}

// Outputs returns the active outputs ordered by adapter and CRTC.
func (b *Backend) Outputs() []OutputInfo {
	if b == nil {
		return nil
	}
	var out []OutputInfo
	for _, s := range b.surfaceList() {
		o := s.output
		phys := o.Physical()
		x, y := o.Position()
		size := o.LogicalSize()
		out = append(out, OutputInfo{
			Name:      o.Name(),
			Key:       s.key.String(),
			Make:      phys.Make,
			Model:     phys.Model,
			Serial:    phys.Serial,
			Mode:      o.CurrentMode(),
			Transform: o.CurrentTransform().String(),
			Scale:     o.CurrentScale().Fractional(),
			X:         x,
			Y:         y,
			Width:     size.Width,
			Height:    size.Height,
			FrameSeq:  s.frameSeq,
		})
	}
	return out
}

// DeviceNodes returns the nodes of every opened adapter, sorted.
func (b *Backend) DeviceNodes() []render.Node {
	if b == nil {
		return nil
	}
	devices := b.deviceList()
	nodes := make([]render.Node, 0, len(devices))
	for _, d := range devices {
		nodes = append(nodes, d.node)
	}
	return nodes
}

// FindOutput returns the key of the output with the given name.
func (b *Backend) FindOutput(name string) (OutputKey, bool) {
	if b == nil {
		return OutputKey{}, false
	}
	for _, s := range b.surfaceList() {
		if display.NamesMatch(name, s.output.Name()) {
			return s.key, true
		}
	}
	return OutputKey{}, false
}

func (b *Backend) deviceList() []*device {
	out := make([]*device, 0, len(b.devices))
	for _, d := range b.devices {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return OutputKey{Node: out[i].node}.less(OutputKey{Node: out[j].node})
	})
	return out
}

func (b *Backend) surfaceList() []*outputSurface {
	var out []*outputSurface
	for _, d := range b.devices {
		for _, s := range d.surfaces {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.less(out[j].key) })
	return out
}

func (b *Backend) surface(key OutputKey) *outputSurface {
	d, ok := b.devices[key.Node]
	if !ok {
		return nil
	}
	return d.surfaces[key.CRTC]
}
