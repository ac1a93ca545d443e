package backend

import (
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/ravenwm/raven/internal/config"
	"github.com/ravenwm/raven/internal/cursor"
	"github.com/ravenwm/raven/internal/display"
	"github.com/ravenwm/raven/internal/eventloop"
	"github.com/ravenwm/raven/internal/kms"
	"github.com/ravenwm/raven/internal/render"
	"github.com/ravenwm/raven/internal/session"
	"github.com/ravenwm/raven/internal/udev"
)

type fakeTimer struct {
	d  time.Duration
	fn func()
}

type fakeLoop struct {
	posted []func()
	timers map[eventloop.Token]*fakeTimer
	next   eventloop.Token
}

func newFakeLoop() *fakeLoop {
	return &fakeLoop{timers: make(map[eventloop.Token]*fakeTimer)}
}

func (l *fakeLoop) Post(fn func()) { l.posted = append(l.posted, fn) }

func (l *fakeLoop) Schedule(d time.Duration, fn func()) eventloop.Token {
	l.next++
	l.timers[l.next] = &fakeTimer{d: d, fn: fn}
	return l.next
}

func (l *fakeLoop) Cancel(token eventloop.Token) bool {
	_, ok := l.timers[token]
	delete(l.timers, token)
	return ok
}

func (l *fakeLoop) drain() {
	for len(l.posted) > 0 {
		batch := l.posted
		l.posted = nil
		for _, fn := range batch {
			fn()
		}
	}
}

func (l *fakeLoop) onlyTimer(t *testing.T) (eventloop.Token, *fakeTimer) {
	t.Helper()
	if len(l.timers) != 1 {
		t.Fatalf("expected exactly one armed timer, got %d", len(l.timers))
	}
	for token, timer := range l.timers {
		return token, timer
	}
	return 0, nil
}

func (l *fakeLoop) fire(token eventloop.Token) {
	timer, ok := l.timers[token]
	if !ok {
		return
	}
	delete(l.timers, token)
	timer.fn()
}

type fakeScanout struct {
	damaged   bool
	renderErr error
	renders   int
	queued    int
	submitted int
	resets    int
	closed    bool
	elements  []render.Element
}

func (s *fakeScanout) RenderFrame(_ render.Renderer, elements []render.Element, _ color.Color) (bool, error) {
	s.renders++
	s.elements = elements
	if s.renderErr != nil {
		return false, s.renderErr
	}
	return s.damaged, nil
}

func (s *fakeScanout) QueueFrame() error {
	s.queued++
	return nil
}

func (s *fakeScanout) FrameSubmitted() error {
	s.submitted++
	return nil
}

func (s *fakeScanout) Reset() { s.resets++ }

func (s *fakeScanout) Close() error {
	s.closed = true
	return nil
}

type fakeGPU struct {
	node        render.Node
	pending     []kms.ConnectorEvent
	scanouts    map[uint32]*fakeScanout
	damaged     bool
	failScanout bool
	forgotten   []uint32
	paused      bool
	activated   int
	activateErr error
	closed      bool
	vblank      func(kms.VBlank)
}

func newFakeGPU(node render.Node) *fakeGPU {
	return &fakeGPU{node: node, scanouts: make(map[uint32]*fakeScanout), damaged: true}
}

func (g *fakeGPU) Node() render.Node       { return g.node }
func (g *fakeGPU) RenderNode() render.Node { return render.Node{} }

func (g *fakeGPU) Scan() ([]kms.ConnectorEvent, error) {
	events := g.pending
	g.pending = nil
	return events, nil
}

func (g *fakeGPU) ForgetConnector(id uint32) { g.forgotten = append(g.forgotten, id) }

func (g *fakeGPU) EDID(kms.ConnectorInfo) ([]byte, error) {
	return nil, errors.New("no edid")
}

func (g *fakeGPU) CreateScanout(crtc uint32, _ kms.ConnectorInfo, _ int) (Scanout, error) {
	if g.failScanout {
		return nil, errors.New("no buffers")
	}
	s := &fakeScanout{damaged: g.damaged}
	g.scanouts[crtc] = s
	return s, nil
}

func (g *fakeGPU) SetVBlankHandler(fn func(kms.VBlank)) { g.vblank = fn }
func (g *fakeGPU) Pause()                               { g.paused = true }

func (g *fakeGPU) Activate() error {
	g.activated++
	g.paused = false
	return g.activateErr
}

func (g *fakeGPU) Close() error {
	g.closed = true
	return nil
}

type fakeSession struct {
	dir    string
	opened int
	closed int
}

func (s *fakeSession) Open(path string, _ int) (*os.File, error) {
	s.opened++
	return os.Create(filepath.Join(s.dir, filepath.Base(path)))
}

func (s *fakeSession) Close(f *os.File) error {
	s.closed++
	return f.Close()
}

func (s *fakeSession) Seat() string { return "seat0" }

type fakeGlobals struct {
	next    GlobalID
	live    map[GlobalID]string
	removed int
	flushes int
}

func (g *fakeGlobals) CreateOutputGlobal(o *display.Output) GlobalID {
	g.next++
	g.live[g.next] = o.Name()
	return g.next
}

func (g *fakeGlobals) RemoveGlobal(id GlobalID) {
	delete(g.live, id)
	g.removed++
}

func (g *fakeGlobals) FlushClients() { g.flushes++ }

type fakeInput struct {
	suspended int
	resumed   int
}

func (i *fakeInput) Suspend() { i.suspended++ }

func (i *fakeInput) Resume() error {
	i.resumed++
	return nil
}

type fakePointer struct {
	loc    display.Point
	status CursorStatus
}

func (p *fakePointer) Location() display.Point    { return p.loc }
func (p *fakePointer) CursorStatus() CursorStatus { return p.status }

type fakeScene struct {
	elements []render.Element
	frames   int
	feedback []FrameMeta
}

func (s *fakeScene) Elements(*display.Output) []render.Element { return s.elements }

func (s *fakeScene) SendFrames(*display.Output, time.Time, uint32) { s.frames++ }

func (s *fakeScene) PresentationFeedback(_ *display.Output, meta FrameMeta) {
	s.feedback = append(s.feedback, meta)
}

type harness struct {
	b       *Backend
	loop    *fakeLoop
	session *fakeSession
	globals *fakeGlobals
	input   *fakeInput
	pointer *fakePointer
	scene   *fakeScene
	gpus    map[string]*fakeGPU
}

var card0 = udev.GPU{Path: "/dev/dri/card0", Node: render.Node{Major: 226, Minor: 0}}

func newHarness(t *testing.T, monitors []config.MonitorConfig) *harness {
	t.Helper()
	h := &harness{
		loop:    newFakeLoop(),
		session: &fakeSession{dir: t.TempDir()},
		globals: &fakeGlobals{live: make(map[GlobalID]string)},
		input:   &fakeInput{},
		pointer: &fakePointer{status: CursorStatus{Kind: CursorHidden}},
		scene:   &fakeScene{},
		gpus:    make(map[string]*fakeGPU),
	}
	b, err := New(Config{
		Loop:    h.loop,
		Session: h.session,
		Open: func(_ *os.File, path string) (GPU, error) {
			g, ok := h.gpus[path]
			if !ok {
				return nil, errors.New("not a drm device")
			}
			return g, nil
		},
		Cursor: cursor.NewManager(cursor.Config{
			Loader: func(string) ([]cursor.Image, error) {
				return []cursor.Image{cursor.Fallback()}, nil
			},
		}),
		Scene:    h.scene,
		Pointer:  h.pointer,
		Globals:  h.globals,
		Input:    h.input,
		Monitors: monitors,
	})
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	h.b = b
	return h
}

func connector(id, typ, typeID uint32, modes ...display.Mode) kms.ConnectorInfo {
	if len(modes) == 0 {
		modes = []display.Mode{{Width: 1920, Height: 1080, RefreshMHz: 60_000, Preferred: true}}
	}
	return kms.ConnectorInfo{ID: id, Type: typ, TypeID: typeID, Connected: true, Modes: modes}
}

func connected(c kms.ConnectorInfo, crtc uint32) kms.ConnectorEvent {
	return kms.ConnectorEvent{Kind: kms.Connected, Connector: c, CRTC: crtc}
}

func (h *harness) addGPU(t *testing.T, gpu udev.GPU, events ...kms.ConnectorEvent) *fakeGPU {
	t.Helper()
	g := newFakeGPU(gpu.Node)
	g.pending = events
	h.gpus[gpu.Path] = g
	return g
}

func (h *harness) init(t *testing.T) {
	t.Helper()
	var gpus []udev.GPU
	for path, g := range h.gpus {
		gpus = append(gpus, udev.GPU{Path: path, Node: g.node})
	}
	if err := h.b.Init(gpus, card0); err != nil {
		t.Fatalf("init: %v", err)
	}
}

func TestInit_NoGPUIsFatal(t *testing.T) {
	h := newHarness(t, nil)
	err := h.b.Init([]udev.GPU{card0}, card0)
	if !errors.Is(err, ErrNoGPU) {
		t.Fatalf("expected ErrNoGPU, got %v", err)
	}
	if h.session.closed != 1 {
		t.Fatalf("expected the opened file to be handed back, got %d closes", h.session.closed)
	}
}

func TestLifecycle_ConnectDisconnectRemove(t *testing.T) {
	h := newHarness(t, nil)
	dp := connector(1, 10, 1)
	g := h.addGPU(t, card0, connected(dp, 40))
	h.init(t)

	outputs := h.b.Outputs()
	if len(outputs) != 1 || outputs[0].Name != "DP-1" {
		t.Fatalf("expected one DP-1 output, got %+v", outputs)
	}
	if outputs[0].Make != "Unknown" || outputs[0].Serial != "Unknown" {
		t.Fatalf("expected unknown identity without edid, got %+v", outputs[0])
	}
	if len(h.globals.live) != 1 || h.b.Space().Len() != 1 {
		t.Fatalf("expected one global and one mapped output")
	}
	h.loop.drain()
	if g.scanouts[40].renders != 1 {
		t.Fatalf("expected initial render, got %d", g.scanouts[40].renders)
	}

	g.pending = []kms.ConnectorEvent{{Kind: kms.Disconnected, Connector: dp, CRTC: 40}}
	h.b.DeviceChanged(card0.Node)
	if len(h.b.Outputs()) != 0 || len(h.globals.live) != 0 || h.b.Space().Len() != 0 {
		t.Fatalf("expected output, global and mapping to be removed")
	}
	if !g.scanouts[40].closed {
		t.Fatalf("expected scanout to be closed on disconnect")
	}

	g.pending = []kms.ConnectorEvent{connected(dp, 40)}
	h.b.DeviceChanged(card0.Node)
	if len(h.b.Outputs()) != 1 {
		t.Fatalf("expected reconnect to recreate the output")
	}
	if st := h.b.Status(); len(st.Renderers) != 1 || st.Renderers[0] != card0.Node.String() {
		t.Fatalf("expected one renderer for %s, got %v", card0.Node, st.Renderers)
	}
	h.b.DeviceRemoved(card0.Node)
	if len(h.b.Outputs()) != 0 || len(h.globals.live) != 0 {
		t.Fatalf("expected device removal to drop every output")
	}
	if !g.closed || h.session.closed != 1 || g.vblank != nil {
		t.Fatalf("expected gpu closed, file released and vblank handler cleared")
	}
	if st := h.b.Status(); st.Devices != 0 || st.Outputs != 0 || len(st.Renderers) != 0 {
		t.Fatalf("unexpected status after removal %+v", st)
	}
}

func TestOutputLeavesClientsOnTeardown(t *testing.T) {
	h := newHarness(t, nil)
	g := h.addGPU(t, card0, connected(connector(1, 10, 1), 40))
	h.init(t)

	var left []display.ClientID
	out := h.b.devices[card0.Node].surfaces[40].output
	out.SetLeaveHandler(func(c display.ClientID) { left = append(left, c) })
	out.Enter(7)
	out.Enter(3)

	h.b.DeviceRemoved(card0.Node)
	if len(left) != 2 || left[0] != 3 || left[1] != 7 {
		t.Fatalf("expected both clients to leave, got %v", left)
	}
	if !g.scanouts[40].closed {
		t.Fatalf("expected scanout closed")
	}
}

func TestFrameFinish_Pacing(t *testing.T) {
	h := newHarness(t, nil)
	g := h.addGPU(t, card0, connected(connector(1, 10, 1), 40))
	h.init(t)
	key := OutputKey{Node: card0.Node, CRTC: 40}
	sc := g.scanouts[40]

	h.loop.drain()
	if sc.queued != 1 || len(h.loop.timers) != 0 {
		t.Fatalf("expected queued frame and no timer, got queued=%d timers=%d", sc.queued, len(h.loop.timers))
	}
	if h.scene.frames != 1 || h.globals.flushes != 1 {
		t.Fatalf("expected frame callbacks and a flush")
	}

	h.b.FrameFinish(key, FrameMeta{Sequence: 1})
	token, timer := h.loop.onlyTimer(t)
	if timer.d != 10_000*time.Microsecond {
		t.Fatalf("expected 10000us after vblank, got %v", timer.d)
	}
	if sc.submitted != 1 || len(h.scene.feedback) != 1 || h.scene.feedback[0].Refresh != 16_666*time.Microsecond {
		t.Fatalf("expected frame submitted with feedback, got %+v", h.scene.feedback)
	}

	sc.damaged = false
	h.loop.fire(token)
	if sc.renders != 2 {
		t.Fatalf("expected timer to render, got %d renders", sc.renders)
	}
	_, timer = h.loop.onlyTimer(t)
	if timer.d != 16_666*time.Microsecond {
		t.Fatalf("expected no-damage retry after 16666us, got %v", timer.d)
	}
	if sc.queued != 1 {
		t.Fatalf("expected no frame queued without damage")
	}
}

func TestRenderErrorDoesNotRearm(t *testing.T) {
	h := newHarness(t, nil)
	g := h.addGPU(t, card0, connected(connector(1, 10, 1), 40))
	h.init(t)
	g.scanouts[40].renderErr = errors.New("gpu hung")

	h.loop.drain()
	if len(h.loop.timers) != 0 || g.scanouts[40].queued != 0 {
		t.Fatalf("expected no reawakening after a render error")
	}
}

func TestSingleOutstandingReawakening(t *testing.T) {
	h := newHarness(t, nil)
	g := h.addGPU(t, card0, connected(connector(1, 10, 1), 40))
	h.init(t)
	key := OutputKey{Node: card0.Node, CRTC: 40}
	sc := g.scanouts[40]

	check := func(step string) {
		t.Helper()
		s := h.b.surface(key)
		if len(h.loop.timers) > 1 {
			t.Fatalf("%s: expected at most one timer, got %d", step, len(h.loop.timers))
		}
		if s.cycle.vblankPending && len(h.loop.timers) != 0 {
			t.Fatalf("%s: timer armed while waiting for vblank", step)
		}
	}

	h.loop.drain()
	check("initial render")
	for i := 0; i < 20; i++ {
		sc.damaged = i%3 == 0
		h.b.Render(key)
		check("external render")
		h.b.QueueRedraw(key)
		h.loop.drain()
		check("queued redraw")
		h.b.FrameFinish(key, FrameMeta{})
		check("frame finish")
		h.b.FrameFinish(key, FrameMeta{})
		check("duplicate frame finish")
		for token := range h.loop.timers {
			h.loop.fire(token)
			break
		}
		check("timer")
	}
}

func TestQueueRedrawCoalesces(t *testing.T) {
	h := newHarness(t, nil)
	g := h.addGPU(t, card0, connected(connector(1, 10, 1), 40))
	g.damaged = false
	h.init(t)
	key := OutputKey{Node: card0.Node, CRTC: 40}
	h.loop.drain()
	sc := g.scanouts[40]

	h.b.QueueRedraw(key)
	h.b.QueueRedraw(key)
	h.b.QueueRedrawAll()
	if len(h.loop.posted) != 1 {
		t.Fatalf("expected a single drain to be posted, got %d", len(h.loop.posted))
	}
	h.loop.drain()
	if sc.renders != 2 {
		t.Fatalf("expected one render per drain, got %d", sc.renders)
	}
	if len(h.loop.timers) != 1 {
		t.Fatalf("expected the redraw to replace the armed timer, got %d", len(h.loop.timers))
	}
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t, nil)
	g0 := h.addGPU(t, card0, connected(connector(1, 10, 1), 40), connected(connector(2, 11, 1), 41))
	card1 := udev.GPU{Path: "/dev/dri/card1", Node: render.Node{Major: 226, Minor: 1}}
	g1 := h.addGPU(t, card1, connected(connector(3, 14, 1), 50))
	g1.activateErr = errors.New("lost master")
	h.init(t)
	h.loop.drain()

	scanouts := []*fakeScanout{g0.scanouts[40], g0.scanouts[41], g1.scanouts[50]}
	for i, sc := range scanouts {
		if sc.renders != 1 {
			t.Fatalf("scanout %d: expected initial render, got %d", i, sc.renders)
		}
	}

	h.b.HandleSessionEvent(session.Event{Kind: session.Paused})
	if !h.b.Paused() || !g0.paused || !g1.paused || h.input.suspended != 1 {
		t.Fatalf("expected backend, gpus and input paused")
	}
	h.b.Render(OutputKey{Node: card0.Node, CRTC: 40})
	h.b.FrameFinish(OutputKey{Node: card0.Node, CRTC: 41}, FrameMeta{})
	h.b.QueueRedrawAll()
	h.loop.drain()
	if len(h.loop.timers) != 0 {
		t.Fatalf("expected no timers while paused, got %d", len(h.loop.timers))
	}
	for i, sc := range scanouts {
		if sc.renders != 1 {
			t.Fatalf("scanout %d: expected no render while paused, got %d", i, sc.renders)
		}
	}

	h.b.HandleSessionEvent(session.Event{Kind: session.Activated})
	h.loop.drain()
	if h.b.Paused() || h.input.resumed != 1 {
		t.Fatalf("expected backend and input resumed")
	}
	if g0.activated != 1 || g1.activated != 1 {
		t.Fatalf("expected every gpu to be activated despite errors")
	}
	for i, sc := range scanouts {
		if sc.renders != 2 {
			t.Fatalf("scanout %d: expected exactly one render after resume, got %d", i, sc.renders)
		}
	}
}

func TestDisabledOutput(t *testing.T) {
	disabled := false
	monitors := []config.MonitorConfig{{Name: "DP-1", Enabled: &disabled}}

	t.Run("kept when it is the only output", func(t *testing.T) {
		h := newHarness(t, monitors)
		h.addGPU(t, card0, connected(connector(1, 10, 1), 40))
		h.init(t)
		if n := len(h.b.Outputs()); n != 1 {
			t.Fatalf("expected disabled output to stay enabled, got %d outputs", n)
		}
	})

	t.Run("skipped when another output exists", func(t *testing.T) {
		h := newHarness(t, monitors)
		h.addGPU(t, card0,
			connected(connector(2, 11, 1), 41),
			connected(connector(1, 10, 1), 40),
		)
		h.init(t)
		outputs := h.b.Outputs()
		if len(outputs) != 1 || outputs[0].Name != "HDMI-A-1" {
			t.Fatalf("expected only HDMI-A-1, got %+v", outputs)
		}
	})
}

func TestMonitorConfigApplied(t *testing.T) {
	x := 100
	monitors := []config.MonitorConfig{
		{Name: "dp-8", Mode: "1920x1080@144", X: &x, Scale: 1.5, Transform: "90"},
		{Name: "HDMI-A-1", Transform: "sideways"},
	}
	h := newHarness(t, monitors)
	modes := []display.Mode{
		{Width: 1920, Height: 1080, RefreshMHz: 60_000, Preferred: true},
		{Width: 1920, Height: 1080, RefreshMHz: 144_000},
		{Width: 2560, Height: 1440, RefreshMHz: 60_000},
	}
	h.addGPU(t, card0,
		connected(connector(1, 10, 8, modes...), 40),
		connected(connector(2, 11, 1), 41),
	)
	h.init(t)

	outputs := h.b.Outputs()
	if len(outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(outputs))
	}
	dp := outputs[0]
	if dp.Name != "DP-8" {
		t.Fatalf("expected DP-8 first, got %s", dp.Name)
	}
	if dp.Mode.RefreshMHz != 144_000 || dp.X != 100 || dp.Transform != "90" || dp.Scale != 1.5 {
		t.Fatalf("expected monitor config to apply, got %+v", dp)
	}
	if dp.Width != 720 || dp.Height != 1280 {
		t.Fatalf("expected rotated logical size 720x1280, got %dx%d", dp.Width, dp.Height)
	}
	hdmi := outputs[1]
	if hdmi.Transform != "normal" {
		t.Fatalf("expected unknown transform to fall back to normal, got %s", hdmi.Transform)
	}
	if hdmi.X != 720 {
		t.Fatalf("expected auto placement after the first output, got x=%d", hdmi.X)
	}
}

func TestConnectRollsBackOnScanoutFailure(t *testing.T) {
	h := newHarness(t, nil)
	g := h.addGPU(t, card0, connected(connector(5, 10, 1), 40))
	g.failScanout = true
	h.init(t)

	if len(h.b.Outputs()) != 0 || h.b.Space().Len() != 0 || len(h.globals.live) != 0 {
		t.Fatalf("expected no partial output to remain registered")
	}
	if len(g.forgotten) != 1 || g.forgotten[0] != 5 {
		t.Fatalf("expected connector to be forgotten for a retry, got %v", g.forgotten)
	}
	if len(h.loop.posted) != 0 {
		t.Fatalf("expected no initial render for an abandoned output")
	}
}

func TestCursorElementsComeFirst(t *testing.T) {
	h := newHarness(t, nil)
	g := h.addGPU(t, card0, connected(connector(1, 10, 1), 40))
	window := &render.SolidElement{Name: "window", Rect: image.Rect(0, 0, 200, 200), Fill: color.NRGBA{A: 255}}
	h.scene.elements = []render.Element{window}
	h.pointer.loc = display.Point{X: 100, Y: 50}
	h.pointer.status = CursorStatus{Kind: CursorNamed}
	h.init(t)
	h.loop.drain()

	els := g.scanouts[40].elements
	if len(els) != 2 {
		t.Fatalf("expected cursor and window, got %d elements", len(els))
	}
	if els[0].Kind() != render.KindCursor || els[1] != render.Element(window) {
		t.Fatalf("expected cursor ahead of scene elements")
	}
	fallback := cursor.Fallback()
	want := image.Pt(100-int(fallback.XHot), 50-int(fallback.YHot))
	if got := els[0].Geometry().Min; got != want {
		t.Fatalf("expected cursor at %v, got %v", want, got)
	}

	h.pointer.loc = display.Point{X: 5000, Y: 50}
	g.scanouts[40].elements = nil
	key := OutputKey{Node: card0.Node, CRTC: 40}
	h.b.FrameFinish(key, FrameMeta{})
	h.b.Render(key)
	if len(g.scanouts[40].elements) != 1 {
		t.Fatalf("expected no cursor when the pointer is elsewhere")
	}
}

func TestNilBackendIsInactive(t *testing.T) {
	var b *Backend
	b.Render(OutputKey{})
	b.FrameFinish(OutputKey{}, FrameMeta{})
	b.DeviceAdded(card0.Node, card0.Path)
	b.DeviceChanged(card0.Node)
	b.DeviceRemoved(card0.Node)
	b.ReloadCursorTheme()
	b.QueueRedrawAll()
	b.Pause()
	b.Resume()
	b.EarlyImport(nil)
	b.ReleaseBuffer(1)
	if b.Outputs() != nil || b.Paused() {
		t.Fatalf("expected nil backend to report nothing")
	}
	if err := b.ImportExternal(nil); !errors.Is(err, render.ErrImportFailed) {
		t.Fatalf("expected ErrImportFailed, got %v", err)
	}
}

func TestModelessConnectorIsRescanned(t *testing.T) {
	h := newHarness(t, nil)
	bare := kms.ConnectorInfo{ID: 1, Type: 10, TypeID: 1, Connected: true}
	g := h.addGPU(t, card0, connected(bare, 40))
	h.init(t)

	if len(h.b.Outputs()) != 0 {
		t.Fatalf("expected no output for a connector without modes")
	}
	if len(g.forgotten) != 1 || g.forgotten[0] != 1 {
		t.Fatalf("expected connector to be forgotten, got %v", g.forgotten)
	}

	g.pending = []kms.ConnectorEvent{connected(connector(1, 10, 1), 40)}
	h.b.DeviceChanged(card0.Node)
	if outputs := h.b.Outputs(); len(outputs) != 1 || outputs[0].Name != "DP-1" {
		t.Fatalf("expected DP-1 once modes arrive, got %+v", outputs)
	}
}

func squareCursor(size, hot uint32) cursor.Image {
	return cursor.Image{
		Size:   size,
		Width:  size,
		Height: size,
		XHot:   hot,
		YHot:   hot,
		Delay:  1,
		Pixels: make([]byte, size*size*4),
	}
}

func TestNamedCursorFollowsFractionalScale(t *testing.T) {
	h := newHarness(t, []config.MonitorConfig{{Name: "DP-1", Scale: 1.5}})
	h.b.cursor = cursor.NewManager(cursor.Config{
		Size: 24,
		Loader: func(string) ([]cursor.Image, error) {
			return []cursor.Image{squareCursor(24, 4), squareCursor(48, 8)}, nil
		},
	})
	g := h.addGPU(t, card0, connected(connector(1, 10, 1), 40))
	h.pointer.loc = display.Point{X: 100, Y: 50}
	h.pointer.status = CursorStatus{Kind: CursorNamed}
	h.init(t)
	h.loop.drain()

	els := g.scanouts[40].elements
	if len(els) != 1 || els[0].Kind() != render.KindCursor {
		t.Fatalf("expected a single cursor element, got %d elements", len(els))
	}
	// The 48px frame drawn at 1.5/2 is 36px with its hotspot at 6.
	want := image.Rect(144, 69, 180, 105)
	if got := els[0].Geometry(); got != want {
		t.Fatalf("expected cursor rect %v, got %v", want, got)
	}
}

type fakeCursorSurface struct {
	hotspot display.Point
	pos     image.Point
	scale   float64
}

func (c *fakeCursorSurface) Hotspot() display.Point { return c.hotspot }

func (c *fakeCursorSurface) Elements(pos image.Point, scale float64) []render.Element {
	c.pos, c.scale = pos, scale
	return []render.Element{&render.SolidElement{
		Name: "client-cursor",
		Rect: image.Rect(pos.X, pos.Y, pos.X+24, pos.Y+24),
		Fill: color.NRGBA{R: 255, A: 255},
	}}
}

func TestClientCursorSurface(t *testing.T) {
	h := newHarness(t, []config.MonitorConfig{{Name: "DP-1", Scale: 1.5}})
	g := h.addGPU(t, card0, connected(connector(1, 10, 1), 40))
	window := &render.SolidElement{Name: "window", Rect: image.Rect(0, 0, 200, 200), Fill: color.NRGBA{A: 255}}
	h.scene.elements = []render.Element{window}
	surface := &fakeCursorSurface{hotspot: display.Point{X: 4, Y: 2}}
	h.pointer.loc = display.Point{X: 100, Y: 50}
	h.pointer.status = CursorStatus{Kind: CursorClient, Surface: surface}
	h.init(t)
	h.loop.drain()

	if surface.pos != image.Pt(144, 72) || surface.scale != 1.5 {
		t.Fatalf("expected surface at (144,72) scale 1.5, got %v scale %v", surface.pos, surface.scale)
	}
	els := g.scanouts[40].elements
	if len(els) != 2 {
		t.Fatalf("expected cursor surface and window, got %d elements", len(els))
	}
	if els[0].ID() != "client-cursor" || els[1] != render.Element(window) {
		t.Fatalf("expected cursor surface ahead of scene elements")
	}
}

func TestResumeWhileActiveKeepsFrameInFlight(t *testing.T) {
	h := newHarness(t, nil)
	g := h.addGPU(t, card0, connected(connector(1, 10, 1), 40))
	h.init(t)
	h.loop.drain()
	sc := g.scanouts[40]
	if sc.queued != 1 {
		t.Fatalf("expected a queued frame, got %d", sc.queued)
	}

	h.b.HandleSessionEvent(session.Event{Kind: session.Activated})
	h.loop.drain()
	if h.input.resumed != 0 || g.activated != 0 || sc.renders != 1 {
		t.Fatalf("expected activation of an active backend to do nothing, got resumed=%d activated=%d renders=%d",
			h.input.resumed, g.activated, sc.renders)
	}

	h.b.FrameFinish(OutputKey{Node: card0.Node, CRTC: 40}, FrameMeta{Sequence: 1})
	if sc.submitted != 1 {
		t.Fatalf("expected the in-flight frame to complete, got %d submissions", sc.submitted)
	}
	h.loop.onlyTimer(t)
}

type recordingRenderer struct {
	*render.SoftwareRenderer
	imported  []uint64
	forgotten []uint64
}

func (r *recordingRenderer) Import(buf render.Buffer) error {
	if err := r.SoftwareRenderer.Import(buf); err != nil {
		return err
	}
	r.imported = append(r.imported, buf.ID())
	return nil
}

func (r *recordingRenderer) Forget(id uint64) {
	r.forgotten = append(r.forgotten, id)
	r.SoftwareRenderer.Forget(id)
}

func TestReleaseBufferDropsCrossAdapterCopies(t *testing.T) {
	h := newHarness(t, nil)
	renderers := make(map[render.Node]*recordingRenderer)
	h.b.renderers = func(node render.Node) (render.Renderer, error) {
		r := &recordingRenderer{SoftwareRenderer: render.NewSoftwareRenderer(node)}
		renderers[node] = r
		return r, nil
	}
	h.addGPU(t, card0, connected(connector(1, 10, 1), 40))
	h.init(t)

	buf := render.NewDeviceBuffer(render.Node{Major: 226, Minor: 1}, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if err := h.b.ImportExternal(buf); err != nil {
		t.Fatalf("import: %v", err)
	}
	primary := renderers[card0.Node]
	if primary == nil || len(primary.imported) == 0 {
		t.Fatalf("expected the primary renderer to import a copy")
	}
	copied := primary.imported[len(primary.imported)-1]
	if copied == buf.ID() {
		t.Fatalf("expected a copy, not the foreign buffer")
	}

	h.b.ReleaseBuffer(buf.ID())
	if !slices.Contains(primary.forgotten, buf.ID()) || !slices.Contains(primary.forgotten, copied) {
		t.Fatalf("expected buffer %d and copy %d to be forgotten, got %v", buf.ID(), copied, primary.forgotten)
	}

	if err := h.b.ImportExternal(buf); err != nil {
		t.Fatalf("import after release: %v", err)
	}
	if again := primary.imported[len(primary.imported)-1]; again == copied {
		t.Fatalf("expected a fresh copy after release")
	}
}
