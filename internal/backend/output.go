package backend

import (
	"log/slog"

	"github.com/ravenwm/raven/internal/config"
	"github.com/ravenwm/raven/internal/display"
	"github.com/ravenwm/raven/internal/edid"
	"github.com/ravenwm/raven/internal/kms"
)

const unknownIdentity = "Unknown"

// outputSurface is one connector driven by one CRTC.
type outputSurface struct {
	key       OutputKey
	device    *device
	connector kms.ConnectorInfo
	output    *display.Output
	global    GlobalID
	hasGlobal bool
	scanout   Scanout
	cycle     frameCycle
	frameSeq  uint32
}

// release unregisters the output and frees its scanout state. It runs on
// every teardown path and is safe on partially built surfaces.
func (b *Backend) release(s *outputSurface) {
	b.disarm(s)
	s.cycle.vblankPending = false
	delete(b.queued, s.key)

	b.space.UnmapOutput(s.output)
	if s.hasGlobal {
		b.globals.RemoveGlobal(s.global)
		s.hasGlobal = false
	}
	s.output.LeaveAll()
	if s.scanout != nil {
		if err := s.scanout.Close(); err != nil {
			b.logger.Warn("failed to close scanout", "output", s.output.Name(), "error", err)
		}
		s.scanout = nil
	}
}

// SelectMonitor returns the first configuration entry whose name matches
// output.
func SelectMonitor(monitors []config.MonitorConfig, output string) (config.MonitorConfig, bool) {
	for _, m := range monitors {
		if display.NamesMatch(m.Name, output) {
			return m, true
		}
	}
	return config.MonitorConfig{}, false
}

// Placement is the state a connector gets from the monitor configuration.
type Placement struct {
	Monitor    config.MonitorConfig
	HasMonitor bool
	// Disabled is set when the matching entry turns the output off. The
	// caller decides whether to honor it.
	Disabled  bool
	ModeIndex int
	Transform display.Transform
	Scale     display.Scale
	X, Y      int
}

// ResolvePlacement matches output against monitors and resolves its mode,
// transform, scale and position. autoX is used when no x is configured.
// modes must not be empty.
func ResolvePlacement(logger *slog.Logger, monitors []config.MonitorConfig, output string, modes []display.Mode, autoX int) Placement {
	p := Placement{
		Transform: display.TransformNormal,
		Scale:     display.IntegerScale(1),
		X:         autoX,
	}
	p.Monitor, p.HasMonitor = SelectMonitor(monitors, output)

	var req *display.ModeRequest
	if p.HasMonitor {
		logger.Info("using monitor config", "matched_monitor", p.Monitor.Name)
		p.Disabled = !p.Monitor.IsEnabled()
		req = p.Monitor.ModeRequest()
	}
	p.ModeIndex = selectModeIndex(logger, modes, req)
	if !p.HasMonitor {
		return p
	}

	m := p.Monitor
	if m.Transform != "" {
		t, ok := display.ParseTransform(m.Transform)
		if !ok {
			logger.Warn("unknown monitor transform, using normal", "transform", m.Transform)
		}
		p.Transform = t
	}
	if m.Scale > 0 {
		p.Scale = display.ScaleFromConfig(m.Scale)
	}
	if m.X != nil {
		p.X = *m.X
	}
	if m.Y != nil {
		p.Y = *m.Y
	}
	return p
}

func (b *Backend) connectorConnected(d *device, conn kms.ConnectorInfo, crtc uint32) {
	key := OutputKey{Node: d.node, CRTC: crtc}
	name := conn.Name()
	logger := b.logger.With("output", name, "node", d.node.String(), "crtc", crtc)

	if _, exists := d.surfaces[crtc]; exists {
		logger.Warn("crtc already drives an output, ignoring connector")
		return
	}
	if len(conn.Modes) == 0 {
		logger.Warn("connector reports no modes")
		// Rescans report it again once modes show up.
		d.gpu.ForgetConnector(conn.ID)
		return
	}

	physical := b.readPhysical(d, conn, logger)
	logger.Info("connector connected", "make", physical.Make, "model", physical.Model, "serial", physical.Serial)

	p := ResolvePlacement(logger, b.monitors, name, conn.Modes, b.space.AutoX())
	if p.Disabled {
		if b.space.Len() > 0 {
			logger.Info("monitor is disabled in config; skipping connector")
			return
		}
		logger.Warn("monitor is disabled in config, but no other outputs are active; keeping it enabled")
	}
	modeIndex := p.ModeIndex
	mode := conn.Modes[modeIndex]
	transform, scale, x, y := p.Transform, p.Scale, p.X, p.Y

	output := display.NewOutput(name, physical)
	output.SetPreferred(mode)
	pos := [2]int{x, y}
	output.ChangeCurrentState(display.State{
		Mode:      &mode,
		Transform: &transform,
		Scale:     &scale,
		Position:  &pos,
	})

	s := &outputSurface{
		key:       key,
		device:    d,
		connector: conn,
		output:    output,
	}
	s.global = b.globals.CreateOutputGlobal(output)
	s.hasGlobal = true
	b.space.MapOutput(output, x, y)

	if _, err := b.pool.RendererFor(d.renderNode); err != nil {
		logger.Error("failed to get renderer for connector", "error", err)
		b.abandon(d, s)
		return
	}
	scanout, err := d.gpu.CreateScanout(crtc, conn, modeIndex)
	if err != nil {
		logger.Error("failed to initialize drm output", "error", err)
		b.abandon(d, s)
		return
	}
	s.scanout = scanout
	d.surfaces[crtc] = s

	logger.Info("output initialized",
		"mode", mode.String(),
		"transform", transform.String(),
		"scale", scale.Fractional(),
		"position_x", x,
		"position_y", y,
	)
	b.loop.Post(func() { b.Render(key) })
}

// abandon rolls back a connector whose output could not be initialized and
// frees its CRTC so a later scan retries it.
func (b *Backend) abandon(d *device, s *outputSurface) {
	b.release(s)
	d.gpu.ForgetConnector(s.connector.ID)
}

func (b *Backend) connectorDisconnected(d *device, crtc uint32) {
	s, ok := d.surfaces[crtc]
	if !ok {
		return
	}
	delete(d.surfaces, crtc)
	b.release(s)
	b.logger.Info("connector disconnected, output removed", "output", s.output.Name(), "crtc", crtc)
}

func (b *Backend) readPhysical(d *device, conn kms.ConnectorInfo, logger *slog.Logger) display.PhysicalProperties {
	p := display.PhysicalProperties{
		SizeMM: conn.SizeMM,
		Make:   unknownIdentity,
		Model:  unknownIdentity,
		Serial: unknownIdentity,
	}
	raw, err := d.gpu.EDID(conn)
	if err != nil {
		logger.Debug("no edid for connector", "error", err)
		return p
	}
	info, err := edid.Parse(raw)
	if err != nil {
		logger.Debug("failed to parse edid", "error", err)
		return p
	}
	if info.Make != "" {
		p.Make = info.Make
	}
	if info.Model != "" {
		p.Model = info.Model
	}
	if info.Serial != "" {
		p.Serial = info.Serial
	}
	if p.SizeMM.Width == 0 && p.SizeMM.Height == 0 {
		p.SizeMM = display.Size{Width: info.WidthCM * 10, Height: info.HeightCM * 10}
	}
	return p
}

func selectModeIndex(logger *slog.Logger, modes []display.Mode, req *display.ModeRequest) int {
	idx, ok := display.SelectMode(modes, req)
	if req == nil {
		return idx
	}
	if !ok {
		logger.Warn("no mode matched monitor config; falling back to preferred mode",
			"requested_width", req.Width,
			"requested_height", req.Height,
			"requested_refresh_hz", req.RefreshHz,
		)
		return idx
	}
	logger.Info("selected monitor mode from config",
		"requested_width", req.Width,
		"requested_height", req.Height,
		"requested_refresh_hz", req.RefreshHz,
		"selected", modes[idx].String(),
	)
	return idx
}
