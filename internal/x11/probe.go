package x11

import (
	"log/slog"

	"github.com/ravenwm/raven/internal/backend"
	"github.com/ravenwm/raven/internal/config"
	"github.com/ravenwm/raven/internal/display"
)

// Planned is the state an output would be given by the DRM backend.
type Planned struct {
	Name      string
	Skipped   bool
	Monitor   string
	Mode      display.Mode
	Transform display.Transform
	Scale     display.Scale
	Geometry  display.Rect
	Physical  display.PhysicalProperties
}

// Plan resolves outputs in order against monitors exactly as hot-plugging
// them one after another would, without touching any hardware.
func Plan(logger *slog.Logger, outputs []ProbedOutput, monitors []config.MonitorConfig) []Planned {
	if logger == nil {
		logger = slog.Default()
	}
	space := display.NewSpace()
	plan := make([]Planned, 0, len(outputs))
	for _, po := range outputs {
		if len(po.Modes) == 0 {
			continue
		}
		l := logger.With("output", po.Name)
		p := backend.ResolvePlacement(l, monitors, po.Name, po.Modes, space.AutoX())
		entry := Planned{Name: po.Name, Physical: po.Physical}
		if p.HasMonitor {
			entry.Monitor = p.Monitor.Name
		}
		if p.Disabled && space.Len() > 0 {
			entry.Skipped = true
			plan = append(plan, entry)
			continue
		}

		mode := po.Modes[p.ModeIndex]
		o := display.NewOutput(po.Name, po.Physical)
		o.SetPreferred(mode)
		o.ChangeCurrentState(display.State{
			Mode:      &mode,
			Transform: &p.Transform,
			Scale:     &p.Scale,
		})
		space.MapOutput(o, p.X, p.Y)
		geo, _ := space.OutputGeometry(o)

		entry.Mode = mode
		entry.Transform = p.Transform
		entry.Scale = p.Scale
		entry.Geometry = geo
		plan = append(plan, entry)
	}
	return plan
}
