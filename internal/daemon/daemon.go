// Package daemon connects the running compositor to its control surfaces:
// the IPC handler, configuration reloads and device reconciliation. Every
// call into the backend is marshalled onto the event loop.
package daemon

import (
	"context"

	"github.com/ravenwm/raven/internal/backend"
	"github.com/ravenwm/raven/internal/config"
	"github.com/ravenwm/raven/internal/render"
)

// Caller runs fn on the compositor loop and waits for it to return.
type Caller interface {
	Call(ctx context.Context, fn func()) error
}

// Compositor is the part of the backend the daemon drives. Its methods are
// only called from the loop.
type Compositor interface {
	Status() backend.Status
	Outputs() []backend.OutputInfo
	FindOutput(name string) (backend.OutputKey, bool)
	QueueRedraw(key backend.OutputKey)
	QueueRedrawAll()
	ReloadCursorTheme()
	SetCursorTheme(theme string, size uint32)
	SetMonitors(monitors []config.MonitorConfig)
	SetForceFullRedraw(v bool)
	DeviceNodes() []render.Node
	DeviceAdded(node render.Node, path string)
	DeviceChanged(node render.Node)
	DeviceRemoved(node render.Node)
}

var _ Compositor = (*backend.Backend)(nil)
