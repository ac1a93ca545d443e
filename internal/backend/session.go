package backend

import (
	"github.com/ravenwm/raven/internal/session"
)

// HandleSessionEvent pauses or resumes the backend on a VT switch.
func (b *Backend) HandleSessionEvent(ev session.Event) {
	switch ev.Kind {
	case session.Paused:
		b.Pause()
	case session.Activated:
		b.Resume()
	}
}

// Pause suspends input and stops every adapter from presenting. Pending
// reawakenings are dropped.
func (b *Backend) Pause() {
	if b == nil || b.paused {
		return
	}
	b.logger.Info("session paused")
	b.input.Suspend()
	for _, d := range b.deviceList() {
		d.gpu.Pause()
	}
	b.paused = true
	for _, s := range b.surfaceList() {
		b.disarm(s)
		s.cycle.vblankPending = false
	}
}

// Resume reactivates input and every adapter, then repaints each output
// exactly once. A device that fails to reactivate does not stop the others.
// Resuming an active backend is a no-op so in-flight frames stay tracked.
func (b *Backend) Resume() {
	if b == nil || !b.paused {
		return
	}
	b.logger.Info("session activated")
	if err := b.input.Resume(); err != nil {
		b.logger.Error("failed to resume input", "error", err)
	}
	for _, d := range b.deviceList() {
		if err := d.gpu.Activate(); err != nil {
			b.logger.Error("failed to activate drm backend", "node", d.node.String(), "error", err)
		}
	}
	b.paused = false

	b.queued = make(map[OutputKey]struct{})
	for _, s := range b.surfaceList() {
		b.disarm(s)
		s.cycle.vblankPending = false
		key := s.key
		b.loop.Post(func() { b.Render(key) })
	}
}
