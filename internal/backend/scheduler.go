package backend

import (
	"image"
	"math"
	"sort"
	"time"

	"github.com/ravenwm/raven/internal/display"
	"github.com/ravenwm/raven/internal/eventloop"
	"github.com/ravenwm/raven/internal/render"
)

// reawakenFraction of a frame is waited after a vblank before the next
// render, so composition starts ahead of the following deadline.
const reawakenFraction = 0.6

// frameCycle tracks the single pending reawakening of an output: either a
// software timer or a vblank wait, never both.
type frameCycle struct {
	timer         eventloop.Token
	timerArmed    bool
	vblankPending bool
	lastDamaged   bool
}

func frameDuration(o *display.Output) int64 {
	return display.FrameDuration(o.CurrentMode().RefreshMHz)
}

// Render draws and, when anything changed, presents one frame on the
// output. It does nothing while the session is paused, when the output is
// gone, or while a presented frame still waits for its vblank.
func (b *Backend) Render(key OutputKey) {
	if b == nil || b.paused {
		return
	}
	s := b.surface(key)
	if s == nil || s.scanout == nil {
		return
	}
	if s.cycle.vblankPending {
		return
	}
	b.disarm(s)
	b.render(s)
}

func (b *Backend) render(s *outputSurface) {
	logger := b.logger.With("output", s.output.Name(), "crtc", s.key.CRTC)

	renderer, err := b.pool.RendererFor(s.device.renderNode)
	if err != nil {
		logger.Error("failed to get renderer", "error", err)
		return
	}

	elements := b.cursorElements(s)
	elements = append(elements, b.scene.Elements(s.output)...)

	if b.forceFull {
		s.scanout.Reset()
	}
	damaged, err := s.scanout.RenderFrame(renderer, elements, clearColor)
	if err != nil {
		logger.Error("failed to render frame", "error", err)
		return
	}
	s.cycle.lastDamaged = damaged

	if !damaged {
		// Nothing reached the screen: poll again one frame later so damage
		// arriving in between is picked up.
		b.arm(s, frameDuration(s.output))
		b.globals.FlushClients()
		return
	}

	if err := s.scanout.QueueFrame(); err != nil {
		logger.Error("failed to queue frame", "error", err)
		return
	}
	s.cycle.vblankPending = true
	s.frameSeq++
	b.scene.SendFrames(s.output, b.now(), s.frameSeq)
	b.globals.FlushClients()
}

// FrameFinish handles the completion event of a queued frame and schedules
// the next render a fraction of a frame later.
func (b *Backend) FrameFinish(key OutputKey, meta FrameMeta) {
	if b == nil {
		return
	}
	s := b.surface(key)
	if s == nil || s.scanout == nil {
		return
	}
	if !s.cycle.vblankPending {
		b.logger.Debug("unexpected vblank", "output", s.output.Name(), "sequence", meta.Sequence)
		return
	}
	s.cycle.vblankPending = false

	if err := s.scanout.FrameSubmitted(); err != nil {
		b.logger.Error("frame submitted error", "output", s.output.Name(), "error", err)
		return
	}

	dur := frameDuration(s.output)
	if meta.Time.IsZero() {
		meta.Time = b.now()
	}
	meta.Refresh = time.Duration(dur) * time.Microsecond
	b.scene.PresentationFeedback(s.output, meta)

	if b.paused {
		return
	}
	b.arm(s, int64(math.Round(reawakenFraction*float64(dur))))
}

// arm schedules a render after us microseconds, replacing any armed timer.
func (b *Backend) arm(s *outputSurface, us int64) {
	b.disarm(s)
	key := s.key
	var token eventloop.Token
	token = b.loop.Schedule(time.Duration(us)*time.Microsecond, func() {
		b.onTimer(key, token)
	})
	s.cycle.timer = token
	s.cycle.timerArmed = true
}

func (b *Backend) disarm(s *outputSurface) {
	if !s.cycle.timerArmed {
		return
	}
	b.loop.Cancel(s.cycle.timer)
	s.cycle.timerArmed = false
}

func (b *Backend) onTimer(key OutputKey, token eventloop.Token) {
	s := b.surface(key)
	if s == nil || !s.cycle.timerArmed || s.cycle.timer != token {
		return
	}
	s.cycle.timerArmed = false
	b.Render(key)
}

// QueueRedraw requests a render of one output on the next drain.
func (b *Backend) QueueRedraw(key OutputKey) {
	if b == nil {
		return
	}
	if b.surface(key) == nil {
		return
	}
	b.queued[key] = struct{}{}
	b.postDrain()
}

// QueueRedrawAll requests a render of every output on the next drain.
func (b *Backend) QueueRedrawAll() {
	if b == nil {
		return
	}
	for _, s := range b.surfaceList() {
		b.queued[s.key] = struct{}{}
	}
	b.postDrain()
}

func (b *Backend) postDrain() {
	if b.drainPosted || len(b.queued) == 0 {
		return
	}
	b.drainPosted = true
	b.loop.Post(b.drainQueuedRedraws)
}

// drainQueuedRedraws renders each queued output once.
func (b *Backend) drainQueuedRedraws() {
	b.drainPosted = false
	keys := make([]OutputKey, 0, len(b.queued))
	for key := range b.queued {
		keys = append(keys, key)
	}
	b.queued = make(map[OutputKey]struct{})
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	for _, key := range keys {
		b.Render(key)
	}
}

// cursorElements returns the pointer image when the pointer is on this
// output, positioned in physical output pixels.
func (b *Backend) cursorElements(s *outputSurface) []render.Element {
	status := b.pointer.CursorStatus()
	if status.Kind == CursorHidden {
		return nil
	}
	geo, ok := b.space.OutputGeometry(s.output)
	if !ok {
		return nil
	}
	loc := b.pointer.Location()
	if !geo.Contains(loc) {
		return nil
	}
	pos := loc.Sub(geo.Origin())
	scale := s.output.CurrentScale().Fractional()

	if status.Kind == CursorClient && status.Surface != nil {
		x, y := pos.Sub(status.Surface.Hotspot()).ToPhysical(scale)
		return status.Surface.Elements(image.Pt(x, y), scale)
	}

	// Frames are picked for the integer scale and drawn at the fractional one.
	picked := s.output.CurrentScale().Integer()
	frame := b.cursor.Frame(uint32(picked), b.now().Sub(b.start))
	buf, err := b.cursor.BufferFor(frame)
	if err != nil {
		b.logger.Debug("failed to build cursor buffer", "error", err)
		return nil
	}
	f := scale / float64(picked)
	w := int(math.Round(float64(frame.Image.Width) * f))
	h := int(math.Round(float64(frame.Image.Height) * f))
	x, y := pos.ToPhysical(scale)
	x -= int(math.Round(float64(frame.Image.XHot) * f))
	y -= int(math.Round(float64(frame.Image.YHot) * f))
	return []render.Element{&render.TextureElement{
		Name: "cursor",
		Rect: image.Rect(x, y, x+w, y+h),
		Buf:  buf,
		Hint: render.KindCursor,
	}}
}
