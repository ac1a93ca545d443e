package kms

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"github.com/NeowayLabs/drm/mode"

	"github.com/ravenwm/raven/internal/display"
	"github.com/ravenwm/raven/internal/render"
)

// Surface is the scanout state of one CRTC: a mode, a connector, and a pair
// of dumb buffers flipped with SetCrtc.
//
// Rendering and queueing happen on the backend event loop. The vblank timer
// only touches the fields guarded by mu.
type Surface struct {
	dev       *Device
	crtc      uint32
	connector uint32
	info      mode.Info
	mode      display.Mode
	interval  time.Duration
	logger    *slog.Logger

	bufs       [2]*dumbBuffer
	front      int
	staged     int
	back       *image.RGBA
	damage     *render.DamageTracker
	prevDamage []image.Rectangle

	mu      sync.Mutex
	pending bool
	paused  bool
	closed  bool
	timer   *time.Timer
	seq     uint64
}

// CreateSurface sets up scanout for conn on crtc using the connector's mode
// at modeIndex.
func (d *Device) CreateSurface(crtc uint32, conn ConnectorInfo, modeIndex int) (*Surface, error) {
	info, err := conn.modeInfo(modeIndex)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if _, exists := d.surfaces[crtc]; exists {
		d.mu.Unlock()
		return nil, fmt.Errorf("crtc %d already has a surface", crtc)
	}
	paused := d.paused
	d.mu.Unlock()

	m := modeFromInfo(info)
	s := &Surface{
		dev:       d,
		crtc:      crtc,
		connector: conn.ID,
		info:      info,
		mode:      m,
		interval:  time.Duration(display.FrameDuration(m.RefreshMHz)) * time.Microsecond,
		logger:    d.logger.With("crtc", crtc, "connector", conn.Name()),
		staged:    -1,
		back:      image.NewRGBA(image.Rect(0, 0, m.Width, m.Height)),
		damage:    render.NewDamageTracker(),
		paused:    paused,
	}
	for i := range s.bufs {
		buf, err := newDumbBuffer(d.file, info.Hdisplay, info.Vdisplay)
		if err != nil {
			s.releaseBuffers()
			return nil, err
		}
		s.bufs[i] = buf
	}
	if !paused {
		if err := s.modeset(s.bufs[s.front]); err != nil {
			s.releaseBuffers()
			return nil, err
		}
	}

	d.mu.Lock()
	d.surfaces[crtc] = s
	d.mu.Unlock()
	s.logger.Debug("scanout surface created", "mode", m.String())
	return s, nil
}

func (s *Surface) CRTC() uint32       { return s.crtc }
func (s *Surface) Mode() display.Mode { return s.mode }

func (s *Surface) modeset(buf *dumbBuffer) error {
	conn := s.connector
	if err := mode.SetCrtc(s.dev.file, s.crtc, buf.fbID, 0, 0, &conn, 1, &s.info); err != nil {
		return fmt.Errorf("failed to set crtc %d: %w", s.crtc, err)
	}
	return nil
}

// RenderFrame draws elements into the next buffer. It reports false when
// nothing changed since the last frame.
func (s *Surface) RenderFrame(r render.Renderer, elements []render.Element, bg color.Color) (bool, error) {
	s.mu.Lock()
	paused, closed := s.paused, s.closed
	s.mu.Unlock()
	if closed {
		return false, errors.New("kms: surface closed")
	}
	if paused {
		return false, ErrPaused
	}

	rects := s.damage.Damage(s.back.Bounds().Size(), elements)
	if len(rects) == 0 {
		return false, nil
	}
	if err := r.Render(&render.Frame{Target: s.back, Elements: elements, Clear: bg, Damage: rects}); err != nil {
		s.damage.Reset()
		return false, err
	}

	next := 1 - s.front
	buf := s.bufs[next]
	for _, rect := range s.prevDamage {
		blitXRGB(buf.data, buf.pitch, s.back, rect)
	}
	for _, rect := range rects {
		blitXRGB(buf.data, buf.pitch, s.back, rect)
	}
	s.prevDamage = rects
	s.staged = next
	return true, nil
}

// QueueFrame presents the staged buffer. A vblank event follows one
// refresh interval later.
func (s *Surface) QueueFrame() error {
	s.mu.Lock()
	if s.paused {
		s.mu.Unlock()
		return ErrPaused
	}
	if s.pending {
		s.mu.Unlock()
		return ErrFramePending
	}
	s.mu.Unlock()

	idx := s.staged
	if idx < 0 {
		idx = s.front
	}
	if err := s.modeset(s.bufs[idx]); err != nil {
		s.damage.Reset()
		return err
	}
	s.front = idx
	s.staged = -1

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = true
	s.seq++
	seq := s.seq
	s.timer = time.AfterFunc(s.interval, func() {
		s.dev.deliver(VBlank{CRTC: s.crtc, Sequence: seq, Time: time.Now()})
	})
	return nil
}

// FrameSubmitted acknowledges the vblank of the pending frame.
func (s *Surface) FrameSubmitted() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.pending {
		return errors.New("kms: no frame pending")
	}
	s.pending = false
	s.timer = nil
	return nil
}

// Reset forces the next frame to be redrawn in full.
func (s *Surface) Reset() {
	s.damage.Reset()
	s.prevDamage = nil
}

func (s *Surface) pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	s.pending = false
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Surface) activate() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.paused = false
	s.pending = false
	s.mu.Unlock()

	s.Reset()
	return s.modeset(s.bufs[s.front])
}

// Close stops the vblank timer and frees the buffers. Safe to call twice.
func (s *Surface) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	s.dev.removeSurface(s.crtc)
	return s.releaseBuffers()
}

func (s *Surface) releaseBuffers() error {
	var first error
	for i, buf := range s.bufs {
		if buf == nil {
			continue
		}
		if err := buf.destroy(s.dev.file); err != nil && first == nil {
			first = err
		}
		s.bufs[i] = nil
	}
	return first
}
