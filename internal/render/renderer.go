package render

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"

	xdraw "golang.org/x/image/draw"
)

var (
	// ErrImportFailed is returned when a buffer cannot be imported.
	ErrImportFailed = errors.New("buffer import failed")
	// ErrForeignBuffer is returned when a renderer is handed a buffer that
	// lives on another adapter without going through the pool.
	ErrForeignBuffer = errors.New("buffer belongs to another adapter")
)

// Frame is one render request for an output.
type Frame struct {
	Target   *image.RGBA
	Elements []Element
	Clear    color.Color
	// Damage limits drawing to these regions. Empty means the whole target.
	Damage []image.Rectangle
}

// Renderer draws element lists into a target bound to one adapter.
type Renderer interface {
	Node() Node
	// Import makes buf usable by Render. Buffers that live on another
	// adapter are rejected; use Pool.Prepare for those.
	Import(buf Buffer) error
	Render(frame *Frame) error
}

// SoftwareRenderer composites on the CPU. It backs dumb-buffer scanout and
// serves as the fallback when no accelerated renderer is available.
type SoftwareRenderer struct {
	node   Node
	scaler xdraw.Scaler
	// imported tracks the last serial seen per buffer id.
	imported map[uint64]uint64
}

// NewSoftwareRenderer creates a renderer bound to node.
func NewSoftwareRenderer(node Node) *SoftwareRenderer {
	return &SoftwareRenderer{
		node:     node,
		scaler:   xdraw.ApproxBiLinear,
		imported: make(map[uint64]uint64),
	}
}

func (r *SoftwareRenderer) Node() Node { return r.node }

func (r *SoftwareRenderer) Import(buf Buffer) error {
	if buf == nil || buf.Image() == nil {
		return fmt.Errorf("%w: empty buffer", ErrImportFailed)
	}
	if node, ok := buf.Origin(); ok && node != r.node {
		return fmt.Errorf("%w: %s on renderer %s", ErrForeignBuffer, node, r.node)
	}
	if buf.Image().Bounds().Empty() {
		return fmt.Errorf("%w: zero-sized buffer", ErrImportFailed)
	}
	r.imported[buf.ID()] = buf.Serial()
	return nil
}

// Forget drops bookkeeping for a buffer that went away.
func (r *SoftwareRenderer) Forget(id uint64) {
	delete(r.imported, id)
}

func (r *SoftwareRenderer) Render(frame *Frame) error {
	if frame == nil || frame.Target == nil {
		return errors.New("render: no target")
	}
	damage := frame.Damage
	if len(damage) == 0 {
		damage = []image.Rectangle{frame.Target.Bounds()}
	}
	bg := frame.Clear
	if bg == nil {
		bg = color.Black
	}

	for _, region := range damage {
		region = region.Intersect(frame.Target.Bounds())
		if region.Empty() {
			continue
		}
		dst := frame.Target.SubImage(region).(*image.RGBA)
		draw.Draw(dst, region, image.NewUniform(bg), image.Point{}, draw.Src)

		// Elements are front to back; paint back to front.
		for i := len(frame.Elements) - 1; i >= 0; i-- {
			if err := r.drawElement(dst, frame.Elements[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *SoftwareRenderer) drawElement(dst *image.RGBA, e Element) error {
	geo := e.Geometry()
	if geo.Intersect(dst.Bounds()).Empty() {
		return nil
	}
	switch el := e.(type) {
	case ColorElement:
		draw.Draw(dst, geo, image.NewUniform(el.Color()), image.Point{}, draw.Over)
	case BufferElement:
		buf := el.Buffer()
		if buf == nil {
			return nil
		}
		if _, ok := r.imported[buf.ID()]; !ok {
			if err := r.Import(buf); err != nil {
				return fmt.Errorf("element %s: %w", e.ID(), err)
			}
		}
		src := buf.Image()
		sb := src.Bounds()
		if sb.Dx() == geo.Dx() && sb.Dy() == geo.Dy() {
			draw.Draw(dst, geo, src, sb.Min, draw.Over)
			return nil
		}
		r.scaler.Scale(dst, geo, src, sb, draw.Over, nil)
	}
	return nil
}
