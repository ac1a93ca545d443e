package render

import (
	"image"
	"image/color"
)

// maxDamageRects is the threshold after which a frame is redrawn in full.
const maxDamageRects = 16

type elementState struct {
	index  int
	rect   image.Rectangle
	serial uint64
	buffer uint64
	color  color.RGBA
}

// DamageTracker diffs consecutive element lists of one output and reports
// the regions that changed.
type DamageTracker struct {
	size image.Point
	last map[string]elementState
	full bool
}

// NewDamageTracker returns a tracker whose first frame is fully damaged.
func NewDamageTracker() *DamageTracker {
	return &DamageTracker{full: true}
}

// Reset forces the next frame to be fully damaged, e.g. after a modeset or
// a failed submission.
func (d *DamageTracker) Reset() {
	d.full = true
	d.last = nil
}

// Damage compares elements against the previous call and returns the
// damaged regions clipped to size. An empty result means nothing changed.
func (d *DamageTracker) Damage(size image.Point, elements []Element) []image.Rectangle {
	bounds := image.Rectangle{Max: size}
	next := make(map[string]elementState, len(elements))
	for i, e := range elements {
		next[e.ID()] = snapshot(i, e)
	}

	full := d.full || d.size != size
	d.size = size
	d.full = false
	prev := d.last
	d.last = next
	if full {
		return []image.Rectangle{bounds}
	}

	var rects []image.Rectangle
	add := func(r image.Rectangle) {
		r = r.Intersect(bounds)
		if !r.Empty() {
			rects = append(rects, r)
		}
	}
	for id, cur := range next {
		old, ok := prev[id]
		if !ok {
			add(cur.rect)
			continue
		}
		if old != cur {
			add(old.rect)
			add(cur.rect)
		}
	}
	for id, old := range prev {
		if _, ok := next[id]; !ok {
			add(old.rect)
		}
	}

	if len(rects) > maxDamageRects {
		return []image.Rectangle{bounds}
	}
	return rects
}

func snapshot(index int, e Element) elementState {
	st := elementState{index: index, rect: e.Geometry(), serial: e.Serial()}
	switch el := e.(type) {
	case BufferElement:
		if buf := el.Buffer(); buf != nil {
			st.buffer = buf.ID()
		}
	case ColorElement:
		st.color = color.RGBAModel.Convert(el.Color()).(color.RGBA)
	}
	return st
}
