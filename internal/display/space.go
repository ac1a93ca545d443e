package display

// Space is the shared logical coordinate space outputs are mapped into.
type Space struct {
	outputs []*Output
}

// NewSpace returns an empty space.
func NewSpace() *Space {
	return &Space{}
}

// MapOutput places o at (x, y), adding it if it is not mapped yet.
func (s *Space) MapOutput(o *Output, x, y int) {
	pos := [2]int{x, y}
	o.ChangeCurrentState(State{Position: &pos})
	for _, existing := range s.outputs {
		if existing == o {
			return
		}
	}
	s.outputs = append(s.outputs, o)
}

// UnmapOutput removes o from the space. Unknown outputs are ignored.
func (s *Space) UnmapOutput(o *Output) {
	for i, existing := range s.outputs {
		if existing == o {
			s.outputs = append(s.outputs[:i], s.outputs[i+1:]...)
			return
		}
	}
}

// Outputs returns the mapped outputs in mapping order.
func (s *Space) Outputs() []*Output {
	out := make([]*Output, len(s.outputs))
	copy(out, s.outputs)
	return out
}

// Len returns the number of mapped outputs.
func (s *Space) Len() int {
	return len(s.outputs)
}

// OutputGeometry returns the logical rectangle covered by o.
func (s *Space) OutputGeometry(o *Output) (Rect, bool) {
	for _, existing := range s.outputs {
		if existing == o {
			x, y := o.Position()
			size := o.LogicalSize()
			return Rect{X: x, Y: y, Width: size.Width, Height: size.Height}, true
		}
	}
	return Rect{}, false
}

// AutoX returns the x coordinate for the next auto-placed output: the sum of
// the widths of every mapped output.
func (s *Space) AutoX() int {
	x := 0
	for _, o := range s.outputs {
		if geo, ok := s.OutputGeometry(o); ok {
			x += geo.Width
		}
	}
	return x
}
