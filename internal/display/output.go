package display

import (
	"math"
	"sort"
)

// PhysicalProperties describes the panel behind an output as reported by EDID.
type PhysicalProperties struct {
	SizeMM Size
	Make   string
	Model  string
	Serial string
}

// ClientID identifies a protocol client that an output has entered.
type ClientID uint64

// Output is the logical output advertised to clients: name, physical data and
// the current mode/transform/scale/position.
//
// Outputs are owned by the backend event loop and are not safe for concurrent use.
type Output struct {
	name      string
	physical  PhysicalProperties
	preferred Mode
	mode      Mode
	transform Transform
	scale     Scale
	x, y      int

	clients map[ClientID]struct{}
	onLeave func(ClientID)
}

// NewOutput creates an output with integer scale 1 and normal transform.
func NewOutput(name string, physical PhysicalProperties) *Output {
	return &Output{
		name:     name,
		physical: physical,
		scale:    IntegerScale(1),
		clients:  make(map[ClientID]struct{}),
	}
}

func (o *Output) Name() string                      { return o.name }
func (o *Output) Physical() PhysicalProperties      { return o.physical }
func (o *Output) PreferredMode() Mode               { return o.preferred }
func (o *Output) CurrentMode() Mode                 { return o.mode }
func (o *Output) CurrentTransform() Transform       { return o.transform }
func (o *Output) CurrentScale() Scale               { return o.scale }
func (o *Output) Position() (int, int)              { return o.x, o.y }
func (o *Output) SetPreferred(m Mode)               { o.preferred = m }
func (o *Output) SetLeaveHandler(fn func(ClientID)) { o.onLeave = fn }

// State is a partial update to an output's current state. Nil fields are left unchanged.
type State struct {
	Mode      *Mode
	Transform *Transform
	Scale     *Scale
	Position  *[2]int
}

// ChangeCurrentState applies the non-nil parts of st.
func (o *Output) ChangeCurrentState(st State) {
	if st.Mode != nil {
		o.mode = *st.Mode
	}
	if st.Transform != nil {
		o.transform = *st.Transform
	}
	if st.Scale != nil {
		o.scale = *st.Scale
	}
	if st.Position != nil {
		o.x, o.y = st.Position[0], st.Position[1]
	}
}

// LogicalSize is the mode size after transform and scale.
func (o *Output) LogicalSize() Size {
	w, h := o.mode.Width, o.mode.Height
	if o.transform.SwapsAxes() {
		w, h = h, w
	}
	s := o.scale.Fractional()
	return Size{
		Width:  int(math.Round(float64(w) / s)),
		Height: int(math.Round(float64(h) / s)),
	}
}

// Enter records that client now sees this output.
func (o *Output) Enter(c ClientID) {
	o.clients[c] = struct{}{}
}

// Leave removes a single client.
func (o *Output) Leave(c ClientID) {
	if _, ok := o.clients[c]; !ok {
		return
	}
	delete(o.clients, c)
	if o.onLeave != nil {
		o.onLeave(c)
	}
}

// Clients returns the entered clients in ascending order.
func (o *Output) Clients() []ClientID {
	ids := make([]ClientID, 0, len(o.clients))
	for c := range o.clients {
		ids = append(ids, c)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LeaveAll tells every client it has left this output.
func (o *Output) LeaveAll() {
	for _, c := range o.Clients() {
		o.Leave(c)
	}
}
