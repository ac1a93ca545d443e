package backend

import (
	"image"
	"image/color"
	"os"
	"time"

	"github.com/ravenwm/raven/internal/display"
	"github.com/ravenwm/raven/internal/eventloop"
	"github.com/ravenwm/raven/internal/kms"
	"github.com/ravenwm/raven/internal/render"
)

// Loop is the part of the event loop the backend schedules work on.
type Loop interface {
	Post(fn func())
	Schedule(d time.Duration, fn func()) eventloop.Token
	Cancel(token eventloop.Token) bool
}

// Scanout is the per-CRTC presentation state of an output.
type Scanout interface {
	// RenderFrame composes elements and reports whether anything changed.
	RenderFrame(r render.Renderer, elements []render.Element, bg color.Color) (bool, error)
	QueueFrame() error
	// FrameSubmitted acknowledges the completion event of the queued frame.
	FrameSubmitted() error
	// Reset drops damage history so the next frame is drawn in full.
	Reset()
	Close() error
}

// GPU is an opened display adapter.
type GPU interface {
	Node() render.Node
	RenderNode() render.Node
	Scan() ([]kms.ConnectorEvent, error)
	ForgetConnector(id uint32)
	EDID(c kms.ConnectorInfo) ([]byte, error)
	CreateScanout(crtc uint32, conn kms.ConnectorInfo, modeIndex int) (Scanout, error)
	// SetVBlankHandler registers the completion callback. It may be called
	// from any goroutine.
	SetVBlankHandler(fn func(kms.VBlank))
	Pause()
	Activate() error
	Close() error
}

// DeviceOpener turns a device file opened through the session into a GPU.
type DeviceOpener func(f *os.File, path string) (GPU, error)

// Session hands out privileged device files.
type Session interface {
	Open(path string, flags int) (*os.File, error)
	Close(f *os.File) error
	Seat() string
}

// FrameMeta describes a presented frame.
type FrameMeta struct {
	Sequence uint64
	Time     time.Time
	Refresh  time.Duration
}

// SceneProvider supplies the windows and layers drawn on an output.
type SceneProvider interface {
	// Elements returns the scene in front-to-back order.
	Elements(o *display.Output) []render.Element
	SendFrames(o *display.Output, now time.Time, seq uint32)
	PresentationFeedback(o *display.Output, meta FrameMeta)
}

// CursorKind says how the pointer should be drawn.
type CursorKind int

const (
	CursorNamed CursorKind = iota
	CursorHidden
	CursorClient
)

// CursorSurface is a client-provided cursor image.
type CursorSurface interface {
	Hotspot() display.Point
	// Elements returns the surface tree placed at pos in physical output pixels.
	Elements(pos image.Point, scale float64) []render.Element
}

// CursorStatus is the current cursor image.
type CursorStatus struct {
	Kind    CursorKind
	Surface CursorSurface
}

// Pointer exposes the seat pointer.
type Pointer interface {
	Location() display.Point
	CursorStatus() CursorStatus
}

// GlobalID identifies a protocol global.
type GlobalID uint64

// Globals registers output globals and flushes pending client messages.
type Globals interface {
	CreateOutputGlobal(o *display.Output) GlobalID
	RemoveGlobal(id GlobalID)
	FlushClients()
}

// InputStack is the input device context suspended across VT switches.
type InputStack interface {
	Suspend()
	Resume() error
}

type emptyScene struct{}

func (emptyScene) Elements(*display.Output) []render.Element { return nil }

func (emptyScene) SendFrames(*display.Output, time.Time, uint32) {}

func (emptyScene) PresentationFeedback(*display.Output, FrameMeta) {}

type hiddenPointer struct{}

func (hiddenPointer) Location() display.Point { return display.Point{} }

func (hiddenPointer) CursorStatus() CursorStatus { return CursorStatus{Kind: CursorHidden} }

type noGlobals struct {
	next GlobalID
}

func (g *noGlobals) CreateOutputGlobal(*display.Output) GlobalID {
	g.next++
	return g.next
}

func (g *noGlobals) RemoveGlobal(GlobalID) {}

func (g *noGlobals) FlushClients() {}

type noInput struct{}

func (noInput) Suspend() {}

func (noInput) Resume() error { return nil }
