package render

import (
	"image"
	"image/color"
)

// Kind hints how an element may be presented.
type Kind int

const (
	KindUnspecified Kind = iota
	// KindCursor marks the pointer element.
	KindCursor
	// KindScanoutCandidate marks elements that could go on a plane directly.
	KindScanoutCandidate
)

// Element is one drawable item of an output frame, in physical output
// coordinates. Elements are ordered front to back.
type Element interface {
	// ID is stable across frames for the same logical item.
	ID() string
	Geometry() image.Rectangle
	// Serial changes whenever the element needs redrawing.
	Serial() uint64
	Kind() Kind
}

// BufferElement draws a buffer stretched over its geometry.
type BufferElement interface {
	Element
	Buffer() Buffer
}

// ColorElement fills its geometry with a solid color.
type ColorElement interface {
	Element
	Color() color.Color
}

// TextureElement is the stock BufferElement implementation.
type TextureElement struct {
	Name string
	Rect image.Rectangle
	Buf  Buffer
	Hint Kind
}

func (e *TextureElement) ID() string                { return e.Name }
func (e *TextureElement) Geometry() image.Rectangle { return e.Rect }
func (e *TextureElement) Serial() uint64            { return e.Buf.Serial() }
func (e *TextureElement) Kind() Kind                { return e.Hint }
func (e *TextureElement) Buffer() Buffer            { return e.Buf }

// SolidElement is the stock ColorElement implementation.
type SolidElement struct {
	Name  string
	Rect  image.Rectangle
	Fill  color.NRGBA
	Dirty uint64
}

func (e *SolidElement) ID() string                { return e.Name }
func (e *SolidElement) Geometry() image.Rectangle { return e.Rect }
func (e *SolidElement) Serial() uint64            { return e.Dirty }
func (e *SolidElement) Kind() Kind                { return KindUnspecified }
func (e *SolidElement) Color() color.Color        { return e.Fill }
