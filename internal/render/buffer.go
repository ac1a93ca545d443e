// Package render holds the renderer capability interface, the per-adapter
// renderer pool, and the software renderer used on dumb-buffer scanout.
package render

import (
	"fmt"
	"image"
	"image/draw"
	"strconv"
	"strings"
	"sync/atomic"
)

// Node identifies a GPU adapter by its device number.
type Node struct {
	Major uint32
	Minor uint32
}

func (n Node) String() string {
	return fmt.Sprintf("%d:%d", n.Major, n.Minor)
}

// ParseNode parses a "major:minor" device number as found in sysfs dev files.
func ParseNode(s string) (Node, bool) {
	majStr, minStr, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Node{}, false
	}
	major, err := strconv.ParseUint(majStr, 10, 32)
	if err != nil {
		return Node{}, false
	}
	minor, err := strconv.ParseUint(minStr, 10, 32)
	if err != nil {
		return Node{}, false
	}
	return Node{Major: uint32(major), Minor: uint32(minor)}, true
}

// IsZero reports whether n is the zero node.
func (n Node) IsZero() bool {
	return n.Major == 0 && n.Minor == 0
}

var bufferIDs atomic.Uint64

func nextBufferID() uint64 {
	return bufferIDs.Add(1)
}

// Buffer is pixel content that a renderer can import.
type Buffer interface {
	// ID is stable for the lifetime of the buffer.
	ID() uint64
	// Serial changes whenever the content changes.
	Serial() uint64
	// Origin returns the adapter the buffer lives on. ok is false for plain
	// memory buffers, which every renderer can read directly.
	Origin() (node Node, ok bool)
	Image() image.Image
}

// MemoryBuffer is a CPU-side buffer, e.g. a decoded cursor frame or an shm
// client buffer.
type MemoryBuffer struct {
	id     uint64
	serial uint64
	img    *image.NRGBA
}

// NewMemoryBuffer wraps img. The buffer takes ownership of img.
func NewMemoryBuffer(img *image.NRGBA) *MemoryBuffer {
	return &MemoryBuffer{id: nextBufferID(), serial: 1, img: img}
}

// NewMemoryBufferFromRGBA copies straight RGBA pixels of the given size.
func NewMemoryBufferFromRGBA(pixels []byte, width, height int) (*MemoryBuffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid buffer size %dx%d", width, height)
	}
	if len(pixels) < width*height*4 {
		return nil, fmt.Errorf("pixel data too short: %d bytes for %dx%d", len(pixels), width, height)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	copy(img.Pix, pixels[:width*height*4])
	return NewMemoryBuffer(img), nil
}

func (b *MemoryBuffer) ID() uint64           { return b.id }
func (b *MemoryBuffer) Serial() uint64       { return b.serial }
func (b *MemoryBuffer) Origin() (Node, bool) { return Node{}, false }
func (b *MemoryBuffer) Image() image.Image   { return b.img }

// Touch marks the content as changed.
func (b *MemoryBuffer) Touch() {
	b.serial++
}

// DeviceBuffer is a buffer resident on a specific adapter, such as a dma-buf
// handed over by a client or produced by another GPU.
type DeviceBuffer struct {
	id     uint64
	serial uint64
	node   Node
	img    draw.Image
}

// NewDeviceBuffer wraps img as living on node.
func NewDeviceBuffer(node Node, img draw.Image) *DeviceBuffer {
	return &DeviceBuffer{id: nextBufferID(), serial: 1, node: node, img: img}
}

func (b *DeviceBuffer) ID() uint64           { return b.id }
func (b *DeviceBuffer) Serial() uint64       { return b.serial }
func (b *DeviceBuffer) Origin() (Node, bool) { return b.node, true }
func (b *DeviceBuffer) Image() image.Image   { return b.img }

// Touch marks the content as changed.
func (b *DeviceBuffer) Touch() {
	b.serial++
}
