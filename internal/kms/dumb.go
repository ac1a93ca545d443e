package kms

import (
	"fmt"
	"image"
	"os"

	"github.com/NeowayLabs/drm/mode"
	"golang.org/x/sys/unix"
)

// dumbBuffer is a CPU-mapped XRGB8888 scanout buffer.
type dumbBuffer struct {
	handle uint32
	fbID   uint32
	pitch  int
	data   []byte
}

func newDumbBuffer(file *os.File, width, height uint16) (*dumbBuffer, error) {
	fb, err := mode.CreateFB(file, width, height, 32)
	if err != nil {
		return nil, fmt.Errorf("failed to create dumb buffer: %w", err)
	}
	b := &dumbBuffer{handle: fb.Handle, pitch: int(fb.Pitch)}

	b.fbID, err = mode.AddFB(file, width, height, 24, 32, fb.Pitch, fb.Handle)
	if err != nil {
		_ = mode.DestroyDumb(file, fb.Handle)
		return nil, fmt.Errorf("failed to add framebuffer: %w", err)
	}

	offset, err := mode.MapDumb(file, fb.Handle)
	if err != nil {
		_ = b.destroy(file)
		return nil, fmt.Errorf("failed to map dumb buffer: %w", err)
	}
	b.data, err = unix.Mmap(int(file.Fd()), int64(offset), int(fb.Size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = b.destroy(file)
		return nil, fmt.Errorf("failed to mmap dumb buffer: %w", err)
	}
	for i := range b.data {
		b.data[i] = 0
	}
	return b, nil
}

func (b *dumbBuffer) destroy(file *os.File) error {
	var first error
	if b.data != nil {
		if err := unix.Munmap(b.data); err != nil {
			first = err
		}
		b.data = nil
	}
	if b.fbID != 0 {
		if err := mode.RmFB(file, b.fbID); err != nil && first == nil {
			first = err
		}
		b.fbID = 0
	}
	if b.handle != 0 {
		if err := mode.DestroyDumb(file, b.handle); err != nil && first == nil {
			first = err
		}
		b.handle = 0
	}
	return first
}

// blitXRGB copies r from src into an XRGB8888 little-endian buffer.
func blitXRGB(dst []byte, pitch int, src *image.RGBA, r image.Rectangle) {
	r = r.Intersect(src.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		row := dst[y*pitch:]
		s := src.Pix[src.PixOffset(r.Min.X, y):]
		for x := r.Min.X; x < r.Max.X; x++ {
			i := (x - r.Min.X) * 4
			o := x * 4
			row[o+0] = s[i+2]
			row[o+1] = s[i+1]
			row[o+2] = s[i+0]
			row[o+3] = 0xff
		}
	}
}
