// Package cursor selects animated cursor frames from an Xcursor theme and
// memoizes them as renderer buffers.
package cursor

import "time"

// Image is one decoded cursor image. Pixels are straight RGBA, row major.
type Image struct {
	// Size is the nominal size the image was drawn for.
	Size   uint32
	Width  uint32
	Height uint32
	XHot   uint32
	YHot   uint32
	// Delay is the frame duration in milliseconds.
	Delay  uint32
	Pixels []byte
}

// nearest returns the indices of every image with the same dimensions as
// the image whose nominal size is closest to size. Ties go to the first.
func nearest(size uint32, images []Image) []int {
	if len(images) == 0 {
		return nil
	}
	best := 0
	bestDiff := absDiff(size, images[0].Size)
	for i := 1; i < len(images); i++ {
		if d := absDiff(size, images[i].Size); d < bestDiff {
			best, bestDiff = i, d
		}
	}

	var out []int
	for i, img := range images {
		if img.Width == images[best].Width && img.Height == images[best].Height {
			out = append(out, i)
		}
	}
	return out
}

func absDiff(a, b uint32) int64 {
	d := int64(a) - int64(b)
	if d < 0 {
		return -d
	}
	return d
}

// frameIndex picks the animation frame active at t for a cursor of the
// given size. It returns -1 only when images is empty.
func frameIndex(t time.Duration, size uint32, images []Image) int {
	candidates := nearest(size, images)
	if len(candidates) == 0 {
		return -1
	}

	var total uint64
	for _, i := range candidates {
		total += uint64(images[i].Delay)
	}
	if total == 0 {
		return candidates[0]
	}

	millis := uint64(uint32(t.Milliseconds())) % total
	for _, i := range candidates {
		delay := uint64(images[i].Delay)
		if millis < delay {
			return i
		}
		millis -= delay
	}
	return candidates[len(candidates)-1]
}

// Fallback is a 24x24 black arrow with a white outline, used when no theme
// can be loaded.
func Fallback() Image {
	const w, h = 24, 24
	idx := func(x, y int) int { return y*w + x }

	mask := make([]bool, w*h)
	for y := 0; y < 16; y++ {
		right := y/2 + 1
		for x := 0; x <= right; x++ {
			mask[idx(x, y)] = true
		}
	}
	for y := 10; y < 23; y++ {
		for x := 4; x <= 8; x++ {
			mask[idx(x, y)] = true
		}
	}

	outline := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !mask[idx(x, y)] {
				continue
			}
			for oy := -1; oy <= 1; oy++ {
				for ox := -1; ox <= 1; ox++ {
					nx, ny := x+ox, y+oy
					if (ox == 0 && oy == 0) || nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					if !mask[idx(nx, ny)] {
						outline[idx(nx, ny)] = true
					}
				}
			}
		}
	}

	pixels := make([]byte, w*h*4)
	for i := range mask {
		p := pixels[i*4 : i*4+4]
		switch {
		case mask[i]:
			p[3] = 255
		case outline[i]:
			p[0], p[1], p[2], p[3] = 255, 255, 255, 255
		}
	}

	return Image{
		Size:   w,
		Width:  w,
		Height: h,
		XHot:   1,
		YHot:   1,
		Delay:  1,
		Pixels: pixels,
	}
}
