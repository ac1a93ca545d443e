package cursor

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	xcursorMagic     = "Xcur"
	xcursorImageType = 0xfffd0002
	xcursorMaxSide   = 0x7fff
)

// ErrNoCursor is returned when a theme has no file for the requested icon.
var ErrNoCursor = errors.New("cursor icon not found in theme")

// ParseXcursor decodes every image chunk of an Xcursor file.
func ParseXcursor(data []byte) ([]Image, error) {
	if len(data) < 16 || string(data[:4]) != xcursorMagic {
		return nil, errors.New("not an Xcursor file")
	}
	le := binary.LittleEndian
	headerLen := le.Uint32(data[4:8])
	ntoc := le.Uint32(data[12:16])
	if uint64(headerLen)+uint64(ntoc)*12 > uint64(len(data)) {
		return nil, errors.New("truncated Xcursor table of contents")
	}

	var images []Image
	for i := uint32(0); i < ntoc; i++ {
		entry := data[headerLen+i*12:]
		if le.Uint32(entry[0:4]) != xcursorImageType {
			continue
		}
		img, err := parseImageChunk(data, le.Uint32(entry[8:12]))
		if err != nil {
			return nil, fmt.Errorf("toc entry %d: %w", i, err)
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		return nil, errors.New("no images in Xcursor file")
	}
	return images, nil
}

func parseImageChunk(data []byte, pos uint32) (Image, error) {
	le := binary.LittleEndian
	if uint64(pos)+36 > uint64(len(data)) {
		return Image{}, errors.New("image chunk out of range")
	}
	h := data[pos : pos+36]
	if le.Uint32(h[4:8]) != xcursorImageType {
		return Image{}, errors.New("chunk type mismatch")
	}
	img := Image{
		Size:   le.Uint32(h[8:12]),
		Width:  le.Uint32(h[16:20]),
		Height: le.Uint32(h[20:24]),
		XHot:   le.Uint32(h[24:28]),
		YHot:   le.Uint32(h[28:32]),
		Delay:  le.Uint32(h[32:36]),
	}
	if img.Width == 0 || img.Height == 0 || img.Width > xcursorMaxSide || img.Height > xcursorMaxSide {
		return Image{}, fmt.Errorf("invalid image size %dx%d", img.Width, img.Height)
	}

	n := uint64(img.Width) * uint64(img.Height)
	start := uint64(pos) + uint64(le.Uint32(h[0:4]))
	if start+n*4 > uint64(len(data)) {
		return Image{}, errors.New("truncated image pixels")
	}
	src := data[start : start+n*4]
	img.Pixels = make([]byte, n*4)
	for i := uint64(0); i < n; i++ {
		// Stored as premultiplied ARGB, little endian.
		b, g, r, a := src[i*4], src[i*4+1], src[i*4+2], src[i*4+3]
		if a != 0 && a != 255 {
			r = unpremultiply(r, a)
			g = unpremultiply(g, a)
			b = unpremultiply(b, a)
		}
		copy(img.Pixels[i*4:], []byte{r, g, b, a})
	}
	return img, nil
}

func unpremultiply(c, a byte) byte {
	v := (uint32(c)*255 + uint32(a)/2) / uint32(a)
	if v > 255 {
		v = 255
	}
	return byte(v)
}

// SearchPath returns the directories searched for cursor themes, honouring
// XCURSOR_PATH.
func SearchPath() []string {
	if p := os.Getenv("XCURSOR_PATH"); p != "" {
		return filepath.SplitList(p)
	}
	var dirs []string
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(home, ".local", "share", "icons"),
			filepath.Join(home, ".icons"),
		)
	}
	return append(dirs, "/usr/share/icons", "/usr/share/pixmaps")
}

// FindIcon resolves icon in theme, following Inherits entries of each
// theme's index.theme.
func FindIcon(dirs []string, theme, icon string) (string, error) {
	seen := make(map[string]bool)
	queue := []string{theme}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true

		for _, dir := range dirs {
			path := filepath.Join(dir, name, "cursors", icon)
			if st, err := os.Stat(path); err == nil && !st.IsDir() {
				return path, nil
			}
		}
		for _, dir := range dirs {
			queue = append(queue, inherits(filepath.Join(dir, name, "index.theme"))...)
		}
	}
	return "", fmt.Errorf("%w: %s/%s", ErrNoCursor, theme, icon)
}

func inherits(indexPath string) []string {
	data, err := os.ReadFile(indexPath)
	if err != nil {
		return nil
	}
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		key, value, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(key) != "Inherits" {
			continue
		}
		for _, name := range strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' || r == ' ' }) {
			out = append(out, name)
		}
	}
	return out
}

// LoadTheme reads the "default" icon of the named theme.
func LoadTheme(dirs []string, theme string) ([]Image, error) {
	path, err := FindIcon(dirs, theme, "default")
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cursor file: %w", err)
	}
	images, err := ParseXcursor(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse cursor file %s: %w", path, err)
	}
	return images, nil
}
