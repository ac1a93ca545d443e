package cursor

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/ravenwm/raven/internal/render"
)

const (
	DefaultTheme = "default"
	DefaultSize  = 24
)

// Config holds configuration for a Manager.
type Config struct {
	Theme string
	Size  uint32
	// Loader reads the frames of a theme. Defaults to LoadTheme over SearchPath.
	Loader func(theme string) ([]Image, error)
	Logger *slog.Logger
}

// ConfigFromEnv fills theme and size from XCURSOR_THEME and XCURSOR_SIZE.
func ConfigFromEnv() Config {
	cfg := Config{Theme: DefaultTheme, Size: DefaultSize}
	if name := os.Getenv("XCURSOR_THEME"); name != "" {
		cfg.Theme = name
	}
	if raw := os.Getenv("XCURSOR_SIZE"); raw != "" {
		if size, err := strconv.ParseUint(raw, 10, 32); err == nil && size > 0 {
			cfg.Size = uint32(size)
		}
	}
	return cfg
}

// FrameID identifies a frame within one loaded theme generation.
type FrameID struct {
	Generation uint64
	Index      int
}

// Frame is the animation frame selected for a point in time.
type Frame struct {
	ID    FrameID
	Image *Image
}

// Manager owns the loaded theme frames and the buffer cache built from them.
//
// A Manager is owned by the backend event loop and is not safe for concurrent use.
type Manager struct {
	theme  string
	size   uint32
	loader func(string) ([]Image, error)
	logger *slog.Logger

	images     []Image
	generation uint64
	buffers    map[FrameID]*render.MemoryBuffer
}

// NewManager loads the configured theme, falling back to the built-in arrow.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Theme == "" {
		cfg.Theme = DefaultTheme
	}
	if cfg.Size == 0 {
		cfg.Size = DefaultSize
	}
	loader := cfg.Loader
	if loader == nil {
		loader = func(theme string) ([]Image, error) {
			return LoadTheme(SearchPath(), theme)
		}
	}
	m := &Manager{
		theme:  cfg.Theme,
		size:   cfg.Size,
		loader: loader,
		logger: logger,
	}
	m.load()
	return m
}

func (m *Manager) load() {
	images, err := m.loader(m.theme)
	if err != nil || len(images) == 0 {
		if err == nil {
			err = fmt.Errorf("theme %q has no frames", m.theme)
		}
		m.logger.Warn("unable to load cursor theme, using fallback cursor",
			"theme", m.theme,
			"error", err,
		)
		images = []Image{Fallback()}
	}
	m.images = images
	m.generation++
	m.buffers = make(map[FrameID]*render.MemoryBuffer)
}

// Theme returns the configured theme name.
func (m *Manager) Theme() string { return m.theme }

// Size returns the nominal cursor size at scale 1.
func (m *Manager) Size() uint32 { return m.size }

// Frame returns the frame to show at t on an output with the given integer scale.
func (m *Manager) Frame(scale uint32, t time.Duration) Frame {
	if scale == 0 {
		scale = 1
	}
	size := uint64(m.size) * uint64(scale)
	if size > math.MaxUint32 {
		size = math.MaxUint32
	}
	i := frameIndex(t, uint32(size), m.images)
	return Frame{
		ID:    FrameID{Generation: m.generation, Index: i},
		Image: &m.images[i],
	}
}

// BufferFor returns the memoized buffer for f, creating it on first use.
func (m *Manager) BufferFor(f Frame) (*render.MemoryBuffer, error) {
	if buf, ok := m.buffers[f.ID]; ok {
		return buf, nil
	}
	buf, err := render.NewMemoryBufferFromRGBA(f.Image.Pixels, int(f.Image.Width), int(f.Image.Height))
	if err != nil {
		return nil, fmt.Errorf("cursor frame %d: %w", f.ID.Index, err)
	}
	m.buffers[f.ID] = buf
	return buf, nil
}

// CachedFrames reports how many frame buffers are memoized.
func (m *Manager) CachedFrames() int {
	return len(m.buffers)
}

// Invalidate drops every cached buffer and reloads the theme.
func (m *Manager) Invalidate() {
	m.load()
	m.logger.Info("cursor theme reloaded", "theme", m.theme, "frames", len(m.images))
}

// SetTheme switches theme and size, then reloads.
func (m *Manager) SetTheme(theme string, size uint32) {
	if theme != "" {
		m.theme = theme
	}
	if size != 0 {
		m.size = size
	}
	m.Invalidate()
}
