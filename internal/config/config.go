package config

import (
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/ravenwm/raven/internal/display"
)

// MonitorConfig describes how one connector should be driven.
type MonitorConfig struct {
	// Name matches the output name (e.g. "DP-1", "HDMI-A-1"), case-insensitive.
	Name    string `yaml:"name"`
	Enabled *bool  `yaml:"enabled,omitempty"`
	// Mode is a shorthand such as "2560x1440@144" or "1920x1080".
	// It cannot be combined with Width, Height or RefreshHz.
	Mode      string  `yaml:"mode,omitempty"`
	Width     int     `yaml:"width,omitempty"`
	Height    int     `yaml:"height,omitempty"`
	RefreshHz float64 `yaml:"refresh_hz,omitempty"`
	X         *int    `yaml:"x,omitempty"`
	Y         *int    `yaml:"y,omitempty"`
	Scale     float64 `yaml:"scale,omitempty"`
	Transform string  `yaml:"transform,omitempty"`
}

// IsEnabled reports whether the monitor should be lit. Unset means enabled.
func (m MonitorConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// ModeRequest converts the sizing fields into a mode selection request.
// It returns nil when the entry does not constrain the mode.
func (m MonitorConfig) ModeRequest() *display.ModeRequest {
	if strings.TrimSpace(m.Mode) != "" {
		w, h, refresh, err := ParseModeString(m.Mode)
		if err != nil {
			return nil
		}
		return &display.ModeRequest{Width: w, Height: h, RefreshHz: refresh}
	}
	if m.Width == 0 && m.Height == 0 && m.RefreshHz == 0 {
		return nil
	}
	return &display.ModeRequest{Width: m.Width, Height: m.Height, RefreshHz: m.RefreshHz}
}

// CursorConfig selects the xcursor theme. Empty values fall back to
// XCURSOR_THEME and XCURSOR_SIZE.
type CursorConfig struct {
	Theme string `yaml:"theme,omitempty"`
	Size  int    `yaml:"size,omitempty"`
}

// BackendConfig holds display backend switches.
type BackendConfig struct {
	// ForceFullRedraw discards damage tracking and repaints whole frames.
	ForceFullRedraw bool `yaml:"force_full_redraw"`
	// PrimaryGPU overrides the detected primary device path (e.g. /dev/dri/card1).
	PrimaryGPU string `yaml:"primary_gpu,omitempty"`
}

// LoggingConfig controls the process log level: debug, info, warn, error.
type LoggingConfig struct {
	Level string `yaml:"level,omitempty"`
}

// Config is the effective configuration.
type Config struct {
	Monitors []MonitorConfig `yaml:"monitors,omitempty"`
	Cursor   CursorConfig    `yaml:"cursor,omitempty"`
	Backend  BackendConfig   `yaml:"backend,omitempty"`
	Logging  LoggingConfig   `yaml:"logging,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
	}
}

// ForceFullRedrawEnv overrides backend.force_full_redraw when set.
const ForceFullRedrawEnv = "RAVEN_FORCE_FULL_REDRAW"

// ApplyEnv applies environment overrides. Unrecognized values are ignored.
func (c *Config) ApplyEnv(getenv func(string) string) {
	switch strings.ToLower(strings.TrimSpace(getenv(ForceFullRedrawEnv))) {
	case "1", "true", "yes", "on":
		c.Backend.ForceFullRedraw = true
	case "0", "false", "no", "off":
		c.Backend.ForceFullRedraw = false
	}
}

// SlogLevel maps the configured log level onto slog.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Logging.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseModeString parses "WIDTHxHEIGHT" with an optional "@REFRESH" suffix.
func ParseModeString(raw string) (width, height int, refreshHz float64, err error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, 0, 0, fmt.Errorf("mode is empty")
	}
	size := s
	if at := strings.IndexByte(s, '@'); at >= 0 {
		size = s[:at]
		refreshHz, err = strconv.ParseFloat(strings.TrimSpace(s[at+1:]), 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("invalid refresh rate in mode %q", raw)
		}
		if math.IsNaN(refreshHz) || math.IsInf(refreshHz, 0) || refreshHz <= 0 {
			return 0, 0, 0, fmt.Errorf("refresh rate in mode %q must be > 0", raw)
		}
	}
	sep := strings.IndexAny(size, "xX")
	if sep < 0 {
		return 0, 0, 0, fmt.Errorf("mode %q must look like WIDTHxHEIGHT[@HZ]", raw)
	}
	width, err = parseDimension(size[:sep])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid width in mode %q: %w", raw, err)
	}
	height, err = parseDimension(size[sep+1:])
	if err != nil {
		return 0, 0, 0, fmt.Errorf("invalid height in mode %q: %w", raw, err)
	}
	return width, height, refreshHz, nil
}

func parseDimension(raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if v < 1 || v > 65535 {
		return 0, fmt.Errorf("%d out of range 1-65535", v)
	}
	return v, nil
}

func (c *Config) Validate() error {
	for i, m := range c.Monitors {
		base := fmt.Sprintf("monitors.%d", i)
		if strings.TrimSpace(m.Name) == "" {
			return &ValidationError{Path: base + ".name", Err: fmt.Errorf("name is required")}
		}
		if strings.TrimSpace(m.Mode) != "" {
			if m.Width != 0 || m.Height != 0 || m.RefreshHz != 0 {
				return &ValidationError{Path: base + ".mode", Err: fmt.Errorf("mode cannot be combined with width, height or refresh_hz")}
			}
			if _, _, _, err := ParseModeString(m.Mode); err != nil {
				return &ValidationError{Path: base + ".mode", Err: err}
			}
		}
		if m.Width < 0 || m.Height < 0 {
			return &ValidationError{Path: base + ".width", Err: fmt.Errorf("width and height must be >= 0")}
		}
		if (m.Width == 0) != (m.Height == 0) {
			return &ValidationError{Path: base + ".width", Err: fmt.Errorf("width and height must be set together")}
		}
		if m.RefreshHz < 0 || math.IsNaN(m.RefreshHz) || math.IsInf(m.RefreshHz, 0) {
			return &ValidationError{Path: base + ".refresh_hz", Err: fmt.Errorf("refresh_hz must be > 0")}
		}
		if m.Scale < 0 || math.IsNaN(m.Scale) || math.IsInf(m.Scale, 0) {
			return &ValidationError{Path: base + ".scale", Err: fmt.Errorf("scale must be > 0")}
		}
	}
	if c.Cursor.Size < 0 {
		return &ValidationError{Path: "cursor.size", Err: fmt.Errorf("cursor.size must be >= 0")}
	}
	if p := c.Backend.PrimaryGPU; p != "" && !strings.HasPrefix(p, "/") {
		return &ValidationError{Path: "backend.primary_gpu", Err: fmt.Errorf("primary_gpu must be an absolute device path")}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Path: "logging.level", Err: fmt.Errorf("logging.level must be one of: debug, info, warn, error")}
	}
	return nil
}

// Warnings lists settings that load but will be partly ignored at runtime.
func (c *Config) Warnings() []string {
	var out []string
	seen := make(map[string]int, len(c.Monitors))
	for i, m := range c.Monitors {
		if m.Transform != "" {
			if _, ok := display.ParseTransform(m.Transform); !ok {
				out = append(out, fmt.Sprintf("monitors.%d.transform: unknown transform %q, normal will be used", i, m.Transform))
			}
		}
		key := strings.ToLower(m.Name)
		if first, dup := seen[key]; dup {
			out = append(out, fmt.Sprintf("monitors.%d.name: %q is shadowed by monitors.%d", i, m.Name, first))
			continue
		}
		seen[key] = i
	}
	return out
}
