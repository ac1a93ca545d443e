package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// IncludeList supports either:
//
//	include: "/path/to/file.yaml"
//
// or:
//
//	include:
//	  - "/path/to/file.yaml"
//	  - "/path/to/dir"
type IncludeList []string

func (l *IncludeList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case 0:
		// Not present.
		*l = nil
		return nil
	case yaml.ScalarNode:
		if value.Tag != "!!str" {
			return fmt.Errorf("include must be a string or list of strings")
		}
		*l = []string{value.Value}
		return nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(value.Content))
		for _, item := range value.Content {
			if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
				return fmt.Errorf("include entries must be strings")
			}
			out = append(out, item.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("include must be a string or list of strings")
	}
}

type RawMonitor struct {
	Name      *string  `yaml:"name"`
	Enabled   *bool    `yaml:"enabled"`
	Mode      *string  `yaml:"mode"`
	Width     *int     `yaml:"width"`
	Height    *int     `yaml:"height"`
	RefreshHz *float64 `yaml:"refresh_hz"`
	X         *int     `yaml:"x"`
	Y         *int     `yaml:"y"`
	Scale     *float64 `yaml:"scale"`
	Transform *string  `yaml:"transform"`
}

type RawCursor struct {
	Theme *string `yaml:"theme"`
	Size  *int    `yaml:"size"`
}

type RawBackend struct {
	ForceFullRedraw *bool   `yaml:"force_full_redraw"`
	PrimaryGPU      *string `yaml:"primary_gpu"`
}

type RawLogging struct {
	Level *string `yaml:"level"`
}

type RawConfig struct {
	Include IncludeList `yaml:"include"`

	Monitors []RawMonitor `yaml:"monitors"`
	Cursor   *RawCursor   `yaml:"cursor"`
	Backend  *RawBackend  `yaml:"backend"`
	Logging  *RawLogging  `yaml:"logging"`
}

func (c RawConfig) merge(overlay RawConfig) RawConfig {
	out := c
	out.Include = nil

	if overlay.Monitors != nil {
		out.Monitors = mergeRawMonitors(c.Monitors, overlay.Monitors)
	}
	if overlay.Cursor != nil {
		if out.Cursor == nil {
			out.Cursor = &RawCursor{}
		}
		merged := mergeRawCursor(*out.Cursor, *overlay.Cursor)
		out.Cursor = &merged
	}
	if overlay.Backend != nil {
		if out.Backend == nil {
			out.Backend = &RawBackend{}
		}
		merged := mergeRawBackend(*out.Backend, *overlay.Backend)
		out.Backend = &merged
	}
	if overlay.Logging != nil {
		if out.Logging == nil {
			out.Logging = &RawLogging{}
		}
		merged := *out.Logging
		if overlay.Logging.Level != nil {
			merged.Level = overlay.Logging.Level
		}
		out.Logging = &merged
	}
	return out
}

// mergeRawMonitors overlays entries by name: a monitor already present has
// its set fields replaced, new names are appended in overlay order.
func mergeRawMonitors(base []RawMonitor, overlay []RawMonitor) []RawMonitor {
	out := make([]RawMonitor, len(base), len(base)+len(overlay))
	copy(out, base)
	for _, m := range overlay {
		idx := -1
		if m.Name != nil {
			for i := range out {
				if out[i].Name != nil && strings.EqualFold(*out[i].Name, *m.Name) {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			out = append(out, m)
			continue
		}
		out[idx] = mergeRawMonitor(out[idx], m)
	}
	return out
}

func mergeRawMonitor(base RawMonitor, overlay RawMonitor) RawMonitor {
	out := base
	if overlay.Enabled != nil {
		out.Enabled = overlay.Enabled
	}
	// A mode shorthand and explicit sizing exclude each other, so setting
	// one side in an overlay clears the other.
	if overlay.Mode != nil {
		out.Mode = overlay.Mode
		out.Width, out.Height, out.RefreshHz = nil, nil, nil
	}
	if overlay.Width != nil || overlay.Height != nil || overlay.RefreshHz != nil {
		out.Mode = nil
	}
	if overlay.Width != nil {
		out.Width = overlay.Width
	}
	if overlay.Height != nil {
		out.Height = overlay.Height
	}
	if overlay.RefreshHz != nil {
		out.RefreshHz = overlay.RefreshHz
	}
	if overlay.X != nil {
		out.X = overlay.X
	}
	if overlay.Y != nil {
		out.Y = overlay.Y
	}
	if overlay.Scale != nil {
		out.Scale = overlay.Scale
	}
	if overlay.Transform != nil {
		out.Transform = overlay.Transform
	}
	return out
}

func mergeRawCursor(base RawCursor, overlay RawCursor) RawCursor {
	out := base
	if overlay.Theme != nil {
		out.Theme = overlay.Theme
	}
	if overlay.Size != nil {
		out.Size = overlay.Size
	}
	return out
}

func mergeRawBackend(base RawBackend, overlay RawBackend) RawBackend {
	out := base
	if overlay.ForceFullRedraw != nil {
		out.ForceFullRedraw = overlay.ForceFullRedraw
	}
	if overlay.PrimaryGPU != nil {
		out.PrimaryGPU = overlay.PrimaryGPU
	}
	return out
}
