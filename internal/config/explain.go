package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Explain returns the effective value at the given YAML-like path and its source.
//
// Supported paths include:
//
//	monitors
//	monitors.<index|name>
//	monitors.<index|name>.mode
//	cursor.theme
//	cursor.size
//	backend.force_full_redraw
//	backend.primary_gpu
//	logging.level
func Explain(res *LoadResult, path string) (any, Source, error) {
	if res == nil || res.Config == nil {
		return nil, Source{}, fmt.Errorf("no config loaded")
	}
	if path == "" {
		return nil, Source{}, fmt.Errorf("path is empty")
	}

	value, canonical, err := lookupValue(res.Config, path)
	if err != nil {
		return nil, Source{}, err
	}

	// Exact-path file source wins.
	if src, ok := res.Sources[canonical]; ok {
		return value, src, nil
	}
	return value, Source{Kind: SourceDefault, Name: "defaults"}, nil
}

// lookupValue resolves path and returns it with monitor names rewritten to
// indexes, which is how sources are keyed.
func lookupValue(cfg *Config, path string) (any, string, error) {
	parts := strings.Split(path, ".")
	switch parts[0] {
	case "monitors":
		if len(parts) == 1 {
			return cfg.Monitors, path, nil
		}
		idx, ok := monitorIndex(cfg.Monitors, parts[1])
		if !ok {
			return nil, "", fmt.Errorf("unknown monitor %q", parts[1])
		}
		parts[1] = strconv.Itoa(idx)
		canonical := strings.Join(parts, ".")
		m := cfg.Monitors[idx]
		if len(parts) == 2 {
			return m, canonical, nil
		}
		if len(parts) != 3 {
			return nil, "", fmt.Errorf("unknown path: %s", path)
		}
		switch parts[2] {
		case "name":
			return m.Name, canonical, nil
		case "enabled":
			return m.IsEnabled(), canonical, nil
		case "mode":
			return m.Mode, canonical, nil
		case "width":
			return m.Width, canonical, nil
		case "height":
			return m.Height, canonical, nil
		case "refresh_hz":
			return m.RefreshHz, canonical, nil
		case "x":
			return derefInt(m.X, 0), canonical, nil
		case "y":
			return derefInt(m.Y, 0), canonical, nil
		case "scale":
			return m.Scale, canonical, nil
		case "transform":
			return m.Transform, canonical, nil
		default:
			return nil, "", fmt.Errorf("unknown path: %s", path)
		}
	case "cursor":
		if len(parts) == 1 {
			return cfg.Cursor, path, nil
		}
		if len(parts) != 2 {
			return nil, "", fmt.Errorf("unknown path: %s", path)
		}
		switch parts[1] {
		case "theme":
			return cfg.Cursor.Theme, path, nil
		case "size":
			return cfg.Cursor.Size, path, nil
		default:
			return nil, "", fmt.Errorf("unknown path: %s", path)
		}
	case "backend":
		if len(parts) == 1 {
			return cfg.Backend, path, nil
		}
		if len(parts) != 2 {
			return nil, "", fmt.Errorf("unknown path: %s", path)
		}
		switch parts[1] {
		case "force_full_redraw":
			return cfg.Backend.ForceFullRedraw, path, nil
		case "primary_gpu":
			return cfg.Backend.PrimaryGPU, path, nil
		default:
			return nil, "", fmt.Errorf("unknown path: %s", path)
		}
	case "logging":
		if len(parts) == 1 {
			return cfg.Logging, path, nil
		}
		if len(parts) == 2 && parts[1] == "level" {
			return cfg.Logging.Level, path, nil
		}
		return nil, "", fmt.Errorf("unknown path: %s", path)
	default:
		return nil, "", fmt.Errorf("unknown path: %s", path)
	}
}

func monitorIndex(monitors []MonitorConfig, key string) (int, bool) {
	if idx, err := strconv.Atoi(key); err == nil {
		return idx, idx >= 0 && idx < len(monitors)
	}
	for i, m := range monitors {
		if strings.EqualFold(m.Name, key) {
			return i, true
		}
	}
	return 0, false
}
