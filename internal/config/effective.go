package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Path   string
	Source Source
	Err    error
}

func (e *ValidationError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Source.Kind == SourceFile && e.Source.File != "" && e.Source.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s: %v", e.Source.File, e.Source.Line, e.Source.Column, e.Path, e.Err)
	}
	if e.Path != "" {
		return fmt.Sprintf("%s: %v", e.Path, e.Err)
	}
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func BuildEffectiveConfig(raw RawConfig) (*Config, error) {
	cfg := DefaultConfig()

	for i, m := range raw.Monitors {
		if m.Name == nil || strings.TrimSpace(*m.Name) == "" {
			return nil, &ValidationError{Path: fmt.Sprintf("monitors.%d.name", i), Err: fmt.Errorf("name is required")}
		}
		cfg.Monitors = append(cfg.Monitors, MonitorConfig{
			Name:      strings.TrimSpace(*m.Name),
			Enabled:   m.Enabled,
			Mode:      derefString(m.Mode, ""),
			Width:     derefInt(m.Width, 0),
			Height:    derefInt(m.Height, 0),
			RefreshHz: derefFloat(m.RefreshHz, 0),
			X:         m.X,
			Y:         m.Y,
			Scale:     derefFloat(m.Scale, 0),
			Transform: strings.TrimSpace(derefString(m.Transform, "")),
		})
	}

	if raw.Cursor != nil {
		if raw.Cursor.Theme != nil {
			cfg.Cursor.Theme = strings.TrimSpace(*raw.Cursor.Theme)
		}
		if raw.Cursor.Size != nil {
			cfg.Cursor.Size = *raw.Cursor.Size
		}
	}
	if raw.Backend != nil {
		if raw.Backend.ForceFullRedraw != nil {
			cfg.Backend.ForceFullRedraw = *raw.Backend.ForceFullRedraw
		}
		if raw.Backend.PrimaryGPU != nil {
			cfg.Backend.PrimaryGPU = strings.TrimSpace(*raw.Backend.PrimaryGPU)
		}
	}
	if raw.Logging != nil && raw.Logging.Level != nil {
		cfg.Logging.Level = strings.ToLower(strings.TrimSpace(*raw.Logging.Level))
	}

	return cfg, nil
}

func derefInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func derefFloat(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}

func derefString(p *string, def string) string {
	if p == nil {
		return def
	}
	return *p
}
