package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ravenwm/raven/internal/backend"
	"github.com/ravenwm/raven/internal/config"
	"github.com/ravenwm/raven/internal/cursor"
	"github.com/ravenwm/raven/internal/ipc"
)

// ControllerConfig holds configuration for the controller.
type ControllerConfig struct {
	// ConfigPath is reloaded on Reload. Empty means config.DefaultConfigPath.
	ConfigPath string
	// Timeout bounds each wait for the loop. Defaults to 5s.
	Timeout time.Duration
	Getenv  func(string) string
	Logger  *slog.Logger
}

// Controller serves IPC commands and configuration reloads against the
// compositor.
type Controller struct {
	loop       Caller
	comp       Compositor
	configPath string
	timeout    time.Duration
	getenv     func(string) string
	logger     *slog.Logger

	mu     sync.Mutex
	loaded *config.LoadResult
}

var _ ipc.Handler = (*Controller)(nil)

// NewController creates a controller. initial is the configuration the
// compositor was started with.
func NewController(cfg ControllerConfig, loop Caller, comp Compositor, initial *config.LoadResult) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	getenv := cfg.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	return &Controller{
		loop:       loop,
		comp:       comp,
		configPath: cfg.ConfigPath,
		timeout:    timeout,
		getenv:     getenv,
		logger:     logger,
		loaded:     initial,
	}
}

func (c *Controller) call(fn func()) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.loop.Call(ctx, fn); err != nil {
		return fmt.Errorf("compositor loop did not respond: %w", err)
	}
	return nil
}

func (c *Controller) Status() (backend.Status, error) {
	var st backend.Status
	err := c.call(func() { st = c.comp.Status() })
	return st, err
}

func (c *Controller) Outputs() ([]backend.OutputInfo, error) {
	var outputs []backend.OutputInfo
	err := c.call(func() { outputs = c.comp.Outputs() })
	return outputs, err
}

func (c *Controller) Redraw(name string) ([]string, error) {
	var names []string
	var lookupErr error
	err := c.call(func() {
		if name == "" {
			c.comp.QueueRedrawAll()
			for _, o := range c.comp.Outputs() {
				names = append(names, o.Name)
			}
			return
		}
		key, ok := c.comp.FindOutput(name)
		if !ok {
			lookupErr = fmt.Errorf("no output named %q", name)
			return
		}
		c.comp.QueueRedraw(key)
		for _, o := range c.comp.Outputs() {
			if o.Key == key.String() {
				names = append(names, o.Name)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return names, lookupErr
}

// ReloadCursorTheme reloads the cursor theme and repaints every output so
// the new images show up.
func (c *Controller) ReloadCursorTheme() error {
	return c.call(func() {
		c.comp.ReloadCursorTheme()
		c.comp.QueueRedrawAll()
	})
}

// Reload re-reads the configuration. On error the running configuration is
// kept.
func (c *Controller) Reload() (ipc.ReloadData, error) {
	path := c.configPath
	if path == "" {
		var err error
		path, err = config.DefaultConfigPath()
		if err != nil {
			return ipc.ReloadData{}, err
		}
	}
	res, err := config.LoadFromPath(path)
	if err != nil {
		c.logger.Warn("config reload failed, keeping previous config", "path", path, "error", err)
		return ipc.ReloadData{}, err
	}
	if err := c.Apply(res); err != nil {
		return ipc.ReloadData{}, err
	}
	return ipc.ReloadData{Files: res.Files, Warnings: res.Config.Warnings()}, nil
}

// Apply hands a loaded configuration to the compositor. Monitor settings
// take effect for outputs connected afterwards.
func (c *Controller) Apply(res *config.LoadResult) error {
	cfg := res.Config
	cfg.ApplyEnv(c.getenv)
	for _, w := range cfg.Warnings() {
		c.logger.Warn("config warning", "warning", w)
	}
	theme, size := CursorSettings(cfg)

	err := c.call(func() {
		c.comp.SetMonitors(cfg.Monitors)
		c.comp.SetForceFullRedraw(cfg.Backend.ForceFullRedraw)
		c.comp.SetCursorTheme(theme, size)
		c.comp.QueueRedrawAll()
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.loaded = res
	c.mu.Unlock()

	c.logger.Info("config applied", "monitors", len(cfg.Monitors), "cursor_theme", theme, "cursor_size", size)
	return nil
}

// ConfigFiles lists the files of the active configuration.
func (c *Controller) ConfigFiles() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded == nil {
		return nil
	}
	return append([]string(nil), c.loaded.Files...)
}

// CursorSettings resolves the cursor theme and size: configuration first,
// then XCURSOR_THEME and XCURSOR_SIZE, then the built-in defaults.
func CursorSettings(cfg *config.Config) (string, uint32) {
	env := cursor.ConfigFromEnv()
	theme, size := env.Theme, env.Size
	if cfg.Cursor.Theme != "" {
		theme = cfg.Cursor.Theme
	}
	if cfg.Cursor.Size > 0 {
		size = uint32(cfg.Cursor.Size)
	}
	return theme, size
}
