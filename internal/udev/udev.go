// Package udev enumerates DRM cards and watches kernel uevents for GPU
// hot-plug.
package udev

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pilebones/go-udev/netlink"

	"github.com/ravenwm/raven/internal/render"
)

// Action is the kind of device change.
type Action int

const (
	Add Action = iota
	Change
	Remove
)

func (a Action) String() string {
	switch a {
	case Add:
		return "add"
	case Change:
		return "change"
	case Remove:
		return "remove"
	default:
		return "unknown"
	}
}

// Event is a DRM card uevent.
type Event struct {
	Action Action
	Node   render.Node
	Path   string
}

// GPU is an enumerated DRM card.
type GPU struct {
	Path    string
	Node    render.Node
	BootVGA bool
}

// Enumerate lists the DRM cards known to sysfs, sorted by minor number.
func Enumerate(sysfsRoot, devDir string) ([]GPU, error) {
	matches, err := filepath.Glob(filepath.Join(sysfsRoot, "class", "drm", "card*"))
	if err != nil {
		return nil, err
	}
	var gpus []GPU
	for _, dir := range matches {
		name := filepath.Base(dir)
		// Connector entries look like card0-HDMI-A-1.
		if strings.Contains(name, "-") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, "dev"))
		if err != nil {
			continue
		}
		node, ok := render.ParseNode(strings.TrimSpace(string(raw)))
		if !ok {
			continue
		}
		gpu := GPU{Path: filepath.Join(devDir, name), Node: node}
		if v, err := os.ReadFile(filepath.Join(dir, "device", "boot_vga")); err == nil {
			gpu.BootVGA = strings.TrimSpace(string(v)) == "1"
		}
		gpus = append(gpus, gpu)
	}
	sort.Slice(gpus, func(i, j int) bool { return gpus[i].Node.Minor < gpus[j].Node.Minor })
	return gpus, nil
}

// Primary picks the boot VGA card, or the first card. preferred, when set,
// names a device path that wins over both.
func Primary(gpus []GPU, preferred string) (GPU, bool) {
	if len(gpus) == 0 {
		return GPU{}, false
	}
	if preferred != "" {
		for _, g := range gpus {
			if g.Path == preferred || filepath.Base(g.Path) == preferred {
				return g, true
			}
		}
	}
	for _, g := range gpus {
		if g.BootVGA {
			return g, true
		}
	}
	return gpus[0], true
}

// ParseEvent converts a kernel uevent into an Event. ok is false for
// anything that is not a DRM card.
func ParseEvent(ue netlink.UEvent, devDir string) (Event, bool) {
	if ue.Env["SUBSYSTEM"] != "drm" {
		return Event{}, false
	}
	devname := ue.Env["DEVNAME"]
	base := filepath.Base(devname)
	if !strings.HasPrefix(base, "card") || strings.Contains(base, "-") {
		return Event{}, false
	}

	var ev Event
	switch string(ue.Action) {
	case "add":
		ev.Action = Add
	case "change":
		ev.Action = Change
	case "remove":
		ev.Action = Remove
	default:
		return Event{}, false
	}

	major, err1 := strconv.ParseUint(ue.Env["MAJOR"], 10, 32)
	minor, err2 := strconv.ParseUint(ue.Env["MINOR"], 10, 32)
	if err1 != nil || err2 != nil {
		return Event{}, false
	}
	ev.Node = render.Node{Major: uint32(major), Minor: uint32(minor)}
	if filepath.IsAbs(devname) {
		ev.Path = devname
	} else {
		ev.Path = filepath.Join(devDir, base)
	}
	return ev, true
}

// MonitorConfig holds configuration for a Monitor.
type MonitorConfig struct {
	DevDir string
	Logger *slog.Logger
}

// Monitor listens on the udev netlink socket for DRM card events.
type Monitor struct {
	conn   *netlink.UEventConn
	devDir string
	logger *slog.Logger
}

// NewMonitor connects to the udev event stream.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	devDir := cfg.DevDir
	if devDir == "" {
		devDir = "/dev/dri"
	}
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.UdevEvent); err != nil {
		return nil, fmt.Errorf("failed to connect to udev: %w", err)
	}
	return &Monitor{conn: conn, devDir: devDir, logger: logger}, nil
}

// Run delivers events to handler until ctx is cancelled. handler runs on
// the monitor goroutine.
func (m *Monitor) Run(ctx context.Context, handler func(Event)) error {
	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	matcher := &netlink.RuleDefinitions{
		Rules: []netlink.RuleDefinition{
			{Env: map[string]string{"SUBSYSTEM": "drm"}},
		},
	}
	quit := m.conn.Monitor(queue, errs, matcher)
	defer close(quit)

	m.logger.Debug("udev monitor started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ue := <-queue:
			ev, ok := ParseEvent(ue, m.devDir)
			if !ok {
				continue
			}
			m.logger.Debug("drm uevent", "action", ev.Action.String(), "path", ev.Path, "node", ev.Node.String())
			handler(ev)
		case err := <-errs:
			m.logger.Warn("udev monitor error", "error", err)
		}
	}
}

// Close closes the netlink socket.
func (m *Monitor) Close() error {
	return m.conn.Close()
}
