package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/ravenwm/raven/internal/render"
	"github.com/ravenwm/raven/internal/udev"
)

// GPULister returns the DRM cards currently present.
type GPULister func() ([]udev.GPU, error)

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	// PollConnectors rescans the connectors of every open device on each
	// pass. Used when no udev monitor delivers change events.
	PollConnectors bool
	Logger         *slog.Logger
}

// Reconciler periodically compares the cards present in sysfs with the
// devices the compositor has open and corrects any drift, such as a missed
// hot-plug event.
type Reconciler struct {
	interval       time.Duration
	pollConnectors bool
	loop           Caller
	comp           Compositor
	listGPUs       GPULister
	logger         *slog.Logger

	// failed holds cards whose open failed; they are not retried until they
	// disappear and come back.
	failed map[render.Node]struct{}
}

// NewReconciler creates a new reconciler with the given configuration.
func NewReconciler(cfg ReconcilerConfig, loop Caller, comp Compositor, listGPUs GPULister) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		interval:       interval,
		pollConnectors: cfg.PollConnectors,
		loop:           loop,
		comp:           comp,
		listGPUs:       listGPUs,
		logger:         logger,
		failed:         make(map[render.Node]struct{}),
	}
}

// Run starts the reconciliation loop. Blocks until context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", r.interval, "poll_connectors", r.pollConnectors)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// ReconcileNow triggers an immediate reconciliation pass.
func (r *Reconciler) ReconcileNow(ctx context.Context) {
	r.reconcile(ctx)
}

func (r *Reconciler) reconcile(ctx context.Context) {
	present, err := r.listGPUs()
	if err != nil {
		r.logger.Error("reconciler: failed to list gpus", "error", err)
		return
	}
	presentByNode := make(map[render.Node]udev.GPU, len(present))
	for _, g := range present {
		presentByNode[g.Node] = g
	}
	for node := range r.failed {
		if _, ok := presentByNode[node]; !ok {
			delete(r.failed, node)
		}
	}

	var opened []render.Node
	if err := r.loop.Call(ctx, func() { opened = r.comp.DeviceNodes() }); err != nil {
		return
	}
	openSet := make(map[render.Node]struct{}, len(opened))
	for _, node := range opened {
		openSet[node] = struct{}{}
	}

	var added []udev.GPU
	for _, g := range present {
		if _, ok := openSet[g.Node]; ok {
			continue
		}
		if _, ok := r.failed[g.Node]; ok {
			continue
		}
		added = append(added, g)
	}
	var removed []render.Node
	for _, node := range opened {
		if _, ok := presentByNode[node]; !ok {
			removed = append(removed, node)
		}
	}

	if len(added) == 0 && len(removed) == 0 && !r.pollConnectors {
		return
	}

	var stillMissing []render.Node
	err = r.loop.Call(ctx, func() {
		for _, node := range removed {
			r.logger.Info("reconciler: gpu vanished", "node", node.String())
			r.comp.DeviceRemoved(node)
		}
		for _, g := range added {
			r.logger.Info("reconciler: gpu appeared", "node", g.Node.String(), "path", g.Path)
			r.comp.DeviceAdded(g.Node, g.Path)
		}
		if r.pollConnectors {
			for _, node := range opened {
				if _, ok := presentByNode[node]; ok {
					r.comp.DeviceChanged(node)
				}
			}
		}
		if len(added) == 0 {
			return
		}
		now := make(map[render.Node]struct{})
		for _, node := range r.comp.DeviceNodes() {
			now[node] = struct{}{}
		}
		for _, g := range added {
			if _, ok := now[g.Node]; !ok {
				stillMissing = append(stillMissing, g.Node)
			}
		}
	})
	if err != nil {
		return
	}
	for _, node := range stillMissing {
		r.logger.Warn("reconciler: gpu could not be opened, not retrying", "node", node.String())
		r.failed[node] = struct{}{}
	}
}
