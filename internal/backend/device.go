package backend

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/ravenwm/raven/internal/kms"
	"github.com/ravenwm/raven/internal/render"
)

// device is an opened adapter and the outputs it drives.
type device struct {
	node       render.Node
	path       string
	file       *os.File
	gpu        GPU
	renderNode render.Node
	surfaces   map[uint32]*outputSurface
}

// DeviceAdded opens a hot-plugged adapter and scans its connectors.
// Failures are logged and the adapter is skipped.
func (b *Backend) DeviceAdded(node render.Node, path string) {
	if b == nil {
		return
	}
	if err := b.addDevice(node, path); err != nil {
		b.logger.Warn("failed to add gpu", "path", path, "node", node.String(), "error", err)
	}
}

// DeviceChanged rescans the connectors of an adapter.
func (b *Backend) DeviceChanged(node render.Node) {
	if b == nil {
		return
	}
	d, ok := b.devices[node]
	if !ok {
		return
	}
	b.scanConnectors(d)
}

// DeviceRemoved tears down every output of an adapter and closes it.
func (b *Backend) DeviceRemoved(node render.Node) {
	if b == nil {
		return
	}
	d, ok := b.devices[node]
	if !ok {
		return
	}
	b.removeDevice(d)
}

func (b *Backend) addDevice(node render.Node, path string) error {
	if b.pool == nil {
		return errors.New("backend not initialized")
	}
	if _, exists := b.devices[node]; exists {
		return nil
	}

	f, err := b.session.Open(path, kms.OpenFlags)
	if err != nil {
		return fmt.Errorf("failed to open drm device: %w", err)
	}
	gpu, err := b.open(f, path)
	if err != nil {
		b.closeFile(f)
		return fmt.Errorf("failed to create drm device: %w", err)
	}

	renderNode := gpu.RenderNode()
	if renderNode.IsZero() {
		renderNode = node
	}
	if _, err := b.pool.RendererFor(renderNode); err != nil {
		if cerr := gpu.Close(); cerr != nil {
			b.logger.Debug("failed to close gpu", "path", path, "error", cerr)
		}
		b.closeFile(f)
		return fmt.Errorf("failed to create renderer for %s: %w", renderNode, err)
	}

	d := &device{
		node:       node,
		path:       path,
		file:       f,
		gpu:        gpu,
		renderNode: renderNode,
		surfaces:   make(map[uint32]*outputSurface),
	}
	b.devices[node] = d

	loop := b.loop
	gpu.SetVBlankHandler(func(ev kms.VBlank) {
		key := OutputKey{Node: node, CRTC: ev.CRTC}
		meta := FrameMeta{Sequence: ev.Sequence, Time: ev.Time}
		loop.Post(func() { b.FrameFinish(key, meta) })
	})
	if b.paused {
		gpu.Pause()
	}

	b.logger.Info("drm device added", "node", node.String(), "render_node", renderNode.String(), "path", path)
	b.scanConnectors(d)
	return nil
}

func (b *Backend) scanConnectors(d *device) {
	events, err := d.gpu.Scan()
	if err != nil {
		b.logger.Warn("failed to scan connectors", "node", d.node.String(), "error", err)
		return
	}
	for _, ev := range events {
		switch ev.Kind {
		case kms.Connected:
			b.connectorConnected(d, ev.Connector, ev.CRTC)
		case kms.Disconnected:
			b.connectorDisconnected(d, ev.CRTC)
		}
	}
}

func (b *Backend) removeDevice(d *device) {
	for _, s := range d.surfaceList() {
		delete(d.surfaces, s.key.CRTC)
		b.release(s)
	}
	d.gpu.SetVBlankHandler(nil)
	delete(b.devices, d.node)

	shared := false
	for _, other := range b.devices {
		if other.renderNode == d.renderNode {
			shared = true
			break
		}
	}
	if !shared {
		b.pool.Remove(d.renderNode)
	}
	if err := d.gpu.Close(); err != nil {
		b.logger.Warn("failed to close gpu", "node", d.node.String(), "error", err)
	}
	b.closeFile(d.file)
	b.logger.Info("drm device removed", "node", d.node.String())
}

func (b *Backend) closeFile(f *os.File) {
	if f == nil {
		return
	}
	if err := b.session.Close(f); err != nil {
		b.logger.Debug("failed to close device file", "path", f.Name(), "error", err)
	}
}

func (d *device) surfaceList() []*outputSurface {
	out := make([]*outputSurface, 0, len(d.surfaces))
	for _, s := range d.surfaces {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key.CRTC < out[j].key.CRTC })
	return out
}
