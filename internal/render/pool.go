package render

import (
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"sort"
)

// Factory creates the renderer for an adapter.
type Factory func(node Node) (Renderer, error)

// PoolConfig holds configuration for a Pool.
type PoolConfig struct {
	// Primary is the adapter that imports client buffers.
	Primary Node
	// Factory defaults to NewSoftwareRenderer.
	Factory Factory
	Logger  *slog.Logger
}

type copyKey struct {
	buffer uint64
	node   Node
}

type bufferCopy struct {
	source Node
	serial uint64
	buf    *DeviceBuffer
}

// Pool hands out one shared renderer per adapter and moves buffers between
// adapters when an output is driven by a different GPU than the one a
// buffer lives on.
//
// A Pool is owned by the backend event loop and is not safe for concurrent use.
type Pool struct {
	primary   Node
	factory   Factory
	logger    *slog.Logger
	renderers map[Node]*boundRenderer
	copies    map[copyKey]*bufferCopy
}

// NewPool creates an empty pool.
func NewPool(cfg PoolConfig) *Pool {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	factory := cfg.Factory
	if factory == nil {
		factory = func(node Node) (Renderer, error) {
			return NewSoftwareRenderer(node), nil
		}
	}
	return &Pool{
		primary:   cfg.Primary,
		factory:   factory,
		logger:    logger,
		renderers: make(map[Node]*boundRenderer),
		copies:    make(map[copyKey]*bufferCopy),
	}
}

// Primary returns the primary adapter.
func (p *Pool) Primary() Node {
	return p.primary
}

// Nodes lists the adapters that currently have a renderer.
func (p *Pool) Nodes() []Node {
	nodes := make([]Node, 0, len(p.renderers))
	for n := range p.renderers {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].Major != nodes[j].Major {
			return nodes[i].Major < nodes[j].Major
		}
		return nodes[i].Minor < nodes[j].Minor
	})
	return nodes
}

// RendererFor returns the renderer bound to node, creating it on first use.
// Every caller asking for the same node gets the same renderer.
func (p *Pool) RendererFor(node Node) (Renderer, error) {
	if r, ok := p.renderers[node]; ok {
		return r, nil
	}
	inner, err := p.factory(node)
	if err != nil {
		return nil, fmt.Errorf("failed to create renderer for %s: %w", node, err)
	}
	r := &boundRenderer{inner: inner, pool: p}
	p.renderers[node] = r
	p.logger.Debug("renderer created", "node", node.String())
	return r, nil
}

// Remove drops the renderer for node and every buffer copy that involves it.
func (p *Pool) Remove(node Node) {
	delete(p.renderers, node)
	for key, c := range p.copies {
		if key.node == node || c.source == node {
			delete(p.copies, key)
		}
	}
}

// Prepare returns a buffer that r can render. Buffers from the renderer's own
// adapter or plain memory pass through; buffers from another adapter are
// copied over once and refreshed when their content changes.
func (p *Pool) Prepare(r Renderer, buf Buffer) (Buffer, error) {
	origin, ok := buf.Origin()
	target := r.Node()
	if !ok || origin == target {
		return buf, nil
	}

	key := copyKey{buffer: buf.ID(), node: target}
	if c, ok := p.copies[key]; ok {
		if c.serial != buf.Serial() {
			copyPixels(c.buf.img, buf.Image())
			c.buf.Touch()
			c.serial = buf.Serial()
		}
		return c.buf, nil
	}

	src := buf.Image()
	if src == nil || src.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty buffer from %s", ErrImportFailed, origin)
	}
	img := image.NewRGBA(src.Bounds())
	copyPixels(img, src)
	dup := NewDeviceBuffer(target, img)
	if err := r.Import(dup); err != nil {
		return nil, err
	}
	p.copies[key] = &bufferCopy{source: origin, serial: buf.Serial(), buf: dup}
	p.logger.Debug("buffer copied across adapters",
		"buffer", buf.ID(),
		"from", origin.String(),
		"to", target.String(),
	)
	return dup, nil
}

// forgetter is implemented by renderers that keep per-buffer state.
type forgetter interface {
	Forget(id uint64)
}

// Release drops every copy made of the buffer with the given id and the
// renderers' bookkeeping for it and its copies.
func (p *Pool) Release(id uint64) {
	for key, c := range p.copies {
		if key.buffer != id {
			continue
		}
		delete(p.copies, key)
		if r, ok := p.renderers[key.node]; ok {
			if f, ok := r.inner.(forgetter); ok {
				f.Forget(c.buf.ID())
			}
		}
	}
	for _, r := range p.renderers {
		if f, ok := r.inner.(forgetter); ok {
			f.Forget(id)
		}
	}
}

// ImportExternal imports a client-provided buffer through the primary
// adapter's renderer.
func (p *Pool) ImportExternal(buf Buffer) error {
	r, err := p.RendererFor(p.primary)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrImportFailed, err)
	}
	prepared, err := p.Prepare(r, buf)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrImportFailed, err)
	}
	if err := r.Import(prepared); err != nil {
		return fmt.Errorf("%w: %v", ErrImportFailed, err)
	}
	return nil
}

// EarlyImport warms the primary renderer with a buffer as soon as it is
// committed, before any output needs it.
func (p *Pool) EarlyImport(buf Buffer) error {
	return p.ImportExternal(buf)
}

func copyPixels(dst draw.Image, src image.Image) {
	draw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, draw.Src)
}

// boundRenderer resolves cross-adapter buffers through the pool before
// delegating to the adapter's own renderer.
type boundRenderer struct {
	inner Renderer
	pool  *Pool
}

func (r *boundRenderer) Node() Node { return r.inner.Node() }

func (r *boundRenderer) Import(buf Buffer) error {
	prepared, err := r.pool.Prepare(r.inner, buf)
	if err != nil {
		return err
	}
	return r.inner.Import(prepared)
}

func (r *boundRenderer) Render(frame *Frame) error {
	elements := make([]Element, len(frame.Elements))
	for i, e := range frame.Elements {
		elements[i] = e
		be, ok := e.(BufferElement)
		if !ok || be.Buffer() == nil {
			continue
		}
		prepared, err := r.pool.Prepare(r.inner, be.Buffer())
		if err != nil {
			return fmt.Errorf("element %s: %w", e.ID(), err)
		}
		if prepared != be.Buffer() {
			elements[i] = &TextureElement{
				Name: e.ID(),
				Rect: e.Geometry(),
				Buf:  prepared,
				Hint: e.Kind(),
			}
		}
	}
	out := *frame
	out.Elements = elements
	return r.inner.Render(&out)
}
