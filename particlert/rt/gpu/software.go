package gpu

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"runtime"

	"github.com/gekko3d/gpuparticles/particlert/rt/core"
	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/vector"
	"golang.org/x/sync/errgroup"
)

// DefaultLimits mirror the WebGPU baseline limits.
var DefaultLimits = Limits{
	MaxStorageBufferBindingSize:      128 << 20,
	MaxComputeWorkgroupsPerDimension: 65535,
	MaxComputeWorkgroupSizeX:         256,
}

type swBuffer struct {
	label string
	usage BufferUsage
	data  []byte
}

func (b *swBuffer) Label() string      { return b.label }
func (b *swBuffer) Size() uint64       { return uint64(len(b.data)) }
func (b *swBuffer) Usage() BufferUsage { return b.usage }

type swBindGroup struct {
	label               string
	params, read, write *swBuffer
}

func (g *swBindGroup) Label() string { return g.label }

// SoftwareSurface is a host image standing in for a presentable surface.
type SoftwareSurface struct {
	frame *image.RGBA
	lost  bool
}

func NewSoftwareSurface(width, height int) *SoftwareSurface {
	return &SoftwareSurface{frame: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Frame is the last presented image.
func (s *SoftwareSurface) Frame() *image.RGBA { return s.frame }

// Lose makes the next frame acquisition fail, like a surface invalidated by a resize.
func (s *SoftwareSurface) Lose() { s.lost = true }

func (s *SoftwareSurface) Resize(width, height int) {
	s.frame = image.NewRGBA(image.Rect(0, 0, width, height))
	s.lost = false
}

// SoftwareBackend executes the pipeline on the host. Compute runs the
// reference kernel once per invocation, workgroups fanned out over goroutines;
// draws are rasterized into a SoftwareSurface.
type SoftwareBackend struct {
	limits   Limits
	surface  *SoftwareSurface
	desc     PipelineDesc
	ready    bool
	workers  int
	last     DrawCommand
	Invoked  uint64 // kernel invocations that touched a particle
	Submits  uint64
	Draws    uint64
	released bool
}

// NewSoftwareBackend returns a backend drawing into surface; surface may be nil
// for compute-only use, in which case draws are recorded but not rasterized.
func NewSoftwareBackend(surface *SoftwareSurface) *SoftwareBackend {
	return &SoftwareBackend{
		limits:  DefaultLimits,
		surface: surface,
		workers: runtime.NumCPU(),
	}
}

func (b *SoftwareBackend) Name() string { return "software" }

func (b *SoftwareBackend) Limits() Limits { return b.limits }

// SetLimits overrides the advertised limits.
func (b *SoftwareBackend) SetLimits(l Limits) { b.limits = l }

func (b *SoftwareBackend) Surface() *SoftwareSurface { return b.surface }

func (b *SoftwareBackend) CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error) {
	if b.released {
		return nil, ErrDeviceUnavailable
	}
	if size%4 != 0 {
		size += 4 - size%4
	}
	return &swBuffer{label: label, usage: usage, data: make([]byte, size)}, nil
}

func (b *SoftwareBackend) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	sb, ok := buf.(*swBuffer)
	if !ok {
		return fmt.Errorf("buffer %q does not belong to the software backend", buf.Label())
	}
	if !sb.usage.Has(BufferUsageCopyDst) {
		return fmt.Errorf("buffer %q is not a copy destination", sb.label)
	}
	if offset+uint64(len(data)) > uint64(len(sb.data)) {
		return fmt.Errorf("write of %d bytes at %d overflows buffer %q (%d bytes)", len(data), offset, sb.label, len(sb.data))
	}
	copy(sb.data[offset:], data)
	return nil
}

func (b *SoftwareBackend) ReadBuffer(buf Buffer) ([]byte, error) {
	sb, ok := buf.(*swBuffer)
	if !ok {
		return nil, fmt.Errorf("buffer %q does not belong to the software backend", buf.Label())
	}
	out := make([]byte, len(sb.data))
	copy(out, sb.data)
	return out, nil
}

func (b *SoftwareBackend) CreatePipelines(desc PipelineDesc) error {
	if !desc.Layout.Valid() {
		return core.ConfigErrorf("layout", "pipeline needs a field layout")
	}
	if desc.WorkgroupSize == 0 || desc.WorkgroupSize > b.limits.MaxComputeWorkgroupSizeX {
		return core.ConfigErrorf("workgroup_size", "%d outside 1..%d", desc.WorkgroupSize, b.limits.MaxComputeWorkgroupSizeX)
	}
	b.desc = desc
	b.ready = true
	return nil
}

func (b *SoftwareBackend) CreateBindGroup(label string, params, read, write Buffer) (BindGroup, error) {
	p, ok1 := params.(*swBuffer)
	r, ok2 := read.(*swBuffer)
	w, ok3 := write.(*swBuffer)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("bind group %q mixes buffers from another backend", label)
	}
	if r == w {
		return nil, fmt.Errorf("bind group %q reads and writes the same buffer", label)
	}
	if !p.usage.Has(BufferUsageUniform) || !r.usage.Has(BufferUsageStorage) || !w.usage.Has(BufferUsageStorage) {
		return nil, fmt.Errorf("bind group %q has buffers with the wrong usage", label)
	}
	return &swBindGroup{label: label, params: p, read: r, write: w}, nil
}

// Submit executes the list in order. A lost surface aborts the whole list
// before any command runs.
func (b *SoftwareBackend) Submit(list *CommandList) error {
	if !b.ready {
		return fmt.Errorf("%w: pipelines not created", ErrSubmission)
	}
	if b.surface != nil && b.surface.lost {
		for _, cmd := range list.Commands {
			if _, ok := cmd.(DrawCommand); ok {
				return fmt.Errorf("%w: surface lost", ErrSubmission)
			}
		}
	}
	for _, cmd := range list.Commands {
		switch c := cmd.(type) {
		case DispatchCommand:
			if err := b.dispatch(c); err != nil {
				return err
			}
		case DrawCommand:
			if err := b.draw(c); err != nil {
				return err
			}
		}
	}
	b.Submits++
	return nil
}

// LastDraw returns the most recent draw command.
func (b *SoftwareBackend) LastDraw() (DrawCommand, bool) {
	return b.last, b.Draws > 0
}

func (b *SoftwareBackend) Release() {
	b.released = true
	b.ready = false
}

func (b *SoftwareBackend) dispatch(c DispatchCommand) error {
	g, ok := c.Bindings.(*swBindGroup)
	if !ok {
		return fmt.Errorf("%w: foreign bind group", ErrSubmission)
	}
	if c.Groups > b.limits.MaxComputeWorkgroupsPerDimension {
		return fmt.Errorf("%w: %d workgroups exceed limit %d", ErrSubmission, c.Groups, b.limits.MaxComputeWorkgroupsPerDimension)
	}
	params := core.DecodeSimParams(g.params.data)
	layout := b.desc.Layout
	width := b.desc.WorkgroupSize
	floats := layout.Floats()
	stride := layout.Stride()

	invoked := make([]uint64, c.Groups)
	var eg errgroup.Group
	eg.SetLimit(b.workers)
	for wg := uint32(0); wg < c.Groups; wg++ {
		eg.Go(func() error {
			in := make([]float32, floats)
			out := make([]float32, floats)
			for local := uint32(0); local < width; local++ {
				idx := wg*width + local
				if idx >= params.Count {
					return nil
				}
				off := int(idx) * stride
				core.ReadFloats(in, g.read.data[off:])
				params.StepRecord(layout, in, out)
				core.PutFloats(g.write.data[off:], out)
				invoked[wg]++
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	for _, n := range invoked {
		b.Invoked += n
	}
	return nil
}

func (b *SoftwareBackend) draw(c DrawCommand) error {
	b.last = c
	b.Draws++
	if b.surface == nil {
		return nil
	}
	inst, ok1 := c.Instances.(*swBuffer)
	shape, ok2 := c.Shape.(*swBuffer)
	if !ok1 || !ok2 {
		return fmt.Errorf("%w: foreign draw buffers", ErrSubmission)
	}

	dst := b.surface.frame
	cc := b.desc.ClearColor
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.RGBA{
		R: unorm(float32(cc[0])), G: unorm(float32(cc[1])), B: unorm(float32(cc[2])), A: unorm(float32(cc[3])),
	}), image.Point{}, draw.Src)

	corners := make([]float32, c.VertexCount*2)
	core.ReadFloats(corners, shape.data)
	orient := false
	for _, a := range b.desc.Programs.Instance {
		if a.Field == core.FieldVelocity {
			orient = true
		}
	}

	layout := b.desc.Layout
	hasColor := layout.Has(core.FieldColor)
	rec := make([]float32, layout.Floats())
	var r vector.Rasterizer
	w, h := float32(dst.Bounds().Dx()), float32(dst.Bounds().Dy())
	tris := make([][]mgl32.Vec2, 0, c.VertexCount/3)

	for i := uint32(0); i < c.InstanceCount; i++ {
		core.ReadFloats(rec, inst.data[int(i)*layout.Stride():])
		p := layout.Get(rec)

		rot := mgl32.Ident2()
		if orient {
			rot = mgl32.Rotate2D(float32(math.Atan2(float64(p.Velocity[1]), float64(p.Velocity[0]))))
		}
		toPixel := func(v int) mgl32.Vec2 {
			clip := rot.Mul2x1(mgl32.Vec2{corners[2*v], corners[2*v+1]}).Add(p.Position)
			return mgl32.Vec2{(clip[0] + 1) / 2 * w, (1 - clip[1]) / 2 * h}
		}

		tris = tris[:0]
		minX, minY := float32(math.MaxFloat32), float32(math.MaxFloat32)
		maxX, maxY := float32(-math.MaxFloat32), float32(-math.MaxFloat32)
		for v := 0; v+2 < int(c.VertexCount); v += 3 {
			poly := clipToRect([]mgl32.Vec2{toPixel(v), toPixel(v + 1), toPixel(v + 2)}, w, h)
			if len(poly) < 3 {
				continue
			}
			for _, pt := range poly {
				minX, minY = min(minX, pt[0]), min(minY, pt[1])
				maxX, maxY = max(maxX, pt[0]), max(maxY, pt[1])
			}
			tris = append(tris, poly)
		}
		if len(tris) == 0 {
			continue
		}
		box := image.Rect(int(math.Floor(float64(minX))), int(math.Floor(float64(minY))),
			int(math.Ceil(float64(maxX))), int(math.Ceil(float64(maxY)))).Intersect(dst.Bounds())
		if box.Empty() {
			continue
		}

		ox, oy := float32(box.Min.X), float32(box.Min.Y)
		r.Reset(box.Dx(), box.Dy())
		for _, poly := range tris {
			r.MoveTo(poly[0][0]-ox, poly[0][1]-oy)
			for _, pt := range poly[1:] {
				r.LineTo(pt[0]-ox, pt[1]-oy)
			}
			r.ClosePath()
		}
		col := color.RGBA{R: 255, G: 255, B: 255, A: 255}
		if hasColor {
			col = color.RGBA{R: unorm(p.Color[0]), G: unorm(p.Color[1]), B: unorm(p.Color[2]), A: 255}
		}
		r.Draw(dst, box, image.NewUniform(col), image.Point{})
	}
	return nil
}

// clipToRect clips a convex polygon in pixel space to [0,w]x[0,h], one frame
// edge at a time.
func clipToRect(poly []mgl32.Vec2, w, h float32) []mgl32.Vec2 {
	edges := []struct {
		axis  int
		bound float32
		upper bool
	}{{0, 0, false}, {0, w, true}, {1, 0, false}, {1, h, true}}

	for _, e := range edges {
		if len(poly) == 0 {
			return nil
		}
		inside := func(pt mgl32.Vec2) bool {
			if e.upper {
				return pt[e.axis] <= e.bound
			}
			return pt[e.axis] >= e.bound
		}
		out := make([]mgl32.Vec2, 0, len(poly)+1)
		prev := poly[len(poly)-1]
		for _, cur := range poly {
			if inside(cur) != inside(prev) {
				t := (e.bound - prev[e.axis]) / (cur[e.axis] - prev[e.axis])
				out = append(out, prev.Add(cur.Sub(prev).Mul(t)))
			}
			if inside(cur) {
				out = append(out, cur)
			}
			prev = cur
		}
		poly = out
	}
	return poly
}

func unorm(v float32) uint8 {
	return uint8(mgl32.Clamp(v, 0, 1)*255 + 0.5)
}
