package gpu

import (
	"fmt"

	"github.com/gekko3d/gpuparticles/particlert/rt/shaders"

	"github.com/cogentcore/webgpu/wgpu"
)

type wgpuBuffer struct {
	label string
	usage BufferUsage
	buf   *wgpu.Buffer
}

func (b *wgpuBuffer) Label() string      { return b.label }
func (b *wgpuBuffer) Size() uint64       { return b.buf.GetSize() }
func (b *wgpuBuffer) Usage() BufferUsage { return b.usage }

type wgpuBindGroup struct {
	label string
	group *wgpu.BindGroup
}

func (g *wgpuBindGroup) Label() string { return g.label }

// WgpuBackend drives a real device through WebGPU and presents to a surface.
type WgpuBackend struct {
	Adapter *wgpu.Adapter
	Device  *wgpu.Device
	Queue   *wgpu.Queue
	Surface *wgpu.Surface
	Config  *wgpu.SurfaceConfiguration

	ComputePipeline *wgpu.ComputePipeline
	RenderPipeline  *wgpu.RenderPipeline

	clearColor wgpu.Color
	buffers    []*wgpuBuffer
	groups     []*wgpuBindGroup
}

// WgpuOptions tune adapter selection and presentation.
type WgpuOptions struct {
	Width, Height        uint32
	ForceFallbackAdapter bool
	VSync                bool
}

// NewWgpuBackend acquires an adapter and device compatible with surface. It
// fails with ErrDeviceUnavailable before anything is allocated.
func NewWgpuBackend(instance *wgpu.Instance, surface *wgpu.Surface, opts WgpuOptions) (*WgpuBackend, error) {
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: opts.ForceFallbackAdapter,
		CompatibleSurface:    surface,
		PowerPreference:      wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil || adapter == nil {
		return nil, fmt.Errorf("%w: request adapter: %v", ErrDeviceUnavailable, err)
	}
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Particle Device",
	})
	if err != nil {
		adapter.Release()
		return nil, fmt.Errorf("%w: request device: %v", ErrDeviceUnavailable, err)
	}

	caps := surface.GetCapabilities(adapter)
	if len(caps.Formats) == 0 {
		device.Release()
		adapter.Release()
		return nil, fmt.Errorf("%w: surface has no supported formats", ErrDeviceUnavailable)
	}
	presentMode := wgpu.PresentModeImmediate
	if opts.VSync {
		presentMode = wgpu.PresentModeFifo
	}
	config := &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       opts.Width,
		Height:      opts.Height,
		PresentMode: presentMode,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, device, config)

	return &WgpuBackend{
		Adapter: adapter,
		Device:  device,
		Queue:   device.GetQueue(),
		Surface: surface,
		Config:  config,
	}, nil
}

func (b *WgpuBackend) Name() string { return "webgpu" }

func (b *WgpuBackend) Limits() Limits {
	l := b.Device.GetLimits().Limits
	return Limits{
		MaxStorageBufferBindingSize:      l.MaxStorageBufferBindingSize,
		MaxComputeWorkgroupsPerDimension: l.MaxComputeWorkgroupsPerDimension,
		MaxComputeWorkgroupSizeX:         l.MaxComputeWorkgroupSizeX,
	}
}

func wgpuUsage(u BufferUsage) wgpu.BufferUsage {
	var out wgpu.BufferUsage
	if u.Has(BufferUsageStorage) {
		out |= wgpu.BufferUsageStorage
	}
	if u.Has(BufferUsageVertex) {
		out |= wgpu.BufferUsageVertex
	}
	if u.Has(BufferUsageUniform) {
		out |= wgpu.BufferUsageUniform
	}
	if u.Has(BufferUsageCopyDst) {
		out |= wgpu.BufferUsageCopyDst
	}
	if u.Has(BufferUsageCopySrc) {
		out |= wgpu.BufferUsageCopySrc
	}
	return out
}

func (b *WgpuBackend) CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error) {
	if size%4 != 0 {
		size += 4 - size%4
	}
	buf, err := b.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             size,
		Usage:            wgpuUsage(usage),
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, err
	}
	wb := &wgpuBuffer{label: label, usage: usage, buf: buf}
	b.buffers = append(b.buffers, wb)
	return wb, nil
}

func (b *WgpuBackend) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	wb, ok := buf.(*wgpuBuffer)
	if !ok {
		return fmt.Errorf("buffer %q does not belong to the webgpu backend", buf.Label())
	}
	if err := b.Queue.WriteBuffer(wb.buf, offset, data); err != nil {
		return fmt.Errorf("failed to write %d bytes to %q: %w", len(data), wb.label, err)
	}
	return nil
}

// ReadBuffer copies buf into a mappable staging buffer and blocks until the
// device has finished with it.
func (b *WgpuBackend) ReadBuffer(buf Buffer) ([]byte, error) {
	wb, ok := buf.(*wgpuBuffer)
	if !ok {
		return nil, fmt.Errorf("buffer %q does not belong to the webgpu backend", buf.Label())
	}
	size := wb.buf.GetSize()
	staging, err := b.Device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: wb.label + " Readback",
		Size:  size,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	defer staging.Release()

	encoder, err := b.Device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, err
	}
	defer encoder.Release()
	if err := encoder.CopyBufferToBuffer(wb.buf, 0, staging, 0, size); err != nil {
		return nil, fmt.Errorf("failed to copy %q for readback: %w", wb.label, err)
	}
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, err
	}
	defer cmd.Release()
	b.Queue.Submit(cmd)

	status := wgpu.BufferMapAsyncStatusUnknown
	if err := staging.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	}); err != nil {
		return nil, fmt.Errorf("failed to map %q for reading: %w", wb.label, err)
	}
	b.Device.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return nil, fmt.Errorf("failed to map %q for reading: %s", wb.label, status)
	}
	out := make([]byte, size)
	copy(out, staging.GetMappedRange(0, uint(size)))
	if err := staging.Unmap(); err != nil {
		return nil, fmt.Errorf("failed to unmap %q: %w", wb.label, err)
	}
	return out, nil
}

func (b *WgpuBackend) CreatePipelines(desc PipelineDesc) error {
	computeModule, err := b.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Particle Compute",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.Programs.Compute},
	})
	if err != nil {
		return fmt.Errorf("failed to create compute shader module: %w", err)
	}
	defer computeModule.Release()

	b.ComputePipeline, err = b.Device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "Particle Compute Pipeline",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     computeModule,
			EntryPoint: shaders.ComputeEntryPoint,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create compute pipeline: %w", err)
	}

	renderModule, err := b.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "Particle Render",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.Programs.Render},
	})
	if err != nil {
		return fmt.Errorf("failed to create render shader module: %w", err)
	}
	defer renderModule.Release()

	b.RenderPipeline, err = b.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "Particle Render Pipeline",
		Vertex: wgpu.VertexState{
			Module:     renderModule,
			EntryPoint: shaders.VertexEntryPoint,
			Buffers:    vertexBufferLayouts(desc.Programs),
		},
		Fragment: &wgpu.FragmentState{
			Module:     renderModule,
			EntryPoint: shaders.FragmentEntryPoint,
			Targets: []wgpu.ColorTargetState{
				{
					Format:    b.Config.Format,
					Blend:     nil,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count:                  1,
			Mask:                   0xFFFFFFFF,
			AlphaToCoverageEnabled: false,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create render pipeline: %w", err)
	}

	c := desc.ClearColor
	b.clearColor = wgpu.Color{R: c[0], G: c[1], B: c[2], A: c[3]}
	return nil
}

// vertexBufferLayouts: slot 0 = particle records per instance, slot 1 = shape per vertex.
func vertexBufferLayouts(progs shaders.Programs) []wgpu.VertexBufferLayout {
	attrs := make([]wgpu.VertexAttribute, 0, len(progs.Instance))
	for _, a := range progs.Instance {
		attrs = append(attrs, wgpu.VertexAttribute{
			Format:         floatFormat(a.Components),
			Offset:         a.Offset,
			ShaderLocation: a.Location,
		})
	}
	return []wgpu.VertexBufferLayout{
		{
			ArrayStride: progs.Stride,
			StepMode:    wgpu.VertexStepModeInstance,
			Attributes:  attrs,
		},
		{
			ArrayStride: 2 * 4,
			StepMode:    wgpu.VertexStepModeVertex,
			Attributes: []wgpu.VertexAttribute{
				{
					Format:         wgpu.VertexFormatFloat32x2,
					Offset:         0,
					ShaderLocation: shaders.ShapeLocation,
				},
			},
		},
	}
}

func floatFormat(components int) wgpu.VertexFormat {
	switch components {
	case 1:
		return wgpu.VertexFormatFloat32
	case 2:
		return wgpu.VertexFormatFloat32x2
	case 3:
		return wgpu.VertexFormatFloat32x3
	default:
		return wgpu.VertexFormatFloat32x4
	}
}

func (b *WgpuBackend) CreateBindGroup(label string, params, read, write Buffer) (BindGroup, error) {
	p, ok1 := params.(*wgpuBuffer)
	r, ok2 := read.(*wgpuBuffer)
	w, ok3 := write.(*wgpuBuffer)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("bind group %q mixes buffers from another backend", label)
	}
	if b.ComputePipeline == nil {
		return nil, fmt.Errorf("bind group %q created before the compute pipeline", label)
	}
	layout := b.ComputePipeline.GetBindGroupLayout(0)
	defer layout.Release()

	group, err := b.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  label,
		Layout: layout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: p.buf, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: r.buf, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: w.buf, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return nil, err
	}
	g := &wgpuBindGroup{label: label, group: group}
	b.groups = append(b.groups, g)
	return g, nil
}

// Submit records the list into one command encoder (compute passes end before
// the render pass begins, so the draw observes the dispatch's writes) and
// submits it in a single queue submission.
func (b *WgpuBackend) Submit(list *CommandList) error {
	var view *wgpu.TextureView
	for _, cmd := range list.Commands {
		if _, ok := cmd.(DrawCommand); !ok || view != nil {
			continue
		}
		texture, err := b.Surface.GetCurrentTexture()
		if err != nil {
			b.Surface.Configure(b.Adapter, b.Device, b.Config)
			return fmt.Errorf("%w: acquire surface texture: %v", ErrSubmission, err)
		}
		defer texture.Release()
		view, err = texture.CreateView(nil)
		if err != nil {
			return fmt.Errorf("%w: create view: %v", ErrSubmission, err)
		}
		defer view.Release()
	}

	encoder, err := b.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("%w: create command encoder: %v", ErrSubmission, err)
	}
	defer encoder.Release()

	for _, cmd := range list.Commands {
		switch c := cmd.(type) {
		case DispatchCommand:
			g, ok := c.Bindings.(*wgpuBindGroup)
			if !ok {
				return fmt.Errorf("%w: foreign bind group", ErrSubmission)
			}
			pass := encoder.BeginComputePass(nil)
			pass.SetPipeline(b.ComputePipeline)
			pass.SetBindGroup(0, g.group, nil)
			pass.DispatchWorkgroups(c.Groups, 1, 1)
			err = pass.End()
			pass.Release()
			if err != nil {
				return fmt.Errorf("%w: compute pass: %v", ErrSubmission, err)
			}
		case DrawCommand:
			inst, ok1 := c.Instances.(*wgpuBuffer)
			shape, ok2 := c.Shape.(*wgpuBuffer)
			if !ok1 || !ok2 {
				return fmt.Errorf("%w: foreign draw buffers", ErrSubmission)
			}
			pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
				ColorAttachments: []wgpu.RenderPassColorAttachment{{
					View:       view,
					LoadOp:     wgpu.LoadOpClear,
					StoreOp:    wgpu.StoreOpStore,
					ClearValue: b.clearColor,
				}},
			})
			pass.SetPipeline(b.RenderPipeline)
			pass.SetVertexBuffer(0, inst.buf, 0, wgpu.WholeSize)
			pass.SetVertexBuffer(1, shape.buf, 0, wgpu.WholeSize)
			pass.Draw(c.VertexCount, c.InstanceCount, 0, 0)
			err = pass.End()
			pass.Release()
			if err != nil {
				return fmt.Errorf("%w: render pass: %v", ErrSubmission, err)
			}
		}
	}

	cmdBuf, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("%w: finish encoder: %v", ErrSubmission, err)
	}
	defer cmdBuf.Release()

	b.Queue.Submit(cmdBuf)
	if view != nil {
		b.Surface.Present()
	}
	return nil
}

// Resize reconfigures the surface; zero sizes (minimized windows) are ignored.
func (b *WgpuBackend) Resize(width, height int) {
	if width > 0 && height > 0 {
		b.Config.Width = uint32(width)
		b.Config.Height = uint32(height)
		b.Surface.Configure(b.Adapter, b.Device, b.Config)
	}
}

func (b *WgpuBackend) Release() {
	for _, g := range b.groups {
		g.group.Release()
	}
	b.groups = nil
	for _, buf := range b.buffers {
		buf.buf.Release()
	}
	b.buffers = nil
	if b.ComputePipeline != nil {
		b.ComputePipeline.Release()
		b.ComputePipeline = nil
	}
	if b.RenderPipeline != nil {
		b.RenderPipeline.Release()
		b.RenderPipeline = nil
	}
	if b.Queue != nil {
		b.Queue.Release()
		b.Queue = nil
	}
	if b.Device != nil {
		b.Device.Release()
		b.Device = nil
	}
	if b.Adapter != nil {
		b.Adapter.Release()
		b.Adapter = nil
	}
}
