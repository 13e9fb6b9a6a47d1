package gpu

import (
	"fmt"

	"github.com/gekko3d/gpuparticles/particlert/rt/core"
	"github.com/go-gl/mathgl/mgl32"
)

// SimulationStage owns the uniform params and records compute dispatches.
type SimulationStage struct {
	Backend       Backend
	Params        core.SimParams
	ParamsBuf     Buffer
	WorkgroupSize uint32
}

func NewSimulationStage(backend Backend, params core.SimParams, workgroupSize uint32) (*SimulationStage, error) {
	buf, err := backend.CreateBuffer("SimParams", core.SimParamsSize, BufferUsageUniform|BufferUsageCopyDst)
	if err != nil {
		return nil, fmt.Errorf("failed to create params buffer: %w", err)
	}
	s := &SimulationStage{
		Backend:       backend,
		Params:        params,
		ParamsBuf:     buf,
		WorkgroupSize: workgroupSize,
	}
	if err := s.upload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SimulationStage) upload() error {
	return s.Backend.WriteBuffer(s.ParamsBuf, 0, s.Params.Bytes())
}

// DispatchSize is ceil(n / width): every particle index gets an invocation.
func DispatchSize(n int, width uint32) uint32 {
	if n <= 0 || width == 0 {
		return 0
	}
	return (uint32(n) + width - 1) / width
}

// Record adds one dispatch over all particles for pair.
func (s *SimulationStage) Record(enc *Encoder, pair BindingPair) {
	enc.Dispatch(pair.Group, DispatchSize(int(s.Params.Count), s.WorkgroupSize))
}

// SetAttractor pushes a target point that biases velocities from the next tick on.
// A negative strength repels.
func (s *SimulationStage) SetAttractor(target mgl32.Vec2, strength float32) error {
	s.Params.Attractor = target
	s.Params.AttractorStrength = strength
	s.Params.AttractorActive = true
	return s.upload()
}

func (s *SimulationStage) ClearAttractor() error {
	s.Params.AttractorActive = false
	return s.upload()
}

// PresentationStage owns the shape template and records instanced draws.
type PresentationStage struct {
	Shape    core.ShapeTemplate
	ShapeBuf Buffer
}

func NewPresentationStage(backend Backend, shape core.ShapeTemplate) (*PresentationStage, error) {
	data := shape.Bytes()
	buf, err := backend.CreateBuffer("Shape Vertices", uint64(len(data)), BufferUsageVertex|BufferUsageCopyDst)
	if err != nil {
		return nil, fmt.Errorf("failed to create shape buffer: %w", err)
	}
	if err := backend.WriteBuffer(buf, 0, data); err != nil {
		return nil, fmt.Errorf("failed to upload shape: %w", err)
	}
	return &PresentationStage{Shape: shape, ShapeBuf: buf}, nil
}

// Record draws count instances sourced from instances, which must be the
// buffer the simulation stage wrote in the same frame.
func (p *PresentationStage) Record(enc *Encoder, instances Buffer, count uint32) {
	enc.Draw(p.ShapeBuf, p.Shape.VertexCount(), instances, count)
}
