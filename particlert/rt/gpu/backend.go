package gpu

import (
	"errors"

	"github.com/gekko3d/gpuparticles/particlert/rt/core"
	"github.com/gekko3d/gpuparticles/particlert/rt/shaders"
)

var (
	// ErrDeviceUnavailable means no compatible adapter or device could be acquired.
	ErrDeviceUnavailable = errors.New("gpu: no compatible device available")
	// ErrSubmission means the device or surface rejected a frame. Nothing from
	// that frame reached the queue; retrying with the same inputs is safe.
	ErrSubmission = errors.New("gpu: frame submission failed")
)

type BufferUsage uint32

const (
	BufferUsageStorage BufferUsage = 1 << iota
	BufferUsageVertex
	BufferUsageUniform
	BufferUsageCopyDst
	BufferUsageCopySrc
)

func (u BufferUsage) Has(flag BufferUsage) bool { return u&flag != 0 }

// Buffer is a device allocation owned by a Backend.
type Buffer interface {
	Label() string
	Size() uint64
	Usage() BufferUsage
}

// BindGroup binds (params, read, write) to the compute program's group 0.
type BindGroup interface {
	Label() string
}

// Limits are the device limits the pipeline checks at configure time.
type Limits struct {
	MaxStorageBufferBindingSize      uint64
	MaxComputeWorkgroupsPerDimension uint32
	MaxComputeWorkgroupSizeX         uint32
}

// PipelineDesc carries everything needed to build the compute and render pipelines.
type PipelineDesc struct {
	Layout        core.FieldLayout
	Programs      shaders.Programs
	WorkgroupSize uint32
	ClearColor    [4]float64
}

// Backend is the device surface the pipeline is written against.
type Backend interface {
	Name() string
	Limits() Limits
	CreateBuffer(label string, size uint64, usage BufferUsage) (Buffer, error)
	WriteBuffer(buf Buffer, offset uint64, data []byte) error
	// ReadBuffer copies a buffer back to host memory. Diagnostics and tests only.
	ReadBuffer(buf Buffer) ([]byte, error)
	CreatePipelines(desc PipelineDesc) error
	// CreateBindGroup binds the uniform params and one (read, write) buffer pair.
	CreateBindGroup(label string, params, read, write Buffer) (BindGroup, error)
	// Submit executes a command list as one unit of work, in recording order.
	Submit(list *CommandList) error
	Release()
}
