package core

import (
	"encoding/binary"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// SimParamsSize is the byte size of the SimParams uniform record.
const SimParamsSize = 48

// SimParams is the uniform record read by the compute program.
//
//	struct SimParams {
//	  dt: f32,                 -- 0
//	  max_speed: f32,          -- 4
//	  count: u32,              -- 8
//	  bound_x: u32,            -- 12
//	  bound_y: u32,            -- 16
//	  extent: f32,             -- 20
//	  gravity: vec2<f32>,      -- 24
//	  attractor: vec2<f32>,    -- 32
//	  attractor_strength: f32, -- 40
//	  attractor_active: u32,   -- 44
//	} -> 48 bytes
type SimParams struct {
	TimeStep          float32
	MaxSpeed          float32
	Count             uint32
	BoundaryX         BoundaryPolicy
	BoundaryY         BoundaryPolicy
	Extent            float32
	Gravity           mgl32.Vec2
	Attractor         mgl32.Vec2
	AttractorStrength float32
	AttractorActive   bool
}

func (p SimParams) Bytes() []byte {
	buf := make([]byte, SimParamsSize)
	putF := func(off int, v float32) { binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v)) }
	putU := func(off int, v uint32) { binary.LittleEndian.PutUint32(buf[off:], v) }

	putF(0, p.TimeStep)
	putF(4, p.MaxSpeed)
	putU(8, p.Count)
	putU(12, uint32(p.BoundaryX))
	putU(16, uint32(p.BoundaryY))
	putF(20, p.Extent)
	putF(24, p.Gravity[0])
	putF(28, p.Gravity[1])
	putF(32, p.Attractor[0])
	putF(36, p.Attractor[1])
	putF(40, p.AttractorStrength)
	active := uint32(0)
	if p.AttractorActive {
		active = 1
	}
	putU(44, active)
	return buf
}

func DecodeSimParams(buf []byte) SimParams {
	f := func(off int) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:])) }
	u := func(off int) uint32 { return binary.LittleEndian.Uint32(buf[off:]) }
	return SimParams{
		TimeStep:          f(0),
		MaxSpeed:          f(4),
		Count:             u(8),
		BoundaryX:         BoundaryPolicy(u(12)),
		BoundaryY:         BoundaryPolicy(u(16)),
		Extent:            f(20),
		Gravity:           mgl32.Vec2{f(24), f(28)},
		Attractor:         mgl32.Vec2{f(32), f(36)},
		AttractorStrength: f(40),
		AttractorActive:   u(44) != 0,
	}
}

// Step advances one particle by one time step. It is the host twin of the
// compute program's main entry point and must stay in step with compute.wgsl.tmpl.
func (p SimParams) Step(in Particle) Particle {
	out := in
	vel := in.Velocity

	force := p.Gravity
	if p.AttractorActive {
		d := p.Attractor.Sub(in.Position)
		if l := d.Len(); l > 1e-6 {
			force = force.Add(d.Mul(p.AttractorStrength / l))
		}
	}
	vel = vel.Add(force.Mul(p.TimeStep))

	if p.MaxSpeed > 0 {
		if s := vel.Len(); s > p.MaxSpeed {
			vel = vel.Mul(p.MaxSpeed / s)
		}
	}

	pos := in.Position.Add(vel.Mul(p.TimeStep))

	pos[0], vel[0] = p.BoundaryX.Apply(pos[0], vel[0], p.Extent)
	pos[1], vel[1] = p.BoundaryY.Apply(pos[1], vel[1], p.Extent)

	out.Position = pos
	out.Velocity = vel
	return out
}

// StepRecord runs Step on a raw record: every float is copied from in to out,
// then position and velocity are overwritten.
func (p SimParams) StepRecord(l FieldLayout, in, out []float32) {
	copy(out, in[:l.Floats()])
	next := p.Step(l.Get(in))
	pos := l.mustOffset(FieldPosition)
	out[pos], out[pos+1] = next.Position[0], next.Position[1]
	vel := l.mustOffset(FieldVelocity)
	out[vel], out[vel+1] = next.Velocity[0], next.Velocity[1]
}
