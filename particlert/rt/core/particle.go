package core

import "github.com/go-gl/mathgl/mgl32"

// Particle is the host view of one record. Its device layout is decided by a
// FieldLayout, not by this struct.
type Particle struct {
	Position mgl32.Vec2
	Velocity mgl32.Vec2
	Color    mgl32.Vec3
}

// ShapeTemplate is the per-instance geometry: a quad as two CCW triangles,
// centered on the origin in clip units.
type ShapeTemplate struct {
	Vertices []mgl32.Vec2
}

func NewQuad(size float32) ShapeTemplate {
	h := size / 2
	return ShapeTemplate{
		Vertices: []mgl32.Vec2{
			{-h, -h}, {h, -h}, {h, h},
			{-h, -h}, {h, h}, {-h, h},
		},
	}
}

func (s ShapeTemplate) VertexCount() uint32 { return uint32(len(s.Vertices)) }

// Bytes packs vertices as float32x2.
func (s ShapeTemplate) Bytes() []byte {
	flat := make([]float32, 0, len(s.Vertices)*2)
	for _, v := range s.Vertices {
		flat = append(flat, v[0], v[1])
	}
	buf := make([]byte, len(flat)*4)
	PutFloats(buf, flat)
	return buf
}
