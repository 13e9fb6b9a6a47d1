package gpu

import (
	"fmt"

	"github.com/gekko3d/gpuparticles/particlert/rt/core"
)

const particleBufferUsage = BufferUsageStorage | BufferUsageVertex | BufferUsageCopyDst | BufferUsageCopySrc

// ParticleStore owns the two particle buffers (A and B). Both are storage
// targets for compute and instance input for rendering.
type ParticleStore struct {
	Backend Backend
	Layout  core.FieldLayout
	Count   int
	Buffers [2]Buffer
}

func NewParticleStore(backend Backend, layout core.FieldLayout, count int, label string) (*ParticleStore, error) {
	if count <= 0 {
		return nil, core.ConfigErrorf("particles", "count must be positive, got %d", count)
	}
	size := uint64(count) * uint64(layout.Stride())
	if limit := backend.Limits().MaxStorageBufferBindingSize; limit > 0 && size > limit {
		return nil, core.ConfigErrorf("particles", "%d particles need %d bytes, device binds at most %d", count, size, limit)
	}

	s := &ParticleStore{Backend: backend, Layout: layout, Count: count}
	for i, name := range []string{"A", "B"} {
		buf, err := backend.CreateBuffer(fmt.Sprintf("%s Particles %s", label, name), size, particleBufferUsage)
		if err != nil {
			return nil, fmt.Errorf("failed to create particle buffer %s: %w", name, err)
		}
		s.Buffers[i] = buf
	}
	return s, nil
}

// Initialize writes the same population into both buffers so either one is a
// valid read buffer on tick 0.
func (s *ParticleStore) Initialize(gen core.Generator) error {
	particles, err := core.Generate(gen, s.Count)
	if err != nil {
		return err
	}
	data := s.Layout.Encode(particles)
	for i, buf := range s.Buffers {
		if err := s.Backend.WriteBuffer(buf, 0, data); err != nil {
			return fmt.Errorf("failed to initialize particle buffer %d: %w", i, err)
		}
	}
	return nil
}

// Snapshot reads buffer i (0 = A, 1 = B) back as raw bytes.
func (s *ParticleStore) Snapshot(i int) ([]byte, error) {
	return s.Backend.ReadBuffer(s.Buffers[i])
}

// Particles decodes buffer i.
func (s *ParticleStore) Particles(i int) ([]core.Particle, error) {
	data, err := s.Snapshot(i)
	if err != nil {
		return nil, err
	}
	return s.Layout.Decode(data), nil
}
