package core

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
)

// Generator produces the starting population, one particle per index.
// Particle is called for i = 0..n-1 in order.
type Generator interface {
	Particle(i, n int) Particle
}

// UniformRandom scatters particles uniformly over [-1,1]^2 with a velocity
// drawn uniformly from [-Speed, Speed] per axis. The source is seeded from
// Seed on first use.
type UniformRandom struct {
	Speed float32
	Seed  int64
	rng   *rand.Rand
}

func NewUniformRandom(seed int64, speed float32) *UniformRandom {
	return &UniformRandom{Speed: speed, Seed: seed}
}

func (g *UniformRandom) Particle(i, n int) Particle {
	r := seeded(&g.rng, g.Seed)
	return Particle{
		Position: mgl32.Vec2{signed(r), signed(r)},
		Velocity: mgl32.Vec2{signed(r) * g.Speed, signed(r) * g.Speed},
		Color:    mgl32.Vec3{r.Float32(), r.Float32(), r.Float32()},
	}
}

func seeded(rng **rand.Rand, seed int64) *rand.Rand {
	if *rng == nil {
		*rng = rand.New(rand.NewSource(seed))
	}
	return *rng
}

func signed(r *rand.Rand) float32 { return 2*r.Float32() - 1 }

// Grid lays particles out on a regular grid by index, row major from the
// bottom left, all moving with the same velocity.
type Grid struct {
	Velocity mgl32.Vec2
	Margin   float32
}

func (g Grid) Particle(i, n int) Particle {
	cols := int(math.Ceil(math.Sqrt(float64(n))))
	if cols < 1 {
		cols = 1
	}
	rows := (n + cols - 1) / cols
	col, row := i%cols, i/cols
	span := 2 - 2*g.Margin
	return Particle{
		Position: mgl32.Vec2{
			-1 + g.Margin + span*cellCenter(col, cols),
			-1 + g.Margin + span*cellCenter(row, rows),
		},
		Velocity: g.Velocity,
		Color:    mgl32.Vec3{float32(col) / float32(cols), float32(row) / float32(max(rows, 1)), 1},
	}
}

func cellCenter(k, count int) float32 {
	return (float32(k) + 0.5) / float32(count)
}

// Snowfall drops white particles at random positions with a constant downward
// speed. Pair it with BoundaryResetToOpposite on the vertical axis.
type Snowfall struct {
	FallSpeed float32
	Drift     float32
	Seed      int64
	rng       *rand.Rand
}

func NewSnowfall(seed int64, fallSpeed, drift float32) *Snowfall {
	return &Snowfall{FallSpeed: fallSpeed, Drift: drift, Seed: seed}
}

func (g *Snowfall) Particle(i, n int) Particle {
	r := seeded(&g.rng, g.Seed)
	return Particle{
		Position: mgl32.Vec2{signed(r), signed(r)},
		Velocity: mgl32.Vec2{signed(r) * g.Drift, -g.FallSpeed},
		Color:    mgl32.Vec3{1, 1, 1},
	}
}

// Explicit hands out a fixed list, for deterministic layouts.
type Explicit []Particle

func (g Explicit) Particle(i, n int) Particle { return g[i] }

// Generate runs gen for n particles.
func Generate(gen Generator, n int) ([]Particle, error) {
	if n <= 0 {
		return nil, configErrorf("particles", "count must be positive, got %d", n)
	}
	if e, ok := gen.(Explicit); ok && len(e) != n {
		return nil, configErrorf("generator", "explicit population has %d particles, want %d", len(e), n)
	}
	out := make([]Particle, n)
	for i := range out {
		out[i] = gen.Particle(i, n)
	}
	return out, nil
}
