package gpuparticles

import (
	"fmt"
	"os"

	"github.com/gekko3d/gpuparticles/particlert/rt/core"
	"gopkg.in/yaml.v3"
)

// MaxParticles caps the instance count accepted at configure time. Devices
// may impose a lower bound through their storage binding limit.
const MaxParticles = 4 << 20

// Generator names accepted in Config.Population.Generator.
const (
	GeneratorRandom   = "random"
	GeneratorGrid     = "grid"
	GeneratorSnowfall = "snowfall"
)

type Config struct {
	Simulation struct {
		Particles     int                 `yaml:"particles"`
		Layout        string              `yaml:"layout"`
		BoundaryX     core.BoundaryPolicy `yaml:"boundary_x"`
		BoundaryY     core.BoundaryPolicy `yaml:"boundary_y"`
		TimeStep      float32             `yaml:"time_step"`
		// MaxSpeed clamps velocity magnitude; 0 disables the clamp.
		MaxSpeed      float32             `yaml:"max_speed"`
		Extent        float32             `yaml:"extent"`
		Gravity       [2]float32          `yaml:"gravity"`
		WorkgroupSize uint32              `yaml:"workgroup_size"`
		// TickRate in Hz; 0 ties ticks to presentation.
		TickRate float64 `yaml:"tick_rate"`
	} `yaml:"simulation"`

	Population struct {
		Generator string  `yaml:"generator"`
		Seed      int64   `yaml:"seed"`
		Speed     float32 `yaml:"speed"`
		Drift     float32 `yaml:"drift"`
	} `yaml:"population"`

	Render struct {
		ParticleSize     float32    `yaml:"particle_size"`
		OrientToVelocity bool       `yaml:"orient_to_velocity"`
		ClearColor       [4]float64 `yaml:"clear_color"`
	} `yaml:"render"`

	Window struct {
		Width  int    `yaml:"width"`
		Height int    `yaml:"height"`
		Title  string `yaml:"title"`
		VSync  bool   `yaml:"vsync"`
	} `yaml:"window"`

	Input struct {
		// AttractorStrength is applied while the mouse button is held.
		AttractorStrength float32 `yaml:"attractor_strength"`
	} `yaml:"input"`

	Debug      bool `yaml:"debug"`
	StatsEvery int  `yaml:"stats_every"`
}

func DefaultConfig() Config {
	var c Config
	c.Simulation.Particles = 10000
	c.Simulation.Layout = "rich"
	c.Simulation.BoundaryX = core.BoundaryReflect
	c.Simulation.BoundaryY = core.BoundaryReflect
	c.Simulation.TimeStep = 1
	c.Simulation.Extent = 1
	c.Simulation.WorkgroupSize = 64
	c.Simulation.TickRate = 60

	c.Population.Generator = GeneratorRandom
	c.Population.Seed = 1
	c.Population.Speed = 0.005
	c.Population.Drift = 0.001

	c.Render.ParticleSize = 0.01
	c.Render.ClearColor = [4]float64{0, 0, 0, 1}

	c.Window.Width = 1280
	c.Window.Height = 720
	c.Window.Title = "Particles"

	c.Input.AttractorStrength = 0.0005
	c.StatsEvery = 300
	return c
}

// LoadConfig overlays the YAML file at path on DefaultConfig and validates
// the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c Config) Validate() error {
	s := c.Simulation
	switch {
	case s.Particles <= 0:
		return core.ConfigErrorf("particles", "must be positive, got %d", s.Particles)
	case s.Particles > MaxParticles:
		return core.ConfigErrorf("particles", "%d exceeds maximum %d", s.Particles, MaxParticles)
	case !s.BoundaryX.Valid():
		return core.ConfigErrorf("boundary_x", "unknown policy %s", s.BoundaryX)
	case !s.BoundaryY.Valid():
		return core.ConfigErrorf("boundary_y", "unknown policy %s", s.BoundaryY)
	case s.TimeStep <= 0:
		return core.ConfigErrorf("time_step", "must be positive, got %g", s.TimeStep)
	case s.MaxSpeed < 0:
		return core.ConfigErrorf("max_speed", "must not be negative, got %g", s.MaxSpeed)
	case s.Extent <= 0:
		return core.ConfigErrorf("extent", "must be positive, got %g", s.Extent)
	case s.WorkgroupSize == 0:
		return core.ConfigErrorf("workgroup_size", "must be positive")
	case s.TickRate < 0:
		return core.ConfigErrorf("tick_rate", "must not be negative, got %g", s.TickRate)
	case c.Render.ParticleSize <= 0:
		return core.ConfigErrorf("particle_size", "must be positive, got %g", c.Render.ParticleSize)
	}
	if _, err := core.LayoutByName(s.Layout); err != nil {
		return err
	}
	switch c.Population.Generator {
	case GeneratorRandom, GeneratorGrid, GeneratorSnowfall:
	default:
		return core.ConfigErrorf("generator", "unknown generator %q", c.Population.Generator)
	}
	return nil
}

// Generator builds the initial population source named by the config.
func (c Config) Generator() core.Generator {
	p := c.Population
	switch p.Generator {
	case GeneratorGrid:
		return core.Grid{Velocity: [2]float32{p.Drift, 0}}
	case GeneratorSnowfall:
		return core.NewSnowfall(p.Seed, p.Speed, p.Drift)
	default:
		return core.NewUniformRandom(p.Seed, p.Speed)
	}
}

// Params is the uniform record the kernel starts from.
func (c Config) Params() core.SimParams {
	s := c.Simulation
	return core.SimParams{
		TimeStep:  s.TimeStep,
		MaxSpeed:  s.MaxSpeed,
		Count:     uint32(s.Particles),
		BoundaryX: s.BoundaryX,
		BoundaryY: s.BoundaryY,
		Extent:    s.Extent,
		Gravity:   s.Gravity,
	}
}
