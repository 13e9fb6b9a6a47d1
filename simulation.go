package gpuparticles

import (
	"context"
	"errors"
	"fmt"

	"github.com/gekko3d/gpuparticles/particlert/rt/core"
	"github.com/gekko3d/gpuparticles/particlert/rt/gpu"
	"github.com/gekko3d/gpuparticles/particlert/rt/shaders"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"
)

// Simulation is a configured particle system bound to one backend.
type Simulation struct {
	Config   Config
	RunID    string
	Layout   core.FieldLayout
	Programs shaders.Programs
	Profiler *Profiler

	backend   gpu.Backend
	scheduler *gpu.FrameScheduler
	logger    Logger
	generator core.Generator
}

type Option func(*Simulation)

func WithLogger(l Logger) Option {
	return func(s *Simulation) { s.logger = l }
}

// WithLayout replaces the named layout from the config, e.g. to carry extra
// per-particle fields through the kernel.
func WithLayout(l core.FieldLayout) Option {
	return func(s *Simulation) { s.Layout = l }
}

// WithGenerator replaces the configured population source.
func WithGenerator(g core.Generator) Option {
	return func(s *Simulation) { s.generator = g }
}

// Configure validates cfg against the backend, generates both programs from
// the field layout, allocates and initializes the particle buffers and builds
// the two binding pairs. Nothing is dispatched until the first Tick.
func Configure(backend gpu.Backend, cfg Config, opts ...Option) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	layout, err := core.LayoutByName(cfg.Simulation.Layout)
	if err != nil {
		return nil, err
	}
	s := &Simulation{
		Config:    cfg,
		RunID:     uuid.NewString()[:8],
		Layout:    layout,
		Profiler:  NewProfiler(),
		backend:   backend,
		generator: cfg.Generator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = NewDefaultLogger("particles "+s.RunID, cfg.Debug)
	}
	if err := s.checkLimits(); err != nil {
		return nil, err
	}

	sim := cfg.Simulation
	s.Programs, err = shaders.Generate(s.Layout, shaders.Options{
		WorkgroupSize:    sim.WorkgroupSize,
		OrientToVelocity: cfg.Render.OrientToVelocity,
	})
	if err != nil {
		return nil, err
	}
	if err := backend.CreatePipelines(gpu.PipelineDesc{
		Layout:        s.Layout,
		Programs:      s.Programs,
		WorkgroupSize: sim.WorkgroupSize,
		ClearColor:    cfg.Render.ClearColor,
	}); err != nil {
		return nil, fmt.Errorf("failed to create pipelines: %w", err)
	}

	store, err := gpu.NewParticleStore(backend, s.Layout, sim.Particles, "Sim "+s.RunID)
	if err != nil {
		return nil, err
	}
	if err := store.Initialize(s.generator); err != nil {
		return nil, err
	}
	stage, err := gpu.NewSimulationStage(backend, cfg.Params(), sim.WorkgroupSize)
	if err != nil {
		return nil, err
	}
	present, err := gpu.NewPresentationStage(backend, core.NewQuad(cfg.Render.ParticleSize))
	if err != nil {
		return nil, err
	}
	pairs, err := gpu.ResolveBindings(backend, store, stage.ParamsBuf)
	if err != nil {
		return nil, err
	}
	s.scheduler = gpu.NewFrameScheduler(backend, store, stage, present, pairs)
	s.scheduler.SetTimer(s.Profiler)

	s.logger.Infof("Configured %d particles on %s: layout %d bytes, bounds %s/%s, dt %g, %d workgroups of %d",
		sim.Particles, backend.Name(), s.Layout.Stride(), sim.BoundaryX, sim.BoundaryY, sim.TimeStep,
		s.scheduler.DispatchSize(), sim.WorkgroupSize)
	return s, nil
}

func (s *Simulation) checkLimits() error {
	sim := s.Config.Simulation
	limits := s.backend.Limits()
	if limits.MaxComputeWorkgroupSizeX > 0 && sim.WorkgroupSize > limits.MaxComputeWorkgroupSizeX {
		return core.ConfigErrorf("workgroup_size", "%d exceeds device limit %d", sim.WorkgroupSize, limits.MaxComputeWorkgroupSizeX)
	}
	groups := gpu.DispatchSize(sim.Particles, sim.WorkgroupSize)
	if limits.MaxComputeWorkgroupsPerDimension > 0 && groups > limits.MaxComputeWorkgroupsPerDimension {
		return core.ConfigErrorf("particles", "%d particles need %d workgroups, device allows %d", sim.Particles, groups, limits.MaxComputeWorkgroupsPerDimension)
	}
	return nil
}

// Tick advances the simulation by one step and renders it. A failed tick
// leaves the counter and both buffers untouched; calling Tick again retries it.
func (s *Simulation) Tick() error {
	s.Profiler.BeginScope("tick")
	err := s.scheduler.Tick()
	s.Profiler.EndScope("tick")
	if err != nil {
		s.Profiler.Increment("failures")
		return err
	}
	s.Profiler.SetCount("ticks", int(s.scheduler.TickCount()))
	if every := s.Config.StatsEvery; every > 0 && s.scheduler.TickCount()%uint64(every) == 0 {
		if s.logger.DebugEnabled() {
			s.logger.Debugf("Tick %d\n%s", s.scheduler.TickCount(), s.Profiler.GetStatsString())
		}
		s.Profiler.Reset()
	}
	return nil
}

// Frame is a FrameClock callback: submission failures are logged and retried
// on the next frame, anything else stops the clock.
func (s *Simulation) Frame(t Time) error {
	err := s.Tick()
	if errors.Is(err, gpu.ErrSubmission) {
		s.logger.Warnf("Frame %d dropped: %v", t.Frame, err)
		return nil
	}
	return err
}

// Run ticks on clock until ctx is cancelled. Cancellation is not an error.
func (s *Simulation) Run(ctx context.Context, clock *FrameClock) error {
	err := clock.Run(ctx, s.Frame)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Perturb attracts particles toward (x, y) in clip space from the next tick
// on. Negative strength repels.
func (s *Simulation) Perturb(x, y, strength float32) error {
	return s.scheduler.Simulation().SetAttractor(mgl32.Vec2{x, y}, strength)
}

// Release lifts a perturbation.
func (s *Simulation) Release() error {
	return s.scheduler.Simulation().ClearAttractor()
}

func (s *Simulation) TickCount() uint64 { return s.scheduler.TickCount() }

func (s *Simulation) DispatchSize() uint32 { return s.scheduler.DispatchSize() }

func (s *Simulation) Failures() int { return s.Profiler.Counts["failures"] }

func (s *Simulation) Scheduler() *gpu.FrameScheduler { return s.scheduler }

func (s *Simulation) Logger() Logger { return s.logger }

// Current is the buffer holding the latest particle state.
func (s *Simulation) Current() gpu.Buffer { return s.scheduler.Current() }

// Snapshot reads the latest particle state back to the host.
func (s *Simulation) Snapshot() ([]core.Particle, error) {
	data, err := s.backend.ReadBuffer(s.Current())
	if err != nil {
		return nil, err
	}
	return s.Layout.Decode(data), nil
}

// Close releases every device resource.
func (s *Simulation) Close() {
	s.backend.Release()
}
