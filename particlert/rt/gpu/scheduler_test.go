package gpu

import (
	"errors"
	"image/color"
	"math"
	"testing"

	"github.com/gekko3d/gpuparticles/particlert/rt/core"
	"github.com/gekko3d/gpuparticles/particlert/rt/shaders"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testPipeline struct {
	backend   *SoftwareBackend
	store     *ParticleStore
	sim       *SimulationStage
	scheduler *FrameScheduler
}

// renderSetup holds the presentation knobs a test pipeline is built with.
type renderSetup struct {
	orient bool
	clear  [4]float64
	size   float32
}

func newTestPipeline(t *testing.T, surface *SoftwareSurface, layout core.FieldLayout, n int, gen core.Generator, params core.SimParams, width uint32) *testPipeline {
	t.Helper()
	return newRenderPipeline(t, surface, layout, n, gen, params, width, renderSetup{clear: [4]float64{0, 0, 0, 1}, size: 0.1})
}

func newRenderPipeline(t *testing.T, surface *SoftwareSurface, layout core.FieldLayout, n int, gen core.Generator, params core.SimParams, width uint32, render renderSetup) *testPipeline {
	t.Helper()
	backend := NewSoftwareBackend(surface)

	progs, err := shaders.Generate(layout, shaders.Options{WorkgroupSize: width, OrientToVelocity: render.orient})
	require.NoError(t, err)
	require.NoError(t, backend.CreatePipelines(PipelineDesc{
		Layout:        layout,
		Programs:      progs,
		WorkgroupSize: width,
		ClearColor:    render.clear,
	}))

	store, err := NewParticleStore(backend, layout, n, "test")
	require.NoError(t, err)
	require.NoError(t, store.Initialize(gen))

	params.Count = uint32(n)
	sim, err := NewSimulationStage(backend, params, width)
	require.NoError(t, err)
	present, err := NewPresentationStage(backend, core.NewQuad(render.size))
	require.NoError(t, err)
	pairs, err := ResolveBindings(backend, store, sim.ParamsBuf)
	require.NoError(t, err)

	return &testPipeline{
		backend:   backend,
		store:     store,
		sim:       sim,
		scheduler: NewFrameScheduler(backend, store, sim, present, pairs),
	}
}

func defaultParams() core.SimParams {
	return core.SimParams{
		TimeStep:  1,
		Extent:    1,
		BoundaryX: core.BoundaryWrap,
		BoundaryY: core.BoundaryWrap,
	}
}

func TestStoreInitializesBothBuffersIdentically(t *testing.T) {
	p := newTestPipeline(t, nil, core.RichLayout, 257, core.NewUniformRandom(3, 0.01), defaultParams(), 64)

	a, err := p.store.Snapshot(0)
	require.NoError(t, err)
	b, err := p.store.Snapshot(1)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 257*core.RichLayout.Stride())

	particles, err := p.store.Particles(0)
	require.NoError(t, err)
	require.Len(t, particles, 257)
	for _, pt := range particles {
		assert.LessOrEqual(t, math.Abs(float64(pt.Position[0])), 1.0)
		assert.LessOrEqual(t, math.Abs(float64(pt.Position[1])), 1.0)
	}
}

func TestBindingPairsAreCrossed(t *testing.T) {
	p := newTestPipeline(t, nil, core.MinimalLayout, 8, core.Grid{}, defaultParams(), 64)
	pairs := p.scheduler.Pairs()

	assert.Same(t, p.store.Buffers[0], pairs[0].Read)
	assert.Same(t, p.store.Buffers[1], pairs[0].Write)
	assert.Same(t, p.store.Buffers[1], pairs[1].Read)
	assert.Same(t, p.store.Buffers[0], pairs[1].Write)
	assert.NotSame(t, pairs[0].Group, pairs[1].Group)
}

func TestParityAlternation(t *testing.T) {
	p := newTestPipeline(t, nil, core.RichLayout, 100, core.Grid{Velocity: mgl32.Vec2{0.01, 0}}, defaultParams(), 64)
	s := p.scheduler

	for tick := uint64(0); tick < 6; tick++ {
		require.Equal(t, tick, s.TickCount())
		require.Equal(t, int(tick%2), s.Parity())

		written := s.Active().Write
		require.NoError(t, s.Tick())

		draw, ok := p.backend.LastDraw()
		require.True(t, ok)
		assert.Same(t, written, draw.Instances, "tick %d must draw the buffer it just wrote", tick)
		assert.Equal(t, uint32(100), draw.InstanceCount)
		assert.Same(t, written, s.Active().Read, "tick %d must read what tick %d wrote", tick+1, tick)
		assert.Same(t, written, s.Current())
	}
}

func TestReadBufferIsNeverMutated(t *testing.T) {
	p := newTestPipeline(t, nil, core.RichLayout, 500, core.NewUniformRandom(11, 0.05), defaultParams(), 64)
	s := p.scheduler

	for i := 0; i < 4; i++ {
		readIdx := s.Parity()
		before, err := p.store.Snapshot(readIdx)
		require.NoError(t, err)

		require.NoError(t, s.Tick())

		after, err := p.store.Snapshot(readIdx)
		require.NoError(t, err)
		assert.Equal(t, before, after)

		written, err := p.store.Snapshot(1 - readIdx)
		require.NoError(t, err)
		assert.NotEqual(t, before, written)
	}
}

func TestDispatchCoverage(t *testing.T) {
	const n = 10000
	p := newTestPipeline(t, nil, core.MinimalLayout, n, core.Grid{Velocity: mgl32.Vec2{0.001, 0.001}}, defaultParams(), 64)

	assert.Equal(t, uint32(157), DispatchSize(n, 64))
	assert.Equal(t, uint32(157), p.scheduler.DispatchSize())

	require.NoError(t, p.scheduler.Tick())
	assert.Equal(t, uint64(n), p.backend.Invoked)

	initial, err := p.store.Particles(0)
	require.NoError(t, err)
	updated, err := p.store.Particles(1)
	require.NoError(t, err)
	for i := range updated {
		require.NotEqual(t, initial[i].Position, updated[i].Position, "particle %d was not simulated", i)
	}
}

func TestUnderDispatchMissesParticles(t *testing.T) {
	const n = 10000
	p := newTestPipeline(t, nil, core.MinimalLayout, n, core.Grid{Velocity: mgl32.Vec2{0.001, 0.001}}, defaultParams(), 64)
	pair := p.scheduler.Active()

	enc := NewEncoder()
	enc.Dispatch(pair.Group, 156)
	require.NoError(t, p.backend.Submit(enc.Finish()))

	initial, err := p.store.Particles(0)
	require.NoError(t, err)
	updated, err := p.store.Particles(1)
	require.NoError(t, err)

	stale := 0
	for i := range updated {
		if updated[i].Position == initial[i].Position {
			stale++
		}
	}
	assert.Equal(t, n-156*64, stale)
}

func TestExcessInvocationsNoOp(t *testing.T) {
	p := newTestPipeline(t, nil, core.MinimalLayout, 70, core.Grid{Velocity: mgl32.Vec2{0.01, 0}}, defaultParams(), 64)
	require.NoError(t, p.scheduler.Tick())
	assert.Equal(t, uint32(2), p.scheduler.DispatchSize())
	assert.Equal(t, uint64(70), p.backend.Invoked)
	assert.Equal(t, uint64(70*core.MinimalLayout.Stride()), p.store.Buffers[1].Size())
}

func TestWrapScenario(t *testing.T) {
	start := core.Explicit{
		{Position: mgl32.Vec2{0, 0}, Velocity: mgl32.Vec2{0.1, 0}},
		{Position: mgl32.Vec2{0.5, 0}, Velocity: mgl32.Vec2{0.1, 0}},
		{Position: mgl32.Vec2{-0.5, 0}, Velocity: mgl32.Vec2{0.1, 0}},
	}
	p := newTestPipeline(t, nil, core.RichLayout, 3, start, defaultParams(), 64)
	for i := 0; i < 10; i++ {
		require.NoError(t, p.scheduler.Tick())
	}

	current := p.scheduler.Current()
	data, err := p.backend.ReadBuffer(current)
	require.NoError(t, err)
	final := core.RichLayout.Decode(data)
	require.Len(t, final, 3)

	// x0 + 1.0 wrapped into [-1,1]; +1 and -1 are the same point on the period.
	for i, want := range []float64{1.0, -0.5, 0.5} {
		x := float64(final[i].Position[0])
		assert.LessOrEqual(t, math.Abs(x), 1.0)
		assert.Less(t, periodicDistance(x, want), 1e-5, "particle %d ended at %f", i, x)
		assert.Equal(t, float32(0.1), final[i].Velocity[0])
	}
}

func periodicDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 2)
	return math.Min(d, 2-d)
}

func TestReflectBoundaryThroughPipeline(t *testing.T) {
	params := defaultParams()
	params.BoundaryX = core.BoundaryReflect
	start := core.Explicit{{Position: mgl32.Vec2{1.0001, 0}, Velocity: mgl32.Vec2{0.02, 0}}}
	p := newTestPipeline(t, nil, core.MinimalLayout, 1, start, params, 64)

	require.NoError(t, p.scheduler.Tick())
	out, err := p.store.Particles(1)
	require.NoError(t, err)
	assert.Equal(t, float32(-0.02), out[0].Velocity[0])
	assert.Greater(t, out[0].Position[0], float32(0))
}

func TestSnowfallResetsToTop(t *testing.T) {
	params := defaultParams()
	params.BoundaryY = core.BoundaryResetToOpposite
	start := core.Explicit{{Position: mgl32.Vec2{0.2, -0.99}, Velocity: mgl32.Vec2{0, -0.05}}}
	p := newTestPipeline(t, nil, core.MinimalLayout, 1, start, params, 64)

	require.NoError(t, p.scheduler.Tick())
	out, err := p.store.Particles(1)
	require.NoError(t, err)
	assert.Equal(t, float32(1), out[0].Position[1])
	assert.Equal(t, float32(-0.05), out[0].Velocity[1])
}

func TestSubmissionFailureIsRetryable(t *testing.T) {
	surface := NewSoftwareSurface(32, 32)
	p := newTestPipeline(t, surface, core.RichLayout, 64, core.NewUniformRandom(5, 0.02), defaultParams(), 64)
	require.NoError(t, p.scheduler.Tick())

	a, err := p.store.Snapshot(0)
	require.NoError(t, err)
	b, err := p.store.Snapshot(1)
	require.NoError(t, err)

	surface.Lose()
	err = p.scheduler.Tick()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSubmission))
	assert.Equal(t, uint64(1), p.scheduler.TickCount())

	a2, err := p.store.Snapshot(0)
	require.NoError(t, err)
	b2, err := p.store.Snapshot(1)
	require.NoError(t, err)
	assert.Equal(t, a, a2)
	assert.Equal(t, b, b2)

	surface.Resize(32, 32)
	require.NoError(t, p.scheduler.Tick())
	assert.Equal(t, uint64(2), p.scheduler.TickCount())
}

func TestStoreRejectsOversizedPopulation(t *testing.T) {
	backend := NewSoftwareBackend(nil)
	backend.SetLimits(Limits{MaxStorageBufferBindingSize: 1024, MaxComputeWorkgroupsPerDimension: 65535, MaxComputeWorkgroupSizeX: 256})

	_, err := NewParticleStore(backend, core.RichLayout, 100, "test")
	var cfgErr *core.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))

	_, err = NewParticleStore(backend, core.RichLayout, 0, "test")
	require.True(t, errors.As(err, &cfgErr))
}

func TestAttractorBiasesVelocity(t *testing.T) {
	start := core.Explicit{{Position: mgl32.Vec2{0, 0}}}
	p := newTestPipeline(t, nil, core.MinimalLayout, 1, start, defaultParams(), 64)

	require.NoError(t, p.sim.SetAttractor(mgl32.Vec2{0, 0.5}, 0.01))
	require.NoError(t, p.scheduler.Tick())
	out, err := p.store.Particles(1)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, out[0].Velocity[1], 1e-7)

	require.NoError(t, p.sim.ClearAttractor())
	require.NoError(t, p.scheduler.Tick())
	out, err = p.store.Particles(0)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, out[0].Velocity[1], 1e-7, "velocity holds once the attractor is released")
}

func TestSoftwareRasterDrawsWrittenPositions(t *testing.T) {
	surface := NewSoftwareSurface(100, 100)
	start := core.Explicit{{
		Position: mgl32.Vec2{-0.5, 0},
		Velocity: mgl32.Vec2{1, 0},
		Color:    mgl32.Vec3{1, 0, 0},
	}}
	params := defaultParams()
	params.BoundaryX = core.BoundaryReflect
	p := newTestPipeline(t, surface, core.RichLayout, 1, start, params, 64)

	require.NoError(t, p.scheduler.Tick())

	frame := surface.Frame()
	// the particle moved from x=-0.5 (pixel 25) to x=0.5 (pixel 75)
	hit := frame.RGBAAt(75, 50)
	assert.Greater(t, hit.R, uint8(250))
	assert.Zero(t, hit.G)
	assert.Zero(t, hit.B)
	assert.Equal(t, color.RGBA{A: 255}, frame.RGBAAt(25, 50))
	assert.Equal(t, color.RGBA{A: 255}, frame.RGBAAt(5, 5))
}

func TestBindGroupRejectsAliasedBuffers(t *testing.T) {
	backend := NewSoftwareBackend(nil)
	params, err := backend.CreateBuffer("params", core.SimParamsSize, BufferUsageUniform|BufferUsageCopyDst)
	require.NoError(t, err)
	buf, err := backend.CreateBuffer("particles", 64, particleBufferUsage)
	require.NoError(t, err)

	_, err = backend.CreateBindGroup("bad", params, buf, buf)
	assert.Error(t, err)
}

type recordingTimer struct {
	events []string
}

func (r *recordingTimer) BeginScope(name string) { r.events = append(r.events, "begin "+name) }
func (r *recordingTimer) EndScope(name string)   { r.events = append(r.events, "end "+name) }

func TestTickReportsPhases(t *testing.T) {
	surface := NewSoftwareSurface(16, 16)
	p := newTestPipeline(t, surface, core.MinimalLayout, 8, core.Grid{}, defaultParams(), 64)
	timer := &recordingTimer{}
	p.scheduler.SetTimer(timer)

	require.NoError(t, p.scheduler.Tick())
	phases := []string{"begin record", "end record", "begin submit", "end submit"}
	assert.Equal(t, phases, timer.events)

	// a rejected submission still closes its scope
	surface.Lose()
	require.Error(t, p.scheduler.Tick())
	assert.Equal(t, append(phases, phases...), timer.events)

	p.scheduler.SetTimer(nil)
	surface.Resize(16, 16)
	require.NoError(t, p.scheduler.Tick())
	assert.Len(t, timer.events, 8)
}
