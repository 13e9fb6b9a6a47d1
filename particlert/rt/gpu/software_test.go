package gpu

import (
	"errors"
	"image/color"
	"testing"

	"github.com/gekko3d/gpuparticles/particlert/rt/core"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errQueueLost = errors.New("queue lost")

// failingWrites rejects every upload once fail is set.
type failingWrites struct {
	*SoftwareBackend
	fail bool
}

func (b *failingWrites) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	if b.fail {
		return errQueueLost
	}
	return b.SoftwareBackend.WriteBuffer(buf, offset, data)
}

func TestWriteErrorsReachCallers(t *testing.T) {
	backend := &failingWrites{SoftwareBackend: NewSoftwareBackend(nil)}
	store, err := NewParticleStore(backend, core.MinimalLayout, 4, "test")
	require.NoError(t, err)
	stage, err := NewSimulationStage(backend, defaultParams(), 64)
	require.NoError(t, err)

	backend.fail = true
	assert.ErrorIs(t, store.Initialize(core.Grid{}), errQueueLost)
	assert.ErrorIs(t, stage.SetAttractor(mgl32.Vec2{0, 0}, 0.01), errQueueLost)
	assert.ErrorIs(t, stage.ClearAttractor(), errQueueLost)

	_, err = NewSimulationStage(backend, defaultParams(), 64)
	assert.ErrorIs(t, err, errQueueLost)
	_, err = NewPresentationStage(backend, core.NewQuad(0.1))
	assert.ErrorIs(t, err, errQueueLost)
}

func TestSoftwareBackendKeepsOnlyLastDraw(t *testing.T) {
	p := newTestPipeline(t, nil, core.MinimalLayout, 16, core.Grid{}, defaultParams(), 64)
	_, ok := p.backend.LastDraw()
	assert.False(t, ok)

	for i := 0; i < 200; i++ {
		require.NoError(t, p.scheduler.Tick())
	}
	assert.Equal(t, uint64(200), p.backend.Draws)
	assert.Equal(t, uint64(200), p.backend.Submits)
	draw, ok := p.backend.LastDraw()
	require.True(t, ok)
	assert.Same(t, p.scheduler.Current(), draw.Instances)
}

func TestSoftwareRasterRotatesWithVelocity(t *testing.T) {
	surface := NewSoftwareSurface(100, 100)
	start := core.Explicit{{
		Velocity: mgl32.Vec2{1e-4, 1e-4},
		Color:    mgl32.Vec3{1, 0, 0},
	}}
	blue := color.RGBA{B: 255, A: 255}
	p := newRenderPipeline(t, surface, core.RichLayout, 1, start, defaultParams(), 64,
		renderSetup{orient: true, clear: [4]float64{0, 0, 1, 1}, size: 0.4})

	require.NoError(t, p.scheduler.Tick())

	frame := surface.Frame()
	// a 20px square turned 45 degrees reaches ~14px along the axes and
	// only ~7px along the diagonals
	for _, pt := range [][2]int{{62, 50}, {37, 50}, {50, 62}, {50, 37}} {
		hit := frame.RGBAAt(pt[0], pt[1])
		assert.Greater(t, hit.R, uint8(250), "pixel %v", pt)
		assert.Less(t, hit.B, uint8(5), "pixel %v", pt)
	}
	for _, pt := range [][2]int{{58, 58}, {41, 41}, {58, 41}, {41, 58}, {2, 2}} {
		assert.Equal(t, blue, frame.RGBAAt(pt[0], pt[1]), "pixel %v", pt)
	}
}

func TestSoftwareRasterClipsAtFrameEdge(t *testing.T) {
	surface := NewSoftwareSurface(100, 100)
	start := core.Explicit{
		{Position: mgl32.Vec2{0.98, 0}, Velocity: mgl32.Vec2{1e-4, 0}, Color: mgl32.Vec3{0, 1, 0}},
		{Position: mgl32.Vec2{0.98, 0.98}, Velocity: mgl32.Vec2{1e-4, 1e-4}, Color: mgl32.Vec3{0, 1, 0}},
	}
	p := newRenderPipeline(t, surface, core.RichLayout, 2, start, defaultParams(), 64,
		renderSetup{orient: true, clear: [4]float64{0, 0, 1, 1}, size: 0.2})

	require.NoError(t, p.scheduler.Tick())

	frame := surface.Frame()
	assert.Greater(t, frame.RGBAAt(99, 50).G, uint8(250))
	assert.Greater(t, frame.RGBAAt(95, 50).G, uint8(250))
	assert.Greater(t, frame.RGBAAt(99, 0).G, uint8(250))
	assert.Equal(t, color.RGBA{B: 255, A: 255}, frame.RGBAAt(80, 50))
}

func TestClipToRect(t *testing.T) {
	square := []mgl32.Vec2{{-5, -5}, {5, -5}, {5, 5}, {-5, 5}}
	assert.ElementsMatch(t, []mgl32.Vec2{{0, 0}, {5, 0}, {5, 5}, {0, 5}}, clipToRect(square, 10, 10))

	inside := []mgl32.Vec2{{1, 1}, {4, 1}, {4, 4}}
	assert.Equal(t, inside, clipToRect(inside, 10, 10))

	outside := []mgl32.Vec2{{-3, -3}, {-1, -3}, {-1, -1}}
	assert.Empty(t, clipToRect(outside, 10, 10))
}
