package app

import (
	"context"
	"errors"

	gpuparticles "github.com/gekko3d/gpuparticles"
	"github.com/gekko3d/gpuparticles/particlert/rt/gpu"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

// ErrWindowClosed stops the frame loop once the user closes the window.
var ErrWindowClosed = errors.New("window closed")

type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Surface  *wgpu.Surface
	Backend  *gpu.WgpuBackend
	Sim      *gpuparticles.Simulation

	Config gpuparticles.Config
	Logger gpuparticles.Logger

	MouseX, MouseY float64
	// attractor sign while a button is held: +1 pulls, -1 pushes, 0 idle
	pull float32
}

func NewApp(window *glfw.Window, cfg gpuparticles.Config, logger gpuparticles.Logger) *App {
	if logger == nil {
		logger = gpuparticles.NewNopLogger()
	}
	return &App{
		Window: window,
		Config: cfg,
		Logger: logger,
	}
}

// Init creates the surface and device for the window and configures the
// simulation on them.
func (a *App) Init() error {
	a.Instance = wgpu.CreateInstance(nil)
	a.Surface = a.Instance.CreateSurface(GetSurfaceDescriptor(a.Window))

	width, height := a.Window.GetFramebufferSize()
	backend, err := gpu.NewWgpuBackend(a.Instance, a.Surface, gpu.WgpuOptions{
		Width:  uint32(width),
		Height: uint32(height),
		VSync:  a.Config.Window.VSync,
	})
	if err != nil {
		return err
	}
	a.Backend = backend

	a.Sim, err = gpuparticles.Configure(backend, a.Config, gpuparticles.WithLogger(a.Logger))
	if err != nil {
		backend.Release()
		return err
	}
	return nil
}

func (a *App) Resize(w, h int) {
	if w > 0 && h > 0 {
		a.Backend.Resize(w, h)
		a.Logger.Debugf("Surface resized to %dx%d", w, h)
	}
}

// CursorToClip maps window coordinates (origin top left, y down) to clip
// space (origin center, y up).
func CursorToClip(x, y float64, width, height int) mgl32.Vec2 {
	if width <= 0 || height <= 0 {
		return mgl32.Vec2{}
	}
	return mgl32.Vec2{
		float32(2*x/float64(width) - 1),
		float32(1 - 2*y/float64(height)),
	}
}

// HandleClick attracts particles to the cursor while the left button is held
// and repels them while the right one is.
func (a *App) HandleClick(button int, action int) {
	switch {
	case action == int(glfw.Release):
		a.pull = 0
		if err := a.Sim.Release(); err != nil {
			a.Logger.Warnf("Release attractor: %v", err)
		}
		return
	case action != int(glfw.Press):
		return
	case button == int(glfw.MouseButtonLeft):
		a.pull = 1
	case button == int(glfw.MouseButtonRight):
		a.pull = -1
	default:
		return
	}
	a.perturb()
}

func (a *App) HandleCursor(x, y float64) {
	a.MouseX, a.MouseY = x, y
	if a.pull != 0 {
		a.perturb()
	}
}

func (a *App) perturb() {
	w, h := a.Window.GetSize()
	target := CursorToClip(a.MouseX, a.MouseY, w, h)
	if err := a.Sim.Perturb(target[0], target[1], a.pull*a.Config.Input.AttractorStrength); err != nil {
		a.Logger.Warnf("Perturb at %v: %v", target, err)
	}
}

// Frame polls window events and advances the simulation by one tick.
func (a *App) Frame(t gpuparticles.Time) error {
	glfw.PollEvents()
	if a.Window.ShouldClose() {
		return ErrWindowClosed
	}
	return a.Sim.Frame(t)
}

// Run drives frames on clock until the window closes or ctx is cancelled.
func (a *App) Run(ctx context.Context, clock *gpuparticles.FrameClock) error {
	err := clock.Run(ctx, a.Frame)
	if errors.Is(err, ErrWindowClosed) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) Release() {
	if a.Sim != nil {
		a.Logger.Infof("Stopped after %d ticks (%d dropped frames)\n%s",
			a.Sim.TickCount(), a.Sim.Failures(), a.Sim.Profiler.GetStatsString())
		a.Sim.Close()
	}
	if a.Surface != nil {
		a.Surface.Release()
	}
	if a.Instance != nil {
		a.Instance.Release()
	}
}

func GetSurfaceDescriptor(w *glfw.Window) *wgpu.SurfaceDescriptor {
	return wgpuglfw.GetSurfaceDescriptor(w)
}
