package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"

	gpuparticles "github.com/gekko3d/gpuparticles"
	"github.com/gekko3d/gpuparticles/particlert/rt/app"
	"github.com/gekko3d/gpuparticles/particlert/rt/core"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	runtime.LockOSThread()
}

type options struct {
	configPath string
	headless   bool
	ticks      int
	pngPath    string

	particles int
	layout    string
	boundX    core.BoundaryPolicy
	boundY    core.BoundaryPolicy
	rate      float64
	maxSpeed  float64
	vsync     bool
	debug     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "YAML config file")
	flag.BoolVar(&opts.headless, "headless", false, "Run on the software backend without a window")
	flag.IntVar(&opts.ticks, "ticks", 600, "Ticks to run in headless mode")
	flag.StringVar(&opts.pngPath, "png", "", "Write the last headless frame to this PNG file")
	flag.IntVar(&opts.particles, "particles", 0, "Particle count")
	flag.StringVar(&opts.layout, "layout", "", "Particle layout: rich or minimal")
	flag.TextVar(&opts.boundX, "boundary-x", core.BoundaryReflect, "Horizontal boundary: reflect, wrap or reset")
	flag.TextVar(&opts.boundY, "boundary-y", core.BoundaryReflect, "Vertical boundary: reflect, wrap or reset")
	flag.Float64Var(&opts.rate, "rate", 60, "Ticks per second, 0 to follow the display")
	flag.Float64Var(&opts.maxSpeed, "max-speed", 0.02, "Velocity clamp without a config file, 0 disables it")
	flag.BoolVar(&opts.vsync, "vsync", false, "Wait for vertical sync on present")
	flag.BoolVar(&opts.debug, "debug", false, "Enable debug logging and periodic stats")
	flag.Parse()

	cfg, err := loadConfig(opts)
	if err != nil {
		panic(err)
	}
	logger := gpuparticles.NewDefaultLogger("particlert", cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if opts.headless {
		if err := runHeadless(ctx, cfg, logger, opts.ticks, opts.pngPath); err != nil {
			panic(err)
		}
		return
	}

	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	window, err := glfw.CreateWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title, nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	application := app.NewApp(window, cfg, logger)
	if err := application.Init(); err != nil {
		panic(err)
	}
	defer application.Release()

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		application.Resize(width, height)
	})
	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		application.HandleCursor(xpos, ypos)
	})
	window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		application.HandleClick(int(button), int(action))
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if action != glfw.Press {
			return
		}
		switch key {
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		case glfw.KeyF1:
			logger.SetDebug(!logger.DebugEnabled())
			logger.Infof("Debug logging %v", logger.DebugEnabled())
		}
	})

	if err := application.Run(ctx, gpuparticles.NewFrameClock(cfg.Simulation.TickRate)); err != nil {
		logger.Errorf("Run: %v", err)
	}
}

// loadConfig reads the config file if one is given, then applies flags the
// user set explicitly on top of it. Without a file the demo velocity clamp
// from -max-speed applies.
func loadConfig(opts options) (gpuparticles.Config, error) {
	cfg := gpuparticles.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = gpuparticles.LoadConfig(opts.configPath); err != nil {
			return cfg, err
		}
	} else {
		cfg.Simulation.MaxSpeed = float32(opts.maxSpeed)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "particles":
			cfg.Simulation.Particles = opts.particles
		case "layout":
			cfg.Simulation.Layout = opts.layout
		case "boundary-x":
			cfg.Simulation.BoundaryX = opts.boundX
		case "boundary-y":
			cfg.Simulation.BoundaryY = opts.boundY
		case "rate":
			cfg.Simulation.TickRate = opts.rate
		case "max-speed":
			cfg.Simulation.MaxSpeed = float32(opts.maxSpeed)
		case "vsync":
			cfg.Window.VSync = opts.vsync
		case "debug":
			cfg.Debug = opts.debug
		}
	})
	return cfg, cfg.Validate()
}
