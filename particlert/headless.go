package main

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"

	gpuparticles "github.com/gekko3d/gpuparticles"
	"github.com/gekko3d/gpuparticles/particlert/rt/core"
	"github.com/gekko3d/gpuparticles/particlert/rt/gpu"
)

// runHeadless ticks the simulation on the software backend and optionally
// dumps the final frame with a status label.
func runHeadless(ctx context.Context, cfg gpuparticles.Config, logger gpuparticles.Logger, ticks int, pngPath string) error {
	surface := gpu.NewSoftwareSurface(cfg.Window.Width, cfg.Window.Height)
	sim, err := gpuparticles.Configure(gpu.NewSoftwareBackend(surface), cfg, gpuparticles.WithLogger(logger))
	if err != nil {
		return err
	}
	defer sim.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	err = gpuparticles.NewFrameClock(cfg.Simulation.TickRate).Run(ctx, func(t gpuparticles.Time) error {
		if err := sim.Frame(t); err != nil {
			return err
		}
		if sim.TickCount() >= uint64(ticks) {
			cancel()
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	logger.Infof("Ran %d ticks\n%s", sim.TickCount(), sim.Profiler.GetStatsString())

	if pngPath == "" {
		return nil
	}
	label := fmt.Sprintf("tick %d\nparticles %d\n%s", sim.TickCount(), cfg.Simulation.Particles, sim.RunID)
	core.NewTextRenderer().Draw(surface.Frame(), core.TextItem{Text: label, Position: image.Pt(4, 4)})
	f, err := os.Create(pngPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", pngPath, err)
	}
	defer f.Close()
	if err := png.Encode(f, surface.Frame()); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	logger.Infof("Wrote %s", pngPath)
	return nil
}
