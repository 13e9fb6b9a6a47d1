package main

import (
	"context"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	gpuparticles "github.com/gekko3d/gpuparticles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunHeadlessWritesFrame(t *testing.T) {
	cfg := gpuparticles.DefaultConfig()
	cfg.Simulation.Particles = 500
	cfg.Simulation.TickRate = 0
	cfg.Window.Width, cfg.Window.Height = 160, 90
	path := filepath.Join(t.TempDir(), "frame.png")

	require.NoError(t, runHeadless(context.Background(), cfg, gpuparticles.NewNopLogger(), 5, path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 160, img.Bounds().Dx())
	assert.Equal(t, 90, img.Bounds().Dy())
}

func TestLoadConfigWithoutFile(t *testing.T) {
	cfg, err := loadConfig(options{})
	require.NoError(t, err)
	assert.Equal(t, gpuparticles.DefaultConfig(), cfg)
}

func TestLoadConfigDemoSpeedClamp(t *testing.T) {
	cfg, err := loadConfig(options{maxSpeed: 0.02})
	require.NoError(t, err)
	assert.Equal(t, float32(0.02), cfg.Simulation.MaxSpeed)
	assert.Zero(t, gpuparticles.DefaultConfig().Simulation.MaxSpeed)

	path := filepath.Join(t.TempDir(), "particles.yaml")
	require.NoError(t, os.WriteFile(path, []byte("simulation:\n  particles: 5\n"), 0o644))
	cfg, err = loadConfig(options{configPath: path, maxSpeed: 0.02})
	require.NoError(t, err)
	assert.Zero(t, cfg.Simulation.MaxSpeed, "a config file owns the clamp unless -max-speed is set")
}
