package gpuparticles

import (
	"github.com/gekko3d/gpuparticles/particlert/rt/core"
	"github.com/gekko3d/gpuparticles/particlert/rt/gpu"
)

var (
	ErrDeviceUnavailable = gpu.ErrDeviceUnavailable
	ErrSubmission        = gpu.ErrSubmission
)

// ConfigurationError is returned for anything rejected at configure time.
type ConfigurationError = core.ConfigurationError
