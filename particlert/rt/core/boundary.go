package core

import (
	"fmt"
	"math"
	"strings"
)

// BoundaryPolicy decides what happens to one axis of a particle that has left
// [-extent, extent]. The numeric values are shared with the compute program.
type BoundaryPolicy uint32

const (
	// BoundaryReflect negates the outward velocity component and keeps the position.
	BoundaryReflect BoundaryPolicy = iota
	// BoundaryWrap remaps the position periodically into the domain.
	BoundaryWrap
	// BoundaryResetToOpposite moves the particle to the opposite bound.
	BoundaryResetToOpposite
)

var boundaryNames = map[BoundaryPolicy]string{
	BoundaryReflect:         "reflect",
	BoundaryWrap:            "wrap",
	BoundaryResetToOpposite: "reset",
}

func (b BoundaryPolicy) String() string {
	if name, ok := boundaryNames[b]; ok {
		return name
	}
	return fmt.Sprintf("BoundaryPolicy(%d)", uint32(b))
}

func (b BoundaryPolicy) Valid() bool {
	_, ok := boundaryNames[b]
	return ok
}

func ParseBoundaryPolicy(s string) (BoundaryPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reflect", "bounce":
		return BoundaryReflect, nil
	case "wrap", "periodic":
		return BoundaryWrap, nil
	case "reset", "reset-to-opposite", "resettoopposite":
		return BoundaryResetToOpposite, nil
	}
	return 0, configErrorf("boundary", "unknown boundary policy %q", s)
}

func (b BoundaryPolicy) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, configErrorf("boundary", "unknown boundary policy %d", uint32(b))
	}
	return []byte(b.String()), nil
}

func (b *BoundaryPolicy) UnmarshalText(text []byte) error {
	p, err := ParseBoundaryPolicy(string(text))
	if err != nil {
		return err
	}
	*b = p
	return nil
}

// Apply is the pure (position, velocity) -> (position, velocity) map for one axis.
func (b BoundaryPolicy) Apply(pos, vel, extent float32) (float32, float32) {
	if pos <= extent && pos >= -extent {
		return pos, vel
	}
	switch b {
	case BoundaryReflect:
		if (pos > extent && vel > 0) || (pos < -extent && vel < 0) {
			vel = -vel
		}
	case BoundaryWrap:
		span := 2 * extent
		pos -= span * float32(math.Floor(float64((pos+extent)/span)))
	case BoundaryResetToOpposite:
		if pos > extent {
			pos = -extent
		} else {
			pos = extent
		}
	}
	return pos, vel
}
