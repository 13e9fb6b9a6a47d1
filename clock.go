package gpuparticles

import (
	"context"
	"time"
)

type Time struct {
	Time  time.Time
	Dt    time.Duration
	Frame uint64
}

// Advance moves the clock to now, recording the elapsed interval.
func (t *Time) Advance(now time.Time) {
	if !t.Time.IsZero() {
		t.Dt = now.Sub(t.Time)
	}
	t.Time = now
	t.Frame++
}

// FrameClock paces simulation ticks independently of presentation. A zero
// period runs frames back to back and leaves pacing to the present call
// (vsync).
type FrameClock struct {
	Period time.Duration
	now    func() time.Time
}

// NewFrameClock returns a clock ticking hz times per second; hz <= 0 is
// display-paced.
func NewFrameClock(hz float64) *FrameClock {
	c := &FrameClock{now: time.Now}
	if hz > 0 {
		c.Period = time.Duration(float64(time.Second) / hz)
	}
	return c
}

func (c *FrameClock) DisplayPaced() bool { return c.Period <= 0 }

// Run calls frame once per period until ctx is done or frame fails.
func (c *FrameClock) Run(ctx context.Context, frame func(t Time) error) error {
	var t Time
	if c.DisplayPaced() {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			t.Advance(c.now())
			if err := frame(t); err != nil {
				return err
			}
		}
	}

	ticker := time.NewTicker(c.Period)
	defer ticker.Stop()
	for {
		t.Advance(c.now())
		if err := frame(t); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
