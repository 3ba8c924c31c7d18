package sim

import (
	"errors"
	"math"
	"testing"
	"time"
)

func run(c *Carriage, d time.Duration) {
	const dt = 5 * time.Millisecond
	for t := time.Duration(0); t < d; t += dt {
		c.Step(dt)
	}
}

func TestHoldAgainstGravity(t *testing.T) {
	c := New(DefaultConfig())
	c.Primary().Set(0.05)
	c.Follower().Set(-0.05)
	run(c, time.Second)
	if h := c.Height(); h != 4 {
		t.Errorf("height = %v, want 4 (held by gravity feedforward)", h)
	}
}

func TestFallsUnpowered(t *testing.T) {
	c := New(DefaultConfig())
	run(c, 2*time.Second)
	if h := c.Height(); h != 0 {
		t.Errorf("height = %v, want 0 (resting on the bottom stop)", h)
	}
	if v := c.Velocity(); v != 0 {
		t.Errorf("velocity at stop = %v, want 0", v)
	}
	if pressed, _ := c.BottomPressed(); !pressed {
		t.Error("bottom switch not pressed at the bottom stop")
	}
}

func TestDrivesUpToTopStop(t *testing.T) {
	c := New(DefaultConfig())
	c.Primary().Set(0.5)
	c.Follower().Set(-0.5)
	run(c, 5*time.Second)
	if h := c.Height(); h != 57 {
		t.Errorf("height = %v, want 57", h)
	}
	if pressed, _ := c.TopPressed(); !pressed {
		t.Error("top switch not pressed at the top stop")
	}
	if pressed, _ := c.BottomPressed(); pressed {
		t.Error("bottom switch pressed at the top")
	}
}

func TestTerminalVelocity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHeight = 1e6
	c := New(cfg)
	c.Primary().Set(0.5)
	c.Follower().Set(-0.5)
	run(c, time.Second)
	want := (0.5 - cfg.Static - cfg.Gravity) / cfg.Velocity
	if v := c.Velocity(); math.Abs(v-want) > 0.01*want {
		t.Errorf("velocity = %v, want %v", v, want)
	}
}

func TestFollowerMismatch(t *testing.T) {
	c := New(DefaultConfig())
	// A follower driven the same way as the primary cancels it out.
	c.Primary().Set(0.5)
	c.Follower().Set(0.5)
	run(c, 100*time.Millisecond)
	if c.Height() >= 4 {
		t.Errorf("height = %v, carriage should not rise with fighting motors", c.Height())
	}
}

func TestEncoderOffset(t *testing.T) {
	cfg := DefaultConfig()
	c := New(cfg)
	raw, err := c.Rotations()
	if err != nil {
		t.Fatalf("Rotations() error = %v", err)
	}
	if raw != cfg.EncoderOffset {
		t.Errorf("raw at start = %v, want %v", raw, cfg.EncoderOffset)
	}
	c.Place(10)
	raw, _ = c.Rotations()
	if want := 6*cfg.RotationsPerInch + cfg.EncoderOffset; math.Abs(raw-want) > 1e-9 {
		t.Errorf("raw at 10in = %v, want %v", raw, want)
	}
}

func TestFaultInjection(t *testing.T) {
	c := New(DefaultConfig())
	boom := errors.New("unplugged")

	c.SetEncoderError(boom)
	if _, err := c.Rotations(); !errors.Is(err, boom) {
		t.Errorf("Rotations() error = %v, want %v", err, boom)
	}
	c.SetSwitchError(boom)
	if _, err := c.TopPressed(); !errors.Is(err, boom) {
		t.Errorf("TopPressed() error = %v", err)
	}
	c.Primary().SetError(boom)
	if err := c.Primary().Set(1); !errors.Is(err, boom) {
		t.Errorf("Set() error = %v", err)
	}
	c.SetEncoderError(nil)
	if _, err := c.Rotations(); err != nil {
		t.Errorf("Rotations() after clear = %v", err)
	}
}

func TestOutputCurrent(t *testing.T) {
	c := New(DefaultConfig())
	c.Primary().Set(0.5)
	if got, want := c.Primary().OutputCurrent(), 0.5*105; math.Abs(got-want) > 1e-9 {
		t.Errorf("stall current = %v, want %v", got, want)
	}
	if c.Elapsed() != 0 {
		t.Errorf("Elapsed() = %v before stepping", c.Elapsed())
	}
}
