// Position control for the elevator carriage
//
// PositionController turns a profiled reference state into a motor
// command: PID on the position error plus a feedforward term for the
// reference velocity, bounded to the configured output limit. Before
// the carriage is homed it ignores the reference and returns a slow
// downward seek command instead.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package control

import (
	"fmt"
	"math"
	"time"

	"go.einride.tech/pid"
	"go.uber.org/multierr"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/profile"
)

// Gains are the PID gains in output units per inch (P), per inch-second
// (I) and per inch/s (D).
type Gains struct {
	P float64 `json:"kp"`
	I float64 `json:"ki"`
	D float64 `json:"kd"`
}

// Config configures a PositionController.
type Config struct {
	Gains       Gains
	Feedforward Feedforward

	// MaxOutput bounds the command magnitude, in (0, 1].
	MaxOutput float64
	// HomingPower is the magnitude of the downward command used while unhomed.
	HomingPower float64
	// Tolerance is the position error below which the loop counts as settled.
	Tolerance float64
	// Period is the control tick.
	Period time.Duration
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var err error
	if !(c.MaxOutput > 0 && c.MaxOutput <= 1) {
		err = multierr.Append(err, fmt.Errorf("max output must be in (0, 1], got %v", c.MaxOutput))
	}
	if !(c.HomingPower > 0) || c.HomingPower > c.MaxOutput {
		err = multierr.Append(err, fmt.Errorf("homing power must be in (0, max output], got %v", c.HomingPower))
	}
	if !(c.Tolerance > 0) {
		err = multierr.Append(err, fmt.Errorf("settle tolerance must be positive, got %v", c.Tolerance))
	}
	if c.Period <= 0 {
		err = multierr.Append(err, fmt.Errorf("period must be positive, got %v", c.Period))
	}
	terms := []struct {
		name string
		v    float64
	}{
		{"kp", c.Gains.P}, {"ki", c.Gains.I}, {"kd", c.Gains.D},
		{"ks", c.Feedforward.Static}, {"kg", c.Feedforward.Gravity}, {"kv", c.Feedforward.Velocity},
	}
	for _, t := range terms {
		if math.IsNaN(t.v) || math.IsInf(t.v, 0) {
			err = multierr.Append(err, fmt.Errorf("%s must be finite, got %v", t.name, t.v))
		}
	}
	return err
}

// PositionController is not safe for concurrent use; the elevator
// controller serializes access.
type PositionController struct {
	cfg      Config
	pid      pid.Controller
	measured bool
}

// New creates a controller from a validated config.
func New(cfg Config) (*PositionController, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &PositionController{
		cfg: cfg,
		pid: pid.Controller{
			Config: pid.ControllerConfig{
				ProportionalGain: cfg.Gains.P,
				IntegralGain:     cfg.Gains.I,
				DerivativeGain:   cfg.Gains.D,
			},
		},
	}, nil
}

// Compute returns the motor command for one tick.
func (c *PositionController) Compute(measured float64, ref profile.State, homed bool) float64 {
	if !homed {
		return -c.cfg.HomingPower
	}

	c.pid.Update(pid.ControllerInput{
		ReferenceSignal:  ref.Position,
		ActualSignal:     measured,
		SamplingInterval: c.cfg.Period,
	})
	c.measured = true
	c.limitIntegral()

	out := c.pid.State.ControlSignal + c.cfg.Feedforward.Calculate(ref.Velocity)
	return clamp(out, c.cfg.MaxOutput)
}

// limitIntegral keeps the integral contribution within the output limit.
func (c *PositionController) limitIntegral() {
	ki := c.cfg.Gains.I
	if ki == 0 {
		return
	}
	max := c.cfg.MaxOutput / math.Abs(ki)
	integ := c.pid.State.ControlErrorIntegral
	if bounded := math.Max(-max, math.Min(max, integ)); bounded != integ {
		c.pid.State.ControlErrorIntegral = bounded
		c.pid.State.ControlSignal -= ki * (integ - bounded)
	}
}

// Reset clears the integrator and derivative memory.
func (c *PositionController) Reset() {
	c.pid.Reset()
	c.measured = false
}

// AtSetpoint reports whether the last computed error is within tolerance.
func (c *PositionController) AtSetpoint() bool {
	return c.measured && math.Abs(c.pid.State.ControlError) < c.cfg.Tolerance
}

// PositionError returns the last computed reference minus measured position.
func (c *PositionController) PositionError() float64 {
	return c.pid.State.ControlError
}

// Config returns the controller's configuration.
func (c *PositionController) Config() Config {
	return c.cfg
}
