// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package sim models the elevator carriage for the daemon's simulation
// mode and for end-to-end tests: a gravity-loaded carriage with static
// and viscous friction, hard stops at both ends, limit switch contacts
// just inside the stops, and an encoder that starts at an arbitrary
// reading.
package sim

import (
	"math"
	"sync"
	"time"
)

// Config describes the simulated carriage. The motor terms are in units
// of duty cycle, matching a feedforward tuned for the same carriage.
type Config struct {
	// Hard stops in inches.
	MinHeight float64
	MaxHeight float64
	// StartHeight is where the carriage sits at power-on.
	StartHeight float64

	RotationsPerInch float64
	// EncoderOffset is the raw reading at StartHeight.
	EncoderOffset float64

	Static   float64 // duty to overcome stiction
	Gravity  float64 // duty to hold against gravity
	Velocity float64 // duty per in/s
	Accel    float64 // duty per in/s²

	// SwitchTravel is how far inside each hard stop the switch closes.
	SwitchTravel float64
	// StallCurrent is the primary motor current at full duty and no motion.
	StallCurrent float64
	Substeps     int
}

// DefaultConfig matches the default elevator tuning.
func DefaultConfig() Config {
	return Config{
		MinHeight:        0,
		MaxHeight:        57,
		StartHeight:      4,
		RotationsPerInch: 1.5,
		EncoderOffset:    17.25,
		Static:           0.01,
		Gravity:          0.05,
		Velocity:         0.012,
		Accel:            0.002,
		SwitchTravel:     0.1,
		StallCurrent:     105,
		Substeps:         10,
	}
}

// Carriage is the simulated plant.
type Carriage struct {
	mu  sync.Mutex
	cfg Config

	height   float64
	velocity float64
	elapsed  time.Duration

	primary  *Motor
	follower *Motor

	encoderErr error
	switchErr  error
}

// New places the carriage at cfg.StartHeight, at rest.
func New(cfg Config) *Carriage {
	if cfg.Substeps < 1 {
		cfg.Substeps = 1
	}
	c := &Carriage{
		cfg:    cfg,
		height: math.Max(cfg.MinHeight, math.Min(cfg.MaxHeight, cfg.StartHeight)),
	}
	c.primary = &Motor{c: c}
	c.follower = &Motor{c: c}
	return c
}

// Motor is one simulated motor controller. The carriage is driven by
// the mean of the primary and the negated follower.
type Motor struct {
	c     *Carriage
	power float64
	err   error
}

func (m *Motor) Set(power float64) error {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.power = math.Max(-1, math.Min(1, power))
	return nil
}

func (m *Motor) OutputCurrent() float64 {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	back := m.c.velocity * m.c.cfg.Velocity
	if m == m.c.follower {
		back = -back
	}
	return math.Abs(m.power-back) * m.c.cfg.StallCurrent
}

// SetError makes subsequent writes fail with err; nil clears it.
func (m *Motor) SetError(err error) {
	m.c.mu.Lock()
	m.err = err
	m.c.mu.Unlock()
}

func (c *Carriage) Primary() *Motor  { return c.primary }
func (c *Carriage) Follower() *Motor { return c.follower }

// Step advances the plant by dt.
func (c *Carriage) Step(dt time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := dt.Seconds() / float64(c.cfg.Substeps)
	p := (c.primary.power - c.follower.power) / 2
	for i := 0; i < c.cfg.Substeps; i++ {
		c.substep(p, h)
	}
	c.elapsed += dt
}

func (c *Carriage) substep(p, h float64) {
	cfg := c.cfg
	if c.velocity == 0 && math.Abs(p-cfg.Gravity) <= cfg.Static {
		return
	}
	friction := cfg.Static * sign(c.velocity)
	if c.velocity == 0 {
		friction = cfg.Static * sign(p-cfg.Gravity)
	}
	a := (p - friction - cfg.Gravity - cfg.Velocity*c.velocity) / cfg.Accel
	v := c.velocity + a*h
	if c.velocity != 0 && sign(v) != sign(c.velocity) {
		v = 0
	}
	c.velocity = v
	c.height += v * h

	switch {
	case c.height <= cfg.MinHeight:
		c.height = cfg.MinHeight
		if c.velocity < 0 {
			c.velocity = 0
		}
	case c.height >= cfg.MaxHeight:
		c.height = cfg.MaxHeight
		if c.velocity > 0 {
			c.velocity = 0
		}
	}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// Rotations reads the encoder.
func (c *Carriage) Rotations() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encoderErr != nil {
		return 0, c.encoderErr
	}
	return (c.height-c.cfg.StartHeight)*c.cfg.RotationsPerInch + c.cfg.EncoderOffset, nil
}

// BottomPressed is the bottom switch query callback.
func (c *Carriage) BottomPressed() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.switchErr != nil {
		return false, c.switchErr
	}
	return c.height <= c.cfg.MinHeight+c.cfg.SwitchTravel, nil
}

// TopPressed is the top switch query callback.
func (c *Carriage) TopPressed() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.switchErr != nil {
		return false, c.switchErr
	}
	return c.height >= c.cfg.MaxHeight-c.cfg.SwitchTravel, nil
}

// SetEncoderError makes encoder reads fail with err; nil clears it.
func (c *Carriage) SetEncoderError(err error) {
	c.mu.Lock()
	c.encoderErr = err
	c.mu.Unlock()
}

// SetSwitchError makes switch reads fail with err; nil clears it.
func (c *Carriage) SetSwitchError(err error) {
	c.mu.Lock()
	c.switchErr = err
	c.mu.Unlock()
}

// Height returns the true carriage height.
func (c *Carriage) Height() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

func (c *Carriage) Velocity() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.velocity
}

// Elapsed returns the simulated time.
func (c *Carriage) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// Place moves the carriage to height at rest, for tests.
func (c *Carriage) Place(height float64) {
	c.mu.Lock()
	c.height = math.Max(c.cfg.MinHeight, math.Min(c.cfg.MaxHeight, height))
	c.velocity = 0
	c.mu.Unlock()
}
