// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package motor drives the elevator's redundant motor pair.
package motor

import (
	"math"
	"sync"

	"go.uber.org/multierr"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/errors"
)

// Motor is one motor controller.
type Motor interface {
	// Set applies a duty cycle in [-1, 1].
	Set(power float64) error
	// OutputCurrent returns the supply current in amps.
	OutputCurrent() float64
}

// Group drives a primary motor and a follower mounted mirrored on the
// same gearbox, so the follower always receives the negated command.
type Group struct {
	mu       sync.Mutex
	primary  Motor
	follower Motor
	name     string
	last     float64
	failures uint64
}

// NewGroup pairs primary with an inverted follower. follower may be nil
// for a single-motor carriage.
func NewGroup(name string, primary, follower Motor) *Group {
	return &Group{name: name, primary: primary, follower: follower}
}

// Set clamps power to [-1, 1] and applies it to both motors. Both are
// always written even if the first write fails.
func (g *Group) Set(power float64) error {
	if math.IsNaN(power) {
		power = 0
	}
	power = math.Max(-1, math.Min(1, power))

	g.mu.Lock()
	defer g.mu.Unlock()
	g.last = power
	err := g.primary.Set(power)
	if g.follower != nil {
		err = multierr.Append(err, g.follower.Set(-power))
	}
	if err != nil {
		g.failures++
		return errors.ActuatorFaultError(g.name, err)
	}
	return nil
}

// OutputCurrent reports the primary motor's current.
func (g *Group) OutputCurrent() float64 {
	return g.primary.OutputCurrent()
}

// Last returns the last commanded power after clamping.
func (g *Group) Last() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

// Failures returns the number of failed writes.
func (g *Group) Failures() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.failures
}

// DisableMotors commands zero output.
func (g *Group) DisableMotors() error {
	return g.Set(0)
}
