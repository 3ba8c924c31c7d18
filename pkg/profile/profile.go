// Trapezoidal motion profile
//
// Each call to Step advances a reference state by one control period
// toward a goal position, accelerating, cruising and braking so that
// the reference never exceeds the velocity limit, never changes
// velocity by more than MaxAcceleration*dt per step, and comes to rest
// exactly on the goal.
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package profile

import (
	"fmt"
	"math"
	"time"
)

// State is a kinematic state: position in inches, velocity in inches/s.
type State struct {
	Position float64 `json:"position"`
	Velocity float64 `json:"velocity"`
}

// Constraints bound the generated motion.
type Constraints struct {
	MaxVelocity     float64 `json:"max_velocity"`
	MaxAcceleration float64 `json:"max_acceleration"`
}

// Validate rejects non-positive or non-finite limits.
func (c Constraints) Validate() error {
	if !(c.MaxVelocity > 0) || math.IsInf(c.MaxVelocity, 0) {
		return fmt.Errorf("max velocity must be positive, got %v", c.MaxVelocity)
	}
	if !(c.MaxAcceleration > 0) || math.IsInf(c.MaxAcceleration, 0) {
		return fmt.Errorf("max acceleration must be positive, got %v", c.MaxAcceleration)
	}
	return nil
}

// Step returns the reference state one period of length dt after prev.
// The goal's velocity is ignored: the profile always finishes at rest.
func Step(c Constraints, prev, goal State, dt time.Duration) State {
	t := dt.Seconds()
	if t <= 0 {
		return prev
	}

	// Work in a frame where the goal lies at positive distance.
	dir := 1.0
	if goal.Position < prev.Position {
		dir = -1.0
	}
	dist := (goal.Position - prev.Position) * dir
	v := prev.Velocity * dir
	a := c.MaxAcceleration
	dv := a * t

	if math.Abs(v) <= dv && dist <= dv*t {
		return State{Position: goal.Position}
	}

	// Largest next velocity from which braking at a, integrated with the
	// same trapezoid rule, still stops within the remaining distance.
	brake := math.Inf(-1)
	if disc := dv*dv + 8*a*dist - 4*dv*v; disc >= 0 {
		brake = (-dv + math.Sqrt(disc)) / 2
	}

	lo := math.Max(v-dv, -c.MaxVelocity)
	hi := math.Min(v+dv, c.MaxVelocity)
	next := math.Min(math.Max(brake, lo), hi)
	if lo > hi {
		// Entered above the velocity limit; shed speed as fast as allowed.
		next = lo
	}

	return State{
		Position: prev.Position + dir*(v+next)/2*t,
		Velocity: dir * next,
	}
}

// Profile binds constraints to a fixed control period.
type Profile struct {
	Constraints Constraints
	Period      time.Duration
}

// New validates the constraints and period.
func New(c Constraints, period time.Duration) (*Profile, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if period <= 0 {
		return nil, fmt.Errorf("period must be positive, got %v", period)
	}
	return &Profile{Constraints: c, Period: period}, nil
}

// Next advances prev by one period toward goal.
func (p *Profile) Next(prev, goal State) State {
	return Step(p.Constraints, prev, goal, p.Period)
}

// maxSteps caps TimeToGoal for pathological inputs.
const maxSteps = 1 << 20

// TimeToGoal returns how long the profile takes to settle on goal from
// prev, or -1 if it does not settle within maxSteps periods.
func (p *Profile) TimeToGoal(prev, goal State) time.Duration {
	s := prev
	for n := 0; n < maxSteps; n++ {
		if s.Position == goal.Position && s.Velocity == 0 {
			return time.Duration(n) * p.Period
		}
		s = p.Next(s, goal)
	}
	return -1
}

// AtGoal reports whether s rests exactly on goal.
func AtGoal(s, goal State) bool {
	return s.Position == goal.Position && s.Velocity == 0
}
