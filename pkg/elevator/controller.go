// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package elevator ties the motion profile, the position controller and
// the homing state machine into one control tick, and binds that tick to
// the carriage hardware.
//
// Each tick, in order: sample the encoder, let the homing machine
// arbitrate the limit switches, step the profile toward the goal, then
// either close the loop, seek downward for the bottom switch, or stop.
package elevator

import (
	"math"
	"sync"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/control"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/errors"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/homing"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/log"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/profile"
)

// Inputs are the sensor samples for one tick.
type Inputs struct {
	// EncoderRotations is the raw encoder position.
	EncoderRotations float64
	TopLimit         bool
	BottomLimit      bool
	// Fault is set when a sensor could not be read this tick.
	Fault bool
	// Disabled is set while the safety manager holds the elevator stopped.
	Disabled bool
}

// Output is the result of one tick.
type Output struct {
	// Command is the motor power in [-MaxOutput, MaxOutput].
	Command    float64       `json:"command"`
	Height     float64       `json:"height"`
	Target     float64       `json:"target"`
	Homed      bool          `json:"homed"`
	Level      string        `json:"level,omitempty"`
	Reference  profile.State `json:"reference"`
	Action     string        `json:"action"`
	Reason     string        `json:"reason,omitempty"`
	AtSetpoint bool          `json:"at_setpoint"`
}

// Status is a snapshot of the controller for reporting.
type Status struct {
	Output
	PositionError float64 `json:"position_error"`
	// SecondsToGoal is the remaining profile time, or -1 when unknown.
	SecondsToGoal float64 `json:"seconds_to_goal"`
	Ticks         uint64  `json:"ticks"`
	Homings       int     `json:"homings"`
	Rejected      uint64  `json:"rejected_goals"`
}

// Controller is the per-tick orchestrator. Update must be called from a
// single goroutine; the goal and query methods may be called from any
// goroutine and take effect atomically between ticks.
type Controller struct {
	mu sync.Mutex

	params  Params
	levels  *Levels
	profile *profile.Profile
	pos     *control.PositionController
	homing  *homing.Machine
	log     *log.Logger

	// offset maps raw encoder inches to absolute height; it is rewritten
	// on every bottom-switch anchor instead of resetting the encoder.
	offset float64
	height float64
	raw    float64

	reference profile.State
	goal      profile.State
	target    float64
	level     string

	// resting is set while the carriage sits on the bottom switch with
	// the loop stopped.
	resting bool

	last     Output
	ticks    uint64
	rejected uint64
}

// New validates params and builds a controller in the unhomed state.
func New(params Params) (*Controller, error) {
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigValidation, "invalid elevator parameters")
	}
	levels, err := NewLevels(params.Levels)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigValidation, "invalid levels")
	}
	prof, err := profile.New(params.Constraints, params.Period)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigValidation, "invalid motion constraints")
	}
	pos, err := control.New(params.controlConfig())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigValidation, "invalid position controller")
	}

	bottom := profile.State{Position: params.BottomPosition}
	c := &Controller{
		params:    params,
		levels:    levels,
		profile:   prof,
		pos:       pos,
		homing:    homing.New(),
		log:       log.GetLogger("elevator"),
		reference: bottom,
		goal:      bottom,
		target:    bottom.Position,
		height:    bottom.Position,
	}
	c.homing.OnStateChange(func(from, to homing.State) {
		c.log.WithFields(log.Fields{"from": from.String(), "to": to.String()}).Info("homing state changed")
	})
	c.last = c.outputLocked(0, homing.Decision{Action: homing.ActionSeek, Reason: homing.ReasonUnhomed})
	return c, nil
}

// Params returns the controller's tuning.
func (c *Controller) Params() Params {
	return c.params
}

// Levels returns the level table.
func (c *Controller) Levels() *Levels {
	return c.levels
}

func (c *Controller) direction() homing.Direction {
	switch {
	case c.goal.Position > c.reference.Position:
		return homing.Up
	case c.goal.Position < c.reference.Position:
		return homing.Down
	}
	return homing.Hold
}

// Update runs one control tick.
func (c *Controller) Update(in Inputs) Output {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ticks++
	c.raw = in.EncoderRotations
	height := c.raw/c.params.RotationsPerInch + c.offset

	dec := c.homing.Evaluate(homing.Signals{
		Top:    in.TopLimit,
		Bottom: in.BottomLimit,
		Fault:  in.Fault,
	}, c.direction())

	if dec.Anchor {
		c.offset = c.params.BottomPosition - c.raw/c.params.RotationsPerInch
		height = c.params.BottomPosition
	}
	if in.Disabled && dec.Action != homing.ActionHome {
		dec = homing.Decision{Action: homing.ActionStop, Reason: homing.ReasonOperatorStop, Anchor: dec.Anchor}
	}
	c.height = height
	c.resting = dec.Action == homing.ActionStop && dec.Reason == homing.ReasonBottomRest

	var cmd float64
	switch dec.Action {
	case homing.ActionHome:
		bottom := profile.State{Position: c.params.BottomPosition}
		c.reference, c.goal = bottom, bottom
		c.target = bottom.Position
		c.level = c.levels.At(bottom.Position)
		c.pos.Reset()
		c.reference = c.profile.Next(c.reference, c.goal)
	case homing.ActionStop:
		c.pos.Reset()
		c.reference = profile.State{Position: height}
	case homing.ActionSeek:
		c.reference = c.profile.Next(c.reference, c.goal)
		cmd = c.pos.Compute(height, c.reference, false)
	case homing.ActionTrack:
		c.reference = c.profile.Next(c.reference, c.goal)
		cmd = c.pos.Compute(height, c.reference, true)
		if dec.NoDownward && cmd < 0 {
			cmd = 0
		}
	}
	cmd = math.Max(-c.params.MaxOutput, math.Min(c.params.MaxOutput, cmd))

	c.last = c.outputLocked(cmd, dec)
	return c.last
}

func (c *Controller) outputLocked(cmd float64, dec homing.Decision) Output {
	return Output{
		Command:    cmd,
		Height:     c.height,
		Target:     c.target,
		Homed:      c.homing.IsHomed(),
		Level:      c.level,
		Reference:  c.reference,
		Action:     dec.Action.String(),
		Reason:     string(dec.Reason),
		AtSetpoint: c.pos.AtSetpoint(),
	}
}

// SetGoal requests a move to level. While unhomed only a level at the
// bottom is accepted; anything else is rejected with an UNSAFE_COMMAND
// error and no state change.
func (c *Controller) SetGoal(level Level) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setGoalLocked(level.Position, level.Name)
}

// SetGoalByName looks up a level and requests a move to it.
func (c *Controller) SetGoalByName(name string) error {
	level, err := c.levels.Lookup(name)
	if err != nil {
		return err
	}
	return c.SetGoal(level)
}

// SetPosition requests a move to an arbitrary height in inches, clamped
// to the travel range.
func (c *Controller) SetPosition(inches float64) error {
	if !finite(inches) {
		return errors.UnsafeCommandError(inches, "target is not finite")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.setGoalLocked(inches, c.levels.At(inches))
}

func (c *Controller) setGoalLocked(target float64, level string) error {
	clamped := math.Max(c.params.MinPosition, math.Min(c.params.MaxPosition, target))
	if !c.homing.Permits(clamped, c.params.BottomPosition) {
		c.rejected++
		c.log.WithFields(log.Fields{"target": target, "level": level}).
			Warn("goal rejected: elevator is not homed")
		return errors.UnsafeCommandError(target, "elevator is not homed")
	}
	if clamped != target {
		c.log.WithFields(log.Fields{"target": target, "clamped": clamped}).Debug("goal clamped to travel range")
	}
	c.goal = profile.State{Position: clamped}
	c.target = clamped
	c.level = level
	return nil
}

// Rehome drops the position reference; the carriage seeks down until the
// bottom switch re-homes it.
func (c *Controller) Rehome() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.homing.Unhome()
	c.pos.Reset()
	c.goal = profile.State{Position: c.params.BottomPosition}
	c.target = c.params.BottomPosition
	c.level = c.levels.At(c.params.BottomPosition)
	c.log.Info("re-homing requested")
}

// HeightInches returns the height measured on the last tick.
func (c *Controller) HeightInches() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// IsHomed reports whether an absolute reference has been established.
func (c *Controller) IsHomed() bool {
	return c.homing.IsHomed()
}

// IsAtPosition reports whether the position loop has settled and the
// measured height is within the level's tolerance. A carriage resting on
// the bottom switch counts as settled.
func (c *Controller) IsAtPosition(level Level) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.homing.IsHomed() &&
		(c.pos.AtSetpoint() || c.resting) &&
		math.Abs(c.height-level.Position) < level.Tolerance
}

// IsAtLevel is IsAtPosition by level name.
func (c *Controller) IsAtLevel(name string) (bool, error) {
	level, err := c.levels.Lookup(name)
	if err != nil {
		return false, err
	}
	return c.IsAtPosition(level), nil
}

// lastRaw returns the last encoder sample, used when a read fails.
func (c *Controller) lastRaw() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raw
}

// Status returns a snapshot of the controller.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{
		Output:        c.last,
		PositionError: c.pos.PositionError(),
		SecondsToGoal: -1,
		Ticks:         c.ticks,
		Homings:       c.homing.Homings(),
		Rejected:      c.rejected,
	}
	s.Target = c.target
	s.Level = c.level
	if c.homing.IsHomed() {
		if d := c.profile.TimeToGoal(c.reference, c.goal); d >= 0 {
			s.SecondsToGoal = d.Seconds()
		}
	}
	return s
}
