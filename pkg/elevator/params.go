// Elevator tuning parameters
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package elevator

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/multierr"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/control"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/profile"
)

// Params is the complete tuning of one elevator. It is fixed for the
// lifetime of a Controller.
type Params struct {
	Constraints profile.Constraints
	Gains       control.Gains
	Feedforward control.Feedforward

	// Travel range goals are clamped to, in inches.
	MinPosition float64
	MaxPosition float64
	// BottomPosition is the height assigned when the bottom switch is pressed.
	BottomPosition float64

	// RotationsPerInch converts encoder rotations to carriage inches.
	RotationsPerInch float64

	MaxOutput       float64
	HomingPower     float64
	SettleTolerance float64
	Period          time.Duration

	Levels []Level
}

// DefaultParams returns a tuning that works with the simulated carriage.
func DefaultParams() Params {
	return Params{
		Constraints:      profile.Constraints{MaxVelocity: 40, MaxAcceleration: 80},
		Gains:            control.Gains{P: 0.1},
		Feedforward:      control.Feedforward{Static: 0.01, Gravity: 0.05, Velocity: 0.012},
		MinPosition:      0,
		MaxPosition:      56,
		BottomPosition:   0,
		RotationsPerInch: 1.5,
		MaxOutput:        0.8,
		HomingPower:      0.1,
		SettleTolerance:  0.25,
		Period:           20 * time.Millisecond,
		Levels:           DefaultLevels(),
	}
}

func (p Params) controlConfig() control.Config {
	return control.Config{
		Gains:       p.Gains,
		Feedforward: p.Feedforward,
		MaxOutput:   p.MaxOutput,
		HomingPower: p.HomingPower,
		Tolerance:   p.SettleTolerance,
		Period:      p.Period,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate reports every problem with the parameters at once.
func (p Params) Validate() error {
	var err error
	if cerr := p.Constraints.Validate(); cerr != nil {
		err = multierr.Append(err, cerr)
	}
	err = multierr.Append(err, p.controlConfig().Validate())

	if !finite(p.MinPosition) || !finite(p.MaxPosition) || !(p.MinPosition < p.MaxPosition) {
		err = multierr.Append(err, fmt.Errorf("position range [%v, %v] is empty", p.MinPosition, p.MaxPosition))
	}
	if !(p.BottomPosition >= p.MinPosition && p.BottomPosition <= p.MaxPosition) {
		err = multierr.Append(err, fmt.Errorf("bottom position %v outside [%v, %v]", p.BottomPosition, p.MinPosition, p.MaxPosition))
	}
	if !(p.RotationsPerInch > 0) || !finite(p.RotationsPerInch) {
		err = multierr.Append(err, fmt.Errorf("rotations per inch must be positive, got %v", p.RotationsPerInch))
	}
	if len(p.Levels) == 0 {
		err = multierr.Append(err, fmt.Errorf("no levels configured"))
	}
	if _, lerr := NewLevels(p.Levels); lerr != nil {
		err = multierr.Append(err, lerr)
	}
	for _, l := range p.Levels {
		if !(l.Position >= p.MinPosition && l.Position <= p.MaxPosition) {
			err = multierr.Append(err, fmt.Errorf("level %q at %v outside [%v, %v]", l.Name, l.Position, p.MinPosition, p.MaxPosition))
		}
	}
	return err
}
