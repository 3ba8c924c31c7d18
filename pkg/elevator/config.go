// Elevator configuration sections
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package elevator

import (
	"strings"

	"go.uber.org/multierr"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/config"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/endstop"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/errors"
)

// Section names read by FromConfig and SwitchesFromConfig.
const (
	SectionElevator     = "elevator"
	SectionPID          = "elevator pid"
	SectionFeedforward  = "elevator feedforward"
	SectionLevelPrefix  = "level "
	SectionTopSwitch    = "endstop top"
	SectionBottomSwitch = "endstop bottom"
)

// FromConfig reads elevator tuning. Missing options keep the value from
// DefaultParams; [level NAME] sections, when present, replace the default
// level table. Every option error is reported, then the result is
// validated.
//
//	[elevator]
//	max_velocity: 40
//	max_acceleration: 80
//	tick_period: 0.02
//
//	[elevator pid]
//	kp: 0.1
//
//	[level l2]
//	position: 16
//	tolerance: 0.5
func FromConfig(cfg *config.Config) (Params, error) {
	p := DefaultParams()
	var err error
	float := func(sec *config.Section, dst *float64, option string, bounds config.FloatBounds) {
		v, ferr := sec.GetFloatWithBounds(option, bounds, *dst)
		if ferr != nil {
			err = multierr.Append(err, ferr)
			return
		}
		*dst = v
	}
	none := config.FloatBounds{}

	sec, serr := cfg.GetSection(SectionElevator)
	if serr != nil {
		return Params{}, serr
	}
	float(sec, &p.Constraints.MaxVelocity, "max_velocity", config.Above(0))
	float(sec, &p.Constraints.MaxAcceleration, "max_acceleration", config.Above(0))
	float(sec, &p.MinPosition, "min_position", none)
	float(sec, &p.MaxPosition, "max_position", none)
	float(sec, &p.BottomPosition, "bottom_position", none)
	float(sec, &p.RotationsPerInch, "rotations_per_inch", config.Above(0))
	float(sec, &p.MaxOutput, "max_output", config.Above(0).And(config.Max(1)))
	float(sec, &p.HomingPower, "homing_power", config.Above(0).And(config.Max(1)))
	float(sec, &p.SettleTolerance, "settle_tolerance", config.Above(0))
	if d, derr := sec.GetDuration("tick_period", p.Period); derr != nil {
		err = multierr.Append(err, derr)
	} else {
		p.Period = d
	}

	if pid := cfg.GetSectionOptional(SectionPID); pid != nil {
		float(pid, &p.Gains.P, "kp", config.Min(0))
		float(pid, &p.Gains.I, "ki", config.Min(0))
		float(pid, &p.Gains.D, "kd", config.Min(0))
	}
	if ff := cfg.GetSectionOptional(SectionFeedforward); ff != nil {
		float(ff, &p.Feedforward.Static, "ks", config.Min(0))
		float(ff, &p.Feedforward.Gravity, "kg", none)
		float(ff, &p.Feedforward.Velocity, "kv", config.Min(0))
	}

	if secs := cfg.GetPrefixSections(SectionLevelPrefix); len(secs) > 0 {
		p.Levels = nil
		for _, ls := range secs {
			l := Level{
				Name:      strings.TrimSpace(strings.TrimPrefix(ls.Name(), SectionLevelPrefix)),
				Tolerance: DefaultTolerance,
			}
			pos, perr := ls.GetFloat("position")
			if perr != nil {
				err = multierr.Append(err, perr)
				continue
			}
			l.Position = pos
			float(ls, &l.Tolerance, "tolerance", config.Above(0))
			p.Levels = append(p.Levels, l)
		}
	}

	if err != nil {
		return Params{}, err
	}
	if verr := p.Validate(); verr != nil {
		return Params{}, errors.Wrap(verr, errors.ErrConfigValidation, "invalid elevator configuration")
	}
	return p, nil
}

// SwitchesFromConfig reads the optional [endstop top] and
// [endstop bottom] sections.
//
//	[endstop bottom]
//	inverted: true
//	debounce: 2
func SwitchesFromConfig(cfg *config.Config) (top, bottom endstop.Config, err error) {
	read := func(section, name string) endstop.Config {
		c := endstop.DefaultConfig(name)
		sec := cfg.GetSectionOptional(section)
		if sec == nil {
			return c
		}
		inv, ierr := sec.GetBool("inverted", c.Inverted)
		err = multierr.Append(err, ierr)
		n, nerr := sec.GetInt("debounce", c.Debounce)
		if nerr == nil && n < 1 {
			nerr = errors.ConfigValidationError(section, "debounce", "must be at least 1")
		}
		err = multierr.Append(err, nerr)
		c.Inverted, c.Debounce = inv, n
		return c
	}
	top = read(SectionTopSwitch, "top")
	bottom = read(SectionBottomSwitch, "bottom")
	return top, bottom, err
}
