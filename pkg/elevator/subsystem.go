// Elevator hardware binding
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package elevator

import (
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/errors"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/log"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/telemetry"
)

// Encoder reports the carriage encoder position in rotations.
type Encoder interface {
	Rotations() (float64, error)
}

// Switch is a limit switch; *endstop.Endstop implements it.
type Switch interface {
	Triggered() (bool, error)
}

// Actuator is the motor group; *motor.Group implements it.
type Actuator interface {
	Set(power float64) error
	OutputCurrent() float64
}

// Interlock reports whether motion is allowed; *safety.Manager
// implements it.
type Interlock interface {
	IsOperational() bool
}

// Hardware is the set of collaborators a Subsystem drives. Interlock and
// Sink are optional.
type Hardware struct {
	Encoder   Encoder
	Top       Switch
	Bottom    Switch
	Actuator  Actuator
	Interlock Interlock
	Sink      telemetry.Sink
}

// Subsystem runs the controller against real or simulated hardware.
// Periodic must be called from one goroutine at the tick period.
type Subsystem struct {
	ctrl *Controller
	hw   Hardware
	log  *log.Logger
	now  func() time.Time

	// Last good switch readings, reused when a read fails so a fault does
	// not look like a switch edge.
	top, bottom bool
	faulted     bool

	mu             sync.Mutex
	actuatorErrors uint64
	sensorErrors   uint64
	sinkErrors     uint64
}

// NewSubsystem binds ctrl to hw.
func NewSubsystem(ctrl *Controller, hw Hardware) (*Subsystem, error) {
	switch {
	case ctrl == nil:
		return nil, errors.RuntimeErrorInit("elevator", "nil controller")
	case hw.Encoder == nil:
		return nil, errors.RuntimeErrorInit("elevator", "no encoder")
	case hw.Top == nil || hw.Bottom == nil:
		return nil, errors.RuntimeErrorInit("elevator", "missing limit switch")
	case hw.Actuator == nil:
		return nil, errors.RuntimeErrorInit("elevator", "no actuator")
	}
	return &Subsystem{
		ctrl: ctrl,
		hw:   hw,
		log:  log.GetLogger("elevator"),
		now:  time.Now,
	}, nil
}

// Controller returns the bound controller.
func (s *Subsystem) Controller() *Controller {
	return s.ctrl
}

// Periodic samples the sensors, runs one control tick, writes the
// command and publishes telemetry.
func (s *Subsystem) Periodic() Output {
	in, fault := s.sample()
	out := s.ctrl.Update(in)

	if err := s.hw.Actuator.Set(out.Command); err != nil {
		s.mu.Lock()
		s.actuatorErrors++
		s.mu.Unlock()
		s.log.WithError(err).WithField("command", out.Command).Error("actuator write failed")
	}

	s.publish(out)
	s.reportFault(fault)
	return out
}

func (s *Subsystem) sample() (Inputs, error) {
	var fault error
	raw, err := s.hw.Encoder.Rotations()
	if err != nil {
		raw = s.ctrl.lastRaw()
		fault = multierr.Append(fault, errors.SensorFaultError("encoder", err))
	}
	if top, err := s.hw.Top.Triggered(); err != nil {
		fault = multierr.Append(fault, errors.SensorFaultError("top switch", err))
	} else {
		s.top = top
	}
	if bottom, err := s.hw.Bottom.Triggered(); err != nil {
		fault = multierr.Append(fault, errors.SensorFaultError("bottom switch", err))
	} else {
		s.bottom = bottom
	}
	if fault != nil {
		s.mu.Lock()
		s.sensorErrors++
		s.mu.Unlock()
	}
	return Inputs{
		EncoderRotations: raw,
		TopLimit:         s.top,
		BottomLimit:      s.bottom,
		Fault:            fault != nil,
		Disabled:         s.hw.Interlock != nil && !s.hw.Interlock.IsOperational(),
	}, fault
}

// reportFault logs sensor faults on entry and recovery only.
func (s *Subsystem) reportFault(fault error) {
	switch {
	case fault != nil && !s.faulted:
		s.log.WithError(fault).Error("sensor fault, holding the elevator stopped")
	case fault == nil && s.faulted:
		s.log.Info("sensors recovered")
	}
	s.faulted = fault != nil
}

func (s *Subsystem) publish(out Output) {
	if s.hw.Sink == nil {
		return
	}
	frame := telemetry.Frame{
		Time:              s.now(),
		Height:            out.Height,
		Target:            out.Target,
		Homed:             out.Homed,
		Level:             out.Level,
		OutputCurrent:     s.hw.Actuator.OutputCurrent(),
		Command:           out.Command,
		ReferencePosition: out.Reference.Position,
		ReferenceVelocity: out.Reference.Velocity,
		Action:            out.Action,
		Reason:            out.Reason,
		AtSetpoint:        out.AtSetpoint,
	}
	if err := (telemetry.Multi{s.hw.Sink}).Publish(frame); err != nil {
		s.mu.Lock()
		s.sinkErrors++
		n := s.sinkErrors
		s.mu.Unlock()
		if n == 1 || n%100 == 0 {
			s.log.WithError(err).WithField("count", n).Warn("telemetry publish failed")
		}
	}
}

// Errors reports the actuator, sensor and telemetry failure counts.
type Errors struct {
	Actuator  uint64 `json:"actuator"`
	Sensor    uint64 `json:"sensor"`
	Telemetry uint64 `json:"telemetry"`
}

func (s *Subsystem) Errors() Errors {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Errors{Actuator: s.actuatorErrors, Sensor: s.sensorErrors, Telemetry: s.sinkErrors}
}
