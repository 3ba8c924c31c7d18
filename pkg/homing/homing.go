// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package homing tracks whether the elevator has an absolute position
// reference and arbitrates the limit switches each control tick.
//
// The bottom switch is the homing reference: pressing it re-anchors the
// position measurement and stops the carriage. The top switch is a
// travel limit. Both are evaluated on every tick, bottom first, before
// the profile and position controller run.
package homing

import (
	"sync"
)

// State is the homing status.
type State int

const (
	// Unhomed: no absolute position reference; only downward seeking is allowed.
	Unhomed State = iota
	// Homed: the bottom switch has been seen since startup or the last Unhome.
	Homed
)

func (s State) String() string {
	switch s {
	case Unhomed:
		return "unhomed"
	case Homed:
		return "homed"
	default:
		return "unknown"
	}
}

// Signals are the sensor inputs sampled for one tick.
type Signals struct {
	Top    bool
	Bottom bool
	// Fault is set when a limit switch or the encoder could not be read.
	Fault bool
}

// Direction is the motion the controller wants this tick, judged from
// the goal relative to the current reference.
type Direction int

const (
	Hold Direction = iota
	Up
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "hold"
	}
}

// Action tells the orchestrator how to produce this tick's command.
type Action int

const (
	// ActionTrack runs the profile and the closed loop.
	ActionTrack Action = iota
	// ActionSeek runs the profile and emits the fixed homing command.
	ActionSeek
	// ActionHome stops the motor, re-anchors the position reference to the
	// bottom, resets reference and goal to the bottom and clears the PID.
	ActionHome
	// ActionStop outputs zero and clears the PID; homed status is unchanged.
	ActionStop
)

func (a Action) String() string {
	switch a {
	case ActionTrack:
		return "track"
	case ActionSeek:
		return "seek"
	case ActionHome:
		return "home"
	case ActionStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Reason says which rule produced a decision.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonBottomPress  Reason = "bottom_pressed"
	ReasonBottomRest   Reason = "bottom_rest"
	ReasonTopPress     Reason = "top_pressed"
	ReasonTopHeld      Reason = "top_held"
	ReasonSensorFault  Reason = "sensor_fault"
	ReasonUnhomed      Reason = "unhomed"
	ReasonOperatorStop Reason = "operator_stop"
)

// Decision is the outcome of one evaluation.
type Decision struct {
	Action Action
	Reason Reason
	// Anchor asks the orchestrator to pin the measured position to the
	// bottom for this tick.
	Anchor bool
	// NoDownward forbids negative commands this tick.
	NoDownward bool
}

// Machine is the homing state machine. Evaluate is called from the
// control tick; the other methods may be called from any goroutine.
type Machine struct {
	mu         sync.Mutex
	state      State
	prevTop    bool
	prevBottom bool
	homings    int

	onStateChange []func(from, to State)
}

// New returns a machine in the Unhomed state.
func New() *Machine {
	return &Machine{}
}

// OnStateChange registers a callback run after each status transition.
// Callbacks run on the evaluating goroutine and must not call back into
// the machine.
func (m *Machine) OnStateChange(fn func(from, to State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = append(m.onStateChange, fn)
}

// State returns the homing status.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsHomed reports whether an absolute reference has been established.
func (m *Machine) IsHomed() bool {
	return m.State() == Homed
}

// Homings returns how many bottom-switch homing events have occurred.
func (m *Machine) Homings() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.homings
}

// Unhome drops the position reference so the next ticks seek downward
// until the bottom switch is pressed again.
func (m *Machine) Unhome() {
	m.mu.Lock()
	old := m.state
	m.state = Unhomed
	// Re-arm the bottom edge so a carriage already resting on the
	// switch re-homes on the next tick.
	m.prevBottom = false
	cbs := m.onStateChange
	m.mu.Unlock()
	if old != Unhomed {
		for _, fn := range cbs {
			fn(old, Unhomed)
		}
	}
}

// Evaluate applies the switch and status rules for one tick, in priority
// order, and records the switch levels for edge detection.
func (m *Machine) Evaluate(sig Signals, dir Direction) Decision {
	m.mu.Lock()
	risingBottom := sig.Bottom && !m.prevBottom
	risingTop := sig.Top && !m.prevTop
	m.prevBottom = sig.Bottom
	m.prevTop = sig.Top

	var d Decision
	old := m.state
	switch {
	case risingBottom:
		m.state = Homed
		m.homings++
		d = Decision{Action: ActionHome, Reason: ReasonBottomPress, Anchor: true}
	case sig.Bottom:
		// Resting on the reference switch; leave only upward.
		switch {
		case sig.Fault:
			d = Decision{Action: ActionStop, Reason: ReasonSensorFault, Anchor: true}
		case dir != Up:
			d = Decision{Action: ActionStop, Reason: ReasonBottomRest, Anchor: true}
		default:
			d = Decision{Action: ActionTrack, Anchor: true, NoDownward: true}
		}
	case risingTop:
		d = Decision{Action: ActionStop, Reason: ReasonTopPress}
	case sig.Top && m.state == Homed && dir != Down:
		d = Decision{Action: ActionStop, Reason: ReasonTopHeld}
	case sig.Fault:
		d = Decision{Action: ActionStop, Reason: ReasonSensorFault}
	case m.state == Unhomed:
		d = Decision{Action: ActionSeek, Reason: ReasonUnhomed}
	default:
		d = Decision{Action: ActionTrack}
	}
	cur := m.state
	cbs := m.onStateChange
	m.mu.Unlock()

	if cur != old {
		for _, fn := range cbs {
			fn(old, cur)
		}
	}
	return d
}

// Permits reports whether a position request is allowed in the current
// status. While unhomed the only allowed target is the homing limit
// itself, since any other position is relative to an unverified reference.
func (m *Machine) Permits(target, bottom float64) bool {
	if m.IsHomed() {
		return true
	}
	return target <= bottom
}
