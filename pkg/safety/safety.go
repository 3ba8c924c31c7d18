// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package safety holds the process-wide stop state of the elevator:
// operator emergency stop, faults, and a watchdog on the control tick.
package safety

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/log"
)

// State is the stop state.
type State int

const (
	// StateRunning allows motion.
	StateRunning State = iota

	// StateStopped is an operator emergency stop.
	StateStopped

	// StateFault is a stop raised by a component or the watchdog.
	StateFault
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	case StateFault:
		return "fault"
	default:
		return "unknown"
	}
}

// Reason describes why motion was stopped.
type Reason string

const (
	ReasonNone            Reason = ""
	ReasonEmergencyStop   Reason = "emergency_stop"
	ReasonWatchdogTimeout Reason = "watchdog_timeout"
	ReasonFault           Reason = "fault"
)

var (
	ErrStopped           = errors.New("safety: elevator is stopped")
	ErrResetWhileRunning = errors.New("safety: cannot reset while running")
)

// MotorDisabler can cut motor output.
type MotorDisabler interface {
	DisableMotors() error
}

// Manager owns the stop state.
type Manager struct {
	mu sync.RWMutex

	state    State
	reason   Reason
	msg      string
	stopTime time.Time

	motors []MotorDisabler
	log    *log.Logger

	watchdogCtx     context.Context
	watchdogCancel  context.CancelFunc
	watchdogTimeout time.Duration
	watchdogPoll    time.Duration
	lastHeartbeat   time.Time
	watchdogMu      sync.Mutex

	onStop        []func(reason Reason, msg string)
	onStateChange []func(oldState, newState State)
}

// New creates a running Manager.
func New() *Manager {
	return &Manager{
		state:           StateRunning,
		log:             log.GetLogger("safety"),
		watchdogTimeout: 500 * time.Millisecond,
		watchdogPoll:    50 * time.Millisecond,
	}
}

// Config holds configuration for the safety manager.
type Config struct {
	WatchdogTimeout time.Duration
	// WatchdogPoll is how often the watchdog checks the heartbeat.
	WatchdogPoll time.Duration
}

// Configure applies non-zero settings.
func (m *Manager) Configure(cfg Config) {
	m.watchdogMu.Lock()
	defer m.watchdogMu.Unlock()
	if cfg.WatchdogTimeout > 0 {
		m.watchdogTimeout = cfg.WatchdogTimeout
	}
	if cfg.WatchdogPoll > 0 {
		m.watchdogPoll = cfg.WatchdogPoll
	}
}

// RegisterMotor registers an output cut on every stop.
func (m *Manager) RegisterMotor(motor MotorDisabler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.motors = append(m.motors, motor)
}

// OnStop registers a callback run after every stop.
func (m *Manager) OnStop(fn func(reason Reason, msg string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStop = append(m.onStop, fn)
}

// OnStateChange registers a callback for state changes.
func (m *Manager) OnStateChange(fn func(oldState, newState State)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStateChange = append(m.onStateChange, fn)
}

func (m *Manager) GetState() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsOperational reports whether motion is allowed.
func (m *Manager) IsOperational() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateRunning
}

// CheckOperational returns ErrStopped with the stop reason when motion is
// not allowed.
func (m *Manager) CheckOperational() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateRunning {
		return fmt.Errorf("%w: %s - %s", ErrStopped, m.reason, m.msg)
	}
	return nil
}

// EmergencyStop stops the elevator at operator request.
func (m *Manager) EmergencyStop(msg string) {
	m.stop(StateStopped, ReasonEmergencyStop, msg)
}

// Fault stops the elevator because a component failed.
func (m *Manager) Fault(msg string) {
	m.stop(StateFault, ReasonFault, msg)
}

func (m *Manager) stop(state State, reason Reason, msg string) {
	m.mu.Lock()
	// A fault is never downgraded to an operator stop.
	if m.state == StateFault || m.state == state {
		m.mu.Unlock()
		return
	}
	old := m.state
	m.state = state
	m.reason = reason
	m.msg = msg
	m.stopTime = time.Now()
	motors := append([]MotorDisabler(nil), m.motors...)
	onStop := append([](func(Reason, string))(nil), m.onStop...)
	onChange := append([](func(State, State))(nil), m.onStateChange...)
	m.mu.Unlock()

	m.log.WithFields(log.Fields{"reason": string(reason), "msg": msg}).Warn("elevator stopped")

	for _, motor := range motors {
		if err := motor.DisableMotors(); err != nil {
			m.log.WithError(err).Error("disable motors failed")
		}
	}
	for _, fn := range onChange {
		fn(old, state)
	}
	for _, fn := range onStop {
		fn(reason, msg)
	}
}

// Reset returns to running from a stop or fault.
func (m *Manager) Reset() error {
	m.mu.Lock()
	if m.state == StateRunning {
		m.mu.Unlock()
		return ErrResetWhileRunning
	}
	old := m.state
	m.state = StateRunning
	m.reason = ReasonNone
	m.msg = ""
	m.stopTime = time.Time{}
	onChange := append([](func(State, State))(nil), m.onStateChange...)
	m.mu.Unlock()

	m.Heartbeat()
	m.log.Info("elevator resumed")
	for _, fn := range onChange {
		fn(old, StateRunning)
	}
	return nil
}

// StartWatchdog faults the manager when Heartbeat is not called within
// the watchdog timeout. The watchdog stops with ctx.
func (m *Manager) StartWatchdog(ctx context.Context) {
	m.watchdogMu.Lock()
	defer m.watchdogMu.Unlock()
	if m.watchdogCancel != nil {
		return
	}
	m.watchdogCtx, m.watchdogCancel = context.WithCancel(ctx)
	m.lastHeartbeat = time.Now()
	go m.watchdogLoop(m.watchdogCtx, m.watchdogPoll)
}

func (m *Manager) StopWatchdog() {
	m.watchdogMu.Lock()
	defer m.watchdogMu.Unlock()
	if m.watchdogCancel != nil {
		m.watchdogCancel()
		m.watchdogCancel = nil
	}
}

// Heartbeat feeds the watchdog. Call it once per control tick.
func (m *Manager) Heartbeat() {
	m.watchdogMu.Lock()
	defer m.watchdogMu.Unlock()
	m.lastHeartbeat = time.Now()
}

func (m *Manager) watchdogLoop(ctx context.Context, poll time.Duration) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.watchdogMu.Lock()
			elapsed := time.Since(m.lastHeartbeat)
			timeout := m.watchdogTimeout
			m.watchdogMu.Unlock()

			if elapsed > timeout && m.IsOperational() {
				m.stop(StateFault, ReasonWatchdogTimeout,
					fmt.Sprintf("no control tick for %v", elapsed.Round(time.Millisecond)))
			}
		}
	}
}

// Status is the stop state for reporting.
type Status struct {
	State         string    `json:"state"`
	Reason        string    `json:"reason,omitempty"`
	Message       string    `json:"message,omitempty"`
	StopTime      time.Time `json:"stop_time,omitempty"`
	IsOperational bool      `json:"is_operational"`
}

func (m *Manager) GetStatus() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		State:         m.state.String(),
		Reason:        string(m.reason),
		Message:       m.msg,
		StopTime:      m.stopTime,
		IsOperational: m.state == StateRunning,
	}
}
