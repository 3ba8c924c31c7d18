// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package endstop reads limit switches with inversion and sample-count
// debounce.
package endstop

import (
	"errors"
	"sync"
	"time"
)

var ErrNoQuery = errors.New("endstop: no query callback set")

// State represents the debounced state of a switch.
type State int

const (
	StateUnknown State = iota
	StateOpen
	StateTriggered
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateTriggered:
		return "triggered"
	default:
		return "unknown"
	}
}

// Config holds configuration for a switch.
type Config struct {
	Name     string
	Inverted bool
	// Debounce is the number of consecutive identical samples needed to
	// accept a change. Values below 1 accept every sample.
	Debounce int
}

// DefaultConfig returns a non-inverted switch that accepts every sample.
func DefaultConfig(name string) Config {
	return Config{Name: name, Debounce: 1}
}

// Endstop is one limit switch. The first sample is accepted without
// debounce so a switch that is pressed at startup reads pressed on the
// first tick.
type Endstop struct {
	mu sync.RWMutex

	name     string
	inverted bool
	debounce int

	state      State
	run        int
	lastChange time.Time
	triggers   uint64
	errors     uint64

	onTrigger func(name string)
	query     func() (bool, error)
}

// New creates a switch sampled through query.
func New(cfg Config, query func() (bool, error)) *Endstop {
	if cfg.Debounce < 1 {
		cfg.Debounce = 1
	}
	return &Endstop{
		name:     cfg.Name,
		inverted: cfg.Inverted,
		debounce: cfg.Debounce,
		query:    query,
	}
}

// SetQueryCallback replaces the sampling callback.
func (e *Endstop) SetQueryCallback(fn func() (bool, error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.query = fn
}

// SetTriggerCallback sets the callback run when the switch becomes
// triggered. It is called without the switch lock held.
func (e *Endstop) SetTriggerCallback(fn func(name string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrigger = fn
}

// Query samples the switch and returns the debounced state. On a read
// error the previous state is kept and the error returned.
func (e *Endstop) Query() (State, error) {
	e.mu.RLock()
	query := e.query
	e.mu.RUnlock()

	if query == nil {
		return e.GetState(), ErrNoQuery
	}
	raw, err := query()

	e.mu.Lock()
	if err != nil {
		e.errors++
		state := e.state
		e.mu.Unlock()
		return state, err
	}
	if e.inverted {
		raw = !raw
	}
	fired := e.sampleLocked(raw)
	state := e.state
	callback := e.onTrigger
	e.mu.Unlock()

	if fired && callback != nil {
		callback(e.name)
	}
	return state, nil
}

// sampleLocked feeds one sample through the debounce and reports whether
// the switch just became triggered.
func (e *Endstop) sampleLocked(triggered bool) bool {
	next := StateOpen
	if triggered {
		next = StateTriggered
	}
	if e.state == StateUnknown {
		return e.setLocked(next)
	}
	if next == e.state {
		e.run = 0
		return false
	}
	e.run++
	if e.run < e.debounce {
		return false
	}
	e.run = 0
	return e.setLocked(next)
}

func (e *Endstop) setLocked(s State) bool {
	e.state = s
	e.lastChange = time.Now()
	if s == StateTriggered {
		e.triggers++
		return true
	}
	return false
}

// Triggered samples the switch and reports whether it is pressed.
func (e *Endstop) Triggered() (bool, error) {
	s, err := e.Query()
	return s == StateTriggered, err
}

// GetState returns the last debounced state without sampling.
func (e *Endstop) GetState() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// IsTriggered returns the last debounced state without sampling.
func (e *Endstop) IsTriggered() bool {
	return e.GetState() == StateTriggered
}

func (e *Endstop) Name() string {
	return e.name
}

// Status holds switch status information.
type Status struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	Triggered  bool      `json:"triggered"`
	Triggers   uint64    `json:"triggers"`
	ReadErrors uint64    `json:"read_errors"`
	LastChange time.Time `json:"last_change"`
}

// Status returns the current switch status.
func (e *Endstop) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		Name:       e.name,
		State:      e.state.String(),
		Triggered:  e.state == StateTriggered,
		Triggers:   e.triggers,
		ReadErrors: e.errors,
		LastChange: e.lastChange,
	}
}
