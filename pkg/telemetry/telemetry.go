// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package telemetry carries per-tick elevator state to inspection sinks:
// metrics gauges, websocket dashboards and an in-memory history.
// Sinks never feed back into control.
package telemetry

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/multierr"
)

// Frame is the state published after each control tick.
type Frame struct {
	Time              time.Time `json:"time"`
	Height            float64   `json:"height"`
	Target            float64   `json:"target"`
	Homed             bool      `json:"homed"`
	Level             string    `json:"level,omitempty"`
	OutputCurrent     float64   `json:"output_current"`
	Command           float64   `json:"command"`
	ReferencePosition float64   `json:"reference_position"`
	ReferenceVelocity float64   `json:"reference_velocity"`
	Action            string    `json:"action"`
	Reason            string    `json:"reason,omitempty"`
	AtSetpoint        bool      `json:"at_setpoint"`
}

// Sink receives frames.
type Sink interface {
	Publish(Frame) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Frame) error

func (f SinkFunc) Publish(fr Frame) error { return f(fr) }

// Multi publishes to every sink, combining their errors. A panicking
// sink is reported as an error and does not stop the others.
type Multi []Sink

func (m Multi) Publish(fr Frame) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, safePublish(s, fr))
	}
	return err
}

func safePublish(s Sink, fr Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("telemetry sink panic: %v", r)
		}
	}()
	return s.Publish(fr)
}

// History keeps the most recent frames.
type History struct {
	mu     sync.Mutex
	frames []Frame
	next   int
	full   bool
}

// NewHistory keeps up to size frames.
func NewHistory(size int) *History {
	if size < 1 {
		size = 1
	}
	return &History{frames: make([]Frame, size)}
}

func (h *History) Publish(fr Frame) error {
	h.mu.Lock()
	h.frames[h.next] = fr
	h.next = (h.next + 1) % len(h.frames)
	if h.next == 0 {
		h.full = true
	}
	h.mu.Unlock()
	return nil
}

// Frames returns the retained frames, oldest first.
func (h *History) Frames() []Frame {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.full {
		return append([]Frame(nil), h.frames[:h.next]...)
	}
	out := make([]Frame, 0, len(h.frames))
	out = append(out, h.frames[h.next:]...)
	return append(out, h.frames[:h.next]...)
}

// Last returns up to n most recent frames, oldest first.
func (h *History) Last(n int) []Frame {
	all := h.Frames()
	if n >= 0 && n < len(all) {
		all = all[len(all)-n:]
	}
	return all
}
