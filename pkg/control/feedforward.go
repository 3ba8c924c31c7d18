// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package control

import "math"

// Feedforward is the open-loop model of the carriage: static friction,
// gravity and a velocity term, all in output units (fraction of full power).
type Feedforward struct {
	Static   float64 `json:"ks"`
	Gravity  float64 `json:"kg"`
	Velocity float64 `json:"kv"`
}

// Calculate returns the open-loop command for holding or moving at velocity.
// Gravity applies even at rest; static friction only while moving.
func (f Feedforward) Calculate(velocity float64) float64 {
	return f.Static*sign(velocity) + f.Gravity + f.Velocity*velocity
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

func clamp(x, limit float64) float64 {
	return math.Max(-limit, math.Min(limit, x))
}
