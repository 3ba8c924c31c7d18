package telemetry

import (
	"math"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/metrics"
)

// MetricsSink mirrors frames into gauges and counters.
type MetricsSink struct {
	height     *metrics.Gauge
	target     *metrics.Gauge
	homed      *metrics.Gauge
	current    *metrics.Gauge
	command    *metrics.Gauge
	refVel     *metrics.Gauge
	atSetpoint *metrics.Gauge
	actions    *metrics.Counter
	stops      *metrics.Counter
	trackErr   *metrics.Histogram
}

// NewMetricsSink registers the elevator metrics in reg.
func NewMetricsSink(reg *metrics.Registry) (*MetricsSink, error) {
	s := &MetricsSink{
		height:     metrics.NewGauge("elevator_height_inches", "Measured carriage height."),
		target:     metrics.NewGauge("elevator_target_inches", "Current goal height."),
		homed:      metrics.NewGauge("elevator_homed", "1 once the bottom switch has established the reference."),
		current:    metrics.NewGauge("elevator_output_current_amps", "Primary motor output current."),
		command:    metrics.NewGauge("elevator_command", "Motor power command in [-1, 1]."),
		refVel:     metrics.NewGauge("elevator_reference_velocity", "Profiled reference velocity in inches/s."),
		atSetpoint: metrics.NewGauge("elevator_at_setpoint", "1 while the position loop is settled."),
		actions:    metrics.NewCounter("elevator_ticks_total", "Control ticks by action."),
		stops:      metrics.NewCounter("elevator_stops_total", "Stop ticks by reason."),
		trackErr: metrics.NewHistogram("elevator_tracking_error_inches",
			"Distance between the profile reference and the measured height while tracking.",
			metrics.LinearBuckets(0.25, 0.25, 8)),
	}
	for _, m := range []metrics.Metric{
		s.height, s.target, s.homed, s.current, s.command, s.refVel, s.atSetpoint, s.actions, s.stops, s.trackErr,
	} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *MetricsSink) Publish(f Frame) error {
	s.height.Set(nil, f.Height)
	s.target.Set(nil, f.Target)
	s.homed.SetBool(nil, f.Homed)
	s.current.Set(nil, f.OutputCurrent)
	s.command.Set(nil, f.Command)
	s.refVel.Set(nil, f.ReferenceVelocity)
	s.atSetpoint.SetBool(nil, f.AtSetpoint)
	s.actions.Inc(metrics.Labels{"action": f.Action})
	if f.Action == "stop" || f.Action == "home" {
		s.stops.Inc(metrics.Labels{"reason": f.Reason})
	}
	if f.Action == "track" {
		s.trackErr.Observe(nil, math.Abs(f.ReferencePosition-f.Height))
	}
	return nil
}
