package elevator

import (
	stderrors "errors"
	"math"
	"testing"
	"time"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/endstop"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/errors"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/motor"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/safety"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/sim"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/telemetry"
)

type fakeEncoder struct {
	raw float64
	err error
}

func (e *fakeEncoder) Rotations() (float64, error) { return e.raw, e.err }

type fakeSwitch struct {
	on  bool
	err error
}

func (s *fakeSwitch) Triggered() (bool, error) { return s.on, s.err }

type fakeActuator struct {
	last   float64
	writes int
	err    error
}

func (a *fakeActuator) Set(power float64) error {
	a.writes++
	a.last = power
	return a.err
}

func (a *fakeActuator) OutputCurrent() float64 { return math.Abs(a.last) * 40 }

type fakeHW struct {
	enc         *fakeEncoder
	top, bottom *fakeSwitch
	act         *fakeActuator
	hw          Hardware
}

func newFakeHW() *fakeHW {
	f := &fakeHW{enc: &fakeEncoder{}, top: &fakeSwitch{}, bottom: &fakeSwitch{}, act: &fakeActuator{}}
	f.hw = Hardware{Encoder: f.enc, Top: f.top, Bottom: f.bottom, Actuator: f.act}
	return f
}

func newSubsystem(t *testing.T, hw Hardware) *Subsystem {
	t.Helper()
	s, err := NewSubsystem(newController(t), hw)
	if err != nil {
		t.Fatalf("NewSubsystem() error = %v", err)
	}
	return s
}

func TestNewSubsystemRequiresHardware(t *testing.T) {
	c := newController(t)
	full := newFakeHW().hw
	tests := []struct {
		name string
		ctrl *Controller
		hw   func(Hardware) Hardware
	}{
		{"nil controller", nil, func(h Hardware) Hardware { return h }},
		{"no encoder", c, func(h Hardware) Hardware { h.Encoder = nil; return h }},
		{"no top", c, func(h Hardware) Hardware { h.Top = nil; return h }},
		{"no bottom", c, func(h Hardware) Hardware { h.Bottom = nil; return h }},
		{"no actuator", c, func(h Hardware) Hardware { h.Actuator = nil; return h }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSubsystem(tt.ctrl, tt.hw(full))
			if !errors.Is(err, errors.ErrRuntimeInit) {
				t.Errorf("error = %v, want RUNTIME_INIT", err)
			}
		})
	}
}

func TestPeriodicWritesCommand(t *testing.T) {
	f := newFakeHW()
	s := newSubsystem(t, f.hw)
	out := s.Periodic()
	if f.act.writes != 1 || f.act.last != out.Command {
		t.Errorf("actuator writes = %d last = %v, want 1 and %v", f.act.writes, f.act.last, out.Command)
	}
	if out.Command != -0.1 {
		t.Errorf("unhomed command = %v, want -0.1", out.Command)
	}
}

func TestEncoderFaultHoldsLastReading(t *testing.T) {
	f := newFakeHW()
	s := newSubsystem(t, f.hw)
	f.bottom.on = true
	f.enc.raw = 30
	s.Periodic()
	f.bottom.on = false
	f.enc.raw = 30 + 4*rpi
	s.Periodic()

	f.enc.err = stderrors.New("CAN frame lost")
	f.enc.raw = 999
	out := s.Periodic()
	if out.Action != "stop" || out.Reason != "sensor_fault" || out.Command != 0 {
		t.Errorf("fault tick = %+v, want sensor_fault stop", out)
	}
	if math.Abs(out.Height-4) > 1e-9 {
		t.Errorf("height during fault = %v, want last good 4", out.Height)
	}
	if s.Errors().Sensor != 1 {
		t.Errorf("sensor errors = %d, want 1", s.Errors().Sensor)
	}

	f.enc.err = nil
	f.enc.raw = 30 + 4*rpi
	if out := s.Periodic(); out.Action != "track" {
		t.Errorf("after recovery action = %s, want track", out.Action)
	}
}

func TestSwitchFaultIsNotAnEdge(t *testing.T) {
	f := newFakeHW()
	s := newSubsystem(t, f.hw)
	f.bottom.on = true
	s.Periodic()
	s.Periodic()

	f.bottom.err = stderrors.New("bus error")
	f.bottom.on = false
	s.Periodic()
	f.bottom.err = nil
	f.bottom.on = true
	out := s.Periodic()

	if out.Action == "home" {
		t.Error("recovering switch read re-homed the elevator")
	}
	if n := s.Controller().Status().Homings; n != 1 {
		t.Errorf("Homings = %d, want 1", n)
	}
}

func TestActuatorErrorCounted(t *testing.T) {
	f := newFakeHW()
	f.act.err = stderrors.New("motor controller reset")
	s := newSubsystem(t, f.hw)
	s.Periodic()
	s.Periodic()
	if got := s.Errors().Actuator; got != 2 {
		t.Errorf("actuator errors = %d, want 2", got)
	}
}

func TestInterlockDisables(t *testing.T) {
	f := newFakeHW()
	safe := safety.New()
	f.hw.Interlock = safe
	s := newSubsystem(t, f.hw)

	safe.EmergencyStop("test")
	out := s.Periodic()
	if out.Reason != "operator_stop" || f.act.last != 0 {
		t.Errorf("stopped tick = %+v, actuator %v", out, f.act.last)
	}
	safe.Reset()
	if out := s.Periodic(); out.Action != "seek" {
		t.Errorf("after reset action = %s, want seek", out.Action)
	}
}

func TestTelemetryDoesNotAffectControl(t *testing.T) {
	quiet := newFakeHW()
	noisy := newFakeHW()
	noisy.hw.Sink = telemetry.SinkFunc(func(telemetry.Frame) error { panic("dashboard crashed") })
	a := newSubsystem(t, quiet.hw)
	b := newSubsystem(t, noisy.hw)

	for _, f := range []*fakeHW{quiet, noisy} {
		f.bottom.on = true
	}
	a.Periodic()
	b.Periodic()
	a.Controller().SetGoalByName("l2")
	b.Controller().SetGoalByName("l2")

	for i := 0; i < 100; i++ {
		raw := float64(i) * 0.3
		for _, f := range []*fakeHW{quiet, noisy} {
			f.bottom.on = false
			f.enc.raw = raw
		}
		oa, ob := a.Periodic(), b.Periodic()
		if oa != ob {
			t.Fatalf("tick %d: outputs differ\n%+v\n%+v", i, oa, ob)
		}
	}
	if got := b.Errors().Telemetry; got != 101 {
		t.Errorf("telemetry errors = %d, want 101", got)
	}
}

func TestTelemetryFrame(t *testing.T) {
	f := newFakeHW()
	hist := telemetry.NewHistory(4)
	f.hw.Sink = hist
	s := newSubsystem(t, f.hw)
	s.now = func() time.Time { return time.Unix(100, 0) }

	out := s.Periodic()
	frames := hist.Frames()
	if len(frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(frames))
	}
	fr := frames[0]
	if fr.Action != out.Action || fr.Command != out.Command || !fr.Time.Equal(time.Unix(100, 0)) {
		t.Errorf("frame = %+v, output = %+v", fr, out)
	}
	if math.Abs(fr.OutputCurrent-4) > 1e-9 {
		t.Errorf("output current = %v, want 4", fr.OutputCurrent)
	}
}

// rig is a controller closed around the simulated carriage.
type rig struct {
	sub    *Subsystem
	car    *sim.Carriage
	group  *motor.Group
	safe   *safety.Manager
	hist   *telemetry.History
	period time.Duration
}

func newRig(t *testing.T) *rig {
	t.Helper()
	car := sim.New(sim.Config{
		MinHeight:        0,
		MaxHeight:        20,
		StartHeight:      5,
		RotationsPerInch: 1.5,
		EncoderOffset:    3.3,
		Static:           0.01,
		Gravity:          0.05,
		Velocity:         0.08,
		Accel:            0.005,
		SwitchTravel:     0.1,
		StallCurrent:     100,
		Substeps:         10,
	})

	p := DefaultParams()
	p.Constraints.MaxVelocity = 2
	p.Constraints.MaxAcceleration = 4
	p.Gains.P = 0.5
	p.Feedforward.Static = 0.01
	p.Feedforward.Gravity = 0.05
	p.Feedforward.Velocity = 0.08
	p.MaxPosition = 19
	p.SettleTolerance = 0.05
	p.Levels = []Level{
		{Name: "down", Position: 0, Tolerance: 0.5},
		{Name: "mid", Position: 10, Tolerance: 0.5},
	}
	ctrl, err := New(p)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	group := motor.NewGroup("elevator", car.Primary(), car.Follower())
	safe := safety.New()
	safe.RegisterMotor(group)
	hist := telemetry.NewHistory(32)
	sub, err := NewSubsystem(ctrl, Hardware{
		Encoder:   car,
		Top:       endstop.New(endstop.DefaultConfig("top"), car.TopPressed),
		Bottom:    endstop.New(endstop.DefaultConfig("bottom"), car.BottomPressed),
		Actuator:  group,
		Interlock: safe,
		Sink:      hist,
	})
	if err != nil {
		t.Fatalf("NewSubsystem() error = %v", err)
	}
	return &rig{sub: sub, car: car, group: group, safe: safe, hist: hist, period: p.Period}
}

func (r *rig) tick() Output {
	out := r.sub.Periodic()
	r.car.Step(r.period)
	return out
}

// runUntil ticks until done returns true or max ticks pass.
func (r *rig) runUntil(max int, done func(Output) bool) (Output, bool) {
	var out Output
	for i := 0; i < max; i++ {
		out = r.tick()
		if done(out) {
			return out, true
		}
	}
	return out, false
}

func TestSimulatedHomeAndMoveToLevel(t *testing.T) {
	r := newRig(t)
	ctrl := r.sub.Controller()

	if err := ctrl.SetGoalByName("mid"); !errors.Is(err, errors.ErrUnsafeCommand) {
		t.Fatalf("goal before homing error = %v, want UNSAFE_COMMAND", err)
	}
	if _, ok := r.runUntil(500, func(o Output) bool { return o.Homed }); !ok {
		t.Fatalf("never homed; carriage at %v", r.car.Height())
	}
	if h := r.car.Height(); h > 0.1 {
		t.Errorf("homed with the carriage at %v, want on the bottom switch", h)
	}

	if err := ctrl.SetGoalByName("mid"); err != nil {
		t.Fatalf("SetGoalByName(mid) error = %v", err)
	}
	mid, _ := ctrl.Levels().Lookup("mid")
	peak := 0.0
	_, ok := r.runUntil(1500, func(o Output) bool {
		peak = math.Max(peak, r.car.Height())
		if math.Abs(o.Reference.Velocity) > 2+1e-9 {
			t.Fatalf("reference velocity %v exceeds the limit", o.Reference.Velocity)
		}
		return ctrl.IsAtPosition(mid)
	})
	if !ok {
		t.Fatalf("never reached mid; height %v status %+v", r.car.Height(), ctrl.Status())
	}
	if h := r.car.Height(); math.Abs(h-10) > 0.5 {
		t.Errorf("true height = %v, want within 0.5 of 10", h)
	}
	if peak > 10.5 {
		t.Errorf("overshoot to %v", peak)
	}
	if at, _ := ctrl.IsAtLevel("mid"); !at {
		t.Error("IsAtLevel(mid) = false at the level")
	}

	// Back down to rest on the switch.
	ctrl.SetGoalByName("down")
	out, ok := r.runUntil(1500, func(o Output) bool { return o.Reason == "bottom_rest" })
	if !ok {
		t.Fatalf("never came to rest at the bottom; last %+v", out)
	}
	if !ctrl.IsAtPosition(Level{Name: "down", Position: 0, Tolerance: 0.5}) {
		t.Error("not at the down level while resting on the bottom switch")
	}
	if len(r.hist.Frames()) == 0 {
		t.Error("no telemetry recorded")
	}
}

func TestSimulatedEmergencyStop(t *testing.T) {
	r := newRig(t)
	ctrl := r.sub.Controller()
	r.runUntil(500, func(o Output) bool { return o.Homed })
	ctrl.SetGoalByName("mid")
	r.runUntil(100, func(Output) bool { return false })

	r.safe.EmergencyStop("operator")
	if r.group.Last() != 0 {
		t.Errorf("motors not cut on stop: %v", r.group.Last())
	}
	out := r.tick()
	if out.Reason != "operator_stop" || out.Command != 0 {
		t.Errorf("tick after stop = %+v", out)
	}

	r.safe.Reset()
	mid, _ := ctrl.Levels().Lookup("mid")
	if _, ok := r.runUntil(1500, func(Output) bool { return ctrl.IsAtPosition(mid) }); !ok {
		t.Errorf("did not resume to mid; height %v", r.car.Height())
	}
}
