package safety

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type mockMotor struct {
	disabled atomic.Int32
	err      error
}

func (m *mockMotor) DisableMotors() error {
	m.disabled.Add(1)
	return m.err
}

func TestNew(t *testing.T) {
	m := New()
	if m.GetState() != StateRunning {
		t.Errorf("Initial state should be running, got %s", m.GetState())
	}
	if !m.IsOperational() {
		t.Error("Should be operational initially")
	}
	if err := m.CheckOperational(); err != nil {
		t.Errorf("CheckOperational() = %v, want nil", err)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state    State
		expected string
	}{
		{StateRunning, "running"},
		{StateStopped, "stopped"},
		{StateFault, "fault"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.expected {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.expected)
		}
	}
}

func TestEmergencyStop(t *testing.T) {
	m := New()
	motor := &mockMotor{}
	failing := &mockMotor{err: errors.New("CAN timeout")}
	m.RegisterMotor(failing)
	m.RegisterMotor(motor)

	m.EmergencyStop("operator button")

	if m.GetState() != StateStopped {
		t.Errorf("state = %s, want stopped", m.GetState())
	}
	if motor.disabled.Load() != 1 {
		t.Error("motor not disabled after a failing one")
	}
	err := m.CheckOperational()
	if !errors.Is(err, ErrStopped) {
		t.Errorf("CheckOperational() = %v, want ErrStopped", err)
	}
	st := m.GetStatus()
	if st.Reason != string(ReasonEmergencyStop) || st.Message != "operator button" || st.IsOperational {
		t.Errorf("GetStatus() = %+v", st)
	}
	if st.StopTime.IsZero() {
		t.Error("StopTime not recorded")
	}
}

func TestFaultNotDowngraded(t *testing.T) {
	m := New()
	motor := &mockMotor{}
	m.RegisterMotor(motor)

	m.Fault("encoder unplugged")
	m.EmergencyStop("operator button")

	if m.GetState() != StateFault {
		t.Errorf("state = %s, want fault", m.GetState())
	}
	if got := m.GetStatus().Message; got != "encoder unplugged" {
		t.Errorf("message = %q, want the fault message", got)
	}
	if n := motor.disabled.Load(); n != 1 {
		t.Errorf("motors disabled %d times, want 1", n)
	}
}

func TestStopEscalatesToFault(t *testing.T) {
	m := New()
	m.EmergencyStop("button")
	m.Fault("sensor")
	if m.GetState() != StateFault {
		t.Errorf("state = %s, want fault", m.GetState())
	}
}

func TestCallbacks(t *testing.T) {
	m := New()
	var changes [][2]State
	var stops []Reason
	m.OnStateChange(func(from, to State) {
		// Callbacks run without the lock held.
		_ = m.IsOperational()
		changes = append(changes, [2]State{from, to})
	})
	m.OnStop(func(reason Reason, msg string) {
		stops = append(stops, reason)
	})

	m.EmergencyStop("x")
	m.EmergencyStop("again")
	if err := m.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	want := [][2]State{{StateRunning, StateStopped}, {StateStopped, StateRunning}}
	if len(changes) != len(want) {
		t.Fatalf("changes = %v, want %v", changes, want)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d = %v, want %v", i, changes[i], want[i])
		}
	}
	if len(stops) != 1 || stops[0] != ReasonEmergencyStop {
		t.Errorf("stops = %v, want [emergency_stop]", stops)
	}
}

func TestCallbackRegisteredDuringStop(t *testing.T) {
	m := New()
	var late int
	m.OnStop(func(Reason, string) {
		m.OnStop(func(Reason, string) { late++ })
	})

	m.EmergencyStop("first")
	if late != 0 {
		t.Errorf("callback added during a stop ran for that stop")
	}
	if err := m.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	m.Fault("second")
	if late != 1 {
		t.Errorf("late callback ran %d times, want 1", late)
	}
}

func TestReset(t *testing.T) {
	m := New()
	if err := m.Reset(); !errors.Is(err, ErrResetWhileRunning) {
		t.Errorf("Reset() while running = %v, want ErrResetWhileRunning", err)
	}
	m.Fault("x")
	if err := m.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	st := m.GetStatus()
	if !st.IsOperational || st.Reason != "" || st.Message != "" || !st.StopTime.IsZero() {
		t.Errorf("GetStatus() after reset = %+v", st)
	}
}

func TestWatchdogHeartbeat(t *testing.T) {
	m := New()
	m.Configure(Config{WatchdogTimeout: 100 * time.Millisecond, WatchdogPoll: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartWatchdog(ctx)
	defer m.StopWatchdog()

	for i := 0; i < 20; i++ {
		m.Heartbeat()
		time.Sleep(5 * time.Millisecond)
	}
	if !m.IsOperational() {
		t.Errorf("watchdog tripped while fed: %+v", m.GetStatus())
	}
}

func TestWatchdogTrips(t *testing.T) {
	m := New()
	motor := &mockMotor{}
	m.RegisterMotor(motor)
	m.Configure(Config{WatchdogTimeout: 20 * time.Millisecond, WatchdogPoll: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartWatchdog(ctx)
	defer m.StopWatchdog()

	deadline := time.Now().Add(2 * time.Second)
	for motor.disabled.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("watchdog never tripped")
		}
		time.Sleep(5 * time.Millisecond)
	}
	st := m.GetStatus()
	if st.State != "fault" || st.Reason != string(ReasonWatchdogTimeout) {
		t.Errorf("GetStatus() = %+v", st)
	}
}

func TestStopWatchdogIdempotent(t *testing.T) {
	m := New()
	m.StopWatchdog()
	m.StartWatchdog(context.Background())
	m.StartWatchdog(context.Background())
	m.StopWatchdog()
	m.StopWatchdog()
}
