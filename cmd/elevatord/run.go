// Daemon wiring and lifecycle
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/multierr"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/elevator"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/endstop"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/log"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/metrics"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/motor"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/reactor"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/safety"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/server"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/sim"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/telemetry"
)

// daemon is the wired elevator: the simulated carriage, the control
// subsystem ticking on the reactor, the safety manager and the API.
type daemon struct {
	period time.Duration

	car     *sim.Carriage
	group   *motor.Group
	top     *endstop.Endstop
	bottom  *endstop.Endstop
	ctrl    *elevator.Controller
	sub     *elevator.Subsystem
	safe    *safety.Manager
	history *telemetry.History
	hub     *telemetry.Hub
	react   *reactor.Reactor
	srv     *server.Server

	tickTime *metrics.Histogram
}

func newDaemon(c Config) (*daemon, error) {
	setup, err := loadController(c.ControllerConfig)
	if err != nil {
		return nil, err
	}
	ctrl, err := elevator.New(setup.params)
	if err != nil {
		return nil, err
	}

	d := &daemon{
		period:  setup.params.Period,
		ctrl:    ctrl,
		car:     sim.New(simConfig(c, setup.params)),
		safe:    safety.New(),
		history: telemetry.NewHistory(c.HistorySize),
		hub:     telemetry.NewHub(c.TelemetryRate),
		react:   reactor.New(64),
	}
	d.group = motor.NewGroup("elevator", d.car.Primary(), d.car.Follower())
	d.top = endstop.New(setup.top, d.car.TopPressed)
	d.bottom = endstop.New(setup.bottom, d.car.BottomPressed)
	for _, es := range []*endstop.Endstop{d.top, d.bottom} {
		es.SetTriggerCallback(func(name string) {
			logger.WithField("switch", name).Info("limit switch triggered")
		})
	}

	d.safe.Configure(safety.Config{WatchdogTimeout: seconds(c.WatchdogTimeout)})
	d.safe.RegisterMotor(d.group)

	reg := metrics.NewRegistry()
	ms, err := telemetry.NewMetricsSink(reg)
	if err != nil {
		return nil, err
	}
	d.tickTime = metrics.NewHistogram("elevator_tick_seconds", "Wall time spent in one control tick.",
		metrics.ExponentialBuckets(50e-6, 2, 10))
	if err := reg.Register(d.tickTime); err != nil {
		return nil, err
	}

	d.sub, err = elevator.NewSubsystem(ctrl, elevator.Hardware{
		Encoder:   d.car,
		Top:       d.top,
		Bottom:    d.bottom,
		Actuator:  d.group,
		Interlock: d.safe,
		Sink:      telemetry.Multi{ms, d.history, d.hub},
	})
	if err != nil {
		return nil, err
	}

	dispatchTimeout := seconds(c.DispatchTimeout)
	d.srv, err = server.New(server.Config{
		Addr:     c.Addr,
		Elevator: ctrl,
		Safety:   d.safe,
		Dispatch: func(fn func() error) error {
			return d.react.Do(dispatchTimeout, func(float64) error { return fn() })
		},
		Errors:  d.sub.Errors,
		History: d.history,
		Hub:     d.hub,
		Metrics: reg,
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// tick is the control timer: one controller tick, then advance the
// simulated carriage by one period.
func (d *daemon) tick(eventtime float64) float64 {
	start := time.Now()
	d.sub.Periodic()
	d.car.Step(d.period)
	d.safe.Heartbeat()
	d.tickTime.Observe(nil, time.Since(start).Seconds())
	return eventtime + d.period.Seconds()
}

// start begins ticking and arms the watchdog.
func (d *daemon) start(ctx context.Context) {
	d.react.RegisterTimer(d.tick, reactor.NOW)
	d.react.Run()
	d.safe.StartWatchdog(ctx)
}

// stop halts the motors and the control loop.
func (d *daemon) stop(ctx context.Context) error {
	err := d.srv.Stop(ctx)
	d.safe.StopWatchdog()
	d.react.End()
	d.react.Wait()
	err = multierr.Append(err, d.group.DisableMotors())
	d.hub.Close()
	return err
}

func run() error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := newDaemon(c)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	d.start(ctx)

	errc := make(chan error, 1)
	go func() { errc <- d.srv.Start() }()
	logger.WithFields(log.Fields{
		"addr":   c.Addr,
		"period": d.period.String(),
	}).Info("elevatord started; carriage will home on the bottom switch")

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errc:
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	return multierr.Append(err, d.stop(shutdownCtx))
}
