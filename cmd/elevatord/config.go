package main

import (
	"time"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/config"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/elevator"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/endstop"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/sim"
)

// Config is the daemon settings file.
type Config struct {
	Addr             string    `koanf:"addr" yaml:"addr"`
	ControllerConfig string    `koanf:"controller_config" yaml:"controller_config"`
	TelemetryRate    float64   `koanf:"telemetry_rate" yaml:"telemetry_rate"`
	HistorySize      int       `koanf:"history_size" yaml:"history_size"`
	WatchdogTimeout  float64   `koanf:"watchdog_timeout" yaml:"watchdog_timeout"`
	DispatchTimeout  float64   `koanf:"dispatch_timeout" yaml:"dispatch_timeout"`
	Sim              SimConfig `koanf:"sim" yaml:"sim"`
}

// SimConfig places the simulated carriage at power-on.
type SimConfig struct {
	StartHeight   float64 `koanf:"start_height" yaml:"start_height"`
	EncoderOffset float64 `koanf:"encoder_offset" yaml:"encoder_offset"`
}

// DefaultConfig is loaded before the settings file.
func DefaultConfig() Config {
	s := sim.DefaultConfig()
	return Config{
		Addr:            ":8000",
		TelemetryRate:   10,
		HistorySize:     500,
		WatchdogTimeout: 0.5,
		DispatchTimeout: 1,
		Sim: SimConfig{
			StartHeight:   s.StartHeight,
			EncoderOffset: s.EncoderOffset,
		},
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// controllerSetup is everything read from the controller INI file.
type controllerSetup struct {
	params      elevator.Params
	top, bottom endstop.Config
}

// loadController reads the controller file, or returns the built-in
// tuning when path is empty. Unknown sections and options are errors.
func loadController(path string) (controllerSetup, error) {
	if path == "" {
		return controllerSetup{
			params: elevator.DefaultParams(),
			top:    endstop.DefaultConfig("top"),
			bottom: endstop.DefaultConfig("bottom"),
		}, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return controllerSetup{}, err
	}
	var setup controllerSetup
	if setup.params, err = elevator.FromConfig(cfg); err != nil {
		return controllerSetup{}, err
	}
	if setup.top, setup.bottom, err = elevator.SwitchesFromConfig(cfg); err != nil {
		return controllerSetup{}, err
	}
	if err := cfg.CheckUnused(); err != nil {
		return controllerSetup{}, err
	}
	return setup, nil
}

// simConfig sizes the simulated carriage to the controller's travel and
// encoder scale.
func simConfig(c Config, p elevator.Params) sim.Config {
	s := sim.DefaultConfig()
	s.MinHeight = p.BottomPosition
	s.MaxHeight = p.MaxPosition + 1
	s.RotationsPerInch = p.RotationsPerInch
	s.StartHeight = c.Sim.StartHeight
	s.EncoderOffset = c.Sim.EncoderOffset
	return s
}
