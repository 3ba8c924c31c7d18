// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// elevatord runs the elevator position controller against the simulated
// carriage and exposes it over HTTP.
//
// Usage:
//
//	elevatord <command>
//
// Commands are run, mkconf, conf, version and help. Daemon settings come
// from elevatord.yml in the working directory; controller tuning comes
// from the INI file named by controller_config.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	yml "gopkg.in/yaml.v2"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/log"
)

var (
	// Version is the version number. Typically injected via ldflags.
	Version = "0.3.0"

	// ConfigFileName is the daemon settings file.
	ConfigFileName = "elevatord.yml"
	k              = koanf.New(".")
	logger         = log.GetLogger("elevatord")
)

func setupconfig() error {
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return err
	}
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		if !strings.Contains(err.Error(), "no such") { // missing file keeps the defaults
			return fmt.Errorf("error loading %s: %w", ConfigFileName, err)
		}
	}
	return nil
}

func loadConfig() (Config, error) {
	c := Config{}
	if err := k.Unmarshal("", &c); err != nil {
		return c, err
	}
	return c, nil
}

func root() {
	str := `elevatord drives a single-axis elevator to named levels with a trapezoidal
motion profile and PID + feedforward, homing against the bottom limit switch.

Usage:
	elevatord <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `elevatord is configured by elevatord.yml in the working directory.
Run "elevatord mkconf" to write one holding the defaults.

Settings:
	addr               HTTP listen address
	controller_config  INI file with [elevator], [elevator pid],
	                   [elevator feedforward], [level NAME] and
	                   [endstop top|bottom] sections; empty uses the
	                   built-in tuning
	telemetry_rate     websocket frames per second, 0 for every tick
	history_size       telemetry frames kept for GET /elevator/history
	watchdog_timeout   seconds without a control tick before faulting
	dispatch_timeout   seconds an API command waits for the control loop
	sim                start_height and encoder_offset of the carriage

Logging is set with ELEVATOR_LOG_LEVEL, ELEVATOR_LOG_FORMAT,
ELEVATOR_LOG_CALLER and NO_COLOR.

HTTP routes:
	GET  /server/info
	GET  /elevator/status
	GET  /elevator/levels
	GET  /elevator/at/{level}
	POST /elevator/goal      {"level": "l2"}
	POST /elevator/position  {"inches": 12.5}
	POST /elevator/home
	POST /elevator/stop
	POST /elevator/resume
	GET  /elevator/history?n=100
	GET  /metrics
	GET  /ws`
	fmt.Println(str)
}

func mkconf() error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		return err
	}
	defer f.Close()
	return yml.NewEncoder(f).Encode(c)
}

func printconf() error {
	c, err := loadConfig()
	if err != nil {
		return err
	}
	return yml.NewEncoder(os.Stdout).Encode(c)
}

func pversion() {
	fmt.Printf("elevatord version %v\n", Version)
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	if err := setupconfig(); err != nil {
		logger.WithError(err).Error("configuration failed")
		os.Exit(1)
	}
	var err error
	switch strings.ToLower(args[1]) {
	case "help":
		help()
	case "mkconf":
		err = mkconf()
	case "conf":
		err = printconf()
	case "run":
		err = run()
	case "version":
		pversion()
	default:
		err = fmt.Errorf("unknown command %q", args[1])
	}
	if err != nil {
		logger.WithError(err).Error("elevatord failed")
		os.Exit(1)
	}
}
