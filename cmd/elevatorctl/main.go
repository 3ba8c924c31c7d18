// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// elevatorctl is the command line client for elevatord.
//
// Usage:
//
//	elevatorctl [-addr host:port] <command> [args]
//
// Commands:
//
//	status               print controller and safety state
//	levels               list the configured levels
//	goal [-wait] LEVEL   move to a level, optionally waiting for arrival
//	position INCHES      move to a height
//	home                 drop the reference and re-home on the bottom switch
//	stop [MESSAGE]       emergency stop
//	resume               clear a stop
//	watch                stream telemetry until interrupted
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/log"
)

var logger = log.GetLogger("elevatorctl")

func usage() {
	fmt.Fprintln(os.Stderr, `usage: elevatorctl [-addr host:port] <command> [args]

commands:
	status
	levels
	goal [-wait] [-timeout 30s] LEVEL
	position INCHES
	home
	stop [MESSAGE]
	resume
	watch`)
}

func main() {
	addr := flag.String("addr", envOr("ELEVATORD_ADDR", "localhost:8000"), "elevatord address")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runCommand(ctx, NewClient(*addr), flag.Args(), os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "elevatorctl:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runCommand(ctx context.Context, c *Client, args []string, w io.Writer) error {
	cmd, rest := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "status":
		st, err := c.Status(ctx)
		if err != nil {
			return err
		}
		return printJSON(w, st)
	case "levels":
		levels, err := c.Levels(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "LEVEL\tPOSITION\tTOLERANCE")
		for _, l := range levels {
			fmt.Fprintf(tw, "%s\t%.2f\t%.2f\n", l.Name, l.Position, l.Tolerance)
		}
		return tw.Flush()
	case "goal":
		fs := flag.NewFlagSet("goal", flag.ContinueOnError)
		wait := fs.Bool("wait", false, "wait until the elevator is at the level")
		timeout := fs.Duration("timeout", 30*time.Second, "how long -wait waits")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if fs.NArg() != 1 {
			return fmt.Errorf("goal takes one level name")
		}
		level := fs.Arg(0)
		st, err := c.Goal(ctx, level)
		if err != nil {
			return err
		}
		if !*wait {
			fmt.Fprintf(w, "moving to %s (%.2f in)\n", level, st.Target)
			return nil
		}
		wctx, cancel := context.WithTimeout(ctx, *timeout)
		defer cancel()
		return waitAtLevel(wctx, c, level, 100*time.Millisecond, w)
	case "position":
		if len(rest) != 1 {
			return fmt.Errorf("position takes one height in inches")
		}
		inches, err := strconv.ParseFloat(rest[0], 64)
		if err != nil {
			return fmt.Errorf("invalid height %q: %w", rest[0], err)
		}
		st, err := c.Position(ctx, inches)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "moving to %.2f in\n", st.Target)
		return nil
	case "home":
		if err := c.Home(ctx); err != nil {
			return err
		}
		fmt.Fprintln(w, "re-homing")
		return nil
	case "stop":
		st, err := c.Stop(ctx, strings.Join(rest, " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "elevator %s\n", st.State)
		return nil
	case "resume":
		st, err := c.Resume(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "elevator %s\n", st.State)
		return nil
	case "watch":
		return watch(ctx, c, w)
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
