package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gorilla/websocket"
	"github.com/theckman/yacspin"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/telemetry"
)

func printFrame(w io.Writer, fr telemetry.Frame) {
	homed := "unhomed"
	if fr.Homed {
		homed = "homed"
	}
	action := fr.Action
	if fr.Reason != "" {
		action += "/" + fr.Reason
	}
	fmt.Fprintf(w, "%s %-7s height=%7.2f target=%6.2f ref_v=%7.2f cmd=%+.3f current=%5.1fA %s\n",
		fr.Time.Format("15:04:05.000"), homed, fr.Height, fr.Target,
		fr.ReferenceVelocity, fr.Command, fr.OutputCurrent, action)
}

// watch streams telemetry frames to w until ctx ends, reconnecting with
// exponential backoff when the daemon goes away.
func watch(ctx context.Context, c *Client, w io.Writer) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0

	op := func() error {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), nil)
		if err != nil {
			return err
		}
		defer conn.Close()
		b.Reset()

		done := make(chan struct{})
		defer close(done)
		go func() {
			select {
			case <-ctx.Done():
				conn.Close()
			case <-done:
			}
		}()

		for {
			var fr telemetry.Frame
			if err := conn.ReadJSON(&fr); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return err
			}
			printFrame(w, fr)
		}
	}
	notify := func(err error, next time.Duration) {
		logger.WithError(err).WithField("retry_in", next.String()).Warn("telemetry stream lost")
	}
	err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// waitAtLevel polls until the elevator settles at level, showing a
// spinner on w. It fails if the elevator is stopped while moving.
func waitAtLevel(ctx context.Context, c *Client, level string, poll time.Duration, w io.Writer) error {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " ",
		Message:           "moving to " + level,
		StopCharacter:     "✓",
		StopColors:        []string{"fgGreen"},
		StopFailCharacter: "✗",
		StopFailColors:    []string{"fgRed"},
		Writer:            w,
	})
	if err != nil {
		return err
	}
	if err := spinner.Start(); err != nil {
		return err
	}
	fail := func(err error) error {
		spinner.StopFailMessage(err.Error())
		spinner.StopFail()
		return err
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		at, err := c.AtLevel(ctx, level)
		if err != nil {
			return fail(err)
		}
		st, err := c.Status(ctx)
		if err != nil {
			return fail(err)
		}
		if at {
			spinner.StopMessage(fmt.Sprintf("at %s (%.2f in)", level, st.Elevator.Height))
			return spinner.Stop()
		}
		if !st.Safety.IsOperational {
			return fail(fmt.Errorf("elevator %s: %s", st.Safety.State, st.Safety.Message))
		}
		spinner.Message(fmt.Sprintf("moving to %s: %.2f / %.2f in", level, st.Elevator.Height, st.Elevator.Target))

		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		case <-ticker.C:
		}
	}
}
