// HTTP client for elevatord
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/elevator"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/errors"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/safety"
	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/server"
)

// Status is the body of GET /elevator/status.
type Status struct {
	Elevator elevator.Status  `json:"elevator"`
	Safety   safety.Status    `json:"safety"`
	Errors   *elevator.Errors `json:"errors,omitempty"`
}

// Client talks to elevatord.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the daemon at addr, e.g.
// "http://localhost:8000".
func NewClient(addr string) *Client {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return &Client{
		base: strings.TrimSuffix(addr, "/"),
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

// do sends a request and decodes a JSON reply into out. Error replies
// are turned back into coded errors.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func decodeError(status int, data []byte) error {
	var eb server.ErrorBody
	if err := json.Unmarshal(data, &eb); err == nil && eb.Error.Message != "" {
		if eb.Error.Code != "" {
			return errors.New(errors.ErrorCode(eb.Error.Code), eb.Error.Message)
		}
		return fmt.Errorf("%s (HTTP %d)", eb.Error.Message, status)
	}
	return fmt.Errorf("%s (HTTP %d)", strings.TrimSpace(string(data)), status)
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/elevator/status", nil, &st)
	return st, err
}

func (c *Client) Levels(ctx context.Context) ([]elevator.Level, error) {
	var levels []elevator.Level
	err := c.do(ctx, http.MethodGet, "/elevator/levels", nil, &levels)
	return levels, err
}

// Goal requests a move to a named level.
func (c *Client) Goal(ctx context.Context, level string) (elevator.Status, error) {
	var st elevator.Status
	err := c.do(ctx, http.MethodPost, "/elevator/goal", server.GoalRequest{Level: level}, &st)
	return st, err
}

// Position requests a move to a height in inches.
func (c *Client) Position(ctx context.Context, inches float64) (elevator.Status, error) {
	var st elevator.Status
	err := c.do(ctx, http.MethodPost, "/elevator/position", server.PositionRequest{Inches: &inches}, &st)
	return st, err
}

// AtLevel reports whether the elevator has settled at level.
func (c *Client) AtLevel(ctx context.Context, level string) (bool, error) {
	var body struct {
		AtPosition bool `json:"at_position"`
	}
	err := c.do(ctx, http.MethodGet, "/elevator/at/"+url.PathEscape(level), nil, &body)
	return body.AtPosition, err
}

func (c *Client) Home(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/elevator/home", nil, nil)
}

func (c *Client) Stop(ctx context.Context, msg string) (safety.Status, error) {
	var st safety.Status
	path := "/elevator/stop"
	if msg != "" {
		path += "?message=" + url.QueryEscape(msg)
	}
	err := c.do(ctx, http.MethodPost, path, nil, &st)
	return st, err
}

func (c *Client) Resume(ctx context.Context) (safety.Status, error) {
	var st safety.Status
	err := c.do(ctx, http.MethodPost, "/elevator/resume", nil, &st)
	return st, err
}

// wsURL is the telemetry stream address.
func (c *Client) wsURL() string {
	u := c.base + "/ws"
	if strings.HasPrefix(u, "https://") {
		return "wss://" + strings.TrimPrefix(u, "https://")
	}
	return "ws://" + strings.TrimPrefix(u, "http://")
}
