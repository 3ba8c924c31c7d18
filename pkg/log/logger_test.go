// Structured logging tests
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func newTestLogger(format OutputFormat) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := New("elevator")
	l.SetWriter(&buf)
	l.SetLevel(DEBUG)
	l.SetColorize(false)
	l.SetFormat(format)
	return l, &buf
}

func TestLoggerText(t *testing.T) {
	l, buf := newTestLogger(FormatText)
	l.Info("homed at %.1f", 0.0)

	out := buf.String()
	for _, want := range []string{"[INFO ]", "elevator:", "homed at 0.0"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestLoggerLevelFilter(t *testing.T) {
	l, buf := newTestLogger(FormatText)
	l.SetLevel(WARN)

	l.Debug("tick")
	l.Info("goal set")
	if buf.Len() != 0 {
		t.Fatalf("expected DEBUG and INFO filtered, got %q", buf.String())
	}
	l.Warn("goal rejected")
	if !strings.Contains(buf.String(), "goal rejected") {
		t.Errorf("WARN not written: %q", buf.String())
	}
	if l.Enabled(INFO) {
		t.Error("Enabled(INFO) = true at WARN level")
	}
}

func TestLoggerJSONFields(t *testing.T) {
	l, buf := newTestLogger(FormatJSON)
	l.WithField("target", 30.0).WithFields(Fields{"level": "l3"}).Warn("rejected")

	var entry JSONLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v (%s)", err, buf.String())
	}
	if entry.Level != "WARN" || entry.Logger != "elevator" || entry.Message != "rejected" {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Fields["target"] != 30.0 || entry.Fields["level"] != "l3" {
		t.Errorf("fields = %v", entry.Fields)
	}
}

func TestLoggerTextFieldsSorted(t *testing.T) {
	l, buf := newTestLogger(FormatText)
	l.WithFields(Fields{"b": 2, "a": 1}).Info("x")
	if !strings.Contains(buf.String(), "{a=1, b=2}") {
		t.Errorf("fields not sorted: %q", buf.String())
	}
}

func TestLoggerWithError(t *testing.T) {
	l, buf := newTestLogger(FormatJSON)
	l.WithError(fmt.Errorf("encoder timeout")).Error("tick skipped")

	var entry JSONLogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry.Fields["error"] != "encoder timeout" {
		t.Errorf("error field = %v", entry.Fields["error"])
	}
}

func TestWithPrefixSharesOutput(t *testing.T) {
	parent, buf := newTestLogger(FormatText)
	child := parent.WithPrefix("homing")

	parent.SetLevel(ERROR)
	child.Info("filtered by parent level")
	if buf.Len() != 0 {
		t.Fatalf("child ignored parent level: %q", buf.String())
	}
	child.Error("bottom switch stuck")
	if !strings.Contains(buf.String(), "homing:") {
		t.Errorf("missing child prefix: %q", buf.String())
	}
	if child.Prefix() != "homing" {
		t.Errorf("Prefix() = %q", child.Prefix())
	}
}

func TestLoggerCaller(t *testing.T) {
	l, buf := newTestLogger(FormatText)
	l.SetCaller(true)
	l.Info("caller")
	if !strings.Contains(buf.String(), "logger_test.go:") {
		t.Errorf("missing caller: %q", buf.String())
	}

	buf.Reset()
	l.WithField("k", 1).Info("entry caller")
	if !strings.Contains(buf.String(), "logger_test.go:") {
		t.Errorf("missing entry caller: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"Error", ERROR},
		{"nonsense", INFO},
		{"", INFO},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if LogLevel(42).String() != "UNKNOWN" {
		t.Error("out of range level should be UNKNOWN")
	}
}

func TestConfigureFromEnv(t *testing.T) {
	t.Setenv("ELEVATOR_LOG_LEVEL", "error")
	t.Setenv("ELEVATOR_LOG_FORMAT", "json")

	l, buf := newTestLogger(FormatText)
	ConfigureFromEnv(l)
	if l.GetLevel() != ERROR {
		t.Errorf("level = %v, want ERROR", l.GetLevel())
	}
	l.Error("json please")
	if !json.Valid(bytes.TrimSpace(buf.Bytes())) {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
}

func TestGetLogger(t *testing.T) {
	if got := GetLogger("reactor").Prefix(); got != "reactor" {
		t.Errorf("prefix = %q, want reactor", got)
	}
}
