// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"plain", New(ErrRuntime, "boom"), "[RUNTIME] boom"},
		{"section", ConfigSectionError("elevator"), "[CONFIG_SECTION:elevator] section not found"},
		{"option", ConfigOptionError("elevator", "max_velocity"), "[CONFIG_OPTION:elevator.max_velocity] option not found"},
		{"wrapped", SensorFaultError("encoder", fmt.Errorf("timeout")), "[SENSOR_FAULT] read encoder: timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsWalksChain(t *testing.T) {
	inner := UnsafeCommandError(12, "not homed")
	outer := Wrap(inner, ErrRuntime, "goal handoff")
	wrapped := fmt.Errorf("http: %w", outer)

	if !Is(wrapped, ErrUnsafeCommand) {
		t.Error("Is(UNSAFE_COMMAND) = false, want true")
	}
	if !Is(wrapped, ErrRuntime) {
		t.Error("Is(RUNTIME) = false, want true")
	}
	if Is(wrapped, ErrUnknownLevel) {
		t.Error("Is(UNKNOWN_LEVEL) = true, want false")
	}
	if Is(stderrors.New("plain"), ErrRuntime) {
		t.Error("uncoded error matched a code")
	}
	if got := CodeOf(wrapped); got != ErrRuntime {
		t.Errorf("CodeOf = %q, want %q", got, ErrRuntime)
	}
}

func TestIsConfig(t *testing.T) {
	if !IsConfig(ConfigValidationError("elevator", "max_output", "must be in (0, 1]")) {
		t.Error("validation error not classified as config")
	}
	if IsConfig(UnknownLevelError("l9")) {
		t.Error("unknown level classified as config")
	}
}

func TestConfigTypeErrorMessage(t *testing.T) {
	err := ConfigTypeError("elevator", "kp", "abc", "float", stderrors.New("invalid syntax"))
	if !strings.Contains(err.Error(), `"abc"`) || !strings.Contains(err.Error(), "invalid syntax") {
		t.Errorf("unexpected message %q", err.Error())
	}
	if stderrors.Unwrap(err) == nil {
		t.Error("Unwrap() = nil")
	}
}
