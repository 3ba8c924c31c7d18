// Coded errors for the elevator controller
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents the category of error
type ErrorCode string

const (
	// Configuration errors
	ErrConfigSection    ErrorCode = "CONFIG_SECTION"
	ErrConfigOption     ErrorCode = "CONFIG_OPTION"
	ErrConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrConfigType       ErrorCode = "CONFIG_TYPE"

	// Command errors
	ErrUnsafeCommand ErrorCode = "UNSAFE_COMMAND"
	ErrUnknownLevel  ErrorCode = "UNKNOWN_LEVEL"

	// Hardware errors
	ErrSensorFault   ErrorCode = "SENSOR_FAULT"
	ErrActuatorFault ErrorCode = "ACTUATOR_FAULT"

	// Runtime errors
	ErrRuntime     ErrorCode = "RUNTIME"
	ErrRuntimeInit ErrorCode = "RUNTIME_INIT"
)

// Error is the coded error type shared by all packages.
type Error struct {
	Code    ErrorCode
	Message string

	// Section and Option locate configuration errors.
	Section string
	Option  string

	Err     error
	Context map[string]interface{}
}

func (e *Error) Error() string {
	where := e.Section
	if e.Option != "" {
		where = e.Section + "." + e.Option
	}
	msg := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if where != "" {
		msg = fmt.Sprintf("[%s:%s] %s", e.Code, where, e.Message)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// SetSection sets the config section
func (e *Error) SetSection(section string) *Error {
	e.Section = section
	return e
}

// SetOption sets the config option
func (e *Error) SetOption(option string) *Error {
	e.Option = option
	return e
}

// SetContext adds additional context
func (e *Error) SetContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error
func New(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap wraps an existing error with a code and message
func Wrap(err error, code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// ConfigSectionError reports a missing config section
func ConfigSectionError(section string) *Error {
	return New(ErrConfigSection, "section not found").SetSection(section)
}

// ConfigOptionError reports a missing config option
func ConfigOptionError(section, option string) *Error {
	return New(ErrConfigOption, "option not found").SetSection(section).SetOption(option)
}

// ConfigValidationError reports a value that fails validation
func ConfigValidationError(section, option, reason string) *Error {
	return New(ErrConfigValidation, reason).SetSection(section).SetOption(option)
}

// ConfigTypeError reports a value that cannot be parsed
func ConfigTypeError(section, option, value, targetType string, err error) *Error {
	return Wrap(err, ErrConfigType, fmt.Sprintf("cannot parse %q as %s", value, targetType)).
		SetSection(section).SetOption(option)
}

// UnsafeCommandError reports a motion request refused by the interlock
func UnsafeCommandError(target float64, reason string) *Error {
	return New(ErrUnsafeCommand, fmt.Sprintf("target %.3f rejected: %s", target, reason)).
		SetContext("target", target)
}

// UnknownLevelError reports a level name missing from the level table
func UnknownLevelError(name string) *Error {
	return New(ErrUnknownLevel, fmt.Sprintf("unknown level %q", name)).SetContext("level", name)
}

// SensorFaultError reports a sensor that could not be read
func SensorFaultError(sensor string, err error) *Error {
	return Wrap(err, ErrSensorFault, fmt.Sprintf("read %s", sensor))
}

// ActuatorFaultError reports a failed actuator write
func ActuatorFaultError(actuator string, err error) *Error {
	return Wrap(err, ErrActuatorFault, fmt.Sprintf("write %s", actuator))
}

// RuntimeErrorInit reports a component that failed to start
func RuntimeErrorInit(component, reason string) *Error {
	return New(ErrRuntimeInit, fmt.Sprintf("failed to initialize %s: %s", component, reason))
}

// Is reports whether any error in err's chain carries code.
func Is(err error, code ErrorCode) bool {
	var e *Error
	for err != nil {
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// IsConfig checks if error is a config error
func IsConfig(err error) bool {
	return Is(err, ErrConfigSection) ||
		Is(err, ErrConfigOption) ||
		Is(err, ErrConfigValidation) ||
		Is(err, ErrConfigType)
}

// CodeOf returns the outermost code in err's chain, or "" for uncoded errors.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}
