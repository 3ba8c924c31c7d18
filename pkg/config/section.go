package config

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/errors"
)

// Section provides access to a config section with access tracking.
type Section struct {
	name    string
	options map[string]string

	mu       sync.Mutex
	accessed map[string]struct{}
}

func newSection(name string, options map[string]string) *Section {
	opts := make(map[string]string, len(options))
	for k, v := range options {
		opts[strings.ToLower(k)] = v
	}
	return &Section{name: name, options: opts, accessed: make(map[string]struct{})}
}

// Name returns the section name.
func (s *Section) Name() string {
	return s.name
}

// lookup returns the raw value and marks the option as read.
func (s *Section) lookup(option string) (string, bool) {
	key := strings.ToLower(option)
	s.mu.Lock()
	s.accessed[key] = struct{}{}
	s.mu.Unlock()
	v, ok := s.options[key]
	return v, ok
}

// UnusedOptions returns, sorted, the options never read.
func (s *Section) UnusedOptions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []string
	for opt := range s.options {
		if _, ok := s.accessed[opt]; !ok {
			result = append(result, opt)
		}
	}
	sort.Strings(result)
	return result
}

// HasOption checks if an option exists in this section.
func (s *Section) HasOption(option string) bool {
	_, ok := s.options[strings.ToLower(option)]
	return ok
}

// Get returns a string option, the fallback if given, or a CONFIG_OPTION error.
func (s *Section) Get(option string, fallback ...string) (string, error) {
	if v, ok := s.lookup(option); ok {
		return v, nil
	}
	if len(fallback) > 0 {
		return fallback[0], nil
	}
	return "", errors.ConfigOptionError(s.name, option)
}

// GetInt returns an integer option.
func (s *Section) GetInt(option string, fallback ...int) (int, error) {
	v, ok := s.lookup(option)
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return 0, errors.ConfigOptionError(s.name, option)
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.ConfigTypeError(s.name, option, v, "integer", err)
	}
	return i, nil
}

// GetFloat returns a finite float64 option.
func (s *Section) GetFloat(option string, fallback ...float64) (float64, error) {
	v, ok := s.lookup(option)
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return 0, errors.ConfigOptionError(s.name, option)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errors.ConfigTypeError(s.name, option, v, "float", err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.ConfigValidationError(s.name, option, "must be finite")
	}
	return f, nil
}

// FloatBounds specifies bounds for GetFloatWithBounds. Nil fields are unchecked.
type FloatBounds struct {
	MinVal *float64 // >=
	MaxVal *float64 // <=
	Above  *float64 // >
	Below  *float64 // <
}

// Min, Max, Above and Below build single-sided bounds.
func Min(v float64) FloatBounds   { return FloatBounds{MinVal: &v} }
func Max(v float64) FloatBounds   { return FloatBounds{MaxVal: &v} }
func Above(v float64) FloatBounds { return FloatBounds{Above: &v} }
func Below(v float64) FloatBounds { return FloatBounds{Below: &v} }

// And combines two bounds, the argument's non-nil fields taking precedence.
func (b FloatBounds) And(o FloatBounds) FloatBounds {
	if o.MinVal != nil {
		b.MinVal = o.MinVal
	}
	if o.MaxVal != nil {
		b.MaxVal = o.MaxVal
	}
	if o.Above != nil {
		b.Above = o.Above
	}
	if o.Below != nil {
		b.Below = o.Below
	}
	return b
}

func ftoa(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// GetFloatWithBounds returns a float64 option checked against bounds.
// Fallback values are checked too.
func (s *Section) GetFloatWithBounds(option string, bounds FloatBounds, fallback ...float64) (float64, error) {
	v, err := s.GetFloat(option, fallback...)
	if err != nil {
		return 0, err
	}
	var reason string
	switch {
	case bounds.MinVal != nil && v < *bounds.MinVal:
		reason = "must have minimum of " + ftoa(*bounds.MinVal)
	case bounds.MaxVal != nil && v > *bounds.MaxVal:
		reason = "must have maximum of " + ftoa(*bounds.MaxVal)
	case bounds.Above != nil && v <= *bounds.Above:
		reason = "must be above " + ftoa(*bounds.Above)
	case bounds.Below != nil && v >= *bounds.Below:
		reason = "must be below " + ftoa(*bounds.Below)
	}
	if reason != "" {
		return 0, errors.ConfigValidationError(s.name, option, "value "+ftoa(v)+" "+reason).
			SetContext("value", v)
	}
	return v, nil
}

// GetDuration reads a value in seconds.
func (s *Section) GetDuration(option string, fallback ...time.Duration) (time.Duration, error) {
	if !s.HasOption(option) && len(fallback) > 0 {
		s.lookup(option)
		return fallback[0], nil
	}
	secs, err := s.GetFloatWithBounds(option, Above(0))
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// GetBool accepts 1/true/yes/on and 0/false/no/off.
func (s *Section) GetBool(option string, fallback ...bool) (bool, error) {
	v, ok := s.lookup(option)
	if !ok {
		if len(fallback) > 0 {
			return fallback[0], nil
		}
		return false, errors.ConfigOptionError(s.name, option)
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}
	return false, errors.ConfigTypeError(s.name, option, v, "boolean", nil)
}
