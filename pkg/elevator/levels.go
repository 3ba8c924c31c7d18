package elevator

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/Iprobablydontknowwhatimdoing/reefscape/pkg/errors"
)

// Level is a named target height.
type Level struct {
	Name string `json:"name"`
	// Position in inches above the bottom reference.
	Position float64 `json:"position"`
	// Tolerance is the user-facing "at level" band, coarser than the
	// position controller's settle tolerance.
	Tolerance float64 `json:"tolerance"`
}

// DefaultTolerance is the level tolerance used when none is configured.
const DefaultTolerance = 0.5

// DefaultLevels returns the scoring heights of the competition robot.
func DefaultLevels() []Level {
	return []Level{
		{Name: "down", Position: 0, Tolerance: DefaultTolerance},
		{Name: "l1", Position: 8, Tolerance: DefaultTolerance},
		{Name: "l2", Position: 16, Tolerance: DefaultTolerance},
		{Name: "l3", Position: 32, Tolerance: DefaultTolerance},
		{Name: "l4", Position: 55, Tolerance: DefaultTolerance},
	}
}

// Levels is a closed lookup table of levels keyed by lowercase name.
type Levels struct {
	ordered []Level
	byName  map[string]Level
}

// NewLevels builds a table sorted by position. Names must be unique
// ignoring case.
func NewLevels(levels []Level) (*Levels, error) {
	t := &Levels{byName: make(map[string]Level, len(levels))}
	for _, l := range levels {
		key := strings.ToLower(strings.TrimSpace(l.Name))
		if key == "" {
			return nil, fmt.Errorf("level with empty name")
		}
		if _, dup := t.byName[key]; dup {
			return nil, fmt.Errorf("duplicate level %q", l.Name)
		}
		if !(l.Tolerance > 0) || math.IsInf(l.Tolerance, 0) {
			return nil, fmt.Errorf("level %q: tolerance must be positive, got %v", l.Name, l.Tolerance)
		}
		l.Name = key
		t.byName[key] = l
		t.ordered = append(t.ordered, l)
	}
	sort.SliceStable(t.ordered, func(i, j int) bool {
		return t.ordered[i].Position < t.ordered[j].Position
	})
	return t, nil
}

// Lookup finds a level by name, case-insensitively.
func (t *Levels) Lookup(name string) (Level, error) {
	l, ok := t.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Level{}, errors.UnknownLevelError(name)
	}
	return l, nil
}

// All returns the levels ordered by position.
func (t *Levels) All() []Level {
	return append([]Level(nil), t.ordered...)
}

// At returns the name of the level at exactly position, or "".
func (t *Levels) At(position float64) string {
	for _, l := range t.ordered {
		if l.Position == position {
			return l.Name
		}
	}
	return ""
}
