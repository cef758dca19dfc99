// Package lifecycle derives a case's lifecycle state from its intake and status history
// and orders the awaiting-action queue.
package lifecycle

import (
	"fmt"
	"strings"
)

type State string

const (
	StateAwaiting         State = "AP"
	StateActiveResolved   State = "AR"
	StateInactiveResolved State = "IR"
	StatePending          State = "P"
)

// DefaultWindowDays is how long a resolution keeps a case active.
const DefaultWindowDays = 365

var States = []State{StateAwaiting, StateActiveResolved, StateInactiveResolved, StatePending}

func (s State) Valid() bool {
	switch s {
	case StateAwaiting, StateActiveResolved, StateInactiveResolved, StatePending:
		return true
	}
	return false
}

func (s State) Label() string {
	switch s {
	case StateAwaiting:
		return "Activo Pendiente"
	case StateActiveResolved:
		return "Activo Resuelto"
	case StateInactiveResolved:
		return "Inactivo Resuelto"
	case StatePending:
		return "Pendiente"
	}
	return string(s)
}

// ParseState accepts a state code or its label, case-insensitively.
func ParseState(in string) (State, error) {
	v := strings.TrimSpace(in)
	for _, s := range States {
		if strings.EqualFold(v, string(s)) || strings.EqualFold(v, s.Label()) {
			return s, nil
		}
	}
	return "", fmt.Errorf("invalid state %q", in)
}

// Activity aggregates what the classifier needs to know about a case.
type Activity struct {
	Intakes    int      `json:"intakes"`
	LastIntake NullDate `json:"last_intake"`
	Statuses   int      `json:"statuses"`
	LastStatus NullDate `json:"last_status"`
}

// Classifier maps activity to a state. The zero value uses DefaultWindowDays.
type Classifier struct {
	WindowDays int
}

func (c Classifier) window() int {
	if c.WindowDays <= 0 {
		return DefaultWindowDays
	}
	return c.WindowDays
}

// Classify applies, in order: pending intake, resolution age, no activity.
func (c Classifier) Classify(a Activity, today Date) State {
	if a.Intakes > 0 && a.intakeIsLatest() {
		return StateAwaiting
	}
	if a.Statuses > 0 {
		if !a.LastStatus.Valid {
			return StateInactiveResolved
		}
		if today.DaysSince(a.LastStatus.Date) <= c.window() {
			return StateActiveResolved
		}
		return StateInactiveResolved
	}
	return StatePending
}

// Classify uses the default resolution window.
func Classify(a Activity, today Date) State {
	return Classifier{}.Classify(a, today)
}

// intakeIsLatest is true when the newest intake is strictly after the newest status.
// A same-day status wins.
func (a Activity) intakeIsLatest() bool {
	if a.Statuses == 0 {
		return true
	}
	if !a.LastIntake.Valid {
		return false
	}
	if !a.LastStatus.Valid {
		return true
	}
	return a.LastIntake.Date.After(a.LastStatus.Date)
}
