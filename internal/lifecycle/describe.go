package lifecycle

import "fmt"

// ActionActivity summarizes procedural actions. It only feeds descriptions.
type ActionActivity struct {
	Actions    int      `json:"actions"`
	LastAction NullDate `json:"last_action"`
}

// Description is the display form of a classification.
type Description struct {
	State  State  `json:"state"`
	Label  string `json:"label"`
	Detail string `json:"detail"`
}

// Describe decorates Classify with a human-readable detail line.
// The state is always the one Classify returns.
func (c Classifier) Describe(a Activity, acts ActionActivity, today Date) Description {
	state := c.Classify(a, today)
	d := Description{State: state, Label: state.Label()}
	switch state {
	case StateAwaiting:
		d.Detail = recency(a, acts)
	case StateActiveResolved, StateInactiveResolved:
		if a.LastStatus.Valid {
			d.Detail = fmt.Sprintf("resuelto el %s (hace %d días)", a.LastStatus.Date, today.DaysSince(a.LastStatus.Date))
		} else {
			d.Detail = "resuelto sin fecha registrada"
		}
		if acts.Actions > 0 {
			d.Detail += fmt.Sprintf("; %d actuaciones", acts.Actions)
		}
	default:
		if acts.Actions > 0 {
			d.Detail = "con actuaciones, sin ingresos ni estados"
		} else {
			d.Detail = "sin actividad registrada"
		}
	}
	return d
}

func recency(a Activity, acts ActionActivity) string {
	switch {
	case a.Intakes > 0 && acts.Actions > 0:
		if !a.LastIntake.Valid || !acts.LastAction.Valid {
			return "con ingresos y actuaciones"
		}
		switch {
		case a.LastIntake.Date.After(acts.LastAction.Date):
			return fmt.Sprintf("ingreso del %s posterior a la última actuación", a.LastIntake.Date)
		case acts.LastAction.Date.After(a.LastIntake.Date):
			return fmt.Sprintf("actuación del %s posterior al último ingreso", acts.LastAction.Date)
		default:
			return fmt.Sprintf("ingreso y actuación el %s", a.LastIntake.Date)
		}
	case a.Intakes > 0:
		if a.LastIntake.Valid {
			return fmt.Sprintf("ingresó el %s, sin actuaciones", a.LastIntake.Date)
		}
		return "con ingresos, sin actuaciones"
	case acts.Actions > 0:
		return "con actuaciones, sin ingresos"
	}
	return "marcado manualmente"
}
