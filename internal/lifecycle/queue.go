package lifecycle

import "sort"

// Candidate is a case considered for a turno.
type Candidate struct {
	CaseID       string
	State        State
	FirstIntake  NullDate
	FechaIngreso NullDate
}

// Key is the queue ordering key: the earliest intake event, else the case's own intake date.
func (c Candidate) Key() NullDate {
	if c.FirstIntake.Valid {
		return c.FirstIntake
	}
	return c.FechaIngreso
}

// Slot is one assigned queue position.
type Slot struct {
	CaseID string `json:"case_id"`
	Turno  int    `json:"turno"`
}

// Allocate numbers the awaiting cases that have an ordering key 1..N, oldest key first,
// ties broken by case id. Everything else is left out.
func Allocate(cands []Candidate) []Slot {
	queued := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if c.State != StateAwaiting || !c.Key().Valid {
			continue
		}
		queued = append(queued, c)
	}
	sort.SliceStable(queued, func(i, j int) bool {
		ki, kj := queued[i].Key().Date, queued[j].Key().Date
		if !ki.Equal(kj) {
			return ki.Before(kj)
		}
		return queued[i].CaseID < queued[j].CaseID
	})
	slots := make([]Slot, len(queued))
	for i, c := range queued {
		slots[i] = Slot{CaseID: c.CaseID, Turno: i + 1}
	}
	return slots
}

// Positions indexes slots by case id.
func Positions(slots []Slot) map[string]int {
	out := make(map[string]int, len(slots))
	for _, s := range slots {
		out[s.CaseID] = s.Turno
	}
	return out
}
