package lifecycle_test

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"juzgado/internal/lifecycle"
)

var today = lifecycle.NewDate(2024, time.October, 1)

func day(s string) lifecycle.NullDate {
	return lifecycle.NullDateOf(s)
}

func TestNormalize(t *testing.T) {
	want := lifecycle.NewDate(2024, time.January, 15)
	bogota := time.FixedZone("COT", -5*3600)
	cases := []struct {
		name string
		in   any
		ok   bool
	}{
		{"iso", "2024-01-15", true},
		{"padded", "  2024-01-15 ", true},
		{"datetime", "2024-01-15 23:59:59", true},
		{"rfc3339", "2024-01-15T08:00:00Z", true},
		{"sqlite time", "2024-01-15 10:30:00.123-05:00", true},
		{"slashes dmy", "15/01/2024", true},
		{"dashes dmy", "15-01-2024", true},
		{"bytes", []byte("2024-01-15"), true},
		{"time keeps own zone", time.Date(2024, 1, 15, 22, 0, 0, 0, bogota), true},
		{"date", want, true},
		{"null date", lifecycle.Some(want), true},
		{"sql null time", sql.NullTime{Time: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), Valid: true}, true},
		{"nil", nil, false},
		{"empty", "", false},
		{"garbage", "not a date", false},
		{"impossible day", "2024-02-31", false},
		{"zero time", time.Time{}, false},
		{"nil time pointer", (*time.Time)(nil), false},
		{"invalid sql null", sql.NullString{}, false},
		{"unsupported type", 20240115, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := lifecycle.Normalize(tc.in)
			require.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.True(t, got.Equal(want), "got %s", got)
			}
		})
	}
}

func TestNullDateScanAndJSON(t *testing.T) {
	var n lifecycle.NullDate
	require.NoError(t, n.Scan("bogus"))
	assert.False(t, n.Valid)
	require.NoError(t, n.Scan(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2023-06-01", n.String())

	v, err := n.Value()
	require.NoError(t, err)
	assert.Equal(t, "2023-06-01", v)

	b, err := json.Marshal(struct {
		A lifecycle.NullDate `json:"a"`
		B lifecycle.NullDate `json:"b"`
	}{A: n})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"2023-06-01","b":null}`, string(b))

	var back lifecycle.NullDate
	require.NoError(t, json.Unmarshal([]byte(`"01/06/2023"`), &back))
	assert.True(t, back.Same(n))
}

func TestDaysSince(t *testing.T) {
	a := lifecycle.NewDate(2024, time.March, 1)
	b := lifecycle.NewDate(2023, time.March, 1)
	assert.Equal(t, 366, a.DaysSince(b))
	assert.Equal(t, -366, b.DaysSince(a))
	assert.Equal(t, lifecycle.NewDate(2024, time.February, 29), a.AddDays(-1))

	// spans longer than time.Duration can hold
	old := lifecycle.NewDate(1700, time.January, 1)
	assert.Equal(t, 118338, lifecycle.NewDate(2024, time.January, 1).DaysSince(old))
	first := lifecycle.NewDate(1, time.January, 1)
	last := lifecycle.NewDate(9999, time.December, 31)
	assert.Equal(t, 3652058, last.DaysSince(first))
	assert.Equal(t, -3652058, first.DaysSince(last))
}

func TestClassifyPrecedence(t *testing.T) {
	older := day("2024-01-01")
	newer := day("2024-05-01")
	for intakes := 0; intakes <= 2; intakes++ {
		for statuses := 0; statuses <= 2; statuses++ {
			for _, order := range []string{"intake-newer", "status-newer", "same-day"} {
				a := lifecycle.Activity{Intakes: intakes, Statuses: statuses}
				if intakes > 0 {
					a.LastIntake = older
					if order == "intake-newer" {
						a.LastIntake = newer
					}
				}
				if statuses > 0 {
					a.LastStatus = older
					if order == "status-newer" {
						a.LastStatus = newer
					}
				}
				if order == "same-day" {
					if intakes > 0 {
						a.LastIntake = newer
					}
					if statuses > 0 {
						a.LastStatus = newer
					}
				}
				name := fmt.Sprintf("i%d_s%d_%s", intakes, statuses, order)
				t.Run(name, func(t *testing.T) {
					got := lifecycle.Classify(a, today)
					require.True(t, got.Valid())
					var want lifecycle.State
					switch {
					case intakes > 0 && (statuses == 0 || order == "intake-newer"):
						want = lifecycle.StateAwaiting
					case statuses > 0:
						want = lifecycle.StateActiveResolved
					default:
						want = lifecycle.StatePending
					}
					assert.Equal(t, want, got)
				})
			}
		}
	}
}

func TestClassifySameDayStatusWins(t *testing.T) {
	a := lifecycle.Activity{Intakes: 1, LastIntake: day("2024-09-01"), Statuses: 1, LastStatus: day("2024-09-01")}
	assert.Equal(t, lifecycle.StateActiveResolved, lifecycle.Classify(a, today))

	a.LastIntake, a.LastStatus = day("2020-09-01"), day("2020-09-01")
	assert.Equal(t, lifecycle.StateInactiveResolved, lifecycle.Classify(a, today))
}

func TestClassifyAgeBoundary(t *testing.T) {
	at := func(daysAgo int) lifecycle.State {
		return lifecycle.Classify(lifecycle.Activity{
			Statuses:   1,
			LastStatus: lifecycle.Some(today.AddDays(-daysAgo)),
		}, today)
	}
	assert.Equal(t, lifecycle.StateActiveResolved, at(0))
	assert.Equal(t, lifecycle.StateActiveResolved, at(365))
	assert.Equal(t, lifecycle.StateInactiveResolved, at(366))

	short := lifecycle.Classifier{WindowDays: 30}
	assert.Equal(t, lifecycle.StateInactiveResolved, short.Classify(lifecycle.Activity{
		Statuses: 1, LastStatus: lifecycle.Some(today.AddDays(-31)),
	}, today))
}

func TestClassifyMissingDates(t *testing.T) {
	// status rows without a usable date
	a := lifecycle.Activity{Statuses: 1}
	assert.Equal(t, lifecycle.StateInactiveResolved, lifecycle.Classify(a, today))
	a.Intakes, a.LastIntake = 1, day("2024-01-01")
	assert.Equal(t, lifecycle.StateAwaiting, lifecycle.Classify(a, today))

	// intake rows without a usable date never beat a dated status
	b := lifecycle.Activity{Intakes: 1, Statuses: 1, LastStatus: day("2024-01-01")}
	assert.Equal(t, lifecycle.StateActiveResolved, lifecycle.Classify(b, today))

	// intake rows without a date and no statuses are still awaiting
	c := lifecycle.Activity{Intakes: 1}
	assert.Equal(t, lifecycle.StateAwaiting, lifecycle.Classify(c, today))
}

func TestParseState(t *testing.T) {
	s, err := lifecycle.ParseState(" ap ")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateAwaiting, s)
	s, err = lifecycle.ParseState("inactivo resuelto")
	require.NoError(t, err)
	assert.Equal(t, lifecycle.StateInactiveResolved, s)
	_, err = lifecycle.ParseState("archivado")
	assert.Error(t, err)
}

func TestAllocateOrdering(t *testing.T) {
	cands := []lifecycle.Candidate{
		{CaseID: "b", State: lifecycle.StateAwaiting, FirstIntake: day("2024-02-01")},
		{CaseID: "a", State: lifecycle.StateAwaiting, FirstIntake: day("2024-01-01")},
		{CaseID: "d", State: lifecycle.StateAwaiting, FirstIntake: day("2024-02-01")},
		{CaseID: "c", State: lifecycle.StateAwaiting, FechaIngreso: day("2023-12-01")},
		{CaseID: "e", State: lifecycle.StateAwaiting},
		{CaseID: "f", State: lifecycle.StateActiveResolved, FirstIntake: day("2020-01-01")},
		{CaseID: "g", State: lifecycle.StateAwaiting, FirstIntake: day("2024-03-01"), FechaIngreso: day("2019-01-01")},
	}
	slots := lifecycle.Allocate(cands)
	assert.Equal(t, []lifecycle.Slot{
		{CaseID: "c", Turno: 1},
		{CaseID: "a", Turno: 2},
		{CaseID: "b", Turno: 3},
		{CaseID: "d", Turno: 4},
		{CaseID: "g", Turno: 5},
	}, slots)

	pos := lifecycle.Positions(slots)
	_, queued := pos["e"]
	assert.False(t, queued, "case without ordering key must not queue")
	_, queued = pos["f"]
	assert.False(t, queued, "resolved case must not queue")

	assert.Equal(t, slots, lifecycle.Allocate(cands), "allocation must be idempotent")
	assert.Empty(t, lifecycle.Allocate(nil))
}

func TestDescribe(t *testing.T) {
	c := lifecycle.Classifier{}
	a := lifecycle.Activity{Intakes: 1, LastIntake: day("2024-09-10")}
	d := c.Describe(a, lifecycle.ActionActivity{Actions: 2, LastAction: day("2024-09-20")}, today)
	assert.Equal(t, lifecycle.StateAwaiting, d.State)
	assert.Equal(t, "Activo Pendiente", d.Label)
	assert.Contains(t, d.Detail, "actuación del 2024-09-20")

	// actions alone never change the state
	d = c.Describe(lifecycle.Activity{}, lifecycle.ActionActivity{Actions: 3, LastAction: day("2024-09-20")}, today)
	assert.Equal(t, lifecycle.StatePending, d.State)
	assert.Contains(t, d.Detail, "con actuaciones")

	d = c.Describe(lifecycle.Activity{Statuses: 1, LastStatus: day("2024-09-01")}, lifecycle.ActionActivity{}, today)
	assert.Equal(t, lifecycle.StateActiveResolved, d.State)
	assert.Contains(t, d.Detail, "hace 30 días")
}
