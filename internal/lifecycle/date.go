package lifecycle

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Date is a calendar day with no time-of-day or zone.
type Date struct {
	year  int
	month time.Month
	day   int
}

// NewDate builds a Date, normalizing out-of-range values the way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return FromTime(time.Date(year, month, day, 0, 0, 0, 0, time.UTC))
}

// FromTime truncates t to its calendar day in t's own location.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{year: y, month: m, day: d}
}

func (d Date) Year() int          { return d.year }
func (d Date) Month() time.Month  { return d.month }
func (d Date) Day() int           { return d.day }
func (d Date) IsZero() bool       { return d.year == 0 && d.month == 0 && d.day == 0 }
func (d Date) Time() time.Time    { return time.Date(d.year, d.month, d.day, 0, 0, 0, 0, time.UTC) }
func (d Date) Before(o Date) bool { return d.Time().Before(o.Time()) }
func (d Date) After(o Date) bool  { return d.Time().After(o.Time()) }
func (d Date) Equal(o Date) bool  { return d == o }

const secondsPerDay = 24 * 60 * 60

// DaysSince returns the number of whole days from earlier to d (negative when earlier is later).
func (d Date) DaysSince(earlier Date) int {
	return int((d.Time().Unix() - earlier.Time().Unix()) / secondsPerDay)
}

// AddDays returns d shifted by n calendar days.
func (d Date) AddDays(n int) Date {
	return FromTime(d.Time().AddDate(0, 0, n))
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.year, int(d.month), d.day)
}

// accepted string layouts, tried in order.
var layouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
}

// Normalize converts heterogeneous date representations into a Date.
// The boolean is false for nil, empty or unparseable input; it never fails otherwise.
func Normalize(v any) (Date, bool) {
	switch x := v.(type) {
	case nil:
		return Date{}, false
	case Date:
		return x, !x.IsZero()
	case *Date:
		if x == nil {
			return Date{}, false
		}
		return *x, !x.IsZero()
	case NullDate:
		return x.Date, x.Valid
	case *NullDate:
		if x == nil {
			return Date{}, false
		}
		return x.Date, x.Valid
	case time.Time:
		if x.IsZero() {
			return Date{}, false
		}
		return FromTime(x), true
	case *time.Time:
		if x == nil || x.IsZero() {
			return Date{}, false
		}
		return FromTime(*x), true
	case sql.NullTime:
		if !x.Valid {
			return Date{}, false
		}
		return Normalize(x.Time)
	case sql.NullString:
		if !x.Valid {
			return Date{}, false
		}
		return parseString(x.String)
	case string:
		return parseString(x)
	case *string:
		if x == nil {
			return Date{}, false
		}
		return parseString(*x)
	case []byte:
		return parseString(string(x))
	default:
		return Date{}, false
	}
}

func parseString(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return FromTime(t), true
		}
	}
	return Date{}, false
}

// ParseDate is the strict form used for user input: it reports why a value was rejected.
func ParseDate(s string) (Date, error) {
	d, ok := parseString(s)
	if !ok {
		return Date{}, fmt.Errorf("invalid date %q", s)
	}
	return d, nil
}

// NullDate is a Date that may be absent. Absent dates never compare.
type NullDate struct {
	Date  Date
	Valid bool
}

// Some wraps a present date.
func Some(d Date) NullDate { return NullDate{Date: d, Valid: true} }

// NullDateOf normalizes v into a NullDate.
func NullDateOf(v any) NullDate {
	d, ok := Normalize(v)
	return NullDate{Date: d, Valid: ok}
}

// Same reports whether both values are absent or both hold the same day.
func (n NullDate) Same(o NullDate) bool {
	if n.Valid != o.Valid {
		return false
	}
	return !n.Valid || n.Date.Equal(o.Date)
}

// Ptr returns the ISO form or nil when absent.
func (n NullDate) Ptr() *string {
	if !n.Valid {
		return nil
	}
	s := n.Date.String()
	return &s
}

func (n NullDate) String() string {
	if !n.Valid {
		return ""
	}
	return n.Date.String()
}

// Scan implements sql.Scanner. Malformed column values scan as absent.
func (n *NullDate) Scan(value any) error {
	n.Date, n.Valid = Normalize(value)
	return nil
}

// Value implements driver.Valuer, storing ISO calendar days.
func (n NullDate) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Date.String(), nil
}

func (n NullDate) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Date.String())
}

func (n *NullDate) UnmarshalJSON(data []byte) error {
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		*n = NullDate{}
		return nil
	}
	*n = NullDateOf(s)
	return nil
}

// UnmarshalYAML lets import files carry dates in any accepted layout.
func (n *NullDate) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode || node.Tag == "!!null" {
		*n = NullDate{}
		return nil
	}
	*n = NullDateOf(node.Value)
	return nil
}
