package cutoff

import (
	"fmt"
	"time"
)

const labelLayout = "2006-01"

// Label identifies one billing period ("cutoff month") by the calendar month it is named after.
type Label struct {
	Year  int
	Month time.Month
}

// NewLabel builds a label, normalizing month overflow.
func NewLabel(year int, month time.Month) Label {
	t := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Label{Year: t.Year(), Month: t.Month()}
}

// ParseLabel parses "YYYY-MM".
func ParseLabel(value string) (Label, error) {
	t, err := time.Parse(labelLayout, value)
	if err != nil {
		return Label{}, fmt.Errorf("%w: %q", ErrInvalidLabel, value)
	}
	return Label{Year: t.Year(), Month: t.Month()}, nil
}

// String returns "YYYY-MM".
func (l Label) String() string {
	return fmt.Sprintf("%04d-%02d", l.Year, int(l.Month))
}

// IsZero reports whether the label is unset.
func (l Label) IsZero() bool { return l.Year == 0 && l.Month == 0 }

// Compare orders labels chronologically.
func (l Label) Compare(other Label) int {
	switch {
	case l.Year < other.Year:
		return -1
	case l.Year > other.Year:
		return 1
	case l.Month < other.Month:
		return -1
	case l.Month > other.Month:
		return 1
	default:
		return 0
	}
}

// Before reports whether l is chronologically earlier than other.
func (l Label) Before(other Label) bool { return l.Compare(other) < 0 }

// Next returns the following period label.
func (l Label) Next() Label { return NewLabel(l.Year, l.Month+1) }

// Prev returns the preceding period label.
func (l Label) Prev() Label { return NewLabel(l.Year, l.Month-1) }

// MarshalText implements encoding.TextMarshaler so labels can key JSON maps.
func (l Label) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Label) UnmarshalText(data []byte) error {
	parsed, err := ParseLabel(string(data))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// LabelFor maps a timestamp to the billing period it belongs to.
// The timestamp is interpreted in its own location.
func LabelFor(t time.Time, cut Resolved) Label {
	date := EffectiveDate(t, cut)
	year, month, day := date.Date()
	current := Label{Year: year, Month: month}
	boundary := clampDay(year, month, cut.Setting.Day)

	switch cut.Regime() {
	case RegimeLate:
		if day >= boundary {
			return current.Next()
		}
		return current
	default:
		if day >= boundary {
			return current
		}
		return current.Prev()
	}
}

// EffectiveDate returns the calendar date used for period mapping, at midnight in t's location.
// Cutoffs before noon attribute readings earlier than the cutoff time-of-day to the previous day.
func EffectiveDate(t time.Time, cut Resolved) time.Time {
	date := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	if !cut.shiftsEarlyHours() {
		return date
	}
	secondOfDay := t.Hour()*3600 + t.Minute()*60 + t.Second()
	if secondOfDay < cut.Setting.secondOfDay() {
		return date.AddDate(0, 0, -1)
	}
	return date
}

// Bounds returns the first and last effective dates (inclusive, UTC midnight) of a period.
func Bounds(label Label, cut Resolved) (time.Time, time.Time) {
	day := cut.Setting.Day
	var startMonth, endMonth Label
	switch cut.Regime() {
	case RegimeLate:
		startMonth, endMonth = label.Prev(), label
	default:
		startMonth, endMonth = label, label.Next()
	}
	first := civilDate(startMonth.Year, startMonth.Month, clampDay(startMonth.Year, startMonth.Month, day))
	next := civilDate(endMonth.Year, endMonth.Month, clampDay(endMonth.Year, endMonth.Month, day))
	return first, next.AddDate(0, 0, -1)
}

// ExpectedDays returns the number of effective dates in a period.
func ExpectedDays(label Label, cut Resolved) int {
	first, last := Bounds(label, cut)
	return int(last.Sub(first).Hours()/24) + 1
}

// CivilDate truncates t to its calendar date and re-anchors it at UTC midnight.
func CivilDate(t time.Time) time.Time {
	return civilDate(t.Year(), t.Month(), t.Day())
}

func civilDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func clampDay(year int, month time.Month, day int) int {
	if last := daysIn(year, month); day > last {
		return last
	}
	return day
}
