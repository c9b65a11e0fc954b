package consumption

import (
	"time"

	cutoff "billing-cloud/internal/cutoff/domain"
)

// YearMonth is a calendar month.
type YearMonth struct {
	Year  int
	Month time.Month
}

// Coverage records which effective dates and calendar months a period has data for.
type Coverage struct {
	Label  cutoff.Label
	Dates  map[time.Time]struct{}
	Months map[YearMonth]struct{}
}

// NewCoverage returns an empty coverage for a period.
func NewCoverage(label cutoff.Label) *Coverage {
	return &Coverage{
		Label:  label,
		Dates:  make(map[time.Time]struct{}),
		Months: make(map[YearMonth]struct{}),
	}
}

// Observe records one effective date.
func (c *Coverage) Observe(effectiveDate time.Time) {
	date := cutoff.CivilDate(effectiveDate)
	c.Dates[date] = struct{}{}
	c.Months[YearMonth{Year: date.Year(), Month: date.Month()}] = struct{}{}
}

// DistinctDates returns the number of distinct effective dates observed.
func (c *Coverage) DistinctDates() int {
	if c == nil {
		return 0
	}
	return len(c.Dates)
}

// MonthsTouched returns the number of calendar months observed.
func (c *Coverage) MonthsTouched() int {
	if c == nil {
		return 0
	}
	return len(c.Months)
}

// HasMonth reports whether the calendar month was observed.
func (c *Coverage) HasMonth(year int, month time.Month) bool {
	if c == nil {
		return false
	}
	_, ok := c.Months[YearMonth{Year: year, Month: month}]
	return ok
}

// AssembleCoverage labels every sample and builds per-period coverage.
// Timestamps are converted to loc before labeling; nil loc keeps each timestamp's own location.
func AssembleCoverage(samples []Sample, cut cutoff.Resolved, loc *time.Location) map[cutoff.Label]*Coverage {
	result := make(map[cutoff.Label]*Coverage)
	for _, sample := range samples {
		ts := inLocation(sample.Timestamp, loc)
		label := cutoff.LabelFor(ts, cut)
		cov := result[label]
		if cov == nil {
			cov = NewCoverage(label)
			result[label] = cov
		}
		cov.Observe(cutoff.EffectiveDate(ts, cut))
	}
	return result
}

// CompletenessValidator decides whether a period is closed and reportable.
type CompletenessValidator struct {
	toleranceDays int
}

// NewCompletenessValidator constructs a validator permitting toleranceDays missing dates.
func NewCompletenessValidator(toleranceDays int) (*CompletenessValidator, error) {
	if toleranceDays < 0 {
		return nil, ErrNegativeTolerance
	}
	return &CompletenessValidator{toleranceDays: toleranceDays}, nil
}

// ToleranceDays returns the permitted number of missing dates.
func (v *CompletenessValidator) ToleranceDays() int { return v.toleranceDays }

// IsComplete requires data from every constituent calendar month and enough distinct dates.
func (v *CompletenessValidator) IsComplete(cov *Coverage, cut cutoff.Resolved) bool {
	if cov == nil {
		return false
	}
	if cov.MonthsTouched() < RequiredMonths(cut) {
		return false
	}
	return cov.DistinctDates() >= cutoff.ExpectedDays(cov.Label, cut)-v.toleranceDays
}

// RequiredMonths returns how many calendar months a complete period must touch.
func RequiredMonths(cut cutoff.Resolved) int {
	if cut.SingleMonth() {
		return 1
	}
	return 2
}

func inLocation(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		return t
	}
	return t.In(loc)
}
