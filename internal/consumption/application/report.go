package application

import (
	"time"

	consumption "billing-cloud/internal/consumption/domain"
	cutoff "billing-cloud/internal/cutoff/domain"
)

// ReportRequest asks for the billing periods of one client.
// Either Period or a From/To window selects the samples.
type ReportRequest struct {
	ClientID       string             `json:"client_id" validate:"required,max=128"`
	ProviderID     string             `json:"provider_id" validate:"required,max=128"`
	UnitID         string             `json:"unit_id,omitempty" validate:"max=128"`
	Period         *cutoff.Label      `json:"period,omitempty"`
	From           time.Time          `json:"from,omitempty"`
	To             time.Time          `json:"to,omitempty"`
	Filter         consumption.Filter `json:"filter,omitempty"`
	IncludePartial bool               `json:"include_partial,omitempty"`
}

// Scope returns the cutoff scope the request resolves against.
func (r ReportRequest) Scope() cutoff.Scope {
	unitID := r.UnitID
	if unitID == "" {
		unitID = r.Filter.UnitID
	}
	return cutoff.Scope{UnitID: unitID, ClientID: r.ClientID, ProviderID: r.ProviderID}
}

// PeriodReport is one billing period of a report.
type PeriodReport struct {
	Label         cutoff.Label           `json:"label"`
	Complete      bool                   `json:"complete"`
	FirstDate     time.Time              `json:"first_date"`
	LastDate      time.Time              `json:"last_date"`
	ExpectedDays  int                    `json:"expected_days"`
	DistinctDates int                    `json:"distinct_dates"`
	MonthsTouched int                    `json:"months_touched"`
	Aggregate     *consumption.Aggregate `json:"aggregate"`
}

// Report is the outcome of one report request.
// Periods holds closed periods and, when requested, partial periods flagged with Complete=false.
type Report struct {
	ID             string          `json:"id"`
	ClientID       string          `json:"client_id"`
	ProviderID     string          `json:"provider_id"`
	UnitID         string          `json:"unit_id,omitempty"`
	Cutoff         cutoff.Resolved `json:"cutoff"`
	Regime         string          `json:"regime"`
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	ToleranceDays  int             `json:"tolerance_days"`
	Periods        []PeriodReport  `json:"periods"`
	PartialPeriods int             `json:"partial_periods"`
	SampleCount    int             `json:"sample_count"`
	GeneratedAt    time.Time       `json:"generated_at"`
	Cached         bool            `json:"cached"`
}

// Complete reports whether every period in the window was closed.
func (r *Report) Complete() bool {
	return r != nil && r.PartialPeriods == 0
}

// ClosedPeriods returns only the complete periods.
func (r *Report) ClosedPeriods() []PeriodReport {
	if r == nil {
		return nil
	}
	closed := make([]PeriodReport, 0, len(r.Periods))
	for _, period := range r.Periods {
		if period.Complete {
			closed = append(closed, period)
		}
	}
	return closed
}

// TotalSum returns the consumption sum over closed periods.
func (r *Report) TotalSum() float64 {
	var total float64
	for _, period := range r.ClosedPeriods() {
		if period.Aggregate != nil {
			total += period.Aggregate.Sum
		}
	}
	return total
}
