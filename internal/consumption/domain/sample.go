package consumption

import "time"

// Sample is one timestamped meter reading. Unit and floor attributes come from ingestion.
type Sample struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
	MeterID   string    `json:"meter_id"`
	UnitID    string    `json:"unit_id,omitempty"`
	Floor     string    `json:"floor,omitempty"`
}

// Filter restricts an aggregation to a sub-scope. Empty fields do not restrict.
type Filter struct {
	Floor    string   `json:"floor,omitempty"`
	UnitID   string   `json:"unit_id,omitempty"`
	MeterIDs []string `json:"meter_ids,omitempty"`
}

// IsEmpty reports whether the filter restricts nothing.
func (f Filter) IsEmpty() bool {
	return f.Floor == "" && f.UnitID == "" && len(f.MeterIDs) == 0
}

func (f Filter) matcher() func(Sample) bool {
	if f.IsEmpty() {
		return func(Sample) bool { return true }
	}
	var meters map[string]struct{}
	if len(f.MeterIDs) > 0 {
		meters = make(map[string]struct{}, len(f.MeterIDs))
		for _, id := range f.MeterIDs {
			meters[id] = struct{}{}
		}
	}
	return func(s Sample) bool {
		if f.Floor != "" && s.Floor != f.Floor {
			return false
		}
		if f.UnitID != "" && s.UnitID != f.UnitID {
			return false
		}
		if meters != nil {
			if _, ok := meters[s.MeterID]; !ok {
				return false
			}
		}
		return true
	}
}

// SampleRequest selects samples for one client over [From, To).
type SampleRequest struct {
	ClientID string
	MeterIDs []string
	From     time.Time
	To       time.Time
}

// Validate checks the request window.
func (r SampleRequest) Validate() error {
	if r.ClientID == "" {
		return ErrEmptyClientID
	}
	if r.From.IsZero() || r.To.IsZero() || !r.From.Before(r.To) {
		return ErrInvalidWindow
	}
	return nil
}
