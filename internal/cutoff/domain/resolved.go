package cutoff

// Regime selects the day-of-month mapping arithmetic.
type Regime int

const (
	regimeUnknown Regime = iota
	// RegimeEarly applies to cutoff days up to the 15th: period M starts in M.
	RegimeEarly
	// RegimeLate applies to cutoff days after the 15th: period M starts in M-1.
	RegimeLate
)

const regimeThresholdDay = 15

// String returns the regime name.
func (r Regime) String() string {
	if r == RegimeLate {
		return "late"
	}
	return "early"
}

// RegimeFor derives the regime of a cutoff day.
func RegimeFor(day int) Regime {
	if day > regimeThresholdDay {
		return RegimeLate
	}
	return RegimeEarly
}

// Resolved is an effective cutoff setting plus the level that supplied it.
type Resolved struct {
	Setting  Setting `json:"setting"`
	Source   Level   `json:"source"`
	EntityID string  `json:"entity_id,omitempty"`

	regime Regime
}

// NewResolved builds a Resolved cutoff and derives its regime.
func NewResolved(setting Setting, source Level, entityID string) (Resolved, error) {
	if err := setting.Validate(); err != nil {
		return Resolved{}, err
	}
	if !source.IsValid() {
		return Resolved{}, ErrInvalidLevel
	}
	return Resolved{
		Setting:  setting,
		Source:   source,
		EntityID: entityID,
		regime:   RegimeFor(setting.Day),
	}, nil
}

// Regime returns the mapping regime derived at construction.
// Values decoded from storage or JSON derive it from the setting.
func (r Resolved) Regime() Regime {
	if r.regime == regimeUnknown {
		return RegimeFor(r.Setting.Day)
	}
	return r.regime
}

// SingleMonth reports whether every period lies within one calendar month.
func (r Resolved) SingleMonth() bool { return r.Setting.Day == 1 }

// shiftsEarlyHours reports whether Rule A moves pre-cutoff readings to the previous day.
func (r Resolved) shiftsEarlyHours() bool { return r.Setting.Hour < 12 }
