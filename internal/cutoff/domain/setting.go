package cutoff

import (
	"fmt"
	"time"
)

// Setting is the moment within a calendar month at which a billing period boundary falls.
type Setting struct {
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
	Second int `json:"second"`
}

// DefaultSetting is the system-wide cutoff used when no override exists.
var DefaultSetting = Setting{Day: 26, Hour: 23, Minute: 59, Second: 59}

// Validate checks setting ranges. Day is validated independently of any month length.
func (s Setting) Validate() error {
	if s.Day < 1 || s.Day > 31 {
		return fmt.Errorf("%w: day %d", ErrInvalidSetting, s.Day)
	}
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("%w: hour %d", ErrInvalidSetting, s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("%w: minute %d", ErrInvalidSetting, s.Minute)
	}
	if s.Second < 0 || s.Second > 59 {
		return fmt.Errorf("%w: second %d", ErrInvalidSetting, s.Second)
	}
	return nil
}

// String renders the setting as "day 26 23:59:59".
func (s Setting) String() string {
	return fmt.Sprintf("day %d %02d:%02d:%02d", s.Day, s.Hour, s.Minute, s.Second)
}

func (s Setting) secondOfDay() int {
	return s.Hour*3600 + s.Minute*60 + s.Second
}

// Level is a scope level of the override hierarchy.
type Level string

const (
	// LevelUnit overrides apply to one metered unit and take precedence over all others.
	LevelUnit Level = "unit"
	// LevelClient overrides apply to every unit of a client.
	LevelClient Level = "client"
	// LevelProvider overrides apply to every client of a provider.
	LevelProvider Level = "provider"
	// LevelSystem is the global override, falling back to the built-in default.
	LevelSystem Level = "system"
)

// IsValid reports whether the level is one of the supported values.
func (l Level) IsValid() bool {
	switch l {
	case LevelUnit, LevelClient, LevelProvider, LevelSystem:
		return true
	default:
		return false
	}
}

// ParseLevel normalizes a level string.
func ParseLevel(value string) (Level, error) {
	level := Level(value)
	if !level.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidLevel, value)
	}
	return level, nil
}

// Scope anchors a cutoff lookup in the organizational hierarchy.
// UnitID is optional; ClientID and ProviderID are required.
type Scope struct {
	UnitID     string `json:"unit_id,omitempty"`
	ClientID   string `json:"client_id"`
	ProviderID string `json:"provider_id"`
}

// Validate checks the required scope components.
func (s Scope) Validate() error {
	if s.ClientID == "" {
		return fmt.Errorf("%w: missing client id", ErrInvalidScope)
	}
	if s.ProviderID == "" {
		return fmt.Errorf("%w: missing provider id", ErrInvalidScope)
	}
	return nil
}

// EntityID returns the scope component addressed by level.
func (s Scope) EntityID(level Level) string {
	switch level {
	case LevelUnit:
		return s.UnitID
	case LevelClient:
		return s.ClientID
	case LevelProvider:
		return s.ProviderID
	default:
		return ""
	}
}

// Override is a stored override row.
type Override struct {
	Level     Level     `json:"level"`
	EntityID  string    `json:"entity_id"`
	Setting   Setting   `json:"setting"`
	UpdatedAt time.Time `json:"updated_at"`
}
