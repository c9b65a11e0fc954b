package application

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	consumption "billing-cloud/internal/consumption/domain"
)

// ClientPolicy holds report settings for one client.
type ClientPolicy struct {
	ToleranceDays *int                     `yaml:"tolerance_days"`
	Buckets       consumption.BucketConfig `yaml:"buckets"`
}

// BucketOverride sets individual daytime bucket hours. Nil fields inherit.
type BucketOverride struct {
	DayStartHour *int `yaml:"day_start_hour"`
	DayEndHour   *int `yaml:"day_end_hour"`
}

// ClientOverride holds the settings a client changes relative to the defaults.
type ClientOverride struct {
	ToleranceDays *int           `yaml:"tolerance_days"`
	Buckets       BucketOverride `yaml:"buckets"`
}

// ReportPolicy holds report defaults and per-client overrides.
type ReportPolicy struct {
	Defaults ClientPolicy
	Clients  map[string]ClientOverride
}

type policyFile struct {
	Defaults ClientOverride            `yaml:"defaults"`
	Clients  map[string]ClientOverride `yaml:"clients"`
}

// DefaultToleranceDays is the number of missing dates a closed period may have.
const DefaultToleranceDays = 1

// DefaultReportPolicy returns the built-in policy.
func DefaultReportPolicy() ReportPolicy {
	tolerance := DefaultToleranceDays
	return ReportPolicy{
		Defaults: ClientPolicy{ToleranceDays: &tolerance, Buckets: consumption.DefaultBuckets},
	}
}

// LoadReportPolicy reads a yaml policy file over the defaults. An empty path returns the defaults.
func LoadReportPolicy(path string) (ReportPolicy, error) {
	policy := DefaultReportPolicy()
	if path == "" {
		return policy, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("report policy: %w", err)
	}
	return ParseReportPolicy(data)
}

// ParseReportPolicy decodes yaml over the defaults and validates every entry.
func ParseReportPolicy(data []byte) (ReportPolicy, error) {
	policy := DefaultReportPolicy()
	var decoded policyFile
	if err := yaml.Unmarshal(data, &decoded); err != nil {
		return policy, fmt.Errorf("report policy: %w", err)
	}
	policy.Defaults = mergePolicy(policy.Defaults, decoded.Defaults)
	policy.Clients = decoded.Clients
	if err := policy.Validate(); err != nil {
		return policy, err
	}
	return policy, nil
}

// Validate checks tolerance and bucket settings of the defaults and every client.
func (p ReportPolicy) Validate() error {
	if err := validateClientPolicy(p.Defaults); err != nil {
		return fmt.Errorf("report policy defaults: %w", err)
	}
	for clientID := range p.Clients {
		if err := validateClientPolicy(p.ForClient(clientID)); err != nil {
			return fmt.Errorf("report policy client %q: %w", clientID, err)
		}
	}
	return nil
}

// ForClient returns the effective policy of a client.
func (p ReportPolicy) ForClient(clientID string) ClientPolicy {
	if p.Clients != nil {
		if override, ok := p.Clients[clientID]; ok {
			return mergePolicy(p.Defaults, override)
		}
	}
	return p.Defaults
}

// Tolerance returns the tolerance days, falling back to the package default.
func (c ClientPolicy) Tolerance() int {
	if c.ToleranceDays == nil {
		return DefaultToleranceDays
	}
	return *c.ToleranceDays
}

func mergePolicy(base ClientPolicy, override ClientOverride) ClientPolicy {
	if override.ToleranceDays != nil {
		tolerance := *override.ToleranceDays
		base.ToleranceDays = &tolerance
	}
	if override.Buckets.DayStartHour != nil {
		base.Buckets.DayStartHour = *override.Buckets.DayStartHour
	}
	if override.Buckets.DayEndHour != nil {
		base.Buckets.DayEndHour = *override.Buckets.DayEndHour
	}
	return base
}

func validateClientPolicy(policy ClientPolicy) error {
	if policy.Tolerance() < 0 {
		return consumption.ErrNegativeTolerance
	}
	return policy.Buckets.Validate()
}
