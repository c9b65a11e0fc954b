package consumption

import (
	"context"
	"sort"
	"time"

	cutoff "billing-cloud/internal/cutoff/domain"
)

// BucketConfig defines the daytime window [DayStartHour, DayEndHour). A start after the end wraps midnight.
// DayEndHour may be 24 for a window that runs until midnight.
type BucketConfig struct {
	DayStartHour int `json:"day_start_hour" yaml:"day_start_hour"`
	DayEndHour   int `json:"day_end_hour" yaml:"day_end_hour"`
}

// DefaultBuckets is 08:00 to 20:00 daytime.
var DefaultBuckets = BucketConfig{DayStartHour: 8, DayEndHour: 20}

// Validate checks bucket hours.
func (b BucketConfig) Validate() error {
	if b.DayStartHour < 0 || b.DayStartHour > 23 || b.DayEndHour < 0 || b.DayEndHour > 24 {
		return ErrInvalidBuckets
	}
	if b.DayStartHour == b.DayEndHour {
		return ErrInvalidBuckets
	}
	return nil
}

// IsDaytime reports whether an hour falls in the daytime window.
func (b BucketConfig) IsDaytime(hour int) bool {
	if b.DayStartHour < b.DayEndHour {
		return hour >= b.DayStartHour && hour < b.DayEndHour
	}
	return hour >= b.DayStartHour || hour < b.DayEndHour
}

// Aggregate holds per-period statistics computed on the combined series.
type Aggregate struct {
	Label        cutoff.Label `json:"label"`
	Sum          float64      `json:"sum"`
	Max          float64      `json:"max"`
	MaxAt        time.Time    `json:"max_at"`
	Min          float64      `json:"min"`
	MinAt        time.Time    `json:"min_at"`
	Count        int          `json:"count"`
	SampleCount  int          `json:"sample_count"`
	WeekdaySum   float64      `json:"weekday_sum"`
	WeekendSum   float64      `json:"weekend_sum"`
	DaytimeSum   float64      `json:"daytime_sum"`
	NighttimeSum float64      `json:"nighttime_sum"`
	HourlySums   [24]float64  `json:"hourly_sums"`
	First        time.Time    `json:"first"`
	Last         time.Time    `json:"last"`
}

// Average returns the mean combined value per timestamp.
func (a *Aggregate) Average() float64 {
	if a == nil || a.Count == 0 {
		return 0
	}
	return a.Sum / float64(a.Count)
}

// AggregateOptions narrows an aggregation.
// A non-nil Cutoff is used as is instead of resolving the scope.
type AggregateOptions struct {
	Period *cutoff.Label
	Filter Filter
	Cutoff *cutoff.Resolved
}

// Result is the full outcome of one aggregation call.
type Result struct {
	Cutoff   cutoff.Resolved
	Periods  map[cutoff.Label]*Aggregate
	Coverage map[cutoff.Label]*Coverage
}

// Labels returns the period labels in chronological order.
func (r *Result) Labels() []cutoff.Label {
	labels := make([]cutoff.Label, 0, len(r.Periods))
	for label := range r.Periods {
		labels = append(labels, label)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i].Before(labels[j]) })
	return labels
}

// Aggregator tags samples with billing periods and computes per-period statistics.
type Aggregator struct {
	resolver *cutoff.Resolver
	loc      *time.Location
	buckets  BucketConfig
}

// AggregatorOption configures the aggregator.
type AggregatorOption func(*Aggregator)

// WithLocation sets the location timestamps are interpreted in.
func WithLocation(loc *time.Location) AggregatorOption {
	return func(a *Aggregator) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// WithBuckets sets the daytime window used for time-of-day sums.
func WithBuckets(buckets BucketConfig) AggregatorOption {
	return func(a *Aggregator) {
		a.buckets = buckets
	}
}

// NewAggregator constructs an aggregator.
func NewAggregator(resolver *cutoff.Resolver, opts ...AggregatorOption) (*Aggregator, error) {
	if resolver == nil {
		return nil, ErrNilResolver
	}
	a := &Aggregator{resolver: resolver, loc: time.UTC, buckets: DefaultBuckets}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.buckets.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Location returns the aggregation location.
func (a *Aggregator) Location() *time.Location { return a.loc }

// Aggregate returns per-period aggregates for the samples.
func (a *Aggregator) Aggregate(ctx context.Context, samples []Sample, scope cutoff.Scope, opts AggregateOptions) (map[cutoff.Label]*Aggregate, error) {
	result, err := a.Run(ctx, samples, scope, opts)
	if err != nil {
		return nil, err
	}
	return result.Periods, nil
}

func (a *Aggregator) cutoffFor(ctx context.Context, scope cutoff.Scope, opts AggregateOptions) (cutoff.Resolved, error) {
	if opts.Cutoff != nil {
		return *opts.Cutoff, nil
	}
	return a.resolver.NewCache().Resolve(ctx, scope)
}

type point struct {
	at      time.Time
	value   float64
	samples int
}

// Run aggregates samples and also returns the cutoff used and per-period coverage.
// Values of different meters at the same timestamp are summed before any period statistic.
func (a *Aggregator) Run(ctx context.Context, samples []Sample, scope cutoff.Scope, opts AggregateOptions) (*Result, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyInput
	}
	if scope.UnitID == "" && opts.Filter.UnitID != "" {
		scope.UnitID = opts.Filter.UnitID
	}

	cut, err := a.cutoffFor(ctx, scope, opts)
	if err != nil {
		return nil, err
	}

	match := opts.Filter.matcher()
	series := make(map[cutoff.Label]map[int64]*point)
	coverage := make(map[cutoff.Label]*Coverage)
	for _, sample := range samples {
		if !match(sample) {
			continue
		}
		ts := sample.Timestamp.In(a.loc)
		label := cutoff.LabelFor(ts, cut)
		if opts.Period != nil && label != *opts.Period {
			continue
		}

		points := series[label]
		if points == nil {
			points = make(map[int64]*point)
			series[label] = points
			coverage[label] = NewCoverage(label)
		}
		key := ts.UnixNano()
		p := points[key]
		if p == nil {
			p = &point{at: ts}
			points[key] = p
		}
		p.value += sample.Value
		p.samples++
		coverage[label].Observe(cutoff.EffectiveDate(ts, cut))
	}

	periods := make(map[cutoff.Label]*Aggregate, len(series))
	for label, points := range series {
		periods[label] = a.summarize(label, points)
	}
	return &Result{Cutoff: cut, Periods: periods, Coverage: coverage}, nil
}

func (a *Aggregator) summarize(label cutoff.Label, points map[int64]*point) *Aggregate {
	ordered := make([]*point, 0, len(points))
	for _, p := range points {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].at.Before(ordered[j].at) })

	agg := &Aggregate{Label: label}
	for i, p := range ordered {
		if i == 0 || p.value > agg.Max {
			agg.Max = p.value
			agg.MaxAt = p.at
		}
		if i == 0 || p.value < agg.Min {
			agg.Min = p.value
			agg.MinAt = p.at
		}
		agg.Sum += p.value
		agg.Count++
		agg.SampleCount += p.samples

		switch p.at.Weekday() {
		case time.Saturday, time.Sunday:
			agg.WeekendSum += p.value
		default:
			agg.WeekdaySum += p.value
		}
		hour := p.at.Hour()
		if a.buckets.IsDaytime(hour) {
			agg.DaytimeSum += p.value
		} else {
			agg.NighttimeSum += p.value
		}
		agg.HourlySums[hour] += p.value
	}
	if len(ordered) > 0 {
		agg.First = ordered[0].at
		agg.Last = ordered[len(ordered)-1].at
	}
	return agg
}
