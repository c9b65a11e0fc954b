package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	consumption "billing-cloud/internal/consumption/domain"
	cutoff "billing-cloud/internal/cutoff/domain"
	"billing-cloud/internal/observability/metrics"
)

// SampleSource loads samples for a client window.
type SampleSource interface {
	Samples(ctx context.Context, req consumption.SampleRequest) ([]consumption.Sample, error)
}

// ReportCache stores encoded closed reports under versioned keys.
type ReportCache interface {
	Version(ctx context.Context) (int64, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ReportService builds billing-period reports.
type ReportService struct {
	source      SampleSource
	resolver    *cutoff.Resolver
	policy      ReportPolicy
	loc         *time.Location
	cache       ReportCache
	cacheTTL    time.Duration
	concurrency int
	logger      *log.Logger
	validate    *validator.Validate
	now         func() time.Time
	inflight    singleflight.Group
}

// ReportOption configures the report service.
type ReportOption func(*ReportService)

// WithPolicy sets the report policy.
func WithPolicy(policy ReportPolicy) ReportOption {
	return func(s *ReportService) {
		s.policy = policy
	}
}

// WithLocation sets the billing time zone.
func WithLocation(loc *time.Location) ReportOption {
	return func(s *ReportService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithCache enables caching of fully closed reports.
func WithCache(cache ReportCache, ttl time.Duration) ReportOption {
	return func(s *ReportService) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithConcurrency bounds parallel batch generation.
func WithConcurrency(n int) ReportOption {
	return func(s *ReportService) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) ReportOption {
	return func(s *ReportService) {
		s.logger = logger
	}
}

// NewReportService constructs a report service.
func NewReportService(source SampleSource, resolver *cutoff.Resolver, opts ...ReportOption) (*ReportService, error) {
	if source == nil {
		return nil, ErrNilSource
	}
	if resolver == nil {
		return nil, ErrNilAggregator
	}
	s := &ReportService{
		source:      source,
		resolver:    resolver,
		policy:      DefaultReportPolicy(),
		loc:         time.UTC,
		concurrency: 4,
		validate:    validator.New(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.policy.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Location returns the billing time zone.
func (s *ReportService) Location() *time.Location { return s.loc }

// Generate builds a report for one request.
func (s *ReportService) Generate(ctx context.Context, req ReportRequest) (*Report, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveReportGenerate(result, time.Since(start))
	}()

	report, err := s.generate(ctx, req)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return report, nil
}

// GenerateBatch builds reports in parallel. Results are index-aligned with reqs.
func (s *ReportService) GenerateBatch(ctx context.Context, reqs []ReportRequest) ([]*Report, error) {
	reports := make([]*Report, len(reqs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range reqs {
		g.Go(func() error {
			report, err := s.Generate(gctx, reqs[i])
			if err != nil {
				return fmt.Errorf("report batch item %d: %w", i, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (s *ReportService) generate(ctx context.Context, req ReportRequest) (*Report, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}
	scope := req.Scope()
	cut, err := s.resolver.Resolve(ctx, scope)
	if err != nil {
		return nil, err
	}
	from, to := s.window(req, cut)
	policy := s.policy.ForClient(req.ClientID)

	if s.cache == nil {
		return s.build(ctx, req, scope, cut, policy, from, to, "")
	}
	key := s.cacheKey(ctx, req, cut, policy, from, to)
	if key == "" {
		return s.build(ctx, req, scope, cut, policy, from, to, "")
	}
	if cached := s.lookup(ctx, key); cached != nil {
		return cached, nil
	}
	return s.buildShared(ctx, key, func(ctx context.Context) (*Report, error) {
		return s.build(ctx, req, scope, cut, policy, from, to, key)
	})
}

// sharedBuildTimeout bounds a collapsed build, which outlives the caller that started it.
const sharedBuildTimeout = 2 * time.Minute

// buildShared collapses concurrent cache misses for one key into a single build.
// The build runs detached from the starting caller; each caller still returns on its own ctx.
func (s *ReportService) buildShared(ctx context.Context, key string, fn func(context.Context) (*Report, error)) (*Report, error) {
	results := s.inflight.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedBuildTimeout)
		defer cancel()
		return fn(shared)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		report := *res.Val.(*Report)
		return &report, nil
	}
}

func (s *ReportService) build(ctx context.Context, req ReportRequest, scope cutoff.Scope, cut cutoff.Resolved, policy ClientPolicy, from, to time.Time, key string) (*Report, error) {
	samples, err := s.source.Samples(ctx, consumption.SampleRequest{
		ClientID: req.ClientID,
		MeterIDs: req.Filter.MeterIDs,
		From:     from,
		To:       to,
	})
	if err != nil {
		return nil, fmt.Errorf("report: load samples: %w", err)
	}
	metrics.ObserveReportSamples(len(samples))

	aggregator, err := consumption.NewAggregator(s.resolver,
		consumption.WithLocation(s.loc),
		consumption.WithBuckets(policy.Buckets),
	)
	if err != nil {
		return nil, err
	}
	run, err := aggregator.Run(ctx, samples, scope, consumption.AggregateOptions{Period: req.Period, Filter: req.Filter, Cutoff: &cut})
	if err != nil {
		return nil, err
	}
	checker, err := consumption.NewCompletenessValidator(policy.Tolerance())
	if err != nil {
		return nil, err
	}

	report := &Report{
		ID:            uuid.NewString(),
		ClientID:      req.ClientID,
		ProviderID:    req.ProviderID,
		UnitID:        scope.UnitID,
		Cutoff:        run.Cutoff,
		Regime:        run.Cutoff.Regime().String(),
		From:          from,
		To:            to,
		ToleranceDays: checker.ToleranceDays(),
		SampleCount:   len(samples),
		GeneratedAt:   s.now(),
	}
	for _, label := range run.Labels() {
		cov := run.Coverage[label]
		complete := checker.IsComplete(cov, run.Cutoff)
		metrics.IncPeriodCompleteness(complete)
		if !complete {
			report.PartialPeriods++
			if !req.IncludePartial {
				continue
			}
		}
		first, last := cutoff.Bounds(label, run.Cutoff)
		report.Periods = append(report.Periods, PeriodReport{
			Label:         label,
			Complete:      complete,
			FirstDate:     first,
			LastDate:      last,
			ExpectedDays:  cutoff.ExpectedDays(label, run.Cutoff),
			DistinctDates: cov.DistinctDates(),
			MonthsTouched: cov.MonthsTouched(),
			Aggregate:     run.Periods[label],
		})
	}

	if key != "" && report.Complete() && len(report.Periods) > 0 {
		s.store(ctx, key, report)
	}
	return report, nil
}

func (s *ReportService) validateRequest(req ReportRequest) error {
	if err := s.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: %s failed %s", ErrInvalidRequest, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if req.Period == nil && (req.From.IsZero() || req.To.IsZero()) {
		return fmt.Errorf("%w: period or from/to required", ErrInvalidRequest)
	}
	if !req.From.IsZero() && !req.To.IsZero() && !req.From.Before(req.To) {
		return fmt.Errorf("%w: from must be before to", ErrInvalidRequest)
	}
	return nil
}

// window derives the sample window. A period-only request covers the period's
// effective dates plus the following calendar day, where shifted morning samples land.
func (s *ReportService) window(req ReportRequest, cut cutoff.Resolved) (time.Time, time.Time) {
	if !req.From.IsZero() && !req.To.IsZero() {
		return req.From, req.To
	}
	first, last := cutoff.Bounds(*req.Period, cut)
	from := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, s.loc)
	to := time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, s.loc).AddDate(0, 0, 2)
	return from, to
}

type cacheKeyMaterial struct {
	Request  ReportRequest
	Cutoff   cutoff.Setting
	Source   cutoff.Level
	EntityID string
	Policy   ClientPolicy
	From     time.Time
	To       time.Time
	Location string
}

func (s *ReportService) cacheKey(ctx context.Context, req ReportRequest, cut cutoff.Resolved, policy ClientPolicy, from, to time.Time) string {
	version, err := s.cache.Version(ctx)
	if err != nil {
		s.logf("report: cache version: %v", err)
		return ""
	}
	material, err := json.Marshal(cacheKeyMaterial{
		Request:  req,
		Cutoff:   cut.Setting,
		Source:   cut.Source,
		EntityID: cut.EntityID,
		Policy:   policy,
		From:     from.UTC(),
		To:       to.UTC(),
		Location: s.loc.String(),
	})
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(material)
	return fmt.Sprintf("report:v%d:%s", version, hex.EncodeToString(sum[:]))
}

func (s *ReportService) lookup(ctx context.Context, key string) *Report {
	if key == "" {
		return nil
	}
	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logf("report: cache get: %v", err)
		return nil
	}
	metrics.IncReportCache(ok)
	if !ok {
		return nil
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		s.logf("report: cache decode: %v", err)
		return nil
	}
	report.Cached = true
	return &report
}

func (s *ReportService) store(ctx context.Context, key string, report *Report) {
	data, err := json.Marshal(report)
	if err != nil {
		s.logf("report: cache encode: %v", err)
		return
	}
	if err := s.cache.Set(ctx, key, data, s.cacheTTL); err != nil {
		s.logf("report: cache set: %v", err)
	}
}

func (s *ReportService) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
