package memory

import (
	"context"
	"sort"
	"sync"

	consumption "billing-cloud/internal/consumption/domain"
)

// Meter carries the attributes ingestion attaches to each sample.
type Meter struct {
	ID       string
	ClientID string
	UnitID   string
	Floor    string
}

// SampleSource is an in-memory sample source for demo/testing.
type SampleSource struct {
	mu      sync.RWMutex
	meters  map[string]Meter
	samples map[string][]consumption.Sample
}

// NewSampleSource constructs an empty source.
func NewSampleSource() *SampleSource {
	return &SampleSource{
		meters:  make(map[string]Meter),
		samples: make(map[string][]consumption.Sample),
	}
}

// AddMeter registers a meter.
func (s *SampleSource) AddMeter(meter Meter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meters[meter.ID] = meter
}

// Append stores samples; unit and floor are taken from the registered meter.
func (s *SampleSource) Append(samples ...consumption.Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sample := range samples {
		if meter, ok := s.meters[sample.MeterID]; ok {
			sample.UnitID = meter.UnitID
			sample.Floor = meter.Floor
		}
		s.samples[sample.MeterID] = append(s.samples[sample.MeterID], sample)
	}
}

// Samples returns samples of the client's meters within [From, To), ordered by time.
func (s *SampleSource) Samples(ctx context.Context, req consumption.SampleRequest) ([]consumption.Sample, error) {
	_ = ctx
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var wanted map[string]struct{}
	if len(req.MeterIDs) > 0 {
		wanted = make(map[string]struct{}, len(req.MeterIDs))
		for _, id := range req.MeterIDs {
			wanted[id] = struct{}{}
		}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []consumption.Sample
	for meterID, samples := range s.samples {
		meter, ok := s.meters[meterID]
		if !ok || meter.ClientID != req.ClientID {
			continue
		}
		if wanted != nil {
			if _, ok := wanted[meterID]; !ok {
				continue
			}
		}
		for _, sample := range samples {
			if sample.Timestamp.Before(req.From) || !sample.Timestamp.Before(req.To) {
				continue
			}
			result = append(result, sample)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].Timestamp.Before(result[j].Timestamp)
		}
		return result[i].MeterID < result[j].MeterID
	})
	return result, nil
}
