package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	cutoff "billing-cloud/internal/cutoff/domain"
)

type overrideKey struct {
	level    cutoff.Level
	entityID string
}

// OverrideStore is an in-memory override store for demo/testing.
type OverrideStore struct {
	mu      sync.RWMutex
	data    map[overrideKey][]cutoff.Setting
	updated map[overrideKey]time.Time
}

// NewOverrideStore constructs an empty store.
func NewOverrideStore() *OverrideStore {
	return &OverrideStore{
		data:    make(map[overrideKey][]cutoff.Setting),
		updated: make(map[overrideKey]time.Time),
	}
}

// Overrides returns active overrides for an entity.
func (s *OverrideStore) Overrides(ctx context.Context, level cutoff.Level, entityID string) ([]cutoff.Setting, error) {
	_ = ctx
	if !level.IsValid() {
		return nil, cutoff.ErrInvalidLevel
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.data[overrideKey{level: level, entityID: entityID}]
	if len(rows) == 0 {
		return nil, nil
	}
	result := make([]cutoff.Setting, len(rows))
	copy(result, rows)
	return result, nil
}

// SetOverride replaces the override for an entity.
func (s *OverrideStore) SetOverride(ctx context.Context, level cutoff.Level, entityID string, setting cutoff.Setting) error {
	_ = ctx
	if !level.IsValid() {
		return cutoff.ErrInvalidLevel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := overrideKey{level: level, entityID: entityID}
	s.data[key] = []cutoff.Setting{setting}
	s.updated[key] = time.Now().UTC()
	return nil
}

// ClearOverride removes every override for an entity.
func (s *OverrideStore) ClearOverride(ctx context.Context, level cutoff.Level, entityID string) error {
	_ = ctx
	if !level.IsValid() {
		return cutoff.ErrInvalidLevel
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := overrideKey{level: level, entityID: entityID}
	delete(s.data, key)
	delete(s.updated, key)
	return nil
}

// List returns every stored override ordered by level and entity.
func (s *OverrideStore) List(ctx context.Context) ([]cutoff.Override, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []cutoff.Override
	for key, settings := range s.data {
		for _, setting := range settings {
			result = append(result, cutoff.Override{
				Level:     key.level,
				EntityID:  key.entityID,
				Setting:   setting,
				UpdatedAt: s.updated[key],
			})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Level != result[j].Level {
			return result[i].Level < result[j].Level
		}
		return result[i].EntityID < result[j].EntityID
	})
	return result, nil
}

// Seed appends raw rows without replacing, mirroring duplicated rows loaded from a legacy import.
func (s *OverrideStore) Seed(level cutoff.Level, entityID string, settings ...cutoff.Setting) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := overrideKey{level: level, entityID: entityID}
	s.data[key] = append(s.data[key], settings...)
}
