package cutoff

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

// OverrideReader reads active overrides for one entity at one level.
// An unknown entity yields no overrides rather than an error.
type OverrideReader interface {
	Overrides(ctx context.Context, level Level, entityID string) ([]Setting, error)
}

// OverrideWriter mutates overrides.
type OverrideWriter interface {
	SetOverride(ctx context.Context, level Level, entityID string, setting Setting) error
	ClearOverride(ctx context.Context, level Level, entityID string) error
}

// OverrideStore is the full configuration-access interface.
type OverrideStore interface {
	OverrideReader
	OverrideWriter
}

// lookupStep is one link of the precedence chain.
type lookupStep struct {
	level  Level
	entity func(Scope) string
}

// precedence is the lookup order; the first hit wins.
var precedence = []lookupStep{
	{level: LevelUnit, entity: func(s Scope) string { return s.UnitID }},
	{level: LevelClient, entity: func(s Scope) string { return s.ClientID }},
	{level: LevelProvider, entity: func(s Scope) string { return s.ProviderID }},
	{level: LevelSystem, entity: func(Scope) string { return "" }},
}

// Resolver resolves the effective cutoff for a scope.
// It is safe for concurrent use.
type Resolver struct {
	reader   OverrideReader
	writer   OverrideWriter
	fallback Setting
	observe  func(Level)

	generation atomic.Uint64
}

// ResolverOption configures the resolver.
type ResolverOption func(*Resolver)

// WithWriter sets the writer used by the admin API.
func WithWriter(writer OverrideWriter) ResolverOption {
	return func(r *Resolver) {
		if writer != nil {
			r.writer = writer
		}
	}
}

// WithFallback overrides the built-in system default.
func WithFallback(setting Setting) ResolverOption {
	return func(r *Resolver) {
		if setting.Validate() == nil {
			r.fallback = setting
		}
	}
}

// WithObserver registers a callback invoked with the source level of each resolution.
func WithObserver(observe func(Level)) ResolverOption {
	return func(r *Resolver) {
		r.observe = observe
	}
}

// NewResolver constructs a resolver. A reader that also writes is used as the writer.
func NewResolver(reader OverrideReader, opts ...ResolverOption) (*Resolver, error) {
	if reader == nil {
		return nil, errors.New("cutoff: nil override reader")
	}
	r := &Resolver{reader: reader, fallback: DefaultSetting}
	if writer, ok := reader.(OverrideWriter); ok {
		r.writer = writer
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve walks unit, client, provider and system levels and returns the first override found.
func (r *Resolver) Resolve(ctx context.Context, scope Scope) (Resolved, error) {
	if err := scope.Validate(); err != nil {
		return Resolved{}, err
	}
	for _, step := range precedence {
		entityID := step.entity(scope)
		if entityID == "" && step.level != LevelSystem {
			continue
		}
		settings, err := r.reader.Overrides(ctx, step.level, entityID)
		if err != nil {
			return Resolved{}, fmt.Errorf("cutoff: read %s override %q: %w", step.level, entityID, err)
		}
		switch len(settings) {
		case 0:
			continue
		case 1:
			resolved, err := NewResolved(settings[0], step.level, entityID)
			if err != nil {
				return Resolved{}, fmt.Errorf("cutoff: %s override %q: %w", step.level, entityID, err)
			}
			r.notify(step.level)
			return resolved, nil
		default:
			return Resolved{}, fmt.Errorf("%w: %d active %s overrides for %q", ErrAmbiguousOverride, len(settings), step.level, entityID)
		}
	}
	r.notify(LevelSystem)
	return NewResolved(r.fallback, LevelSystem, "")
}

// SetOverride writes an override and invalidates run caches.
func (r *Resolver) SetOverride(ctx context.Context, level Level, entityID string, setting Setting) error {
	if err := checkTarget(level, entityID); err != nil {
		return err
	}
	if err := setting.Validate(); err != nil {
		return err
	}
	if r.writer == nil {
		return ErrReadOnlyStore
	}
	if err := r.writer.SetOverride(ctx, level, entityID, setting); err != nil {
		return err
	}
	r.generation.Add(1)
	return nil
}

// ClearOverride removes an override and invalidates run caches.
func (r *Resolver) ClearOverride(ctx context.Context, level Level, entityID string) error {
	if err := checkTarget(level, entityID); err != nil {
		return err
	}
	if r.writer == nil {
		return ErrReadOnlyStore
	}
	if err := r.writer.ClearOverride(ctx, level, entityID); err != nil {
		return err
	}
	r.generation.Add(1)
	return nil
}

// Generation returns the number of writes performed through this resolver.
func (r *Resolver) Generation() uint64 { return r.generation.Load() }

func (r *Resolver) notify(level Level) {
	if r.observe != nil {
		r.observe(level)
	}
}

func checkTarget(level Level, entityID string) error {
	if !level.IsValid() {
		return ErrInvalidLevel
	}
	if level != LevelSystem && entityID == "" {
		return ErrEmptyEntityID
	}
	return nil
}

// Cache memoizes resolutions for the lifetime of one aggregation call.
// It is not safe for concurrent use and must not be shared between calls.
type Cache struct {
	resolver *Resolver
	entries  map[Scope]cacheEntry
}

type cacheEntry struct {
	resolved   Resolved
	generation uint64
}

// NewCache returns an empty run cache bound to the resolver.
func (r *Resolver) NewCache() *Cache {
	return &Cache{resolver: r, entries: make(map[Scope]cacheEntry)}
}

// Resolve returns the cached resolution, re-resolving after an intervening override write.
func (c *Cache) Resolve(ctx context.Context, scope Scope) (Resolved, error) {
	generation := c.resolver.Generation()
	if entry, ok := c.entries[scope]; ok && entry.generation == generation {
		return entry.resolved, nil
	}
	resolved, err := c.resolver.Resolve(ctx, scope)
	if err != nil {
		return Resolved{}, err
	}
	c.entries[scope] = cacheEntry{resolved: resolved, generation: generation}
	return resolved, nil
}

// Len returns the number of cached scopes.
func (c *Cache) Len() int { return len(c.entries) }
