package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	cutoff "billing-cloud/internal/cutoff/domain"
)

const (
	defaultOverridesTable = "cutoff_overrides"
	defaultEntitiesTable  = "billing_entities"
)

// OverrideRepository is a Postgres implementation of the cutoff override store.
type OverrideRepository struct {
	db            *sql.DB
	table         string
	entitiesTable string
	autoProvision bool
}

// OverrideOption configures the repository.
type OverrideOption func(*OverrideRepository)

// WithOverrideTable overrides the default overrides table name.
func WithOverrideTable(table string) OverrideOption {
	return func(repo *OverrideRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// WithEntitiesTable overrides the default entities table name.
func WithEntitiesTable(table string) OverrideOption {
	return func(repo *OverrideRepository) {
		if table != "" {
			repo.entitiesTable = table
		}
	}
}

// WithAutoProvision registers unknown clients and providers on first lookup.
// Provisioned entities carry no override, so they resolve to the system default.
func WithAutoProvision(enabled bool) OverrideOption {
	return func(repo *OverrideRepository) {
		repo.autoProvision = enabled
	}
}

// NewOverrideRepository constructs a repository.
func NewOverrideRepository(db *sql.DB, opts ...OverrideOption) *OverrideRepository {
	repo := &OverrideRepository{
		db:            db,
		table:         defaultOverridesTable,
		entitiesTable: defaultEntitiesTable,
	}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Overrides returns the active overrides for an entity.
func (r *OverrideRepository) Overrides(ctx context.Context, level cutoff.Level, entityID string) ([]cutoff.Setting, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("override repo: nil db")
	}
	if !level.IsValid() {
		return nil, cutoff.ErrInvalidLevel
	}
	if r.autoProvision && (level == cutoff.LevelClient || level == cutoff.LevelProvider) {
		if err := r.ensureEntity(ctx, level, entityID); err != nil {
			return nil, err
		}
	}

	query := fmt.Sprintf(`
SELECT cutoff_day, cutoff_hour, cutoff_minute, cutoff_second
FROM %s
WHERE level = $1
	AND entity_id = $2
	AND active
ORDER BY updated_at DESC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, string(level), entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []cutoff.Setting
	for rows.Next() {
		var setting cutoff.Setting
		if err := rows.Scan(&setting.Day, &setting.Hour, &setting.Minute, &setting.Second); err != nil {
			return nil, err
		}
		result = append(result, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// SetOverride retires the current override and inserts a new active one.
func (r *OverrideRepository) SetOverride(ctx context.Context, level cutoff.Level, entityID string, setting cutoff.Setting) error {
	if r == nil || r.db == nil {
		return errors.New("override repo: nil db")
	}
	if !level.IsValid() {
		return cutoff.ErrInvalidLevel
	}
	if err := setting.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s
SET active = FALSE, updated_at = NOW()
WHERE level = $1 AND entity_id = $2 AND active`, r.table), string(level), entityID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (
	level, entity_id, cutoff_day, cutoff_hour, cutoff_minute, cutoff_second, active
) VALUES ($1, $2, $3, $4, $5, $6, TRUE)`, r.table),
		string(level), entityID, setting.Day, setting.Hour, setting.Minute, setting.Second); err != nil {
		return err
	}
	if level != cutoff.LevelSystem {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (level, entity_id)
VALUES ($1, $2)
ON CONFLICT (level, entity_id) DO NOTHING`, r.entitiesTable), string(level), entityID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ClearOverride deactivates every active override for an entity.
func (r *OverrideRepository) ClearOverride(ctx context.Context, level cutoff.Level, entityID string) error {
	if r == nil || r.db == nil {
		return errors.New("override repo: nil db")
	}
	if !level.IsValid() {
		return cutoff.ErrInvalidLevel
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
UPDATE %s
SET active = FALSE, updated_at = NOW()
WHERE level = $1 AND entity_id = $2 AND active`, r.table), string(level), entityID)
	return err
}

// List returns every active override.
func (r *OverrideRepository) List(ctx context.Context) ([]cutoff.Override, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("override repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT level, entity_id, cutoff_day, cutoff_hour, cutoff_minute, cutoff_second, updated_at
FROM %s
WHERE active
ORDER BY level ASC, entity_id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []cutoff.Override
	for rows.Next() {
		var (
			item  cutoff.Override
			level string
		)
		if err := rows.Scan(&level, &item.EntityID, &item.Setting.Day, &item.Setting.Hour, &item.Setting.Minute, &item.Setting.Second, &item.UpdatedAt); err != nil {
			return nil, err
		}
		item.Level = cutoff.Level(level)
		item.UpdatedAt = item.UpdatedAt.UTC()
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *OverrideRepository) ensureEntity(ctx context.Context, level cutoff.Level, entityID string) error {
	if entityID == "" {
		return nil
	}
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
INSERT INTO %s (level, entity_id)
VALUES ($1, $2)
ON CONFLICT (level, entity_id) DO NOTHING`, r.entitiesTable), string(level), entityID)
	return err
}
