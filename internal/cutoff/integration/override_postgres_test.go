package integration_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	cutoff "billing-cloud/internal/cutoff/domain"
	cutoffpostgres "billing-cloud/internal/cutoff/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestOverrideRepository_ResolveSetClear(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	resetTables(t, db)

	repo := cutoffpostgres.NewOverrideRepository(db, cutoffpostgres.WithAutoProvision(true))
	resolver, err := cutoff.NewResolver(repo)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	scope := cutoff.Scope{UnitID: "unit-it-1", ClientID: "client-it-1", ProviderID: "provider-it-1"}

	resolved, err := resolver.Resolve(ctx, scope)
	if err != nil {
		t.Fatalf("resolve default: %v", err)
	}
	if resolved.Source != cutoff.LevelSystem || resolved.Setting != cutoff.DefaultSetting {
		t.Fatalf("expected system default, got %+v", resolved)
	}

	var entities int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM billing_entities WHERE entity_id IN ('client-it-1', 'provider-it-1')`).Scan(&entities); err != nil {
		t.Fatalf("count entities: %v", err)
	}
	if entities != 2 {
		t.Fatalf("expected 2 auto-provisioned entities, got %d", entities)
	}
	var overrides int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cutoff_overrides`).Scan(&overrides); err != nil {
		t.Fatalf("count overrides: %v", err)
	}
	if overrides != 0 {
		t.Fatalf("auto-provision must not create overrides, got %d", overrides)
	}

	if err := resolver.SetOverride(ctx, cutoff.LevelProvider, "provider-it-1", cutoff.Setting{Day: 20, Hour: 23, Minute: 59, Second: 59}); err != nil {
		t.Fatalf("set provider: %v", err)
	}
	if err := resolver.SetOverride(ctx, cutoff.LevelUnit, "unit-it-1", cutoff.Setting{Day: 5, Hour: 6}); err != nil {
		t.Fatalf("set unit: %v", err)
	}
	if err := resolver.SetOverride(ctx, cutoff.LevelUnit, "unit-it-1", cutoff.Setting{Day: 7, Hour: 6}); err != nil {
		t.Fatalf("replace unit: %v", err)
	}

	resolved, err = resolver.Resolve(ctx, scope)
	if err != nil {
		t.Fatalf("resolve unit: %v", err)
	}
	if resolved.Source != cutoff.LevelUnit || resolved.Setting.Day != 7 {
		t.Fatalf("expected unit day 7, got %+v", resolved)
	}

	if err := resolver.ClearOverride(ctx, cutoff.LevelUnit, "unit-it-1"); err != nil {
		t.Fatalf("clear unit: %v", err)
	}
	resolved, err = resolver.Resolve(ctx, scope)
	if err != nil {
		t.Fatalf("resolve provider: %v", err)
	}
	if resolved.Source != cutoff.LevelProvider || resolved.Setting.Day != 20 {
		t.Fatalf("expected provider day 20, got %+v", resolved)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Level != cutoff.LevelProvider {
		t.Fatalf("expected one active provider override, got %+v", list)
	}
}

func TestOverrideRepository_AmbiguousRows(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	resetTables(t, db)

	for _, day := range []int{10, 12} {
		if _, err := db.ExecContext(ctx, `
INSERT INTO cutoff_overrides (level, entity_id, cutoff_day, cutoff_hour, cutoff_minute, cutoff_second, active)
VALUES ('client', 'client-dup', $1, 0, 0, 0, TRUE)`, day); err != nil {
			t.Fatalf("seed duplicate: %v", err)
		}
	}

	resolver, err := cutoff.NewResolver(cutoffpostgres.NewOverrideRepository(db))
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	_, err = resolver.Resolve(ctx, cutoff.Scope{ClientID: "client-dup", ProviderID: "provider-x"})
	if !errors.Is(err, cutoff.ErrAmbiguousOverride) {
		t.Fatalf("expected ErrAmbiguousOverride, got %v", err)
	}
}

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := applyMigrations(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db
}

func resetTables(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, stmt := range []string{"DELETE FROM cutoff_overrides", "DELETE FROM billing_entities"} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("reset: %v", err)
		}
	}
}

func applyMigrations(db *sql.DB) error {
	files, err := filepath.Glob(filepath.Join(projectRoot(), "migrations", "*.sql"))
	if err != nil {
		return err
	}
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if _, err := db.Exec(string(content)); err != nil {
			return err
		}
	}
	return nil
}

func projectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return filepath.Clean(filepath.Join(dir, "..", "..", ".."))
}
