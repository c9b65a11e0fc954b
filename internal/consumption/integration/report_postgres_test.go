package integration_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"billing-cloud/internal/audit"
	reportapp "billing-cloud/internal/consumption/application"
	consumption "billing-cloud/internal/consumption/domain"
	samplepostgres "billing-cloud/internal/consumption/infrastructure/postgres"
	cutoff "billing-cloud/internal/cutoff/domain"
	cutoffpostgres "billing-cloud/internal/cutoff/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestReport_PostgresSamplesAndOverrides(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := applyMigrations(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	ctx := context.Background()
	clientID := "client-report-it"
	for _, stmt := range []string{
		"DELETE FROM meter_samples WHERE meter_id LIKE 'it-meter-%'",
		"DELETE FROM meters WHERE id LIKE 'it-meter-%'",
		"DELETE FROM cutoff_overrides WHERE entity_id = 'client-report-it'",
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("reset: %v", err)
		}
	}
	if err := seedMeters(ctx, db, clientID); err != nil {
		t.Fatalf("seed meters: %v", err)
	}
	// Day-10 early cutoff: 2025-09 covers Sep 10 .. Oct 9.
	from := time.Date(2025, time.September, 10, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, time.October, 10, 0, 0, 0, 0, time.UTC)
	if err := seedHourly(ctx, db, "it-meter-a", from, to, 1); err != nil {
		t.Fatalf("seed samples: %v", err)
	}
	if err := seedHourly(ctx, db, "it-meter-b", from, to, 2); err != nil {
		t.Fatalf("seed samples: %v", err)
	}

	resolver, err := cutoff.NewResolver(cutoffpostgres.NewOverrideRepository(db))
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	if err := resolver.SetOverride(ctx, cutoff.LevelClient, clientID, cutoff.Setting{Day: 10, Hour: 23, Minute: 59, Second: 59}); err != nil {
		t.Fatalf("set override: %v", err)
	}

	query := samplepostgres.NewSampleQuery(db)
	samples, err := query.Samples(ctx, consumption.SampleRequest{ClientID: clientID, MeterIDs: []string{"it-meter-b"}, From: from, To: to})
	if err != nil {
		t.Fatalf("query samples: %v", err)
	}
	if len(samples) != 30*24 {
		t.Fatalf("expected %d samples for meter b, got %d", 30*24, len(samples))
	}
	if samples[0].Floor != "2F" || samples[0].UnitID != "unit-b" {
		t.Fatalf("meter attributes missing: %+v", samples[0])
	}

	service, err := reportapp.NewReportService(query, resolver)
	if err != nil {
		t.Fatalf("report service: %v", err)
	}
	period := cutoff.NewLabel(2025, time.September)
	report, err := service.Generate(ctx, reportapp.ReportRequest{ClientID: clientID, ProviderID: "provider-report-it", Period: &period})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if report.Cutoff.Source != cutoff.LevelClient || report.Regime != "early" {
		t.Fatalf("unexpected cutoff: %+v %s", report.Cutoff, report.Regime)
	}
	if len(report.Periods) != 1 || !report.Periods[0].Complete {
		t.Fatalf("expected one closed period, got %+v", report.Periods)
	}
	agg := report.Periods[0].Aggregate
	if agg.Sum != 3*30*24 {
		t.Fatalf("sum mismatch: %v", agg.Sum)
	}
	if agg.Max != 3 {
		t.Fatalf("combined peak mismatch: %v", agg.Max)
	}

	auditRepo := audit.NewRepository(db)
	if err := auditRepo.Log(ctx, audit.Entry{Action: "report.generate", ResourceType: "report", ResourceID: report.ID, ClientID: clientID}); err != nil {
		t.Fatalf("audit log: %v", err)
	}
	var logged int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs WHERE resource_id = $1`, report.ID).Scan(&logged); err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if logged != 1 {
		t.Fatalf("expected 1 audit row, got %d", logged)
	}
}

func seedMeters(ctx context.Context, db *sql.DB, clientID string) error {
	meters := []struct{ id, unit, floor string }{
		{"it-meter-a", "unit-a", "1F"},
		{"it-meter-b", "unit-b", "2F"},
	}
	for _, m := range meters {
		if _, err := db.ExecContext(ctx, `
INSERT INTO meters (id, client_id, provider_id, unit_id, floor)
VALUES ($1, $2, 'provider-report-it', $3, $4)`, m.id, clientID, m.unit, m.floor); err != nil {
			return err
		}
	}
	return nil
}

func seedHourly(ctx context.Context, db *sql.DB, meterID string, from, to time.Time, value float64) error {
	for ts := from; ts.Before(to); ts = ts.Add(time.Hour) {
		if _, err := db.ExecContext(ctx, `INSERT INTO meter_samples (meter_id, ts, value) VALUES ($1, $2, $3)`, meterID, ts, value); err != nil {
			return err
		}
	}
	return nil
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
