package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"billing-cloud/internal/auth"
)

type config struct {
	dsn            string
	baseURL        string
	jwtSecret      string
	tenantID       string
	providerID     string
	clientPrefix   string
	clientCount    int
	metersPerUnit  int
	unitsPerClient int
	startDate      string
	days           int
	interval       time.Duration
	generate       bool
	period         string
	reportIDsOut   string
}

func main() {
	cfg := parseConfig()
	if cfg.dsn == "" {
		log.Fatal("PG_DSN or DATABASE_URL is required")
	}
	if cfg.clientCount <= 0 {
		log.Fatal("client-count must be > 0")
	}
	if cfg.days <= 0 {
		log.Fatal("days must be > 0")
	}
	if cfg.interval <= 0 || cfg.interval > 24*time.Hour {
		log.Fatal("interval must be within (0, 24h]")
	}

	start, err := parseStartDate(cfg.startDate)
	if err != nil {
		log.Fatalf("invalid start-date: %v", err)
	}

	clients := buildClients(cfg)

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx := context.Background()

	log.Printf("seeding meters: clients=%d units=%d meters_per_unit=%d", len(clients), cfg.unitsPerClient, cfg.metersPerUnit)
	if err := seedMeters(ctx, db, cfg.providerID, clients); err != nil {
		log.Fatalf("seed meters: %v", err)
	}

	log.Printf("seeding meter_samples: days=%d interval=%s", cfg.days, cfg.interval)
	if err := seedSamples(ctx, db, clients, start, cfg.days, cfg.interval); err != nil {
		log.Fatalf("seed samples: %v", err)
	}

	if cfg.generate {
		if cfg.baseURL == "" {
			log.Fatal("base-url is required when generate is enabled")
		}
		if cfg.period == "" {
			cfg.period = start.AddDate(0, 1, 0).Format("2006-01")
		}
		log.Printf("generating reports: period=%s clients=%d", cfg.period, len(clients))
		ids, err := generateReports(ctx, cfg, clients)
		if err != nil {
			log.Fatalf("generate reports: %v", err)
		}
		if cfg.reportIDsOut != "" {
			if err := writeLines(cfg.reportIDsOut, ids); err != nil {
				log.Fatalf("write report ids: %v", err)
			}
			log.Printf("report ids written to %s", cfg.reportIDsOut)
		}
	}

	log.Printf("sample seed completed")
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN")
	flag.StringVar(&cfg.baseURL, "base-url", envOrDefault("BASE_URL", ""), "API base URL for report generation")
	flag.StringVar(&cfg.jwtSecret, "jwt-secret", envOrDefault("AUTH_JWT_SECRET", ""), "secret used to sign the operator token")
	flag.StringVar(&cfg.tenantID, "tenant-id", envOrDefault("TENANT_ID", "tenant-demo"), "tenant id carried in the operator token")
	flag.StringVar(&cfg.providerID, "provider-id", envOrDefault("PROVIDER_ID", "provider-seed"), "provider id of the seeded meters")
	flag.StringVar(&cfg.clientPrefix, "client-prefix", envOrDefault("CLIENT_PREFIX", "client-seed-"), "client id prefix")
	flag.IntVar(&cfg.clientCount, "client-count", envOrInt("CLIENT_COUNT", 10), "number of clients to seed")
	flag.IntVar(&cfg.unitsPerClient, "units-per-client", envOrInt("UNITS_PER_CLIENT", 1), "units per client")
	flag.IntVar(&cfg.metersPerUnit, "meters-per-unit", envOrInt("METERS_PER_UNIT", 2), "meters per unit")
	flag.StringVar(&cfg.startDate, "start-date", envOrDefault("START_DATE", ""), "start date (YYYY-MM-DD or RFC3339)")
	flag.IntVar(&cfg.days, "days", envOrInt("DAYS", 35), "number of days to seed")
	flag.DurationVar(&cfg.interval, "interval", envOrDuration("SAMPLE_INTERVAL", time.Hour), "sampling interval")
	flag.BoolVar(&cfg.generate, "generate", envOrBool("GENERATE_REPORTS", false), "generate reports via API")
	flag.StringVar(&cfg.period, "period", envOrDefault("REPORT_PERIOD", ""), "report period label (YYYY-MM)")
	flag.StringVar(&cfg.reportIDsOut, "report-ids-out", envOrDefault("REPORT_IDS_OUT", ""), "output file for report IDs")
	flag.Parse()
	return cfg
}

func parseStartDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month()-2, 1, 0, 0, 0, 0, time.UTC), nil
	}
	if strings.Contains(value, "T") {
		parsed, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return time.Time{}, err
		}
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

type seedUnit struct {
	id     string
	floor  string
	meters []string
}

type seedClient struct {
	id    string
	units []seedUnit
}

func buildClients(cfg config) []seedClient {
	clients := make([]seedClient, 0, cfg.clientCount)
	for i := 1; i <= cfg.clientCount; i++ {
		client := seedClient{id: fmt.Sprintf("%s%04d", cfg.clientPrefix, i)}
		for u := 1; u <= cfg.unitsPerClient; u++ {
			unit := seedUnit{
				id:    fmt.Sprintf("%s-u%02d", client.id, u),
				floor: strconv.Itoa(u),
			}
			for m := 1; m <= cfg.metersPerUnit; m++ {
				unit.meters = append(unit.meters, fmt.Sprintf("%s-m%02d", unit.id, m))
			}
			client.units = append(client.units, unit)
		}
		clients = append(clients, client)
	}
	return clients
}

func seedMeters(ctx context.Context, db *sql.DB, providerID string, clients []seedClient) error {
	const insertSQL = `
INSERT INTO meters (id, client_id, provider_id, unit_id, floor)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id)
DO UPDATE SET
	client_id = EXCLUDED.client_id,
	provider_id = EXCLUDED.provider_id,
	unit_id = EXCLUDED.unit_id,
	floor = EXCLUDED.floor`

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, client := range clients {
		for _, unit := range client.units {
			for _, meterID := range unit.meters {
				if _, err := stmt.ExecContext(ctx, meterID, client.id, providerID, unit.id, unit.floor); err != nil {
					_ = stmt.Close()
					_ = tx.Rollback()
					return err
				}
			}
		}
	}
	if err := stmt.Close(); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func seedSamples(ctx context.Context, db *sql.DB, clients []seedClient, start time.Time, days int, interval time.Duration) error {
	const insertSQL = `
INSERT INTO meter_samples (meter_id, ts, value)
VALUES ($1, $2, $3)
ON CONFLICT (meter_id, ts)
DO UPDATE SET value = EXCLUDED.value`

	end := start.AddDate(0, 0, days)
	for idx, client := range clients {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			_ = tx.Rollback()
			return err
		}

		base := float64((idx % 10) + 1)
		count := 0
		for _, unit := range client.units {
			for m, meterID := range unit.meters {
				for ts := start; ts.Before(end); ts = ts.Add(interval) {
					if _, err := stmt.ExecContext(ctx, meterID, ts, sampleValue(base, m, ts)); err != nil {
						_ = stmt.Close()
						_ = tx.Rollback()
						return err
					}
					count++
				}
			}
		}

		if err := stmt.Close(); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		log.Printf("seeded client %s samples=%d (%d/%d)", client.id, count, idx+1, len(clients))
	}
	return nil
}

// sampleValue follows a daily load curve peaking mid-afternoon.
func sampleValue(base float64, meter int, ts time.Time) float64 {
	hour := float64(ts.Hour()) + float64(ts.Minute())/60
	curve := 1 + 0.5*math.Sin((hour-9)/24*2*math.Pi)
	value := base*curve + float64(meter)*0.25
	return math.Round(value*1000) / 1000
}

func generateReports(ctx context.Context, cfg config, clients []seedClient) ([]string, error) {
	baseURL := strings.TrimRight(cfg.baseURL, "/")
	httpClient := &http.Client{Timeout: 30 * time.Second}
	ids := make([]string, 0, len(clients))
	for _, client := range clients {
		body := map[string]any{
			"client_id":   client.id,
			"provider_id": cfg.providerID,
			"period":      cfg.period,
		}
		payload, _ := json.Marshal(body)
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/v1/reports/generate", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if cfg.jwtSecret != "" {
			token, err := auth.SignJWT(auth.Identity{
				TenantID: cfg.tenantID,
				ClientID: client.id,
				Role:     auth.RoleOperator,
				Subject:  "sample-seed",
			}, []byte(cfg.jwtSecret), 10*time.Minute)
			if err != nil {
				return nil, err
			}
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		var respBody struct {
			ID string `json:"id"`
		}
		if resp.StatusCode >= 300 {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("generate report failed for %s: http %d", client.id, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&respBody); err != nil {
			_ = resp.Body.Close()
			return nil, err
		}
		_ = resp.Body.Close()
		if respBody.ID == "" {
			return nil, fmt.Errorf("empty report id for %s", client.id)
		}
		ids = append(ids, respBody.ID)
	}
	return ids, nil
}

func writeLines(path string, lines []string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o644)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return value
}

func envOrDuration(key string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return value
}

func envOrBool(key string, fallback bool) bool {
	switch strings.TrimSpace(strings.ToLower(os.Getenv(key))) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
