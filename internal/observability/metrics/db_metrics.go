package metrics

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const dbGaugeTimeout = 2 * time.Second

// dbGauges are sampled from Postgres on every scrape.
var dbGauges = []struct {
	name  string
	help  string
	query string
}{
	{"cutoff_overrides_active", "Active cutoff override rows", "SELECT COUNT(*) FROM cutoff_overrides WHERE active"},
	{"entities_provisioned", "Registered billing entities", "SELECT COUNT(*) FROM billing_entities"},
	{"meters_registered", "Meters known to the sample source", "SELECT COUNT(*) FROM meters"},
	{"clients_metered", "Clients owning at least one meter", "SELECT COUNT(DISTINCT client_id) FROM meters"},
}

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	for _, gauge := range dbGauges {
		query := gauge.query
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: metricPrefix + gauge.name, Help: gauge.help},
			func() float64 { return queryCount(db, logger, query) },
		))
	}
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), dbGaugeTimeout)
	defer cancel()

	var count int64
	if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	return float64(max(count, 0))
}
