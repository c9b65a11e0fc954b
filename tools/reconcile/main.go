package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	_ "github.com/jackc/pgx/v5/stdlib"

	reportapp "billing-cloud/internal/consumption/application"
	consumption "billing-cloud/internal/consumption/domain"
	samplepostgres "billing-cloud/internal/consumption/infrastructure/postgres"
	cutoff "billing-cloud/internal/cutoff/domain"
	overridepostgres "billing-cloud/internal/cutoff/infrastructure/postgres"
)

const timeLayout = time.RFC3339

type config struct {
	dbURL        string
	clientID     string
	providerID   string
	unitID       string
	from         string
	to           string
	timezone     string
	reportConfig string
	outDir       string
	legacyPath   string
	tolerance    float64
}

type legacyPeriod struct {
	Label cutoff.Label
	Sum   float64
}

func main() {
	cfg, err := parseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(2)
	}

	if err := os.MkdirAll(cfg.outDir, 0o755); err != nil {
		fmt.Fprintln(os.Stderr, "create out dir:", err)
		os.Exit(2)
	}

	loc, err := time.LoadLocation(cfg.timezone)
	if err != nil {
		fmt.Fprintln(os.Stderr, "timezone:", err)
		os.Exit(2)
	}
	from, err := parseDate(cfg.from, loc)
	if err != nil {
		fmt.Fprintln(os.Stderr, "from:", err)
		os.Exit(2)
	}
	to, err := parseDate(cfg.to, loc)
	if err != nil {
		fmt.Fprintln(os.Stderr, "to:", err)
		os.Exit(2)
	}

	policy, err := reportapp.LoadReportPolicy(cfg.reportConfig)
	if err != nil {
		fmt.Fprintln(os.Stderr, "report policy:", err)
		os.Exit(2)
	}

	db, err := sql.Open("pgx", cfg.dbURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "db open:", err)
		os.Exit(2)
	}
	defer db.Close()

	resolver, err := cutoff.NewResolver(overridepostgres.NewOverrideRepository(db))
	if err != nil {
		fmt.Fprintln(os.Stderr, "resolver:", err)
		os.Exit(2)
	}
	service, err := reportapp.NewReportService(
		samplepostgres.NewSampleQuery(db),
		resolver,
		reportapp.WithPolicy(policy),
		reportapp.WithLocation(loc),
	)
	if err != nil {
		fmt.Fprintln(os.Stderr, "report service:", err)
		os.Exit(2)
	}

	report, err := service.Generate(context.Background(), reportapp.ReportRequest{
		ClientID:       cfg.clientID,
		ProviderID:     cfg.providerID,
		UnitID:         cfg.unitID,
		From:           from,
		To:             to,
		IncludePartial: true,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate report:", err)
		os.Exit(2)
	}

	if err := writePeriodSummary(cfg.outDir, report); err != nil {
		fmt.Fprintln(os.Stderr, "write period summary:", err)
		os.Exit(2)
	}
	if err := writeHourly(cfg.outDir, report); err != nil {
		fmt.Fprintln(os.Stderr, "write hourly:", err)
		os.Exit(2)
	}

	mismatches := 0
	if cfg.legacyPath != "" {
		legacy, err := loadLegacyPeriods(cfg.legacyPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "load legacy periods:", err)
			os.Exit(2)
		}
		mismatches, err = writeDiffReport(cfg.outDir, report, legacy, cfg.tolerance)
		if err != nil {
			fmt.Fprintln(os.Stderr, "write diff report:", err)
			os.Exit(2)
		}
	}

	fmt.Printf("Reconciliation outputs written to %s (cutoff %s from %s, %d periods, %d mismatches)\n",
		cfg.outDir, report.Cutoff.Setting, report.Cutoff.Source, len(report.Periods), mismatches)
	if mismatches > 0 {
		os.Exit(1)
	}
}

func parseFlags() (config, error) {
	var cfg config
	flag.StringVar(&cfg.dbURL, "db", getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")), "Postgres DSN")
	flag.StringVar(&cfg.clientID, "client", "", "client id")
	flag.StringVar(&cfg.providerID, "provider", getenvDefault("PROVIDER_ID", ""), "provider id")
	flag.StringVar(&cfg.unitID, "unit", "", "unit id (optional)")
	flag.StringVar(&cfg.from, "from", "", "window start (YYYY-MM-DD or RFC3339)")
	flag.StringVar(&cfg.to, "to", "", "window end, exclusive (YYYY-MM-DD or RFC3339)")
	flag.StringVar(&cfg.timezone, "tz", getenvDefault("BILLING_TIMEZONE", "UTC"), "billing timezone")
	flag.StringVar(&cfg.reportConfig, "report-config", getenvDefault("REPORT_CONFIG", ""), "report policy YAML (optional)")
	flag.StringVar(&cfg.outDir, "out", "./out", "output directory")
	flag.StringVar(&cfg.legacyPath, "legacy-csv", "", "legacy per-period totals CSV (optional)")
	flag.Float64Var(&cfg.tolerance, "tolerance", getenvFloatDefault("RECONCILE_TOLERANCE", 1e-6), "absolute sum difference treated as a match")
	flag.Parse()

	if cfg.dbURL == "" {
		return cfg, errors.New("missing --db or DATABASE_URL/PG_DSN")
	}
	if cfg.clientID == "" {
		return cfg, errors.New("missing --client")
	}
	if cfg.providerID == "" {
		return cfg, errors.New("missing --provider or PROVIDER_ID")
	}
	if cfg.from == "" || cfg.to == "" {
		return cfg, errors.New("missing --from/--to")
	}
	return cfg, nil
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvFloatDefault(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDate(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	if strings.Contains(value, "T") {
		return time.Parse(time.RFC3339, value)
	}
	return time.ParseInLocation("2006-01-02", value, loc)
}

func writePeriodSummary(outDir string, report *reportapp.Report) error {
	file, err := os.Create(filepath.Join(outDir, "period_summary.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{
		"period",
		"complete",
		"first_date",
		"last_date",
		"expected_days",
		"distinct_dates",
		"months_touched",
		"sum",
		"max",
		"max_at",
		"min",
		"min_at",
		"average",
		"weekday_sum",
		"weekend_sum",
		"daytime_sum",
		"nighttime_sum",
		"sample_count",
	}); err != nil {
		return err
	}

	for _, period := range report.Periods {
		agg := period.Aggregate
		if agg == nil {
			agg = &consumption.Aggregate{}
		}
		if err := writer.Write([]string{
			period.Label.String(),
			formatBool(period.Complete),
			formatDate(period.FirstDate),
			formatDate(period.LastDate),
			strconv.Itoa(period.ExpectedDays),
			strconv.Itoa(period.DistinctDates),
			strconv.Itoa(period.MonthsTouched),
			formatFloat(agg.Sum),
			formatFloat(agg.Max),
			formatTime(agg.MaxAt),
			formatFloat(agg.Min),
			formatTime(agg.MinAt),
			formatFloat(agg.Average()),
			formatFloat(agg.WeekdaySum),
			formatFloat(agg.WeekendSum),
			formatFloat(agg.DaytimeSum),
			formatFloat(agg.NighttimeSum),
			strconv.Itoa(agg.SampleCount),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func writeHourly(outDir string, report *reportapp.Report) error {
	file, err := os.Create(filepath.Join(outDir, "hourly.csv"))
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"period", "hour", "sum"}); err != nil {
		return err
	}
	for _, period := range report.Periods {
		if period.Aggregate == nil {
			continue
		}
		for hour, sum := range period.Aggregate.HourlySums {
			if err := writer.Write([]string{period.Label.String(), strconv.Itoa(hour), formatFloat(sum)}); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func loadLegacyPeriods(path string) ([]legacyPeriod, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 1 {
		return nil, errors.New("legacy csv: empty")
	}
	header := make(map[string]int)
	for i, name := range records[0] {
		header[strings.ToLower(strings.TrimSpace(name))] = i
	}
	labelIdx := findHeader(header, "period", "label", "month")
	sumIdx := findHeader(header, "sum", "total", "consumption")
	if labelIdx < 0 || sumIdx < 0 {
		return nil, errors.New("legacy csv requires headers: period, sum")
	}

	var result []legacyPeriod
	for _, row := range records[1:] {
		if labelIdx >= len(row) || sumIdx >= len(row) {
			continue
		}
		label, err := cutoff.ParseLabel(strings.TrimSpace(row[labelIdx]))
		if err != nil {
			return nil, err
		}
		sum, err := parseFloat(row[sumIdx])
		if err != nil {
			return nil, err
		}
		result = append(result, legacyPeriod{Label: label, Sum: sum})
	}
	return result, nil
}

func writeDiffReport(outDir string, report *reportapp.Report, legacy []legacyPeriod, tolerance float64) (int, error) {
	file, err := os.Create(filepath.Join(outDir, "diff_report.csv"))
	if err != nil {
		return 0, err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{
		"period",
		"complete",
		"sum_local",
		"sum_legacy",
		"sum_diff",
		"match",
	}); err != nil {
		return 0, err
	}

	localMap := make(map[cutoff.Label]reportapp.PeriodReport)
	for _, period := range report.Periods {
		localMap[period.Label] = period
	}
	legacyMap := make(map[cutoff.Label]legacyPeriod)
	for _, row := range legacy {
		legacyMap[row.Label] = row
	}

	var keys []cutoff.Label
	for k := range localMap {
		keys = append(keys, k)
	}
	for k := range legacyMap {
		if _, ok := localMap[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	mismatches := 0
	for _, label := range keys {
		localRow, hasLocal := localMap[label]
		legacyRow, hasLegacy := legacyMap[label]
		var sumLocal float64
		if hasLocal && localRow.Aggregate != nil {
			sumLocal = localRow.Aggregate.Sum
		}
		diff := sumLocal - legacyRow.Sum
		match := hasLocal && hasLegacy && diff <= tolerance && diff >= -tolerance
		if !match {
			mismatches++
		}
		if err := writer.Write([]string{
			label.String(),
			formatBool(hasLocal && localRow.Complete),
			formatFloat(sumLocal),
			formatFloat(legacyRow.Sum),
			formatFloat(diff),
			formatBool(match),
		}); err != nil {
			return mismatches, err
		}
	}
	writer.Flush()
	return mismatches, writer.Error()
}

func findHeader(headers map[string]int, names ...string) int {
	for _, name := range names {
		if idx, ok := headers[strings.ToLower(name)]; ok {
			return idx
		}
	}
	return -1
}

func parseFloat(value string) (float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	return strconv.ParseFloat(value, 64)
}

func formatTime(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.UTC().Format(timeLayout)
}

func formatDate(value time.Time) string {
	if value.IsZero() {
		return ""
	}
	return value.Format("2006-01-02")
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func formatBool(value bool) string {
	if value {
		return "true"
	}
	return "false"
}
