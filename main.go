package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"billing-cloud/internal/audit"
	"billing-cloud/internal/auth"
	"billing-cloud/internal/config"
	reportapp "billing-cloud/internal/consumption/application"
	samplepostgres "billing-cloud/internal/consumption/infrastructure/postgres"
	reportcache "billing-cloud/internal/consumption/infrastructure/redis"
	reporthttp "billing-cloud/internal/consumption/interfaces/http"
	cutoffapp "billing-cloud/internal/cutoff/application"
	cutoff "billing-cloud/internal/cutoff/domain"
	cutoffpostgres "billing-cloud/internal/cutoff/infrastructure/postgres"
	cutoffhttp "billing-cloud/internal/cutoff/interfaces/http"
	"billing-cloud/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)
	clientChecker := auth.NewMeterClientChecker(db)
	auditRepo := audit.NewRepository(db)

	overrideRepo := cutoffpostgres.NewOverrideRepository(db, cutoffpostgres.WithAutoProvision(cfg.AutoProvision))
	resolver, err := cutoff.NewResolver(overrideRepo, cutoff.WithObserver(func(level cutoff.Level) {
		metrics.IncCutoffResolve(string(level))
	}))
	if err != nil {
		logger.Fatalf("cutoff resolver error: %v", err)
	}

	policy, err := reportapp.LoadReportPolicy(cfg.ReportConfigPath)
	if err != nil {
		logger.Fatalf("report policy error: %v", err)
	}

	reportOpts := []reportapp.ReportOption{
		reportapp.WithPolicy(policy),
		reportapp.WithLocation(loc),
		reportapp.WithConcurrency(cfg.BatchConcurrency),
		reportapp.WithLogger(logger),
	}
	adminOpts := []cutoffapp.Option{
		cutoffapp.WithLister(overrideRepo),
		cutoffapp.WithLocation(loc),
		cutoffapp.WithLogger(logger),
	}
	if cfg.CacheEnabled() {
		client, err := reportcache.NewClient(context.Background(), cfg.RedisAddr)
		if err != nil {
			logger.Fatalf("redis error: %v", err)
		}
		defer client.Close()
		cache, err := reportcache.NewReportCache(client)
		if err != nil {
			logger.Fatalf("report cache error: %v", err)
		}
		reportOpts = append(reportOpts, reportapp.WithCache(cache, cfg.ReportCacheTTL))
		adminOpts = append(adminOpts, cutoffapp.WithNotifier(cache))
	}

	sampleQuery := samplepostgres.NewSampleQuery(db)
	reportService, err := reportapp.NewReportService(sampleQuery, resolver, reportOpts...)
	if err != nil {
		logger.Fatalf("report service error: %v", err)
	}
	adminService, err := cutoffapp.NewService(resolver, adminOpts...)
	if err != nil {
		logger.Fatalf("cutoff service error: %v", err)
	}

	cutoffHandler, err := cutoffhttp.NewHandler(adminService, clientChecker, auditRepo)
	if err != nil {
		logger.Fatalf("cutoff handler error: %v", err)
	}
	reportHandler, err := reporthttp.NewHandler(reportService, clientChecker, auditRepo)
	if err != nil {
		logger.Fatalf("report handler error: %v", err)
	}

	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), auth.NewDefaultPolicy(
		[]string{"/healthz", "/metrics"},
		nil,
	))

	mux := http.NewServeMux()
	mux.Handle("/api/v1/cutoffs/", cutoffHandler)
	mux.Handle("/api/v1/cutoffs/overrides", cutoffHandler)
	mux.Handle("/api/v1/reports/", reportHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
