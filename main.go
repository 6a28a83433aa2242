package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	apihttp "meterprofile/internal/api/http"
	"meterprofile/internal/audit"
	"meterprofile/internal/auth"
	compapp "meterprofile/internal/comparison/application"
	compinterfaces "meterprofile/internal/comparison/interfaces"
	importapp "meterprofile/internal/ingest/application"
	previewmemory "meterprofile/internal/ingest/infrastructure/memory"
	importinterfaces "meterprofile/internal/ingest/interfaces"
	meters "meterprofile/internal/meters/domain"
	"meterprofile/internal/meters/infrastructure/influx"
	metermemory "meterprofile/internal/meters/infrastructure/memory"
	meterrepo "meterprofile/internal/meters/infrastructure/postgres"
	"meterprofile/internal/observability/metrics"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	ingestCfg, err := importapp.LoadConfig()
	if err != nil {
		logger.Fatalf("ingest config error: %v", err)
	}
	loc, err := time.LoadLocation(ingestCfg.Timezone)
	if err != nil {
		logger.Fatalf("ingest timezone error: %v", err)
	}

	var (
		db          *sql.DB
		repo        meters.Repository
		auditLogger audit.Logger
	)
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("db open error: %v", err)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			logger.Fatalf("db ping error: %v", err)
		}
		repo = meterrepo.NewMeterRepository(db)
		auditLogger = audit.NewRepository(db)
	} else {
		logger.Printf("DATABASE_URL not set, using in-memory meter repository")
		repo = metermemory.NewMeterRepository()
		auditLogger = audit.NewLogLogger(logger)
	}
	metrics.Init(db, logger)

	var serviceOpts []importapp.ServiceOption
	mirror, err := influx.Connect(context.Background(), influx.Config{
		URL:       cfg.InfluxURL,
		Token:     cfg.InfluxToken,
		Org:       cfg.InfluxOrg,
		Bucket:    cfg.InfluxBucket,
		BatchSize: cfg.InfluxBatchSize,
	})
	switch {
	case errors.Is(err, influx.ErrDisabled):
	case err != nil:
		logger.Printf("influx mirror unavailable: %v", err)
	default:
		defer mirror.Close()
		serviceOpts = append(serviceOpts, importapp.WithReadingMirror(mirror))
		logger.Printf("mirroring readings to influx bucket %s", cfg.InfluxBucket)
	}

	previews := previewmemory.NewPreviewStore(ingestCfg.PreviewTTL, cfg.MaxPreviews)
	importService, err := importapp.NewImportService(repo, previews, ingestCfg, logger, serviceOpts...)
	if err != nil {
		logger.Fatalf("import service error: %v", err)
	}
	importHandler, err := importinterfaces.NewImportHandler(importService, auditLogger, logger, ingestCfg.MaxFileBytes)
	if err != nil {
		logger.Fatalf("import handler error: %v", err)
	}
	comparisonService, err := compapp.NewComparisonService(repo, loc, logger)
	if err != nil {
		logger.Fatalf("comparison service error: %v", err)
	}
	comparisonHandler, err := compinterfaces.NewComparisonHandler(comparisonService, auditLogger, logger)
	if err != nil {
		logger.Fatalf("comparison handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, []string{"/ingest/"})
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)
	ingestAuth := auth.NewIngestAuthMiddleware([]byte(cfg.IngestSecret), time.Duration(cfg.IngestSkewSeconds)*time.Second)
	ingestAuth.MaxBodyBytes = ingestCfg.MaxFileBytes * 4

	mux := http.NewServeMux()
	mux.Handle(importinterfaces.APIPrefix, importHandler)
	if cfg.IngestSecret != "" {
		mux.Handle(importinterfaces.IngestPrefix, ingestAuth.Wrap(importHandler))
	}
	mux.Handle("/api/v1/meters", apihttp.NewMetersHandler(repo))
	mux.Handle("/api/v1/meters/", apihttp.NewMetersHandler(repo))
	mux.Handle("/api/v1/comparisons", comparisonHandler)
	mux.Handle("/api/v1/exports/", comparisonHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

type config struct {
	DatabaseURL       string
	HTTPAddr          string
	JWTSecret         string
	IngestSecret      string
	IngestSkewSeconds int
	MaxPreviews       int
	InfluxURL         string
	InfluxToken       string
	InfluxOrg         string
	InfluxBucket      string
	InfluxBatchSize   int
	ReadHeaderTimeout time.Duration
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:       getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		HTTPAddr:          getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:         getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		IngestSecret:      getenvDefault("INGEST_HMAC_SECRET", ""),
		IngestSkewSeconds: getenvIntDefault("INGEST_MAX_SKEW_SECONDS", 300),
		MaxPreviews:       getenvIntDefault("IMPORT_MAX_PREVIEWS", 256),
		InfluxURL:         getenvDefault("INFLUX_URL", ""),
		InfluxToken:       getenvDefault("INFLUX_TOKEN", ""),
		InfluxOrg:         getenvDefault("INFLUX_ORG", "meterprofile"),
		InfluxBucket:      getenvDefault("INFLUX_BUCKET", "meter_readings"),
		InfluxBatchSize:   getenvIntDefault("INFLUX_BATCH_SIZE", 5000),
		ReadHeaderTimeout: getenvDuration("HTTP_READ_HEADER_TIMEOUT", 10*time.Second),
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
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
