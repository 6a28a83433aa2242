package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	importapp "meterprofile/internal/ingest/application"
	ingest "meterprofile/internal/ingest/domain"
	previewmemory "meterprofile/internal/ingest/infrastructure/memory"
	meterrepo "meterprofile/internal/meters/infrastructure/postgres"
)

var shopNames = []string{
	"Woolworths", "Pick n Pay", "Clicks", "Dis-Chem", "Mr Price", "Edgars", "Vida e Caffe",
	"Spur", "Nandos", "Checkers", "Game", "Cotton On", "Typo", "Sportscene", "Wimpy",
}

type config struct {
	dsn       string
	site      string
	shopCount int
	startDate string
	days      int
	interval  int
	seed      int64
}

func main() {
	cfg := parseConfig()
	if cfg.dsn == "" {
		log.Fatal("PG_DSN or DATABASE_URL is required")
	}
	if cfg.shopCount <= 0 {
		log.Fatal("shop-count must be > 0")
	}
	if cfg.days <= 0 {
		log.Fatal("days must be > 0")
	}
	if cfg.interval != 30 && cfg.interval != 60 {
		log.Fatal("interval must be 30 or 60")
	}
	start, err := time.Parse("2006-01-02", cfg.startDate)
	if err != nil {
		log.Fatalf("invalid start-date: %v", err)
	}

	db, err := sql.Open("pgx", cfg.dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ingestCfg, err := importapp.LoadConfig()
	if err != nil {
		log.Fatalf("ingest config: %v", err)
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)
	svc, err := importapp.NewImportService(meterrepo.NewMeterRepository(db), previewmemory.NewPreviewStore(time.Hour, 1), ingestCfg, logger)
	if err != nil {
		log.Fatalf("import service: %v", err)
	}

	rng := rand.New(rand.NewSource(cfg.seed))
	req := importapp.PreviewRequest{SiteName: cfg.site}
	for i := 0; i < cfg.shopCount; i++ {
		name := shopNames[i%len(shopNames)]
		if i >= len(shopNames) {
			name = fmt.Sprintf("%s %d", name, i/len(shopNames)+1)
		}
		text := syntheticExport(rng, start, cfg.days, cfg.interval, 5+rng.Float64()*40)
		req.Files = append(req.Files, importapp.FileInput{
			File:    ingest.RawImportFile{Name: name + ".csv", Text: text},
			Options: importapp.FileOptions{Unit: "kWh", IntervalMinutes: cfg.interval},
		})
	}

	ctx := context.Background()
	preview, err := svc.Preview(ctx, req)
	if err != nil {
		log.Fatalf("preview: %v", err)
	}
	summary, err := svc.Save(ctx, importapp.SaveRequest{BatchID: preview.BatchID})
	if err != nil {
		log.Fatalf("save: %v", err)
	}
	for _, failure := range summary.Failures {
		log.Printf("seed failure: %s: %s", failure.Label, failure.Error)
	}
	log.Printf("seed meters completed: site=%s created=%d updated=%d skipped=%d failed=%d",
		cfg.site, summary.Created, summary.Updated, summary.Skipped, len(summary.Failures))
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", envOrDefault("DATABASE_URL", "")), "Postgres DSN")
	flag.StringVar(&cfg.site, "site", envOrDefault("SITE_NAME", "Demo Mall"), "site name")
	flag.IntVar(&cfg.shopCount, "shop-count", envOrInt("SHOP_COUNT", 10), "number of meters to seed")
	flag.StringVar(&cfg.startDate, "start-date", envOrDefault("START_DATE", "2024-01-01"), "first day (YYYY-MM-DD)")
	flag.IntVar(&cfg.days, "days", envOrInt("DAYS", 28), "number of days")
	flag.IntVar(&cfg.interval, "interval", envOrInt("INTERVAL_MINUTES", 30), "reading interval in minutes")
	flag.Int64Var(&cfg.seed, "seed", 1, "random seed")
	flag.Parse()
	return cfg
}

// syntheticExport renders a Date,Time,kWh export with a trading-hours shape and a
// quieter weekend.
func syntheticExport(rng *rand.Rand, start time.Time, days, interval int, peakKW float64) string {
	var b strings.Builder
	b.WriteString("Date,Time,kWh\n")
	hours := float64(interval) / 60
	for day := 0; day < days; day++ {
		date := start.AddDate(0, 0, day)
		scale := 1.0
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			scale = 0.6
		}
		for minute := 0; minute < 24*60; minute += interval {
			hour := float64(minute) / 60
			shape := 0.15
			if hour >= 8 && hour < 21 {
				shape = 0.55 + 0.45*math.Sin(math.Pi*(hour-8)/13)
			}
			kw := peakKW * shape * scale * (0.9 + 0.2*rng.Float64())
			fmt.Fprintf(&b, "%s,%02d:%02d,%.3f\n", date.Format("2006-01-02"), minute/60, minute%60, kw*hours)
		}
	}
	return b.String()
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
