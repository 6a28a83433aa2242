package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"meterprofile/internal/auth"
	importapp "meterprofile/internal/ingest/application"
	ingest "meterprofile/internal/ingest/domain"
	previewmemory "meterprofile/internal/ingest/infrastructure/memory"
	"meterprofile/internal/ingest/infrastructure/xlsx"
	meters "meterprofile/internal/meters/domain"
	metermemory "meterprofile/internal/meters/infrastructure/memory"
	meterrepo "meterprofile/internal/meters/infrastructure/postgres"
)

type config struct {
	dsn        string
	site       string
	unit       string
	phase      string
	sheet      string
	separator  string
	format     string
	out        string
	pushURL    string
	pushSecret string
	timeout    time.Duration
}

func main() {
	cfg := parseConfig()
	files := flag.Args()
	if len(files) == 0 {
		log.Fatal("usage: profile_import [flags] file...")
	}

	if cfg.pushURL != "" {
		if cfg.pushSecret == "" {
			log.Fatal("push-secret or INGEST_HMAC_SECRET is required with push-url")
		}
		if err := push(cfg, files); err != nil {
			log.Fatalf("push: %v", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	var repo meters.Repository = metermemory.NewMeterRepository()
	if cfg.dsn != "" {
		db, err := sql.Open("pgx", cfg.dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer db.Close()
		repo = meterrepo.NewMeterRepository(db)
	}

	ingestCfg, err := importapp.LoadConfig()
	if err != nil {
		log.Fatalf("ingest config: %v", err)
	}
	logger := log.New(os.Stderr, "", log.LstdFlags)
	svc, err := importapp.NewImportService(repo, previewmemory.NewPreviewStore(time.Hour, 1), ingestCfg, logger)
	if err != nil {
		log.Fatalf("import service: %v", err)
	}

	req, err := buildRequest(cfg, files)
	if err != nil {
		log.Fatalf("read files: %v", err)
	}
	preview, err := svc.Preview(ctx, req)
	if err != nil {
		log.Fatalf("preview: %v", err)
	}

	var output io.Writer = os.Stdout
	if cfg.out != "" {
		f, err := os.Create(cfg.out)
		if err != nil {
			log.Fatalf("create output: %v", err)
		}
		defer f.Close()
		output = f
	}
	switch cfg.format {
	case "json":
		encoder := json.NewEncoder(output)
		encoder.SetIndent("", "  ")
		err = encoder.Encode(preview)
	case "csv":
		err = writeProfilesCSV(output, preview)
	default:
		log.Fatalf("unknown format %q", cfg.format)
	}
	if err != nil {
		log.Fatalf("write output: %v", err)
	}
	log.Printf("profile import: files=%d candidates=%d", len(preview.Files), len(preview.Candidates))
}

func parseConfig() config {
	cfg := config{}
	flag.StringVar(&cfg.dsn, "pg-dsn", envOrDefault("PG_DSN", ""), "Postgres DSN used to match against stored meters")
	flag.StringVar(&cfg.site, "site", envOrDefault("SITE_NAME", ""), "site name for matching")
	flag.StringVar(&cfg.unit, "unit", "", "value unit override (kW, kWh, A, ...)")
	flag.StringVar(&cfg.phase, "phase", "", "phase for ampere readings (single or three)")
	flag.StringVar(&cfg.sheet, "sheet", "", "worksheet name for XLSX files")
	flag.StringVar(&cfg.separator, "separator", "", "column separator override")
	flag.StringVar(&cfg.format, "format", "json", "output format: json or csv")
	flag.StringVar(&cfg.out, "out", "", "output file (default stdout)")
	flag.StringVar(&cfg.pushURL, "push-url", envOrDefault("PUSH_URL", ""), "server base URL; uploads files to the signed preview endpoint instead of previewing locally")
	flag.StringVar(&cfg.pushSecret, "push-secret", envOrDefault("INGEST_HMAC_SECRET", ""), "HMAC secret for signed uploads")
	flag.DurationVar(&cfg.timeout, "timeout", 2*time.Minute, "overall timeout")
	flag.Parse()
	return cfg
}

func buildRequest(cfg config, paths []string) (importapp.PreviewRequest, error) {
	req := importapp.PreviewRequest{SiteName: cfg.site}
	options := importapp.FileOptions{Unit: cfg.unit, Phase: cfg.phase}
	if cfg.separator != "" {
		options.Separator = []rune(cfg.separator)[0]
		if cfg.separator == `\t` || cfg.separator == "tab" {
			options.Separator = '\t'
		}
	}
	for _, path := range paths {
		name := filepath.Base(path)
		var file ingest.RawImportFile
		if xlsx.IsWorkbook(name) {
			f, err := os.Open(path)
			if err != nil {
				return req, err
			}
			file, err = xlsx.ReadImportFile(name, f, cfg.sheet)
			_ = f.Close()
			if err != nil {
				return req, fmt.Errorf("%s: %w", name, err)
			}
		} else {
			data, err := os.ReadFile(path)
			if err != nil {
				return req, err
			}
			file = ingest.RawImportFile{Name: name, Text: string(data)}
		}
		req.Files = append(req.Files, importapp.FileInput{File: file, Options: options})
	}
	return req, nil
}

// writeProfilesCSV writes one row per candidate, day type and hour.
func writeProfilesCSV(w io.Writer, preview *importapp.Preview) error {
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"candidate", "label", "match", "day_type", "hour", "kw"})
	for _, candidate := range preview.Candidates {
		profile := candidate.Result.Profile
		for _, dayType := range []ingest.DayType{ingest.DayTypeWeekday, ingest.DayTypeWeekend} {
			hours := profile.Hours(dayType)
			for hour, kw := range hours {
				_ = writer.Write([]string{
					strconv.Itoa(candidate.Index),
					candidate.Label,
					string(candidate.Match.Type),
					string(dayType),
					fmt.Sprintf("%02d:00", hour),
					strconv.FormatFloat(kw, 'f', 3, 64),
				})
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func push(cfg config, paths []string) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	fields := map[string]string{
		"site_name": cfg.site,
		"unit":      cfg.unit,
		"phase":     cfg.phase,
		"sheet":     cfg.sheet,
		"separator": cfg.separator,
	}
	for key, value := range fields {
		if value == "" {
			continue
		}
		if err := writer.WriteField(key, value); err != nil {
			return err
		}
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		part, err := writer.CreateFormFile("files", filepath.Base(path))
		if err != nil {
			return err
		}
		if _, err := part.Write(data); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	payload := body.Bytes()
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	url := strings.TrimRight(cfg.pushURL, "/") + "/ingest/v1/imports/preview"
	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(auth.HeaderIngestTimestamp, timestamp)
	req.Header.Set(auth.HeaderIngestSignature, auth.SignIngest([]byte(cfg.pushSecret), timestamp, payload))

	client := &http.Client{Timeout: cfg.timeout}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, err = io.Copy(os.Stdout, resp.Body)
	return err
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
