// Package config reads server settings from the environment.
//
// A .env file in the working directory is loaded first when present, so
// local development does not need exported variables. Real environment
// variables always win over .env entries.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Elizabethomito/greenquest/internal/db"
	"github.com/Elizabethomito/greenquest/internal/verify"
)

// Storage drivers.
const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

// Config holds every setting the server reads at startup.
type Config struct {
	Addr        string
	MetricsAddr string // /metrics listener, kept off the public address
	DatabaseURL string
	JWTSecret   string

	LogLevel  slog.Level
	LogFormat string // "text" or "json"

	ClassifierURL     string // empty: classifier disabled, every image gets the fallback verdict
	ClassifierTimeout time.Duration
	CatalogPath       string // empty: built-in categories

	StorageDriver string
	UploadDir     string
	S3Bucket      string
	S3Region      string
	S3Endpoint    string

	AdminEmail    string
	AdminPassword string
}

// Load reads .env (if any) and the environment. Malformed values are
// reported instead of silently replaced with defaults.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from lookup, which returns "" for unset keys.
func FromEnv(lookup func(string) string) (Config, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(lookup(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := Config{
		Addr:          get("ADDR", ":8080"),
		MetricsAddr:   get("METRICS_ADDR", "127.0.0.1:9090"),
		DatabaseURL:   get("DATABASE_URL", db.DefaultDSN),
		JWTSecret:     get("JWT_SECRET", "changeme-use-a-real-secret-in-production"),
		LogFormat:     strings.ToLower(get("LOG_FORMAT", "text")),
		ClassifierURL: get("CLASSIFIER_URL", ""),
		CatalogPath:   get("CATALOG_PATH", ""),
		StorageDriver: strings.ToLower(get("STORAGE_DRIVER", DriverLocal)),
		UploadDir:     get("UPLOAD_DIR", "uploads"),
		S3Bucket:      get("S3_BUCKET", ""),
		S3Region:      get("S3_REGION", "us-east-1"),
		S3Endpoint:    get("S3_ENDPOINT", ""),
		AdminEmail:    strings.ToLower(get("ADMIN_EMAIL", "")),
		AdminPassword: get("ADMIN_PASSWORD", ""),
	}

	if cfg.MetricsAddr == cfg.Addr {
		return Config{}, fmt.Errorf("METRICS_ADDR: must differ from ADDR, got %q", cfg.MetricsAddr)
	}
	if err := cfg.LogLevel.UnmarshalText([]byte(get("LOG_LEVEL", "info"))); err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return Config{}, fmt.Errorf("LOG_FORMAT: want text or json, got %q", cfg.LogFormat)
	}

	timeout, err := time.ParseDuration(get("CLASSIFIER_TIMEOUT", verify.DefaultTimeout.String()))
	if err != nil {
		return Config{}, fmt.Errorf("CLASSIFIER_TIMEOUT: %w", err)
	}
	if timeout <= 0 {
		return Config{}, fmt.Errorf("CLASSIFIER_TIMEOUT: must be positive, got %s", timeout)
	}
	cfg.ClassifierTimeout = timeout

	switch cfg.StorageDriver {
	case DriverLocal:
	case DriverS3:
		if cfg.S3Bucket == "" {
			return Config{}, errors.New("S3_BUCKET is required when STORAGE_DRIVER=s3")
		}
	default:
		return Config{}, fmt.Errorf("STORAGE_DRIVER: want local or s3, got %q", cfg.StorageDriver)
	}

	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		return Config{}, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}
	return cfg, nil
}
