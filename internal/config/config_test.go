package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/Elizabethomito/greenquest/internal/db"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Addr != ":8080" || cfg.MetricsAddr != "127.0.0.1:9090" {
		t.Errorf("addresses: got %q/%q", cfg.Addr, cfg.MetricsAddr)
	}
	if cfg.DatabaseURL != db.DefaultDSN {
		t.Errorf("DatabaseURL: got %q", cfg.DatabaseURL)
	}
	if cfg.LogLevel != slog.LevelInfo || cfg.LogFormat != "text" {
		t.Errorf("logging: got %v/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.ClassifierTimeout != 20*time.Second {
		t.Errorf("ClassifierTimeout: got %s", cfg.ClassifierTimeout)
	}
	if cfg.StorageDriver != DriverLocal || cfg.UploadDir != "uploads" {
		t.Errorf("storage: got %s/%s", cfg.StorageDriver, cfg.UploadDir)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"LOG_LEVEL":          "debug",
		"LOG_FORMAT":         "JSON",
		"CLASSIFIER_URL":     "http://clip:5000/classify",
		"CLASSIFIER_TIMEOUT": "1500ms",
		"STORAGE_DRIVER":     "s3",
		"S3_BUCKET":          "evidence",
		"ADMIN_EMAIL":        "Root@Example.com",
		"ADMIN_PASSWORD":     "hunter22",
	}))
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.LogLevel != slog.LevelDebug || cfg.LogFormat != "json" {
		t.Errorf("logging: got %v/%s", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.ClassifierTimeout != 1500*time.Millisecond {
		t.Errorf("ClassifierTimeout: got %s", cfg.ClassifierTimeout)
	}
	if cfg.S3Bucket != "evidence" || cfg.S3Region != "us-east-1" {
		t.Errorf("s3: got %s/%s", cfg.S3Bucket, cfg.S3Region)
	}
	if cfg.AdminEmail != "root@example.com" {
		t.Errorf("AdminEmail: got %q", cfg.AdminEmail)
	}
}

func TestFromEnv_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"level":          {"LOG_LEVEL": "loud"},
		"format":         {"LOG_FORMAT": "xml"},
		"timeout":        {"CLASSIFIER_TIMEOUT": "soon"},
		"zero timeout":   {"CLASSIFIER_TIMEOUT": "0s"},
		"driver":         {"STORAGE_DRIVER": "ftp"},
		"s3 no bucket":   {"STORAGE_DRIVER": "s3"},
		"admin half-set": {"ADMIN_EMAIL": "root@example.com"},
		"shared metrics": {"ADDR": ":8080", "METRICS_ADDR": ":8080"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromEnv(env(vars)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}
