package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("API_ADDR", "")
	t.Setenv("TX_MAX_ATTEMPTS", "")
	t.Setenv("CORS_ORIGINS", "")

	cfg := Load()
	if cfg.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", cfg.Addr)
	}
	if cfg.TxMaxAttempts != 3 {
		t.Fatalf("TxMaxAttempts = %d, want 3", cfg.TxMaxAttempts)
	}
	if len(cfg.CORSOrigins) != 1 || cfg.CORSOrigins[0] != "*" {
		t.Fatalf("CORSOrigins = %v, want [*]", cfg.CORSOrigins)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ACCESS_TTL_SECONDS", "60")
	t.Setenv("TX_TIMEOUT_MS", "250")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("MAX_UPLOAD_BYTES", "not-a-number")

	cfg := Load()
	if cfg.AccessTTL != time.Minute {
		t.Fatalf("AccessTTL = %v, want 1m", cfg.AccessTTL)
	}
	if cfg.TxTimeout != 250*time.Millisecond {
		t.Fatalf("TxTimeout = %v, want 250ms", cfg.TxTimeout)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "http://b.test" {
		t.Fatalf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if !cfg.MinioUseSSL {
		t.Fatal("MinioUseSSL = false, want true")
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Fatalf("MaxUploadBytes = %d, want default", cfg.MaxUploadBytes)
	}
}
