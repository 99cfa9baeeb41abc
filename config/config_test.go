package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_PATH", "PORT", "ALLOWED_ORIGINS", "THUMBNAIL_MAX_WIDTH", "THUMBNAIL_MAX_HEIGHT",
		"SCAN_ACTIVE_INTERVAL", "SCAN_IDLE_INTERVAL", "SCAN_COOLDOWN_INTERVAL", "SCAN_WORKERS",
		"MAX_FILE_SIZE_MB", "MAX_IMAGE_MEGAPIXELS", "TREE_MAX_DEPTH", "LOG_LEVEL", "APP_ENV",
	} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if !filepath.IsAbs(cfg.DatabasePath) {
		t.Errorf("DatabasePath = %q, want absolute path", cfg.DatabasePath)
	}
	if cfg.ThumbnailMaxWidth != 200 || cfg.ThumbnailMaxHeight != 200 {
		t.Errorf("thumbnail bounds = %dx%d, want 200x200", cfg.ThumbnailMaxWidth, cfg.ThumbnailMaxHeight)
	}
	if cfg.ScanActiveInterval != 30*time.Second {
		t.Errorf("ScanActiveInterval = %s, want 30s", cfg.ScanActiveInterval)
	}
	if cfg.ScanIdleInterval != 10*time.Minute {
		t.Errorf("ScanIdleInterval = %s, want 10m", cfg.ScanIdleInterval)
	}
	if cfg.ScanCooldownInterval != 2*time.Minute {
		t.Errorf("ScanCooldownInterval = %s, want 2m", cfg.ScanCooldownInterval)
	}
	if cfg.MaxFileSize != 200<<20 {
		t.Errorf("MaxFileSize = %d, want %d", cfg.MaxFileSize, 200<<20)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "http://localhost:5173" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("THUMBNAIL_MAX_WIDTH", "320")
	t.Setenv("SCAN_ACTIVE_INTERVAL", "5s")
	t.Setenv("SCAN_WORKERS", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.ThumbnailMaxWidth != 320 {
		t.Errorf("ThumbnailMaxWidth = %d, want 320", cfg.ThumbnailMaxWidth)
	}
	if cfg.ScanActiveInterval != 5*time.Second {
		t.Errorf("ScanActiveInterval = %s, want 5s", cfg.ScanActiveInterval)
	}
	if cfg.ScanWorkers != defaultScanWorkers {
		t.Errorf("ScanWorkers = %d, want fallback %d", cfg.ScanWorkers, defaultScanWorkers)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadConfigRejectsInvertedIntervals(t *testing.T) {
	t.Setenv("SCAN_ACTIVE_INTERVAL", "20m")
	t.Setenv("SCAN_IDLE_INTERVAL", "10m")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() error = nil, want error for active >= idle")
	}
}
