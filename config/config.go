package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultThumbnailMaxWidth  = 200
	defaultThumbnailMaxHeight = 200
	defaultScanWorkers        = 2
	defaultMaxFileSizeMB      = 200
	defaultMaxImageMegapixels = 100
	defaultTreeMaxDepth       = 3

	defaultScanActiveInterval   = 30 * time.Second
	defaultScanIdleInterval     = 10 * time.Minute
	defaultScanCooldownInterval = 2 * time.Minute
)

type Config struct {
	// database path (absolute)
	DatabasePath string

	// http settings
	Port           string
	AllowedOrigins []string

	// thumbnail generation settings
	ThumbnailMaxWidth  int
	ThumbnailMaxHeight int
	MaxImagePixels     int

	// scanner settings
	ScanActiveInterval   time.Duration // after a pass that indexed something
	ScanIdleInterval     time.Duration // after a pass with no changes
	ScanCooldownInterval time.Duration // after a failed pass
	ScanWorkers          int
	MaxFileSize          int64

	TreeMaxDepth int

	// logging
	LogLevel    string
	Environment string
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Warn().Str("var", envVar).Str("value", valStr).Int("default", defaultVal).Err(err).
			Msg("config: invalid integer, using default")
		return defaultVal
	}
	return val
}

func getEnvDurationOrDefault(envVar string, defaultVal time.Duration) time.Duration {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := time.ParseDuration(valStr)
	if err != nil || val <= 0 {
		log.Warn().Str("var", envVar).Str("value", valStr).Dur("default", defaultVal).Err(err).
			Msg("config: invalid duration, using default")
		return defaultVal
	}
	return val
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func LoadConfig() (Config, error) {
	dbPath := getEnvOrDefault("DATABASE_PATH", filepath.Join(".", "data", "imageindex.db"))
	absDBPath, err := filepath.Abs(dbPath)
	if err != nil {
		return Config{}, fmt.Errorf("failed to get absolute path for database '%s': %w", dbPath, err)
	}

	cfg := Config{
		DatabasePath:         absDBPath,
		Port:                 getEnvOrDefault("PORT", "8080"),
		AllowedOrigins:       splitList(getEnvOrDefault("ALLOWED_ORIGINS", "http://localhost:5173")),
		ThumbnailMaxWidth:    getEnvIntOrDefault("THUMBNAIL_MAX_WIDTH", defaultThumbnailMaxWidth),
		ThumbnailMaxHeight:   getEnvIntOrDefault("THUMBNAIL_MAX_HEIGHT", defaultThumbnailMaxHeight),
		MaxImagePixels:       getEnvIntOrDefault("MAX_IMAGE_MEGAPIXELS", defaultMaxImageMegapixels) * 1_000_000,
		ScanActiveInterval:   getEnvDurationOrDefault("SCAN_ACTIVE_INTERVAL", defaultScanActiveInterval),
		ScanIdleInterval:     getEnvDurationOrDefault("SCAN_IDLE_INTERVAL", defaultScanIdleInterval),
		ScanCooldownInterval: getEnvDurationOrDefault("SCAN_COOLDOWN_INTERVAL", defaultScanCooldownInterval),
		ScanWorkers:          getEnvIntOrDefault("SCAN_WORKERS", defaultScanWorkers),
		MaxFileSize:          int64(getEnvIntOrDefault("MAX_FILE_SIZE_MB", defaultMaxFileSizeMB)) << 20,
		TreeMaxDepth:         getEnvIntOrDefault("TREE_MAX_DEPTH", defaultTreeMaxDepth),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		Environment:          getEnvOrDefault("APP_ENV", "development"),
	}

	if cfg.ScanActiveInterval >= cfg.ScanIdleInterval {
		return Config{}, fmt.Errorf("SCAN_ACTIVE_INTERVAL (%s) must be shorter than SCAN_IDLE_INTERVAL (%s)",
			cfg.ScanActiveInterval, cfg.ScanIdleInterval)
	}

	return cfg, nil
}
