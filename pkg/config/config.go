package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: every environment variable is read here and nowhere else
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Upstream market API
	Market MarketConfig

	// Snapshot collection
	Collector CollectorConfig

	// Analytics & scoring
	Analytics AnalyticsConfig

	// On-disk layout
	Storage StorageConfig

	// Optional PostgreSQL mirror of the published tables
	Database DatabaseConfig

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// MarketConfig holds warframe.market API configuration
type MarketConfig struct {
	BaseURL   string
	Platform  string // pc, ps4, xbox, switch
	Language  string
	UserAgent string
	Timeout   time.Duration
}

// CollectorConfig holds snapshot collection configuration
type CollectorConfig struct {
	// RequestsPerSec is the hard budget against the upstream API.
	// Callers block to stay under it, never fire past it.
	RequestsPerSec float64
	// Workers is the poll fan-out. 1 means strictly sequential polling.
	Workers int
	// TopDepth is how many top-of-book orders are averaged per side.
	TopDepth int
	// WeeklyMinVolume is the trade count above which an item stays eligible.
	WeeklyMinVolume int
	MaxRetries      int
	RetryDelay      time.Duration
}

// AnalyticsConfig holds scoring policy knobs
type AnalyticsConfig struct {
	// ROIRef is the ROI% at the sigmoid midpoint of the normalized score.
	ROIRef float64
	// ROISharpness steers how fast the sigmoid saturates around ROIRef.
	ROISharpness float64
	// MarginFloor/MarginTarget bound the linear margin response ramp.
	MarginFloor  float64
	MarginTarget float64
	// ReconcileTolerancePct is the relative divergence that triggers an alert.
	ReconcileTolerancePct float64
	// KPIWindowDays is the trailing window for the KPI average.
	KPIWindowDays int
	// PrimeOnly restricts scoring to prime sets (url contains "prime_set").
	PrimeOnly bool
}

// StorageConfig holds filesystem layout configuration
type StorageConfig struct {
	DataDir      string // raw monthly partitions + eligibility state
	AnalyticsDir string // published tables
}

// DatabaseConfig holds the optional PostgreSQL mirror configuration
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether the PostgreSQL mirror is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// Load reads configuration from environment variables
// ⭐ SSOT: this is the only function that calls os.Getenv()
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8087"),
		Env:  getEnv("ENV", "development"),

		// Upstream market API
		Market: MarketConfig{
			BaseURL:   getEnv("WFM_BASE_URL", "https://api.warframe.market/v1"),
			Platform:  getEnv("WFM_PLATFORM", "pc"),
			Language:  getEnv("WFM_LANGUAGE", "en"),
			UserAgent: getEnv("WFM_USER_AGENT", "wfm-collector/1.1"),
			Timeout:   getEnvAsDuration("WFM_TIMEOUT", "30s"),
		},

		// Snapshot collection
		Collector: CollectorConfig{
			RequestsPerSec:  getEnvAsFloat("WFM_REQS_PER_SEC", 3.0),
			Workers:         getEnvAsInt("WFM_WORKERS", 1),
			TopDepth:        getEnvAsInt("WFM_TOP_DEPTH", 3),
			WeeklyMinVolume: getEnvAsInt("WFM_WEEKLY_MIN_VOLUME", 3),
			MaxRetries:      getEnvAsInt("WFM_MAX_RETRIES", 3),
			RetryDelay:      getEnvAsDuration("WFM_RETRY_DELAY", "1s"),
		},

		// Analytics & scoring
		Analytics: AnalyticsConfig{
			ROIRef:                getEnvAsFloat("WFM_ROI_REF", 15.0),
			ROISharpness:          getEnvAsFloat("WFM_ROI_SHARPNESS", 0.25),
			MarginFloor:           getEnvAsFloat("WFM_MARGIN_FLOOR", 0.0),
			MarginTarget:          getEnvAsFloat("WFM_MARGIN_TARGET", 50.0),
			ReconcileTolerancePct: getEnvAsFloat("WFM_RECONCILE_TOLERANCE_PCT", 5.0),
			KPIWindowDays:         getEnvAsInt("WFM_KPI_WINDOW_DAYS", 30),
			PrimeOnly:             getEnvAsBool("WFM_PRIME_ONLY", true),
		},

		// On-disk layout
		Storage: StorageConfig{
			DataDir:      getEnv("WFM_DATA_DIR", "data"),
			AnalyticsDir: getEnv("WFM_ANALYTICS_DIR", filepath.Join("docs", "data", "analytics")),
		},

		// Optional PostgreSQL mirror
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Market.Platform == "" {
		return fmt.Errorf("WFM_PLATFORM must not be empty")
	}

	if c.Collector.RequestsPerSec <= 0 {
		return fmt.Errorf("WFM_REQS_PER_SEC must be positive")
	}

	if c.Collector.Workers < 1 {
		return fmt.Errorf("WFM_WORKERS must be at least 1")
	}

	if c.Collector.TopDepth < 1 {
		return fmt.Errorf("WFM_TOP_DEPTH must be at least 1")
	}

	if c.Analytics.MarginTarget <= c.Analytics.MarginFloor {
		return fmt.Errorf("WFM_MARGIN_TARGET must exceed WFM_MARGIN_FLOOR")
	}

	if c.Analytics.ReconcileTolerancePct <= 0 {
		return fmt.Errorf("WFM_RECONCILE_TOLERANCE_PCT must be positive")
	}

	if c.Analytics.KPIWindowDays < 1 {
		return fmt.Errorf("WFM_KPI_WINDOW_DAYS must be at least 1")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env", // Current directory
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
			filepath.Join(exeDir, "..", "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
