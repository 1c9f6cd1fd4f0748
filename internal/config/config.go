package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server         ServerConfig
	Worker         WorkerConfig
	Sources        SourcesConfig
	Resolver       ResolverConfig
	Engine         EngineConfig
	CircuitBreaker CircuitBreakerConfig
	DB             DatabaseConfig
	Logging        LoggingConfig
}

type ServerConfig struct {
	Host      string
	Port      int
	RateLimit int // requests per second, per client IP
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type SourcesConfig struct {
	USGSEventURL   string
	GDACSEventURL  string
	ASFSearchURL   string
	ASFBaselineURL string
	Timeout        time.Duration
	ContourTimeout time.Duration
	CatalogRPS     float64
	// ContoursEnabled turns ShakeMap contour lookups on for earthquake AOIs.
	ContoursEnabled bool
}

// ResolverConfig holds the constants of AOI derivation, scene selection and
// baseline matching.
type ResolverConfig struct {
	TempBaselineMax         float64 // days
	PerpBaselineMin         float64 // meters
	PerpBaselineMax         float64 // meters
	CoverageTarget          float64 // fraction of AOI area
	FloodBufferKm           float64
	IntensityThreshold      float64 // MMI contour used for the radius
	InterferogramWindowDays int
	DefaultWindowDays       int
	Platform                string
	ProcessingLevel         string
	BeamMode                string
	FlightDirection         string
}

type EngineConfig struct {
	URL          string // empty runs the no-op engine
	Timeout      time.Duration
	OutputPrefix string
}

type CircuitBreakerConfig struct {
	MaxRequests  uint32
	Interval     time.Duration
	Timeout      time.Duration
	MinRequests  uint32
	FailureRatio float64
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:      getEnv("SERVER_HOST", "localhost"),
			Port:      getEnvInt("SERVER_PORT", 8080),
			RateLimit: getEnvInt("SERVER_RATE_LIMIT", 5),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 20),
		},
		Sources: SourcesConfig{
			USGSEventURL:   getEnv("USGS_EVENT_URL", "https://earthquake.usgs.gov/fdsnws/event/1/query"),
			GDACSEventURL:  getEnv("GDACS_EVENT_URL", "https://www.gdacs.org/gdacsapi/api/events/geteventdata"),
			ASFSearchURL:   getEnv("ASF_SEARCH_URL", "https://api.daac.asf.alaska.edu/services/search/param"),
			ASFBaselineURL: getEnv("ASF_BASELINE_URL", "https://api.daac.asf.alaska.edu/services/search/baseline"),
			Timeout:        getEnvDuration("SOURCES_TIMEOUT", 30*time.Second),
			ContourTimeout: getEnvDuration("CONTOUR_TIMEOUT", 10*time.Second),
			CatalogRPS:     getEnvFloat("CATALOG_RPS", 2),

			ContoursEnabled: getEnvBool("CONTOURS_ENABLED", true),
		},
		Resolver: DefaultResolver(),
		Engine: EngineConfig{
			URL:          getEnv("ENGINE_URL", ""),
			Timeout:      getEnvDuration("ENGINE_TIMEOUT", 6*time.Hour),
			OutputPrefix: getEnv("ENGINE_OUTPUT_PREFIX", "processed"),
		},
		CircuitBreaker: CircuitBreakerConfig{
			MaxRequests:  uint32(getEnvInt("CB_MAX_REQUESTS", 3)),
			Interval:     getEnvDuration("CB_INTERVAL", time.Minute),
			Timeout:      getEnvDuration("CB_TIMEOUT", 2*time.Minute),
			MinRequests:  uint32(getEnvInt("CB_MIN_REQUESTS", 10)),
			FailureRatio: getEnvFloat("CB_FAILURE_RATIO", 0.6),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/hazard-tasks.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	r := &cfg.Resolver
	r.TempBaselineMax = getEnvFloat("TEMP_BASELINE_MAX", r.TempBaselineMax)
	r.PerpBaselineMin = getEnvFloat("PERP_BASELINE_MIN", r.PerpBaselineMin)
	r.PerpBaselineMax = getEnvFloat("PERP_BASELINE_MAX", r.PerpBaselineMax)
	r.CoverageTarget = getEnvFloat("COVERAGE_TARGET", r.CoverageTarget)
	r.FloodBufferKm = getEnvFloat("FLOOD_BUFFER_KM", r.FloodBufferKm)
	r.InterferogramWindowDays = getEnvInt("INTERFEROGRAM_WINDOW_DAYS", r.InterferogramWindowDays)
	r.DefaultWindowDays = getEnvInt("DEFAULT_WINDOW_DAYS", r.DefaultWindowDays)
	r.FlightDirection = strings.ToUpper(getEnv("FLIGHT_DIRECTION", r.FlightDirection))

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DefaultResolver returns the resolver constants used when nothing is overridden.
func DefaultResolver() ResolverConfig {
	return ResolverConfig{
		TempBaselineMax:         60,
		PerpBaselineMin:         10,
		PerpBaselineMax:         150,
		CoverageTarget:          0.9,
		FloodBufferKm:           25,
		IntensityThreshold:      5,
		InterferogramWindowDays: 20,
		DefaultWindowDays:       10,
		Platform:                "Sentinel-1",
		ProcessingLevel:         "SLC",
		BeamMode:                "IW",
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.Sources.Timeout <= 0 || c.Sources.ContourTimeout <= 0 {
		return fmt.Errorf("source timeouts must be positive")
	}
	if c.Sources.CatalogRPS <= 0 {
		return fmt.Errorf("catalog rps must be positive")
	}

	return c.Resolver.Validate()
}

func (r ResolverConfig) Validate() error {
	if r.TempBaselineMax <= 0 {
		return fmt.Errorf("temporal baseline max must be positive")
	}
	if r.PerpBaselineMin < 0 || r.PerpBaselineMax < r.PerpBaselineMin {
		return fmt.Errorf("invalid perpendicular baseline bounds: [%v, %v]", r.PerpBaselineMin, r.PerpBaselineMax)
	}
	if r.CoverageTarget <= 0 || r.CoverageTarget > 1 {
		return fmt.Errorf("coverage target must be in (0, 1]: %v", r.CoverageTarget)
	}
	if r.FloodBufferKm <= 0 {
		return fmt.Errorf("flood buffer must be positive")
	}
	if r.InterferogramWindowDays < 1 || r.DefaultWindowDays < 1 {
		return fmt.Errorf("search windows must be at least 1 day")
	}
	switch r.FlightDirection {
	case "", "ASCENDING", "DESCENDING":
	default:
		return fmt.Errorf("invalid flight direction: %s", r.FlightDirection)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
