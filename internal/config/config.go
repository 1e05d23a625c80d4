package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// MinJWTSecretLength is the minimum signing secret size in bytes.
const MinJWTSecretLength = 32

// Store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds service configuration loaded from .env, YAML and env.
type Config struct {
	ServerPort string

	SecretID string

	JWTSecret           string
	TokenTTL            time.Duration
	BcryptCost          int
	LoginRateLimitRPS   float64
	LoginRateLimitBurst int

	WeatherAPIKey     string
	WeatherAPIURL     string
	WeatherAPITimeout time.Duration
	WeatherLocation   string

	BreakerFailureThreshold uint32
	BreakerHalfOpenRequests uint32
	BreakerOpenTimeout      time.Duration

	StoreBackend string
	SQLitePath   string
	PostgresURL  string

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	HealthWeatherWindow   time.Duration
	HealthWeatherErrorPct float64
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Admission struct {
		SecretID string `yaml:"secret_id"`
	} `yaml:"admission"`

	Auth struct {
		TokenTTL            string  `yaml:"token_ttl"`
		BcryptCost          int     `yaml:"bcrypt_cost"`
		LoginRateLimitRPS   float64 `yaml:"login_rate_limit_rps"`
		LoginRateLimitBurst int     `yaml:"login_rate_limit_burst"`
	} `yaml:"auth"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Weather struct {
		Location string `yaml:"location"`
	} `yaml:"weather"`

	CircuitBreaker struct {
		FailureThreshold uint32 `yaml:"failure_threshold"`
		HalfOpenRequests uint32 `yaml:"half_open_requests"`
		OpenTimeout      string `yaml:"open_timeout"`
	} `yaml:"circuit_breaker"`

	Store struct {
		Backend     string `yaml:"backend"`
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresURL string `yaml:"postgres_url"`
	} `yaml:"store"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`

	Health struct {
		WeatherWindow   string  `yaml:"weather_window"`
		WeatherErrorPct float64 `yaml:"weather_error_pct"`
	} `yaml:"health"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
	JWTSecret     string `yaml:"jwt_secret"`
	SecretID      string `yaml:"secret_id"`
	DatabaseURL   string `yaml:"database_url"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev) and config/secrets.yaml.
// A .env file in the working directory is loaded first and never overrides variables already set.
// Secrets come from env (JWT_SECRET, WEATHER_API_KEY, SECRET_ID, DATABASE_URL) or the secrets file.
// Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadDir(cwd)
}

// LoadDir is Load rooted at dir instead of the working directory.
func LoadDir(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	var sec secretsFile
	secretsData, err := os.ReadFile(filepath.Join(dir, "config", "secrets.yaml"))
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read secrets file: %w", err)
		}
	} else if err := yaml.Unmarshal(secretsData, &sec); err != nil {
		return nil, fmt.Errorf("parse secrets file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = firstNonEmpty(os.Getenv("PORT"), fc.Server.Port, "8080")

	cfg.SecretID = firstNonEmpty(os.Getenv("SECRET_ID"), sec.SecretID, fc.Admission.SecretID)
	cfg.JWTSecret = firstNonEmpty(os.Getenv("JWT_SECRET"), sec.JWTSecret)
	cfg.TokenTTL = parseDuration(fc.Auth.TokenTTL, time.Hour)
	cfg.BcryptCost = fc.Auth.BcryptCost
	cfg.LoginRateLimitRPS = fc.Auth.LoginRateLimitRPS
	if cfg.LoginRateLimitRPS <= 0 {
		cfg.LoginRateLimitRPS = 5
	}
	cfg.LoginRateLimitBurst = fc.Auth.LoginRateLimitBurst
	if cfg.LoginRateLimitBurst <= 0 {
		cfg.LoginRateLimitBurst = 10
	}

	cfg.WeatherAPIKey = firstNonEmpty(os.Getenv("WEATHER_API_KEY"), sec.WeatherAPIKey)
	cfg.WeatherAPIURL = firstNonEmpty(fc.WeatherAPI.URL, "https://api.openweathermap.org/data/2.5/weather")
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 3*time.Second)
	cfg.WeatherLocation = firstNonEmpty(strings.TrimSpace(fc.Weather.Location), "London")

	cfg.BreakerFailureThreshold = fc.CircuitBreaker.FailureThreshold
	if cfg.BreakerFailureThreshold == 0 {
		cfg.BreakerFailureThreshold = 5
	}
	cfg.BreakerHalfOpenRequests = fc.CircuitBreaker.HalfOpenRequests
	if cfg.BreakerHalfOpenRequests == 0 {
		cfg.BreakerHalfOpenRequests = 1
	}
	cfg.BreakerOpenTimeout = parseDuration(fc.CircuitBreaker.OpenTimeout, 30*time.Second)

	cfg.StoreBackend = strings.TrimSpace(strings.ToLower(firstNonEmpty(os.Getenv("STORE_BACKEND"), fc.Store.Backend, BackendSQLite)))
	cfg.SQLitePath = firstNonEmpty(fc.Store.SQLitePath, "news.db")
	cfg.PostgresURL = firstNonEmpty(os.Getenv("DATABASE_URL"), sec.DatabaseURL, fc.Store.PostgresURL)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)
	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	cfg.HealthWeatherWindow = parseDuration(fc.Health.WeatherWindow, time.Minute)
	cfg.HealthWeatherErrorPct = fc.Health.WeatherErrorPct
	if cfg.HealthWeatherErrorPct <= 0 {
		cfg.HealthWeatherErrorPct = 50
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation. RequestTimeout is raised above WeatherAPITimeout
// so a slow weather call can still be answered with the placeholder.
func validate(cfg *Config) error {
	if cfg.SecretID == "" {
		return fmt.Errorf("SECRET_ID required (set env, config/secrets.yaml secret_id or admission.secret_id)")
	}
	if len(cfg.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes, got %d", MinJWTSecretLength, len(cfg.JWTSecret))
	}
	if cfg.WeatherAPIKey == "" {
		return fmt.Errorf("WEATHER_API_KEY required (set env or config/secrets.yaml weather_api_key)")
	}
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.RequestTimeout <= cfg.WeatherAPITimeout {
		cfg.RequestTimeout = cfg.WeatherAPITimeout + time.Second
	}
	switch cfg.StoreBackend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if cfg.PostgresURL == "" {
			return fmt.Errorf("store.backend postgres requires DATABASE_URL or store.postgres_url")
		}
	default:
		return fmt.Errorf("store.backend must be memory, sqlite or postgres, got %q", cfg.StoreBackend)
	}
	return nil
}
