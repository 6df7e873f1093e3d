package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"database"`
	} `yaml:"database"`
	RabbitMQ struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
	} `yaml:"rabbitmq"`
	NATS struct {
		URL           string `yaml:"url"`
		SubjectPrefix string `yaml:"subject_prefix"`
	} `yaml:"nats"`
	Redis struct {
		// Addr is optional; the replay window stays in-process when empty.
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Directions struct {
		// BaseURL is optional; routes fall back to straight-line ordering when empty.
		BaseURL  string        `yaml:"base_url"`
		Profile  string        `yaml:"profile"`
		Timeout  time.Duration `yaml:"timeout"`
		CacheTTL time.Duration `yaml:"cache_ttl"`
		CacheMax int           `yaml:"cache_max"`
	} `yaml:"directions"`
	Services struct {
		TripServicePort    int `yaml:"trip_service"`
		TrackerServicePort int `yaml:"tracker_service"`
	} `yaml:"services"`
	JWT struct {
		SecretKey string `yaml:"secret_key"`
		// DevTokens mounts the unauthenticated POST /tokens route. Keep it off outside local setups.
		DevTokens bool `yaml:"dev_tokens"`
	} `yaml:"jwt"`
	Scan struct {
		ReplayWindow time.Duration `yaml:"replay_window"`
		CacheSize    int           `yaml:"cache_size"`
	} `yaml:"scan"`
	Tracking struct {
		ForegroundInterval time.Duration `yaml:"foreground_interval"`
		BackgroundInterval time.Duration `yaml:"background_interval"`
	} `yaml:"tracking"`
}

// LoadFromFile loads config from a YAML file to a Config struct, overlays environment
// variables (a .env file is read first when present), applies defaults, and validates required fields.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()
	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// applyEnv overrides secrets and endpoints from the process environment.
func applyEnv(cfg *Config) error {
	overrides := []struct {
		key string
		dst *string
	}{
		{"DB_HOST", &cfg.Database.Host},
		{"DB_USER", &cfg.Database.User},
		{"DB_PASSWORD", &cfg.Database.Password},
		{"DB_NAME", &cfg.Database.Name},
		{"RABBITMQ_HOST", &cfg.RabbitMQ.Host},
		{"RABBITMQ_USER", &cfg.RabbitMQ.User},
		{"RABBITMQ_PASSWORD", &cfg.RabbitMQ.Password},
		{"NATS_URL", &cfg.NATS.URL},
		{"REDIS_ADDR", &cfg.Redis.Addr},
		{"REDIS_PASSWORD", &cfg.Redis.Password},
		{"DIRECTIONS_BASE_URL", &cfg.Directions.BaseURL},
		{"JWT_SECRET", &cfg.JWT.SecretKey},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.key); ok && strings.TrimSpace(v) != "" {
			*o.dst = strings.TrimSpace(v)
		}
	}

	if v := os.Getenv("DB_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("DB_PORT: %w", err)
		}
		cfg.Database.Port = port
	}
	if v := os.Getenv("SCAN_REPLAY_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SCAN_REPLAY_WINDOW: %w", err)
		}
		cfg.Scan.ReplayWindow = d
	}
	return nil
}

// applyDefaults sets safe defaults for some fields.
func applyDefaults(cfg *Config) {
	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	// RabbitMQ
	if cfg.RabbitMQ.Host == "" {
		cfg.RabbitMQ.Host = "localhost"
	}
	if cfg.RabbitMQ.Port == 0 {
		cfg.RabbitMQ.Port = 5672
	}

	// NATS
	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "positions"
	}

	// Directions
	if cfg.Directions.Profile == "" {
		cfg.Directions.Profile = "driving"
	}
	if cfg.Directions.Timeout == 0 {
		cfg.Directions.Timeout = 3 * time.Second
	}
	if cfg.Directions.CacheTTL == 0 {
		cfg.Directions.CacheTTL = time.Minute
	}
	if cfg.Directions.CacheMax == 0 {
		cfg.Directions.CacheMax = 512
	}

	// Services
	if cfg.Services.TripServicePort == 0 {
		cfg.Services.TripServicePort = 3000
	}
	if cfg.Services.TrackerServicePort == 0 {
		cfg.Services.TrackerServicePort = 3001
	}

	// Scan
	if cfg.Scan.ReplayWindow == 0 {
		cfg.Scan.ReplayWindow = 2 * time.Second
	}
	if cfg.Scan.CacheSize == 0 {
		cfg.Scan.CacheSize = 4096
	}

	// Tracking
	if cfg.Tracking.ForegroundInterval == 0 {
		cfg.Tracking.ForegroundInterval = 30 * time.Second
	}
	if cfg.Tracking.BackgroundInterval == 0 {
		cfg.Tracking.BackgroundInterval = 90 * time.Second
	}

	if cfg.JWT.SecretKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			// fallback: time-based bytes
			key = []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
		}
		cfg.JWT.SecretKey = base64.StdEncoding.EncodeToString(key)
	}
}

// validate checks required fields and basic ranges.
func (c *Config) validate() error {
	var problems []string

	// DB
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		problems = append(problems, "database.port must be in 1..65535")
	}
	if c.Database.User == "" {
		problems = append(problems, "database.user is required")
	}
	if c.Database.Password == "" {
		problems = append(problems, "database.password is required")
	}
	if c.Database.Name == "" {
		problems = append(problems, "database.database is required")
	}

	// RabbitMQ
	if c.RabbitMQ.Port <= 0 || c.RabbitMQ.Port > 65535 {
		problems = append(problems, "rabbitmq.port must be in 1..65535")
	}
	if c.RabbitMQ.User == "" {
		problems = append(problems, "rabbitmq.user is required")
	}
	if c.RabbitMQ.Password == "" {
		problems = append(problems, "rabbitmq.password is required")
	}

	// Directions
	if c.Directions.BaseURL != "" && !strings.HasPrefix(c.Directions.BaseURL, "http") {
		problems = append(problems, "directions.base_url must be an http(s) URL")
	}

	// Services
	if c.Services.TripServicePort <= 0 || c.Services.TripServicePort > 65535 {
		problems = append(problems, "services.trip_service must be in 1..65535")
	}
	if c.Services.TrackerServicePort <= 0 || c.Services.TrackerServicePort > 65535 {
		problems = append(problems, "services.tracker_service must be in 1..65535")
	}

	// Scan & tracking
	if c.Scan.ReplayWindow < 0 {
		problems = append(problems, "scan.replay_window cannot be negative")
	}
	if c.Scan.CacheSize < 0 {
		problems = append(problems, "scan.cache_size cannot be negative")
	}
	if c.Directions.CacheMax < 0 {
		problems = append(problems, "directions.cache_max cannot be negative")
	}
	if c.Tracking.BackgroundInterval < c.Tracking.ForegroundInterval {
		problems = append(problems, "tracking.background_interval must not be shorter than tracking.foreground_interval")
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
