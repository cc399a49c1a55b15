package config

import (
	"errors"
	"fmt"
	"os"

	"soothe/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Assignment AssignmentConfig `yaml:"assignment"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Email      EmailConfig      `yaml:"email"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Google     GoogleConfig     `yaml:"google"`
	Exports    ExportConfig     `yaml:"exports"`
	Therapists TherapistsConfig `yaml:"therapists"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// AssignmentConfig tunes the dispatch loop.
type AssignmentConfig struct {
	// ResponseWindowSec is how long each therapist has to accept or decline
	// before the request moves to the next candidate.
	ResponseWindowSec int `yaml:"response_window_sec"`
	// RadiusKm caps the customer-to-therapist distance.
	RadiusKm float64 `yaml:"radius_km"`
	// PublicBaseURL is the externally reachable prefix for accept/decline
	// links embedded in therapist emails.
	PublicBaseURL  string `yaml:"public_base_url"`
	SnapshotTTLSec int    `yaml:"snapshot_ttl_sec"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
	// Respond endpoint is rate limited per remote address, not per API key.
	RespondRateLimit  int `yaml:"respond_rate_limit"`
	RespondRateWindow int `yaml:"respond_rate_window"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type EmailConfig struct {
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	FromName       string `yaml:"from_name"`
	FromAddress    string `yaml:"from_address"`
}

type TelegramConfig struct {
	Enabled  bool    `yaml:"enabled"`
	BotToken string  `yaml:"bot_token"`
	Debug    bool    `yaml:"debug"`
	Admins   []int64 `yaml:"admins"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	BookingSpreadSheetID  string `yaml:"bookings_spreadsheet_id"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type TherapistsConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env сначала, чтобы ExpandEnv видел переменные
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Therapists.Path == "" {
		return errors.New("therapists roster path is required")
	}

	if c.Assignment.PublicBaseURL == "" {
		return errors.New("assignment public_base_url is required")
	}

	if c.Assignment.ResponseWindowSec < 0 {
		return fmt.Errorf("response_window_sec must be positive, got %d", c.Assignment.ResponseWindowSec)
	}

	if c.Assignment.RadiusKm < 0 {
		return fmt.Errorf("radius_km must be positive, got %f", c.Assignment.RadiusKm)
	}

	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return errors.New("telegram bot token is required when telegram is enabled")
	}

	return nil
}

func (c *Config) applyDefaults() {
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	// auth enabled by default when API is enabled
	if !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.API.RespondRateLimit == 0 {
		c.API.RespondRateLimit = models.RespondRateLimit
	}
	if c.API.RespondRateWindow == 0 {
		c.API.RespondRateWindow = models.RespondRateWindow
	}

	if c.Assignment.ResponseWindowSec == 0 {
		c.Assignment.ResponseWindowSec = models.DefaultResponseWindowSec
	}
	if c.Assignment.RadiusKm == 0 {
		c.Assignment.RadiusKm = models.DefaultRadiusKm
	}
	if c.Assignment.SnapshotTTLSec == 0 {
		c.Assignment.SnapshotTTLSec = models.DefaultSnapshotTTL
	}

	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
}
