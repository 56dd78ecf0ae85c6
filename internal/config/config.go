package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds all the configuration for the application.
type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"production"`
	HTTPServer `yaml:"http_server"`
	Database   `yaml:"database"`
	Redis      `yaml:"redis"`
	Auth       `yaml:"auth"`
	Tracking   `yaml:"tracking"`
	Line       `yaml:"line"`
}

// HTTPServer holds HTTP server specific configuration.
type HTTPServer struct {
	Port         int           `yaml:"port" env:"HTTP_SERVER_PORT" env-default:"8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

// Database holds PostgreSQL connection configuration.
type Database struct {
	Host        string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port        int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User        string `yaml:"user" env:"DB_USER" env-default:"postgres"`
	Password    string `yaml:"password" env:"DB_PASSWORD" env-default:""`
	Name        string `yaml:"name" env:"DB_NAME" env-default:"agencytrack"`
	SSLMode     string `yaml:"ssl_mode" env:"DB_SSL_MODE" env-default:"disable"`
	Timezone    string `yaml:"timezone" env:"DB_TIMEZONE" env-default:"Asia/Tokyo"`
	AutoMigrate bool   `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"true"`
	SeedData    bool   `yaml:"seed_data" env:"DB_SEED_DATA" env-default:"false"`

	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"1h"`
}

// Redis holds the connection settings for the rate limiter backend.
type Redis struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR" env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED" env-default:"false"`
}

// Auth holds JWT settings for the agency API.
type Auth struct {
	JWTSecret      string        `yaml:"jwt_secret" env:"JWT_SECRET" env-default:""`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	Issuer         string        `yaml:"issuer" env:"JWT_ISSUER" env-default:"AgencyTrack-Backend"`
}

// Tracking holds redirect-path specific configuration.
type Tracking struct {
	BaseURL     string `yaml:"base_url" env:"TRACKING_BASE_URL" env-default:"http://localhost:8080"`
	CookieName  string `yaml:"cookie_name" env:"TRACKING_COOKIE_NAME" env-default:"agency_tracking"`
	CodeLength  int    `yaml:"code_length" env:"TRACKING_CODE_LENGTH" env-default:"8"`
	RegexesPath string `yaml:"regexes_path" env:"UA_REGEXES_PATH" env-default:"assets/regexes.yaml"`
}

// Line groups the per-service LINE channel credentials and downstream
// forwarding targets. Each tracked service runs its own LINE official
// account, so secrets are configured per service code.
type Line struct {
	Taskmate LineChannel `yaml:"taskmate" env-prefix:"TASKMATE_"`
	Subsidy  LineChannel `yaml:"subsidy" env-prefix:"SUBSIDY_"`
}

// LineChannel holds one LINE official account's credentials plus the
// optional downstream webhook URLs events are forwarded to.
type LineChannel struct {
	ChannelSecret       string `yaml:"channel_secret" env:"LINE_CHANNEL_SECRET" env-default:""`
	ChannelAccessToken  string `yaml:"channel_access_token" env:"LINE_CHANNEL_ACCESS_TOKEN" env-default:""`
	ExternalWebhookURL  string `yaml:"external_webhook_url" env:"EXTERNAL_WEBHOOK_URL" env-default:""`
	ProcessorWebhookURL string `yaml:"processor_webhook_url" env:"PROCESSOR_WEBHOOK_URL" env-default:""`
}

// Channel returns the credentials for a service code, or nil when the
// service has no channel configured.
func (l *Line) Channel(serviceCode string) *LineChannel {
	switch serviceCode {
	case "taskmate":
		return &l.Taskmate
	case "subsidy":
		return &l.Subsidy
	}
	return nil
}

// MustLoad loads the application configuration.
func MustLoad() *Config {
	// Try to load .env file (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment variables")
	}

	var cfg Config

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/local.yml" // default path
	}

	if _, err := os.Stat(configPath); err == nil {
		if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
			log.Fatalf("cannot read config: %s", err)
		}
	} else {
		// If config file doesn't exist, use environment variables only
		log.Println("Config file not found, using environment variables only")
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			log.Fatalf("cannot read config from environment: %s", err)
		}
	}

	return &cfg
}
