package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Store drivers
const (
	StoreDriverMongo  = "mongo"
	StoreDriverMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	// MongoDB Configuration
	MongoURI      string        `envconfig:"MONGO_URI" default:"mongodb://localhost:27017/assessments?authSource=admin" validate:"required_if=StoreDriver mongo"`
	MongoDatabase string        `envconfig:"MONGO_DATABASE" default:"assessments" validate:"required_if=StoreDriver mongo"`
	MongoTimeout  time.Duration `envconfig:"MONGO_TIMEOUT" default:"10s" validate:"gt=0"`
	StoreDriver   string        `envconfig:"STORE_DRIVER" default:"mongo" validate:"oneof=mongo memory"`

	// HTTP Server Configuration
	HTTPPort         string        `envconfig:"HTTP_PORT" default:"8080" validate:"required,numeric"`
	HTTPReadTimeout  time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"30s" validate:"gt=0"`
	HTTPWriteTimeout time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s" validate:"gt=0"`
	ShutdownTimeout  time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s" validate:"gt=0"`
	PublicBaseURL    string        `envconfig:"PUBLIC_BASE_URL" default:""`

	// Logging Configuration
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn warning error"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json" validate:"oneof=json text"`

	// CORS Configuration
	CORSAllowedOrigins   []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
	CORSAllowedMethods   []string `envconfig:"CORS_ALLOWED_METHODS" default:"GET,POST,DELETE,OPTIONS"`
	CORSAllowedHeaders   []string `envconfig:"CORS_ALLOWED_HEADERS" default:"*"`
	CORSAllowCredentials bool     `envconfig:"CORS_ALLOW_CREDENTIALS" default:"false"`
	CORSMaxAge           int      `envconfig:"CORS_MAX_AGE" default:"3600" validate:"gte=0"`

	// Orchestration Engine Configuration
	WorkerPoolSize    int           `envconfig:"WORKER_POOL_SIZE" default:"10" validate:"gt=0"`
	ActivityQueueSize int           `envconfig:"ACTIVITY_QUEUE_SIZE" default:"1000" validate:"gt=0"`
	LeaseTTL          time.Duration `envconfig:"LEASE_TTL" default:"2m" validate:"gte=3s"`
	RecoveryEnabled   bool          `envconfig:"RECOVERY_ENABLED" default:"true"`
	RecoverySchedule  string        `envconfig:"RECOVERY_SCHEDULE" default:"@every 1m" validate:"required_if=RecoveryEnabled true"`

	// AI Service Configuration
	AIEndpoint     string        `envconfig:"AI_ENDPOINT" default:"" validate:"omitempty,url"`
	AIAPIKey       string        `envconfig:"AI_API_KEY" default:""`
	AIModel        string        `envconfig:"AI_MODEL" default:"extended-assessment"`
	AITimeout      time.Duration `envconfig:"AI_TIMEOUT" default:"180s" validate:"gt=0"`
	AIResponsePath string        `envconfig:"AI_RESPONSE_PATH" default:"$.choices[0].message.content" validate:"startswith=$"`
	AITemperature  float64       `envconfig:"AI_TEMPERATURE" default:"0" validate:"gte=0,lte=2"`
}

// Load reads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to read configuration: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg.StoreDriver = strings.ToLower(cfg.StoreDriver)
	return cfg, nil
}

// UsesMongo reports whether the stores are backed by MongoDB
func (c *Config) UsesMongo() bool {
	return c.StoreDriver == StoreDriverMongo
}
