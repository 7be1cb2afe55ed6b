package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	EnvDev        = "dev"
	EnvProduction = "production"

	StoreFile   = "file"
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreMinio  = "minio"
	StoreGCS    = "gcs"

	MQRabbitMQ = "rabbitmq"
	MQPubSub   = "pubsub"

	minSessionSecretLen = 32
)

// ConfigurationError reports a missing or invalid setting that prevents the
// server from starting. Its message is for operators only.
type ConfigurationError struct {
	Key    string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Key, e.Reason)
}

type Config struct {
	Env        string `env:"ENV" envDefault:"production"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"8080"`

	Auth  AuthConfig
	Notes NotesConfig
	Store StoreConfig
	Relay RelayConfig
}

type AuthConfig struct {
	SessionSecret string `env:"SESSION_SECRET"`
	DatabaseURL   string `env:"DATABASE_URL"`
	SharedSecret  string `env:"FIELD_AUTH_SECRET"`
	APIKey        string `env:"FIELD_NOTES_API_KEY"`
	APIKeyOpen    bool   `env:"FIELD_NOTES_API_KEY_FAIL_OPEN" envDefault:"false"`
	HashWorkers   int    `env:"FIELD_NOTES_AUTH_CONCURRENCY" envDefault:"0"`
}

type NotesConfig struct {
	NoteTakers []string `env:"FIELD_NOTES_NOTE_TAKERS" envSeparator:","`
}

type StoreConfig struct {
	Backend   string        `env:"FIELD_NOTES_STORE" envDefault:"file"`
	DataFile  string        `env:"FIELD_NOTES_DATA_FILE" envDefault:"data/notes.json"`
	ObjectKey string        `env:"FIELD_NOTES_OBJECT_KEY" envDefault:"notes.json"`
	Timeout   time.Duration `env:"FIELD_NOTES_STORE_TIMEOUT" envDefault:"10s"`

	Redis RedisConfig
	Minio MinioConfig
	GCS   GCSConfig
}

type RedisConfig struct {
	URL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	Key string `env:"FIELD_NOTES_REDIS_KEY" envDefault:"notes"`
}

type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"`
	AccessKey string `env:"MINIO_ACCESS_KEY"`
	SecretKey string `env:"MINIO_SECRET_KEY"`
	Bucket    string `env:"MINIO_BUCKET" envDefault:"field-notes"`
	UseSSL    bool   `env:"MINIO_USE_SSL" envDefault:"false"`
}

type GCSConfig struct {
	Bucket          string `env:"GCS_BUCKET"`
	ProjectID       string `env:"GCS_PROJECT_ID"`
	CredentialsFile string `env:"GCS_CREDENTIALS_FILE"`
}

type RelayConfig struct {
	WebhookURL string        `env:"GOOGLE_CHAT_WEBHOOK_URL"`
	Timeout    time.Duration `env:"FIELD_NOTES_RELAY_TIMEOUT" envDefault:"10s"`
	MQBackend  string        `env:"FIELD_NOTES_MQ_BACKEND"`
	Channel    string        `env:"FIELD_NOTES_RELAY_CHANNEL" envDefault:"field-notes-relay"`
	// TimeZone is the IANA zone used for the "Recorded" line of chat posts.
	TimeZone string `env:"FIELD_NOTES_TIMEZONE" envDefault:"UTC"`

	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string `env:"RABBITMQ_URL"`
	QueueDurable    bool   `env:"RABBITMQ_QUEUE_DURABLE" envDefault:"true"`
	QueueAutoDelete bool   `env:"RABBITMQ_QUEUE_AUTO_DELETE" envDefault:"false"`
	PrefetchCount   int    `env:"RABBITMQ_PREFETCH" envDefault:"1"`
	MaxAttempts     int    `env:"RABBITMQ_MAX_ATTEMPTS" envDefault:"5"`
}

type PubSubConfig struct {
	ProjectID          string `env:"PUBSUB_PROJECT_ID"`
	CredentialsFile    string `env:"PUBSUB_CREDENTIALS_FILE"`
	SubscriptionSuffix string `env:"PUBSUB_SUBSCRIPTION_SUFFIX" envDefault:"-sub"`
	MaxOutstanding     int    `env:"PUBSUB_MAX_OUTSTANDING" envDefault:"10"`
}

// SharedSecretMode reports whether all users share one password instead of
// individual accounts.
func (c Config) SharedSecretMode() bool {
	return c.Auth.SharedSecret != ""
}

// Production reports whether the server runs with production defaults.
func (c Config) Production() bool {
	return c.Env != EnvDev
}

// LoadConfig reads the configuration from the environment. In dev, a .env
// file in the working directory is loaded first.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == EnvDev {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Notes.NoteTakers = normalizeList(cfg.Notes.NoteTakers)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.SessionSecret) == "" {
		errs = append(errs, &ConfigurationError{Key: "SESSION_SECRET", Reason: "is required"})
	} else if len(c.Auth.SessionSecret) < minSessionSecretLen {
		errs = append(errs, &ConfigurationError{
			Key:    "SESSION_SECRET",
			Reason: fmt.Sprintf("must be at least %d bytes", minSessionSecretLen),
		})
	}
	if !c.SharedSecretMode() && strings.TrimSpace(c.Auth.DatabaseURL) == "" {
		errs = append(errs, &ConfigurationError{Key: "DATABASE_URL", Reason: "is required"})
	}

	switch c.Store.Backend {
	case StoreFile, StoreMemory, StoreRedis, StoreMinio, StoreGCS:
	default:
		errs = append(errs, &ConfigurationError{Key: "FIELD_NOTES_STORE", Reason: fmt.Sprintf("has unknown value %q", c.Store.Backend)})
	}

	switch c.Relay.MQBackend {
	case "", MQRabbitMQ, MQPubSub:
	default:
		errs = append(errs, &ConfigurationError{Key: "FIELD_NOTES_MQ_BACKEND", Reason: fmt.Sprintf("has unknown value %q", c.Relay.MQBackend)})
	}

	if _, err := time.LoadLocation(c.Relay.TimeZone); err != nil {
		errs = append(errs, &ConfigurationError{Key: "FIELD_NOTES_TIMEZONE", Reason: err.Error()})
	}

	return errors.Join(errs...)
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
