package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ErrMissingDestination reports that BACKUP_BUCKET is not set.
var ErrMissingDestination = errors.New("BACKUP_BUCKET environment variable is required")

// Config captures the full runtime configuration for the backup handler.
type Config struct {
	App     AppConfig
	HTTP    HTTPConfig
	Backup  BackupConfig
	Storage StorageConfig
	Notify  NotifyConfig
	Kafka   KafkaConfig
	Tracing TracingConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"filebackup"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
}

type HTTPConfig struct {
	Addr         string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"5m"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	MaxBodyBytes int64         `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`
	AuthToken    string        `env:"WEBHOOK_AUTH_TOKEN"`
}

// BackupConfig holds the replication settings read once at startup.
type BackupConfig struct {
	DestinationBucket  string        `env:"BACKUP_BUCKET"`
	KeyPrefix          string        `env:"BACKUP_KEY_PREFIX"`
	SkipPolicy         string        `env:"BACKUP_SKIP_POLICY" envDefault:"etag"`
	NotifySkipped      bool          `env:"BACKUP_NOTIFY_SKIPPED" envDefault:"true"`
	BatchTimeout       time.Duration `env:"BACKUP_BATCH_TIMEOUT" envDefault:"0s"`
	Parallelism        int           `env:"BACKUP_PARALLELISM" envDefault:"1"`
	MultipartThreshold int64         `env:"BACKUP_MULTIPART_THRESHOLD_BYTES" envDefault:"104857600"`
	PartSize           int64         `env:"BACKUP_PART_SIZE_BYTES" envDefault:"67108864"`
	PartConcurrency    int           `env:"BACKUP_PART_CONCURRENCY" envDefault:"5"`
}

type StorageConfig struct {
	Provider     string `env:"STORAGE_PROVIDER" envDefault:"s3"`
	Endpoint     string `env:"STORAGE_ENDPOINT"`
	Region       string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	AccessKey    string `env:"STORAGE_ACCESS_KEY"`
	SecretKey    string `env:"STORAGE_SECRET_KEY"`
	UseSSL       bool   `env:"STORAGE_USE_SSL" envDefault:"true"`
	UsePathStyle bool   `env:"STORAGE_USE_PATH_STYLE" envDefault:"false"`
}

// NotifyConfig selects the notification channel. Leaving every channel
// identifier empty disables notifications.
type NotifyConfig struct {
	Provider    string `env:"NOTIFY_PROVIDER"`
	TopicARN    string `env:"SNS_TOPIC_ARN"`
	QueueURL    string `env:"SQS_QUEUE_URL"`
	KafkaTopic  string `env:"KAFKA_NOTIFY_TOPIC"`
	AWSEndpoint string `env:"NOTIFY_AWS_ENDPOINT"`
}

type KafkaConfig struct {
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3"`
	CompressionCodec string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	BatchSize        int           `env:"KAFKA_BATCH_SIZE" envDefault:"1"`
	BatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"10ms"`
	WriteTimeout     time.Duration `env:"KAFKA_WRITE_TIMEOUT" envDefault:"10s"`

	// EventsTopic enables the bucket-notification consumer when set.
	EventsTopic     string        `env:"KAFKA_EVENTS_TOPIC"`
	GroupID         string        `env:"KAFKA_GROUP_ID" envDefault:"filebackup"`
	MaxAttempts     uint          `env:"KAFKA_MAX_ATTEMPTS" envDefault:"5"`
	RetryBackoff    time.Duration `env:"KAFKA_RETRY_BACKOFF" envDefault:"500ms"`
	MaxRetryBackoff time.Duration `env:"KAFKA_MAX_RETRY_BACKOFF" envDefault:"30s"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=filebackup"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Backup.SkipPolicy = normalizeName(cfg.Backup.SkipPolicy)
	cfg.Storage.Provider = normalizeName(cfg.Storage.Provider)
	return cfg, nil
}

// normalizeName folds enum-style settings the way the parsers that consume
// them do.
func normalizeName(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

// Validate rejects configurations the handler cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backup.DestinationBucket) == "" {
		return ErrMissingDestination
	}
	switch normalizeName(c.Backup.SkipPolicy) {
	case "", "etag", "exists", "overwrite":
	default:
		return fmt.Errorf("BACKUP_SKIP_POLICY: unsupported value %q", c.Backup.SkipPolicy)
	}
	switch normalizeName(c.Storage.Provider) {
	case "s3", "minio", "memory":
	default:
		return fmt.Errorf("STORAGE_PROVIDER: unsupported value %q", c.Storage.Provider)
	}
	if c.Backup.Parallelism < 1 {
		return fmt.Errorf("BACKUP_PARALLELISM must be at least 1, got %d", c.Backup.Parallelism)
	}
	if c.Backup.BatchTimeout < 0 {
		return fmt.Errorf("BACKUP_BATCH_TIMEOUT must not be negative")
	}
	return nil
}

// ResourceAttributes parses OTEL_RESOURCE_ATTRIBUTES-style "k=v,k=v" pairs.
func (t TracingConfig) ResourceAttributes() map[string]string {
	attrs := map[string]string{}
	for _, pair := range strings.Split(t.ResourceAttr, ",") {
		pair = strings.TrimSpace(pair)
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			continue
		}
		attrs[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return attrs
}
