// Package app assembles the backup handler from configuration. The Lambda
// function, the webhook service and the CLI all start through Bootstrap.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/your-org/filebackup/internal/backup"
	"github.com/your-org/filebackup/pkg/awsconfig"
	"github.com/your-org/filebackup/pkg/config"
	"github.com/your-org/filebackup/pkg/kafka"
	"github.com/your-org/filebackup/pkg/logger"
	"github.com/your-org/filebackup/pkg/notify"
	"github.com/your-org/filebackup/pkg/storage/memstore"
	"github.com/your-org/filebackup/pkg/storage/objectstore"
	"github.com/your-org/filebackup/pkg/storage/s3store"
	"github.com/your-org/filebackup/pkg/tracing"
)

// App is a fully wired handler plus the resources it owns.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Store      backup.StorageClient
	Dispatcher *backup.Dispatcher

	closers []func(context.Context) error
}

// Bootstrap loads configuration from the environment and wires every
// component. The caller must Close the returned App.
func Bootstrap(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// New wires an App from an already loaded configuration.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logr, err := logger.New(logger.Options{
		Level:       cfg.App.LogLevel,
		Service:     cfg.App.Name,
		Environment: cfg.App.Environment,
		Version:     cfg.App.Version,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &App{Config: cfg, Logger: logr}
	a.onClose(func(context.Context) error {
		_ = logr.Sync()
		return nil
	})

	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		Attributes:     cfg.Tracing.ResourceAttributes(),
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
	})
	if err != nil {
		return nil, a.fail(ctx, fmt.Errorf("init tracing: %w", err))
	}
	a.onClose(traceShutdown)

	store, err := a.newStore(ctx)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	a.Store = store

	publisher, err := a.newPublisher(ctx)
	if err != nil {
		return nil, a.fail(ctx, err)
	}

	policy, err := backup.ParseSkipPolicy(cfg.Backup.SkipPolicy)
	if err != nil {
		return nil, a.fail(ctx, err)
	}

	params := backup.Params{
		Config: backup.Config{
			DestinationBucket: cfg.Backup.DestinationBucket,
			KeyPrefix:         cfg.Backup.KeyPrefix,
			SkipPolicy:        policy,
			NotifySkipped:     cfg.Backup.NotifySkipped,
			BatchTimeout:      cfg.Backup.BatchTimeout,
			Parallelism:       cfg.Backup.Parallelism,
		},
		Store:  store,
		Logger: logr,
	}
	if publisher != nil {
		params.Notifications = publisher
	}
	dispatcher, err := backup.NewDispatcher(params)
	if err != nil {
		return nil, a.fail(ctx, err)
	}
	a.Dispatcher = dispatcher

	logr.Info("backup handler configured",
		zap.String("destination_bucket", cfg.Backup.DestinationBucket),
		zap.String("storage_provider", cfg.Storage.Provider),
		zap.String("skip_policy", string(policy)),
		zap.Bool("notifications", publisher != nil))
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *App) fail(ctx context.Context, err error) error {
	if cerr := a.Close(ctx); cerr != nil {
		a.Logger.Warn("cleanup after failed bootstrap", zap.Error(cerr))
	}
	return err
}

func (a *App) newStore(ctx context.Context) (backup.StorageClient, error) {
	sc := a.Config.Storage
	switch strings.ToLower(strings.TrimSpace(sc.Provider)) {
	case "s3":
		awsCfg, err := awsconfig.Load(ctx, awsconfig.Settings{
			Region:    sc.Region,
			Endpoint:  sc.Endpoint,
			AccessKey: sc.AccessKey,
			SecretKey: sc.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return s3store.NewFromConfig(awsCfg, s3store.Options{
			MultipartThreshold: a.Config.Backup.MultipartThreshold,
			PartSize:           a.Config.Backup.PartSize,
			Concurrency:        a.Config.Backup.PartConcurrency,
			UsePathStyle:       sc.UsePathStyle,
		}), nil
	case "minio":
		client, err := objectstore.New(objectstore.Config{
			Endpoint:           sc.Endpoint,
			Region:             sc.Region,
			AccessKey:          sc.AccessKey,
			SecretKey:          sc.SecretKey,
			UseSSL:             sc.UseSSL,
			MultipartThreshold: a.Config.Backup.MultipartThreshold,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return client.Close() })
		return client, nil
	case "memory":
		store := memstore.New()
		store.SetMultipartThreshold(a.Config.Backup.MultipartThreshold)
		store.CreateBucket(a.Config.Backup.DestinationBucket)
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported storage provider %q", sc.Provider)
	}
}

// newPublisher returns nil when no notification channel is configured.
func (a *App) newPublisher(ctx context.Context) (notify.Publisher, error) {
	nc := a.Config.Notify
	provider, err := notify.Resolve(nc.Provider, nc.TopicARN, nc.QueueURL, nc.KafkaTopic)
	if err != nil {
		return nil, err
	}

	switch provider {
	case notify.ProviderNone:
		a.Logger.Info("notifications disabled")
		return nil, nil
	case notify.ProviderKafka:
		if nc.KafkaTopic == "" {
			return nil, errors.New("KAFKA_NOTIFY_TOPIC is required for kafka notifications")
		}
		kc := a.Config.Kafka
		compression, err := kafka.ParseCompression(kc.CompressionCodec)
		if err != nil {
			return nil, err
		}
		producer := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      kc.Brokers,
			Topic:        nc.KafkaTopic,
			BatchSize:    kc.BatchSize,
			BatchTimeout: kc.BatchTimeout,
			Compression:  compression,
			RequiredAcks: kafkago.RequireAll,
			MaxAttempts:  kc.Retries,
			WriteTimeout: kc.WriteTimeout,
		})
		a.onClose(func(context.Context) error { return producer.Close() })
		return notify.NewKafkaPublisher(producer), nil
	}

	awsCfg, err := awsconfig.Load(ctx, awsconfig.Settings{
		Region:   a.Config.Storage.Region,
		Endpoint: nc.AWSEndpoint,
	})
	if err != nil {
		return nil, err
	}
	if provider == notify.ProviderSNS {
		if nc.TopicARN == "" {
			return nil, errors.New("SNS_TOPIC_ARN is required for sns notifications")
		}
		return notify.NewSNSPublisherFromConfig(awsCfg, nc.TopicARN), nil
	}
	if nc.QueueURL == "" {
		return nil, errors.New("SQS_QUEUE_URL is required for sqs notifications")
	}
	return notify.NewSQSPublisherFromConfig(awsCfg, nc.QueueURL), nil
}

// NewConsumer builds the bucket-notification consumer, or returns nil when
// KAFKA_EVENTS_TOPIC is unset.
func (a *App) NewConsumer() *kafka.Consumer {
	kc := a.Config.Kafka
	if kc.EventsTopic == "" {
		return nil
	}
	consumer := kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:        kc.Brokers,
		Topic:          kc.EventsTopic,
		GroupID:        kc.GroupID,
		MaxAttempts:    kc.MaxAttempts,
		InitialBackoff: kc.RetryBackoff,
		MaxBackoff:     kc.MaxRetryBackoff,
	}, a.Logger)
	a.onClose(func(context.Context) error { return consumer.Close() })
	return consumer
}
