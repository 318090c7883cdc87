package di

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gonghuaze999-design/QuantAgrify/internal/connection"
	"github.com/gonghuaze999-design/QuantAgrify/internal/domain/repository"
	"github.com/gonghuaze999-design/QuantAgrify/internal/handler/api"
	internalrepo "github.com/gonghuaze999-design/QuantAgrify/internal/repository"
	"github.com/gonghuaze999-design/QuantAgrify/internal/service/livefeed"
	"github.com/gonghuaze999-design/QuantAgrify/internal/service/oracle"
	"github.com/gonghuaze999-design/QuantAgrify/internal/usecase"
	"github.com/gonghuaze999-design/QuantAgrify/pkg/cache"
	pkgch "github.com/gonghuaze999-design/QuantAgrify/pkg/clickhouse"
	"github.com/gonghuaze999-design/QuantAgrify/pkg/config"
	xhttp "github.com/gonghuaze999-design/QuantAgrify/pkg/http"
	pkgkafka "github.com/gonghuaze999-design/QuantAgrify/pkg/kafka"
	applogger "github.com/gonghuaze999-design/QuantAgrify/pkg/logger"
	"github.com/gonghuaze999-design/QuantAgrify/pkg/metrics"
	"github.com/gonghuaze999-design/QuantAgrify/pkg/server"
	"github.com/gonghuaze999-design/QuantAgrify/pkg/util"
)

// ProvideLogger creates the application logger with an error history
// collector backing the status endpoint.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	format := "console"
	if cfg.Environment == "production" {
		format = "json"
	}
	l, err := applogger.New(&applogger.Config{Level: "info", Format: format, Output: "stdout"})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	l.AddCollector(&applogger.CollectionConfig{Capacity: 64})
	return l, nil
}

// ProvideMetrics creates the Prometheus recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideWarehouseFactory builds archive stores for resolved
// credentials. Credential fields override static config so a hot-swap
// can point the engine at a different warehouse.
func ProvideWarehouseFactory(cfg *config.Config, l *applogger.Logger, m repository.Metrics) connection.WarehouseFactory {
	return func(cred *connection.ServiceCredential) (repository.ArchiveStore, error) {
		host := cfg.Warehouse.Host
		port := cfg.Warehouse.Port
		database := cfg.Warehouse.Database
		user := cfg.Warehouse.User
		password := cfg.Warehouse.Password
		if cred != nil {
			if cred.Host != "" {
				host = cred.Host
			}
			if cred.Port != 0 {
				port = cred.Port
			}
			if cred.Database != "" {
				database = cred.Database
			}
			if cred.User != "" {
				user = cred.User
			}
			if cred.Password != "" {
				password = cred.Password
			}
		}

		client, err := pkgch.NewClient(
			pkgch.WithHost(host),
			pkgch.WithPort(port),
			pkgch.WithDatabase(database),
			pkgch.WithCredentials(user, password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithHTTP(cfg.Warehouse.UseHTTP),
			pkgch.WithAsyncInsert(cfg.Warehouse.AsyncInsert, cfg.Warehouse.WaitForAsync),
			pkgch.WithTimeouts(cfg.Warehouse.DialTimeout, cfg.Warehouse.ReadTimeout, cfg.Warehouse.WriteTimeout),
			pkgch.WithMaxExecutionTime(cfg.Warehouse.MaxExecutionTime),
		)
		if err != nil {
			return nil, fmt.Errorf("warehouse client: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.InitSchema(ctx, warehouseSchema(cfg.Warehouse.Table)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("warehouse schema: %w", err)
		}

		return internalrepo.NewWarehouseStore(client, cfg.Warehouse.Table, cfg.Warehouse.IntradayRowCap,
			internalrepo.WithWarehouseLogger(l),
			internalrepo.WithWarehouseMetrics(m),
			internalrepo.WithRootFallback(cfg.Warehouse.RootFallback),
		), nil
	}
}

func warehouseSchema(table string) []string {
	stmts := make([]string, 0, 2)
	if db, _, ok := strings.Cut(table, "."); ok {
		stmts = append(stmts, "CREATE DATABASE IF NOT EXISTS "+db)
	}
	stmts = append(stmts, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (ts DateTime, symbol String, open Float64, high Float64, low Float64, close Float64, volume Float64) ENGINE = MergeTree ORDER BY (symbol, ts)",
		table,
	))
	return stmts
}

// ProvideOracleFactory builds oracle clients for resolved credentials.
func ProvideOracleFactory(cfg *config.Config, l *applogger.Logger) connection.OracleFactory {
	return func(cred *connection.ServiceCredential) (connection.OracleAnalyzer, error) {
		token := ""
		if cred != nil {
			token = cred.OracleToken
		}
		opts := []oracle.Option{oracle.WithLogger(l)}
		if cfg.Oracle.Timeout > 0 {
			opts = append(opts, oracle.WithTimeout(cfg.Oracle.Timeout))
		}
		return oracle.NewClient(cfg.Oracle.BaseURL, token, opts...)
	}
}

// ProvideConnectionManager wires the credential tiers to the backend factories.
func ProvideConnectionManager(cfg *config.Config, wf connection.WarehouseFactory, of connection.OracleFactory, l *applogger.Logger) *connection.Manager {
	return connection.NewManager(wf, of, cfg.Credentials.EnvVar, cfg.Credentials.FilePath, l)
}

// ProvideLiveFeed creates the session-authenticated realtime client.
func ProvideLiveFeed(cfg *config.Config, l *applogger.Logger, m repository.Metrics) repository.LiveFeed {
	opts := []livefeed.Option{
		livefeed.WithLogger(l),
		livefeed.WithMetrics(m),
		livefeed.WithQuota(cfg.LiveFeed.QuotaBurst, cfg.LiveFeed.QuotaRefill),
	}
	if cfg.LiveFeed.Timeout > 0 {
		opts = append(opts, livefeed.WithTimeout(cfg.LiveFeed.Timeout))
	}
	return livefeed.NewClient(cfg.LiveFeed.BaseURL, cfg.LiveFeed.Username, cfg.LiveFeed.Password, opts...)
}

// ProvideKafkaProducer creates the producer for the broker backfill
// route; nil when fills write directly to the warehouse.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Backfill.Enabled || cfg.Backfill.Backend != "kafka" {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideBackfillPublisher wraps the producer for the backfill pipeline.
func ProvideBackfillPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.BackfillPublisher {
	if producer == nil {
		return nil
	}
	return internalrepo.NewKafkaBackfillPublisher(producer, cfg.Kafka.Topic)
}

// ProvideKafkaConsumer creates the backfill consumer; nil when the
// broker route is off.
func ProvideKafkaConsumer(cfg *config.Config) (*pkgkafka.Consumer, error) {
	if !cfg.Backfill.Enabled || cfg.Backfill.Backend != "kafka" {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

// ProvideBackfillHandler creates the consumer-side warehouse writer.
func ProvideBackfillHandler(manager *connection.Manager, m repository.Metrics, cfg *config.Config) *usecase.BackfillHandler {
	return usecase.NewBackfillHandler(cfg.Kafka.Topic, manager, m)
}

// ProvideBackfillProcessor creates the gap-fill router; nil when
// backfill is disabled.
func ProvideBackfillProcessor(cfg *config.Config, pub repository.BackfillPublisher, manager *connection.Manager, m repository.Metrics, l *applogger.Logger) (*usecase.BackfillProcessor, error) {
	if !cfg.Backfill.Enabled {
		return nil, nil
	}
	return usecase.NewBackfillProcessor(usecase.BackfillConfig{
		Backend:      cfg.Backfill.Backend,
		BufferSize:   cfg.Backfill.BufferSize,
		BatchSize:    cfg.Backfill.BatchSize,
		BatchTimeout: cfg.Backfill.BatchTimeout,
	}, pub, manager, m, l)
}

// ProvideSeriesCache creates the result cache; nil when disabled.
// Redis mode layers a small in-process cache over the shared one.
func ProvideSeriesCache(cfg *config.Config) (cache.Service, error) {
	if !cfg.Cache.Enabled {
		return nil, nil
	}
	if cfg.Cache.Backend == "redis" {
		host := cfg.Cache.Redis.Addr
		port := 6379
		if h, p, ok := strings.Cut(cfg.Cache.Redis.Addr, ":"); ok {
			host = h
			port = util.ParseIntDefault(p, port)
		}
		rc, err := cache.NewRedisCache(
			cache.WithRedisHost(host),
			cache.WithRedisPort(port),
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
		)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		return cache.NewLayeredCache(rc, cache.WithLayeredMemorySize(cfg.Cache.MaxItems)), nil
	}
	return cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MaxItems)), nil
}

// ProvideSeriesOrchestrator assembles the fusion use case.
func ProvideSeriesOrchestrator(
	manager *connection.Manager,
	live repository.LiveFeed,
	bp *usecase.BackfillProcessor,
	c cache.Service,
	cfg *config.Config,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.SeriesOrchestrator {
	opts := []usecase.SeriesOption{
		usecase.WithSeriesLogger(l),
		usecase.WithSeriesMetrics(m),
	}
	if bp != nil {
		opts = append(opts, usecase.WithSeriesBackfill(bp))
	}
	if c != nil {
		opts = append(opts, usecase.WithSeriesCache(c, cfg.Cache.TTL))
	}
	return usecase.NewSeriesOrchestrator(manager, live, opts...)
}

// ProvideHTTPHandler creates the API surface.
func ProvideHTTPHandler(l *applogger.Logger, manager *connection.Manager, o *usecase.SeriesOrchestrator, live repository.LiveFeed) xhttp.Handler {
	return api.NewSeriesHandler(l, manager, o, live)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	manager *connection.Manager,
	handler xhttp.Handler,
	consumer *pkgkafka.Consumer,
	kh *usecase.BackfillHandler,
	bp *usecase.BackfillProcessor,
	l *applogger.Logger,
) *server.App {
	if consumer != nil {
		consumer.WithConsumerHook(pkgkafka.NoopHook{})
	}
	return server.New(cfg, manager, handler, consumer, kh, bp, l)
}
