package di

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	domrepo "FinSignal/internal/domain/repository"
	"FinSignal/internal/repository"
	"FinSignal/internal/services/regime"
	"FinSignal/internal/usecase"
	"FinSignal/pkg/cache"
	pkgch "FinSignal/pkg/clickhouse"
	"FinSignal/pkg/config"
	xhttp "FinSignal/pkg/http"
	pkgkafka "FinSignal/pkg/kafka"
	applogger "FinSignal/pkg/logger"
	"FinSignal/pkg/metrics"
	"FinSignal/pkg/postgres"
	"FinSignal/pkg/server"
)

const connectTimeout = 10 * time.Second

// Backend bundles the stores selected by backend.type.
type Backend struct {
	Series  domrepo.TimeSeriesProvider
	Regime  domrepo.RegimeSignalProvider
	Sink    domrepo.CompositeScoreSink
	History domrepo.ScoreHistoryReader
	Checks  map[string]xhttp.Check
}

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l.With(applogger.String("env", cfg.Environment)), nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics(cfg *config.Config) domrepo.Metrics {
	if !cfg.Metrics.Enabled {
		return metrics.Nop{}
	}
	return metrics.New()
}

// ProvideProfileStore loads and compiles every scoring profile.
func ProvideProfileStore(cfg *config.Config) (*repository.YAMLProfileStore, error) {
	return repository.LoadProfiles(cfg.Scoring.ProfilesFile)
}

// ProvideBackend opens the configured stores. Observations always come from
// ClickHouse unless the memory backend is selected.
func ProvideBackend(cfg *config.Config, l *applogger.Logger) (*Backend, func(), error) {
	if cfg.Backend.Type == config.BackendMemory {
		store, err := newMemoryStore(cfg)
		if err != nil {
			return nil, nil, err
		}
		l.Info("memory backend ready", applogger.String("seed", cfg.Backend.SeedFile))
		return &Backend{Series: store, Regime: store, Sink: store, History: store, Checks: map[string]xhttp.Check{}}, func() {}, nil
	}

	ch, err := newClickHouseClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	series := repository.NewCHTimeSeries(ch, cfg.Scoring.RegimeSeries, l)
	b := &Backend{
		Series: series,
		Regime: series,
		Checks: map[string]xhttp.Check{"clickhouse": ch.Health},
	}
	cleanup := func() {
		if err := ch.Close(); err != nil {
			l.Warn("clickhouse close error", applogger.Error(err))
		}
	}

	if cfg.Backend.Type == config.BackendPostgres {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		pool, err := postgres.Connect(ctx, cfg.Postgres)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("postgres: %w", err)
		}
		sink := repository.NewPGScoreSink(pool)
		b.Sink, b.History = sink, sink
		b.Checks["postgres"] = pool.Ping
		chCleanup := cleanup
		cleanup = func() {
			pool.Close()
			chCleanup()
		}
		l.Info("postgres connected", applogger.String("database", cfg.Postgres.Database))
	} else {
		sink := repository.NewCHScoreSink(ch)
		b.Sink, b.History = sink, sink
	}
	l.Info("clickhouse connected", applogger.String("database", ch.Database()))
	return b, cleanup, nil
}

func newMemoryStore(cfg *config.Config) (*repository.MemoryStore, error) {
	store := repository.NewMemoryStore(cfg.Scoring.RegimeSeries)
	if cfg.Backend.SeedFile == "" {
		return store, nil
	}
	f, err := os.Open(cfg.Backend.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()
	if _, err := store.LoadCSV(f); err != nil {
		return nil, fmt.Errorf("seed %s: %w", cfg.Backend.SeedFile, err)
	}
	return store, nil
}

func newClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	if !cfg.ClickHouse.InitSchema {
		return client, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.InitSchema(ctx, pkgch.Schema(client.Database())); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideCache returns Redis when enabled and an in-process cache otherwise.
func ProvideCache(cfg *config.Config) (cache.Service, func(), error) {
	if !cfg.Redis.Enabled {
		mc := cache.NewMemoryCache(cache.WithMemoryCleanup(time.Minute))
		return mc, func() { _ = mc.Close() }, nil
	}
	rc, err := cache.NewRedisCache(
		cache.WithRedisAddrs(cfg.Redis.Addrs),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
		cache.WithRedisPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return rc, func() { _ = rc.Close() }, nil
}

// ProvideCheckpointStore keeps batch checkpoints in the cache.
func ProvideCheckpointStore(c cache.Service) domrepo.CheckpointStore {
	return repository.NewCacheCheckpointStore(c, 0)
}

// ProvidePublisher creates a Kafka score publisher when publishing is enabled.
func ProvidePublisher(cfg *config.Config) (domrepo.ScorePublisher, func(), error) {
	if !cfg.Scoring.Publish {
		return repository.NopPublisher{}, func() {}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.Producer.RequiredAcks),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithBatching(cfg.Kafka.Producer.BatchSize, cfg.Kafka.Producer.BatchTimeout),
		pkgkafka.WithWriteTimeout(cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := repository.NewKafkaScorePublisher(producer, cfg.Kafka.ScoreTopic, cfg.Kafka.HealthTopic)
	return pub, func() { _ = pub.Close() }, nil
}

func ProvideRegimeResolver(cfg *config.Config, b *Backend, l *applogger.Logger, m domrepo.Metrics) *usecase.RegimeResolver {
	d := regime.New(cfg.Scoring.Regime)
	return usecase.NewRegimeResolver(b.Regime, d, cfg.Scoring.RegimeSeries, d.Lookback(), l, m)
}

func ProvideEntityScorer(cfg *config.Config, b *Backend) *usecase.EntityScorer {
	return usecase.NewEntityScorer(b.Series, cfg.Scoring.Lookback)
}

func ProvidePipeline(
	scorer *usecase.EntityScorer,
	b *Backend,
	pub domrepo.ScorePublisher,
	m domrepo.Metrics,
	l *applogger.Logger,
) *usecase.Pipeline {
	return usecase.NewPipeline(scorer, b.Sink, pub, m, l)
}

func ProvideBatchRecompute(
	cfg *config.Config,
	profiles usecase.ProfileStore,
	pipeline *usecase.Pipeline,
	regimes *usecase.RegimeResolver,
	checkpoints domrepo.CheckpointStore,
	l *applogger.Logger,
	m domrepo.Metrics,
) *usecase.BatchRecompute {
	return usecase.NewBatchRecompute(profiles, pipeline, regimes, checkpoints, usecase.BatchConfig{
		Workers:         cfg.Scoring.Workers,
		CheckpointEvery: cfg.Scoring.CheckpointEvery,
		LockTTL:         cfg.Scoring.LockTTL,
	}, l, m)
}

func ProvideTrendReporter(b *Backend) *usecase.TrendReporter {
	return usecase.NewTrendReporter(b.History, 0, 0)
}

func ProvideCalibrator(b *Backend) *usecase.Calibrator {
	return usecase.NewCalibrator(b.History)
}

// ProvideKafkaConsumer creates the recompute request consumer. It is nil
// when Kafka is disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(l,
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	return consumer, nil
}

func ProvideRecomputeHandler(
	cfg *config.Config,
	batch *usecase.BatchRecompute,
	profiles usecase.ProfileStore,
	l *applogger.Logger,
) pkgkafka.MessageHandler {
	return usecase.NewRecomputeRequestHandler(cfg.Kafka.Consumer.Topic, batch, profiles, cfg.Entities, l)
}

// ProvideHTTPServer creates the ops server, or nil when disabled.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, b *Backend, c cache.Service) *xhttp.Server {
	if !cfg.Server.Enabled {
		return nil
	}
	checks := make(map[string]xhttp.Check, len(b.Checks)+1)
	for name, check := range b.Checks {
		checks[name] = check
	}
	checks["cache"] = func(ctx context.Context) error {
		_, err := c.Exists(ctx, "healthz")
		return err
	}

	path := ""
	if cfg.Metrics.Enabled {
		path = cfg.Metrics.Path
	}
	return xhttp.NewServer(l, xhttp.NewHealthHandler(checks, 0),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithMetrics(path, prometheus.DefaultGatherer, prometheus.DefaultRegisterer),
	)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	profiles usecase.ProfileStore,
	batch *usecase.BatchRecompute,
	trends *usecase.TrendReporter,
	calibrator *usecase.Calibrator,
	consumer *pkgkafka.Consumer,
	handler pkgkafka.MessageHandler,
	httpServer *xhttp.Server,
) *server.App {
	return server.New(cfg, l, profiles, batch, trends, calibrator, consumer, handler, httpServer)
}
