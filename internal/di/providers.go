package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"Tehama/internal/domain/models"
	"Tehama/internal/domain/repository"
	domsvc "Tehama/internal/domain/service"
	"Tehama/internal/handler/api"
	mid "Tehama/internal/middleware"
	internalrepo "Tehama/internal/repository"
	"Tehama/internal/service/analyst"
	icache "Tehama/internal/service/cache"
	"Tehama/internal/service/committee"
	"Tehama/internal/service/consensus"
	"Tehama/internal/service/marketdata"
	svcmetrics "Tehama/internal/service/metrics"
	"Tehama/internal/services/arbiter"
	"Tehama/internal/usecase"
	pkgch "Tehama/pkg/clickhouse"
	"Tehama/pkg/config"
	xhttp "Tehama/pkg/http"
	pkgkafka "Tehama/pkg/kafka"
	applogger "Tehama/pkg/logger"
	"Tehama/pkg/metrics"
	pkgqueue "Tehama/pkg/queue"
	"Tehama/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	level := "info"
	format := "json"
	if cfg.Environment == "development" {
		level = "debug"
		format = "console"
	}
	return applogger.New(&applogger.Config{Level: level, Format: format, Output: "stdout"})
}

// ProvideClickHouseClient creates a ClickHouse client and ensures schema.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS tehama",
		`CREATE TABLE IF NOT EXISTS tehama.recommendations (
			id String,
			created_at DateTime,
			instrument String,
			action String,
			shares Int64,
			target_price Float64,
			stop_loss Float64,
			confidence Float64,
			reasoning String,
			agents String,
			status String,
			degraded UInt8,
			winner String
		) ENGINE=MergeTree ORDER BY (instrument, created_at)`,
		`CREATE TABLE IF NOT EXISTS tehama.candles_1m (
			bucket DateTime,
			symbol String,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			vol Float64
		) ENGINE=MergeTree ORDER BY (symbol, bucket)`,
		`CREATE TABLE IF NOT EXISTS tehama.candles_1d (
			bucket DateTime,
			symbol String,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			vol Float64
		) ENGINE=MergeTree ORDER BY (symbol, bucket)`,
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideKafkaProducer creates a Kafka producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
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

// ProvideRedisClient creates the shared Redis client for cache and queue.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.Redis.Addr,
		Password: cfg.Cache.Redis.Password,
		DB:       cfg.Cache.Redis.DB,
	})
}

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.NewRecorder()
}

// ProvidePipelineMetrics creates pipeline-specific metric series.
func ProvidePipelineMetrics() *svcmetrics.PipelineMetrics {
	return svcmetrics.NewPipelineMetrics()
}

// ProvideStorage creates ClickHouse recommendation storage.
func ProvideStorage(chClient *pkgch.Client, cfg *config.Config) repository.Storage {
	return internalrepo.NewClickHouseStorage(chClient.DB(), cfg.ClickHouse.Database+".recommendations")
}

// ProvidePublisher creates the Kafka recommendation publisher.
func ProvidePublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.Publisher {
	return internalrepo.NewKafkaPublisher(producer, cfg.Kafka.Topic)
}

// ProvideCandleStore creates the ClickHouse candle reader.
func ProvideCandleStore(chClient *pkgch.Client, lgr *applogger.Logger) repository.CandleStore {
	store := internalrepo.NewCHCandleStore(chClient)
	store.SetLogger(lgr)
	return store
}

// ProvideQuoteStream creates the market data WebSocket stream.
func ProvideQuoteStream(cfg *config.Config, lgr *applogger.Logger) repository.QuoteStream {
	return marketdata.NewStream(
		cfg.MarketData.APIKey,
		cfg.MarketData.WebSocketURL,
		cfg.MarketData.Symbols,
		cfg.MarketData.ReconnectDelay,
		cfg.MarketData.PingInterval,
		lgr,
	)
}

// ProvidePriceBook creates the shared latest-quote book.
func ProvidePriceBook() *marketdata.PriceBook {
	return marketdata.NewPriceBook()
}

// ProvideMarketClock creates the session-aware cache clock.
func ProvideMarketClock(cfg *config.Config) (*icache.MarketClock, error) {
	return icache.NewMarketClock(
		icache.WithSessionTTLs(cfg.Cache.MarketOpenTTL, cfg.Cache.AfterHoursTTL, cfg.Cache.WeekendTTL),
	)
}

// ProvideBytesCache picks Redis when enabled, in-process TTL otherwise.
func ProvideBytesCache(cfg *config.Config) icache.BytesCache {
	if cfg.Cache.Redis.Enabled {
		return icache.NewRedisCache(icache.RedisConfig{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
	}
	return icache.NewTTLCache()
}

// ProvideSnapshotProvider assembles the market context provider.
func ProvideSnapshotProvider(
	cfg *config.Config,
	book *marketdata.PriceBook,
	candles repository.CandleStore,
	store icache.BytesCache,
	clock *icache.MarketClock,
	pm *svcmetrics.PipelineMetrics,
	lgr *applogger.Logger,
) domsvc.SnapshotProvider {
	fetcher := marketdata.NewFetcher(cfg.MarketData.RESTBaseURL, cfg.MarketData.APIKey, cfg.MarketData.FetchTimeout)
	return marketdata.NewProvider(book, fetcher, candles, store, clock, pm, lgr, cfg.Pipeline.DefaultPortfolio)
}

// ProvideAnalysts builds the fixed four-analyst panel.
func ProvideAnalysts(lgr *applogger.Logger) []domsvc.AnalystAgent {
	return []domsvc.AnalystAgent{
		analyst.NewTechnical(lgr),
		analyst.NewFundamental(lgr),
		analyst.NewSentiment(lgr),
		analyst.NewExposure(lgr),
	}
}

// ProvideAggregator builds the consensus aggregator from config.
func ProvideAggregator(cfg *config.Config) *consensus.Aggregator {
	opts := []consensus.Option{
		consensus.WithThresholds(cfg.Consensus.HighAgreementRatio, cfg.Consensus.LowAgreementRatio),
		consensus.WithPenalties(cfg.Consensus.HighPenalty, cfg.Consensus.LowPenalty),
	}
	if len(cfg.Consensus.TiePriority) > 0 {
		order := make([]models.Action, 0, len(cfg.Consensus.TiePriority))
		for _, s := range cfg.Consensus.TiePriority {
			order = append(order, models.NormalizeAction(s))
		}
		opts = append(opts, consensus.WithTiePriority(order))
	}
	return consensus.NewAggregator(opts...)
}

// ProvideProposers builds the fixed three-member sizing committee.
func ProvideProposers() []domsvc.PositionProposer {
	return []domsvc.PositionProposer{
		committee.NewAggressive(),
		committee.NewNeutral(),
		committee.NewConservative(),
	}
}

// ProvideArbitrator creates the external deliberation client.
func ProvideArbitrator(cfg *config.Config, pm *svcmetrics.PipelineMetrics) domsvc.Arbitrator {
	return arbiter.NewHTTPArbitrator(cfg, pm)
}

// ProvideMediator creates the deliberation mediator.
func ProvideMediator(arb domsvc.Arbitrator, lgr *applogger.Logger, cfg *config.Config) *committee.Mediator {
	opts := []committee.MediatorOption{}
	if cfg.Deliberation.Timeout > 0 {
		opts = append(opts, committee.WithArbitrationTimeout(cfg.Deliberation.Timeout))
	}
	if cfg.Deliberation.FallbackStop > 0 {
		opts = append(opts, committee.WithFallbackStop(cfg.Deliberation.FallbackStop))
	}
	return committee.NewMediator(arb, lgr, opts...)
}

// ProvideRecommender wires the full decision pipeline.
func ProvideRecommender(
	analysts []domsvc.AnalystAgent,
	agg *consensus.Aggregator,
	proposers []domsvc.PositionProposer,
	mediator *committee.Mediator,
	snapshots domsvc.SnapshotProvider,
	store repository.Storage,
	pub repository.Publisher,
	m repository.Metrics,
	pm *svcmetrics.PipelineMetrics,
	lgr *applogger.Logger,
	cfg *config.Config,
) *usecase.Recommender {
	return usecase.NewRecommender(
		analysts, agg, proposers, mediator, snapshots, store, pub, m, lgr,
		usecase.WithAgentTimeout(cfg.Pipeline.AgentTimeout),
		usecase.WithPersistBackend(cfg.Pipeline.PersistBackend),
		usecase.WithPipelineMetrics(pm),
	)
}

// ProvideHistory creates the read path over persisted recommendations.
func ProvideHistory(store repository.Storage) *usecase.History {
	return usecase.NewHistory(store)
}

// ProvideScanQueue creates the Redis queue used both to publish scan
// requests from the API and to consume them on workers. The scan job is
// registered in ProvideApp, after the recommender exists.
func ProvideScanQueue(cfg *config.Config, client *redis.Client, lgr *applogger.Logger) *pkgqueue.RedisQueue {
	workers := cfg.Pipeline.ScanWorkers
	if workers <= 0 {
		workers = 2
	}
	return pkgqueue.NewRedisQueue(
		lgr,
		&pkgqueue.QueueConfig{Workers: workers, RetryLimit: 2, RetryDelay: 5 * time.Second},
		client,
		pkgqueue.ModeProducerConsumer,
		pkgqueue.WithKeyPrefix("tehama:queue"),
	)
}

// ProvideQuotePipeline creates the stream-to-book pipeline.
func ProvideQuotePipeline(book *marketdata.PriceBook, m repository.Metrics) *mid.QuotePipeline {
	return mid.NewQuotePipeline(usecase.NewBookUpdater(book, m), m,
		mid.WithMaxRPS(50),
		mid.WithBufferSize(2000),
	)
}

// ProvideQuoteCollector creates the WebSocket collector.
func ProvideQuoteCollector(stream repository.QuoteStream, pipe *mid.QuotePipeline, lgr *applogger.Logger) *usecase.QuoteCollector {
	return usecase.NewQuoteCollector(stream, pipe, lgr)
}

// ProvideAPIHandler creates the Echo API handler.
func ProvideAPIHandler(
	lgr *applogger.Logger,
	rec *usecase.Recommender,
	history *usecase.History,
	q *pkgqueue.RedisQueue,
	analysts []domsvc.AnalystAgent,
	stream repository.QuoteStream,
) xhttp.Handler {
	return api.NewRecommendationsEchoHandler(lgr, rec, history, q, analysts, stream)
}

// ProvideOpsHandler creates the operational net/http handler.
func ProvideOpsHandler(
	history *usecase.History,
	store repository.Storage,
	stream repository.QuoteStream,
	cacheStore icache.BytesCache,
	lgr *applogger.Logger,
) *api.OpsHandler {
	h := api.NewOpsHandler(history, store, stream)
	h.SetCache(cacheStore)
	h.SetLogger(lgr)
	return h
}

// logAuditPublisher adapts the Kafka producer to the log collector's
// publisher contract.
type logAuditPublisher struct {
	producer *pkgkafka.Producer
}

func (a logAuditPublisher) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return a.producer.Publish(ctx, topic, nil, payload)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	lgr *applogger.Logger,
	collector *usecase.QuoteCollector,
	pipe *mid.QuotePipeline,
	scanQueue *pkgqueue.RedisQueue,
	chClient *pkgch.Client,
	producer *pkgkafka.Producer,
	apiHandler xhttp.Handler,
	ops *api.OpsHandler,
	rec *usecase.Recommender,
	pm *svcmetrics.PipelineMetrics,
) *server.App {
	// Scan job registration happens here so the queue provider stays free
	// of usecase knowledge.
	scanQueue.RegisterJob(usecase.NewScanJob(rec, pm, lgr, cfg.Pipeline.ScanConcurrency))

	// Warn and error logs are deduplicated and shipped to Kafka so noisy
	// pipeline failures leave an audit trail without flooding the topic.
	lgr.AddCollector(&applogger.CollectionConfig{
		TimeInterval:   30 * time.Second,
		CountThreshold: 100,
		Topic:          cfg.Kafka.Topic + ".logs",
		Publisher:      logAuditPublisher{producer: producer},
	})

	return server.New(cfg, lgr, collector, pipe, scanQueue, chClient, apiHandler, ops)
}
