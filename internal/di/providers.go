package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/domain/repository"
	"CoinPulse/internal/handler/api"
	mid "CoinPulse/internal/middleware"
	internalrepo "CoinPulse/internal/repository"
	"CoinPulse/internal/service/backoff"
	"CoinPulse/internal/service/binance"
	"CoinPulse/internal/service/coingecko"
	"CoinPulse/internal/service/dexscreener"
	"CoinPulse/internal/service/forecast"
	"CoinPulse/internal/service/gateway"
	"CoinPulse/internal/usecase"
	"CoinPulse/pkg/cache"
	pkgch "CoinPulse/pkg/clickhouse"
	"CoinPulse/pkg/config"
	xhttp "CoinPulse/pkg/http"
	pkgkafka "CoinPulse/pkg/kafka"
	"CoinPulse/pkg/logger"
	"CoinPulse/pkg/metrics"
	"CoinPulse/pkg/server"
)

const jobPairs = "pairs"

func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideRegistry builds the process registry with Go runtime collectors.
func ProvideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func ProvideMetrics(reg *prometheus.Registry) repository.Metrics {
	return metrics.New(reg)
}

// ProvideCache returns an in-process cache, fronted by Redis when enabled.
// A Redis that cannot be reached degrades to memory only.
func ProvideCache(cfg *config.Config, log *logger.Logger) (cache.Service, func()) {
	mem := func() (cache.Service, func()) {
		c := cache.NewMemoryCache(cache.WithMemoryMaxSize(cfg.Cache.MemoryMaxSize))
		return c, func() { _ = c.Close() }
	}
	if !cfg.Cache.Redis.Enabled {
		return mem()
	}

	r := cfg.Cache.Redis
	rc, err := cache.NewRedisCache(context.Background(),
		cache.WithRedisAddr(r.Addr),
		cache.WithRedisPassword(r.Password),
		cache.WithRedisDB(r.DB),
		cache.WithRedisPrefix(r.Prefix),
	)
	if err != nil {
		log.Warn("redis unavailable, using memory cache", logger.String("addr", r.Addr), logger.Error(err))
		return mem()
	}
	lc := cache.NewLayeredCache(rc, cfg.Cache.MemoryMaxSize)
	return lc, func() { _ = lc.Close() }
}

func ProvideBackoff(cfg *config.Config, m repository.Metrics) *backoff.Controller {
	return backoff.New(
		backoff.WithBase(cfg.Backoff.Base),
		backoff.WithMax(cfg.Backoff.Max),
		backoff.WithMetrics(m),
	)
}

func ProvideCoinGecko(cfg *config.Config, m repository.Metrics, log *logger.Logger) *coingecko.Client {
	cg := cfg.Providers.CoinGecko
	return coingecko.New(coingecko.Config{
		BaseURL:           cg.BaseURL,
		APIKey:            cg.APIKey,
		Timeout:           cg.Timeout,
		RequestsPerSecond: cg.RequestsPerSecond,
	}, coingecko.WithMetrics(m), coingecko.WithLogger(log.Component("coingecko")))
}

func ProvideCandles(cfg *config.Config, m repository.Metrics) *binance.Candles {
	b := cfg.Providers.Binance
	return binance.NewCandles(b.RestURL, b.Timeout, m)
}

func ProvideStream(cfg *config.Config, log *logger.Logger) *binance.Stream {
	b := cfg.Providers.Binance
	return binance.NewStream(b.WebSocketURL,
		binance.WithHandshakeTimeout(b.HandshakeTimeout),
		binance.WithPingInterval(b.PingInterval),
		binance.WithStreamLogger(log.Component("binance")),
	)
}

func ProvideDexScreener(cfg *config.Config, m repository.Metrics) *dexscreener.Client {
	d := cfg.Providers.DexScreener
	return dexscreener.New(d.BaseURL, d.Timeout, m)
}

func ProvideGateway(cfg *config.Config, cg *coingecko.Client, candles *binance.Candles, c cache.Service, log *logger.Logger) *gateway.Gateway {
	return gateway.New(cg, candles,
		gateway.WithCache(c, cfg.Cache.SearchTTL),
		gateway.WithCapacity(cfg.Market.BufferCapacity),
		gateway.WithLogger(log.Component("gateway")),
	)
}

func ProvideForecaster() *forecast.Engine {
	return forecast.New()
}

func ProvidePreferences(cfg *config.Config) (repository.PreferenceStore, func(), error) {
	store, err := internalrepo.NewSQLitePreferences(context.Background(), cfg.Storage.SQLitePath)
	if err != nil {
		return nil, nil, fmt.Errorf("preferences: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

// ProvideTickStorage connects ClickHouse when it is the configured sink and
// returns nil otherwise.
func ProvideTickStorage(cfg *config.Config) (repository.Storage, func(), error) {
	if cfg.Sink.Type != usecase.SinkClickHouse {
		return nil, func() {}, nil
	}
	ch := cfg.Sink.ClickHouse
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := pkgch.NewClient(ctx,
		pkgch.WithHost(ch.Host),
		pkgch.WithPort(ch.Port),
		pkgch.WithDatabase(ch.Database),
		pkgch.WithCredentials(ch.User, ch.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithAsyncInsert(true),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}

	table := ch.Database + "." + ch.Table
	store := internalrepo.NewClickHouseStorage(client.DB(), table,
		"CREATE DATABASE IF NOT EXISTS "+ch.Database,
		pkgch.TicksTableDDL(table),
	)
	if err := store.Init(ctx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return store, func() { _ = client.Close() }, nil
}

// ProvideTickPublisher connects Kafka when it is the configured sink and
// returns nil otherwise.
func ProvideTickPublisher(cfg *config.Config, reg *prometheus.Registry) (repository.Publisher, func(), error) {
	if cfg.Sink.Type != usecase.SinkKafka {
		return nil, func() {}, nil
	}
	k := cfg.Sink.Kafka
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(k.Brokers),
		pkgkafka.WithTopic(k.Topic),
		pkgkafka.WithCompression(k.Compression),
		pkgkafka.WithRegisterer(reg),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("kafka producer: %w", err)
	}
	pub := internalrepo.NewKafkaPublisher(producer)
	return pub, func() { _ = pub.Close() }, nil
}

func ProvideTickProcessor(cfg *config.Config, pub repository.Publisher, store repository.Storage, m repository.Metrics) *usecase.TickProcessor {
	return usecase.NewTickProcessor(pub, store, m, cfg.Sink.Type)
}

func ProvidePipeline(cfg *config.Config, proc *usecase.TickProcessor, m repository.Metrics, log *logger.Logger) *mid.RealtimePipeline {
	return mid.NewRealtimePipeline(proc, m,
		mid.WithMaxRPS(cfg.Sink.MaxRPS),
		mid.WithBufferSize(cfg.Sink.BufferSize),
		mid.WithPipelineLogger(log.Component("pipeline")),
	)
}

// ProvideStreamManager feeds accepted ticks into the sink pipeline unless
// the sink is disabled.
func ProvideStreamManager(cfg *config.Config, stream *binance.Stream, policy *backoff.Controller, m repository.Metrics, pipe *mid.RealtimePipeline, log *logger.Logger) *usecase.StreamManager {
	l := log.Component("stream")
	opts := []usecase.StreamOption{
		usecase.WithStreamCapacity(cfg.Market.BufferCapacity),
		usecase.WithStreamLogger(l),
	}
	if cfg.Sink.Type != usecase.SinkNone {
		opts = append(opts, usecase.WithTickHandler(func(ctx context.Context, t *models.Tick) {
			if err := pipe.Process(ctx, t); err != nil {
				l.Debug("tick not queued", logger.String("asset", t.AssetID), logger.Error(err))
			}
		}))
	}
	return usecase.NewStreamManager(stream, policy, m, opts...)
}

func ProvidePoller(log *logger.Logger) *usecase.Poller {
	return usecase.NewPoller(context.Background(), log.Component("poller"))
}

// ProvidePairFeed also schedules the periodic discovery job.
func ProvidePairFeed(cfg *config.Config, dex *dexscreener.Client, c cache.Service, m repository.Metrics, poller *usecase.Poller, log *logger.Logger) (*usecase.PairFeed, error) {
	d := cfg.Providers.DexScreener
	l := log.Component("pairs")
	feed := usecase.NewPairFeed(dex, usecase.PairFeedConfig{
		Chains:   d.Chains,
		PerChain: d.PerChain,
		MaxPairs: d.MaxPairs,
		Spacing:  d.Spacing,
		CacheTTL: cfg.Cache.PairsTTL,
	}, c, m, l)

	err := poller.Schedule(jobPairs, d.Refresh, func(ctx context.Context) {
		if _, err := feed.Refresh(ctx); err != nil {
			l.Debug("pair refresh", logger.Error(err))
		}
	})
	if err != nil {
		return nil, err
	}
	return feed, nil
}

func ProvideOrchestrator(
	cfg *config.Config,
	gw *gateway.Gateway,
	streams *usecase.StreamManager,
	policy *backoff.Controller,
	fc *forecast.Engine,
	prefs repository.PreferenceStore,
	pairs *usecase.PairFeed,
	poller *usecase.Poller,
	m repository.Metrics,
	log *logger.Logger,
) *usecase.Orchestrator {
	mk := cfg.Market
	return usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Gateway:    gw,
		Streams:    streams,
		Policy:     policy,
		Forecaster: fc,
		Prefs:      prefs,
		Pairs:      pairs,
		Poller:     poller,
		Metrics:    m,
		Logger:     log,
	}, usecase.OrchestratorConfig{
		DefaultFiat:       mk.DefaultFiat,
		RefreshSeconds:    mk.RefreshSeconds,
		MinRefreshSeconds: mk.MinRefreshSeconds,
		TopCount:          mk.TopCount,
		HistoryDays:       mk.HistoryDays,
		DefaultWatchlist:  mk.DefaultWatchlist,
	})
}

func ProvideMarketHandler(log *logger.Logger, orch *usecase.Orchestrator, store repository.Storage) *api.MarketEchoHandler {
	return api.NewMarketEchoHandler(log, orch, store)
}

func ProvideHealthHandler(c cache.Service, store repository.Storage) *api.HealthEchoHandler {
	checks := map[string]api.HealthCheck{
		"cache": func(ctx context.Context) error {
			if err := c.Set(ctx, "health:probe", "ok", time.Minute); err != nil {
				return err
			}
			var v string
			if err := c.Get(ctx, "health:probe", &v); err != nil {
				return err
			}
			if v != "ok" {
				return errors.New("cache probe mismatch")
			}
			return nil
		},
	}
	if store != nil {
		checks["sink"] = store.Health
	}
	return api.NewHealthEchoHandler(checks)
}

func ProvideHTTPServer(cfg *config.Config, log *logger.Logger, reg *prometheus.Registry, market *api.MarketEchoHandler, health *api.HealthEchoHandler) *xhttp.Server {
	return xhttp.NewServer([]xhttp.Handler{market, health},
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithServerLogger(log),
		xhttp.WithRegistry(reg),
	)
}

func ProvideApp(cfg *config.Config, log *logger.Logger, orch *usecase.Orchestrator, pipe *mid.RealtimePipeline, srv *xhttp.Server) *server.App {
	if cfg.Sink.Type == usecase.SinkNone {
		pipe = nil
	}
	return server.New(cfg, log, orch, pipe, srv)
}
