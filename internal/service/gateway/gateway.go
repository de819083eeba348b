// Package gateway unifies the market, candle and search providers behind one
// surface with history fallback and symbol resolution.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/domain/repository"
	"CoinPulse/internal/service/binance"
	"CoinPulse/pkg/cache"
	"CoinPulse/pkg/logger"
)

var wellKnownSymbols = map[string]string{
	"bitcoin":         "BTC",
	"ethereum":        "ETH",
	"solana":          "SOL",
	"binancecoin":     "BNB",
	"ripple":          "XRP",
	"cardano":         "ADA",
	"dogecoin":        "DOGE",
	"tron":            "TRX",
	"polkadot":        "DOT",
	"litecoin":        "LTC",
	"avalanche-2":     "AVAX",
	"chainlink":       "LINK",
	"wrapped-bitcoin": "WBTC",
	"staked-ether":    "STETH",
}

// Gateway is safe for concurrent use. It never retries; callers own backoff.
type Gateway struct {
	markets repository.MarketProvider
	candles repository.CandleProvider
	cache   cache.Service
	log     *logger.Logger

	searchTTL time.Duration
	capacity  int

	mu        sync.RWMutex
	symbols   map[string]string
	overrides map[string]string
}

type Option func(*Gateway)

func WithCache(c cache.Service, searchTTL time.Duration) Option {
	return func(g *Gateway) {
		g.cache = c
		if searchTTL > 0 {
			g.searchTTL = searchTTL
		}
	}
}

func WithLogger(l *logger.Logger) Option { return func(g *Gateway) { g.log = l } }

// WithCapacity bounds returned series and sets how many one-minute candles
// the secondary history requests.
func WithCapacity(n int) Option {
	return func(g *Gateway) {
		if n > 0 {
			g.capacity = n
		}
	}
}

func New(markets repository.MarketProvider, candles repository.CandleProvider, opts ...Option) *Gateway {
	g := &Gateway{
		markets:   markets,
		candles:   candles,
		log:       logger.Nop(),
		searchTTL: time.Hour,
		capacity:  120,
		symbols:   make(map[string]string, len(wellKnownSymbols)),
		overrides: make(map[string]string),
	}
	for id, sym := range wellKnownSymbols {
		g.symbols[id] = sym
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// FetchTopMarkets returns up to count snapshots by market cap.
func (g *Gateway) FetchTopMarkets(ctx context.Context, fiat string, count int) ([]models.MarketSnapshot, error) {
	list, err := g.markets.TopMarkets(ctx, fiat, count)
	if err != nil {
		return nil, err
	}
	g.indexSymbols(list)
	return list, nil
}

// FetchMarkets returns snapshots for ids in order.
func (g *Gateway) FetchMarkets(ctx context.Context, fiat string, ids []string) ([]models.MarketSnapshot, error) {
	list, err := g.markets.Markets(ctx, fiat, ids)
	if err != nil {
		return nil, err
	}
	g.indexSymbols(list)
	return list, nil
}

// FetchSnapshot returns one asset or models.ErrNotFound.
func (g *Gateway) FetchSnapshot(ctx context.Context, assetID, fiat string) (models.MarketSnapshot, error) {
	list, err := g.FetchMarkets(ctx, fiat, []string{assetID})
	if err != nil {
		return models.MarketSnapshot{}, err
	}
	for _, s := range list {
		if s.ID == assetID {
			return s, nil
		}
	}
	return models.MarketSnapshot{}, fmt.Errorf("snapshot %s: %w", assetID, models.ErrNotFound)
}

// FetchHistory tries the primary provider and falls back to exchange candles
// on any provider failure. The returned series is tagged with its source.
func (g *Gateway) FetchHistory(ctx context.Context, assetID, fiat string, days int, gran repository.Granularity) (*models.AssetSeries, error) {
	points, err := g.markets.History(ctx, assetID, fiat, days, gran)
	if err == nil {
		s := models.NewAssetSeries(assetID, g.capacity, models.SourcePrimary)
		s.Replace(points, models.SourcePrimary)
		return s, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if !fallbackWorthy(err) {
		return nil, err
	}

	symbol, serr := g.ResolvePair(ctx, assetID, fiat)
	if serr != nil {
		return nil, errors.Join(err, serr)
	}
	g.log.Debug("history fallback",
		logger.String("asset", assetID),
		logger.String("symbol", symbol),
		logger.Error(err),
	)

	closes, cerr := g.candles.Closes(ctx, symbol, g.capacity)
	if cerr != nil {
		return nil, errors.Join(err, cerr)
	}
	s := models.NewAssetSeries(assetID, g.capacity, models.SourceSecondary)
	s.Replace(closes, models.SourceSecondary)
	return s, nil
}

func fallbackWorthy(err error) bool {
	return errors.Is(err, models.ErrNotFound) || models.IsRetryable(err)
}

// ResolveSearch returns the best-match asset id for free text.
func (g *Gateway) ResolveSearch(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("search: empty query: %w", models.ErrNotFound)
	}
	key := cache.GenerateKeyWithParams("search", cache.HashKey(query))
	return cache.GetOrLoad(ctx, g.cache, key, g.searchTTL, func(ctx context.Context) (string, error) {
		return g.markets.Search(ctx, query)
	})
}

// SetSymbolOverride pins the exchange pair for an asset. An empty symbol
// clears the override.
func (g *Gateway) SetSymbolOverride(assetID, symbol string) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	g.mu.Lock()
	defer g.mu.Unlock()
	if symbol == "" {
		delete(g.overrides, assetID)
		return
	}
	g.overrides[assetID] = symbol
}

// ResolvePair picks the exchange pair for an asset: manual override first,
// then the derived alias mapping. Unknown tickers are learned from a snapshot.
func (g *Gateway) ResolvePair(ctx context.Context, assetID, fiat string) (string, error) {
	g.mu.RLock()
	override := g.overrides[assetID]
	sym, known := g.symbols[assetID]
	g.mu.RUnlock()

	if override != "" {
		return override, nil
	}
	if !known {
		snap, err := g.FetchSnapshot(ctx, assetID, fiat)
		if err != nil {
			return "", fmt.Errorf("resolve symbol %s: %w", assetID, err)
		}
		sym = snap.Symbol
	}
	pair := binance.PairSymbol(sym, fiat)
	if pair == "" {
		return "", fmt.Errorf("resolve symbol %s: %w", assetID, models.ErrNotFound)
	}
	return pair, nil
}

// KnownSymbol reports the ticker recorded for assetID.
func (g *Gateway) KnownSymbol(assetID string) (string, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s, ok := g.symbols[assetID]
	return s, ok
}

func (g *Gateway) indexSymbols(list []models.MarketSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, s := range list {
		if s.ID != "" && s.Symbol != "" {
			g.symbols[s.ID] = strings.ToUpper(s.Symbol)
		}
	}
}
