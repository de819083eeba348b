package repository

import (
	"context"
	"time"

	"CoinPulse/internal/domain/models"
)

// MarketProvider is the primary ranked-market, history and search source.
type MarketProvider interface {
	TopMarkets(ctx context.Context, fiat string, count int) ([]models.MarketSnapshot, error)
	Markets(ctx context.Context, fiat string, ids []string) ([]models.MarketSnapshot, error)
	History(ctx context.Context, assetID, fiat string, days int, g Granularity) ([]models.PricePoint, error)
	Search(ctx context.Context, query string) (string, error)
}

// CandleProvider is the secondary history source keyed by exchange symbol.
type CandleProvider interface {
	Closes(ctx context.Context, symbol string, limit int) ([]models.PricePoint, error)
}

// PriceStream opens push subscriptions for trade ticks.
type PriceStream interface {
	Open(ctx context.Context, symbol string) (StreamConn, error)
	ParsePrice(frame []byte) (float64, error)
}

// StreamConn is one open transport. Both channels are closed once the
// transport stops.
type StreamConn interface {
	Read(ctx context.Context) (<-chan []byte, <-chan error)
	Close() error
}

// PairSource lists newly created pairs for a chain.
type PairSource interface {
	LatestPairs(ctx context.Context, chain string) ([]models.DexPair, error)
}

type PreferenceStore interface {
	Load(ctx context.Context) (models.Preferences, error)
	Save(ctx context.Context, p models.Preferences) error
	Close() error
}

type Publisher interface {
	Publish(ctx context.Context, t *models.Tick) error
	PublishBatch(ctx context.Context, ticks []*models.Tick) error
	Close() error
}

type Storage interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, t *models.Tick) error
	StoreBatch(ctx context.Context, ticks []*models.Tick) error
	Query(ctx context.Context, assetID string, from, to time.Time, limit int) ([]*models.Tick, error)
	Health(ctx context.Context) error
	Close() error
}

type Metrics interface {
	RecordProviderRequest(provider, op, result string, seconds float64)
	RecordBackoff(channel string, delay time.Duration)
	RecordStreamState(assetID string, state models.SessionState)
	RecordTick(assetID, result string)
	RecordForecast(assetID string, set *models.ForecastSet)
	RecordError(kind string)
}
