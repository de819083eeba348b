package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"CoinPulse/internal/domain/models"
	pkgkafka "CoinPulse/pkg/kafka"
)

func samplePrefs() models.Preferences {
	return models.Preferences{
		Fiat:            "eur",
		RefreshSeconds:  10,
		Watchlist:       []string{"solana", "bitcoin", "ethereum"},
		SymbolOverrides: map[string]string{"wrapped-bitcoin": "WBTCUSDT"},
	}
}

func TestSQLitePreferencesRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLitePreferences(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(ctx)
	require.ErrorIs(t, err, models.ErrNotFound)

	require.NoError(t, store.Save(ctx, samplePrefs()))
	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, samplePrefs(), got)

	next := samplePrefs()
	next.Watchlist = []string{"bitcoin"}
	next.SymbolOverrides = nil
	next.Fiat = "usd"
	require.NoError(t, store.Save(ctx, next))

	got, err = store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "usd", got.Fiat)
	require.Equal(t, []string{"bitcoin"}, got.Watchlist)
	require.Empty(t, got.SymbolOverrides)
}

func TestSQLitePreferencesSurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "prefs.db")

	store, err := NewSQLitePreferences(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, samplePrefs()))
	require.NoError(t, store.Close())

	store, err = NewSQLitePreferences(ctx, path)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"solana", "bitcoin", "ethereum"}, got.Watchlist)
}

func TestSQLitePreferencesCorruptRefresh(t *testing.T) {
	ctx := context.Background()
	store, err := NewSQLitePreferences(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Save(ctx, samplePrefs()))
	_, err = store.(*SQLitePreferences).db.ExecContext(ctx, `UPDATE settings SET value = 'ten' WHERE key = 'refresh_seconds'`)
	require.NoError(t, err)

	got, err := store.Load(ctx)
	require.ErrorIs(t, err, models.ErrInvalidPreference)
	require.Contains(t, err.Error(), `"ten"`)
	require.Zero(t, got.RefreshSeconds)
	require.Equal(t, "eur", got.Fiat)
	require.Equal(t, []string{"solana", "bitcoin", "ethereum"}, got.Watchlist)
	require.Equal(t, "WBTCUSDT", got.SymbolOverrides["wrapped-bitcoin"])
}

func TestMemoryPreferencesCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryPreferences()

	_, err := store.Load(ctx)
	require.ErrorIs(t, err, models.ErrNotFound)

	p := samplePrefs()
	require.NoError(t, store.Save(ctx, p))
	p.Watchlist[0] = "mutated"

	got, err := store.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "solana", got.Watchlist[0])
}

type fakeProducer struct {
	batches [][]pkgkafka.Message
	closed  bool
}

func (f *fakeProducer) PublishBatch(_ context.Context, msgs []pkgkafka.Message) error {
	f.batches = append(f.batches, msgs)
	return nil
}

func (f *fakeProducer) Close() error { f.closed = true; return nil }

func TestKafkaPublisherKeysByAsset(t *testing.T) {
	prod := &fakeProducer{}
	pub := NewKafkaPublisher(prod)
	ts := time.UnixMilli(1700000000123)

	require.NoError(t, pub.Publish(context.Background(), &models.Tick{ID: "x", AssetID: "bitcoin", Symbol: "BTCUSDT", Price: 42, Timestamp: ts, Received: ts}))
	require.NoError(t, pub.PublishBatch(context.Background(), []*models.Tick{nil, {AssetID: "ethereum", Timestamp: ts}}))
	require.NoError(t, pub.PublishBatch(context.Background(), nil))

	require.Len(t, prod.batches, 2)
	first := prod.batches[0][0]
	require.Equal(t, "bitcoin", string(first.Key))
	raw, err := json.Marshal(first.Value)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"x","asset_id":"bitcoin","symbol":"BTCUSDT","price":42,"ts":1700000000123,"received":1700000000123}`, string(raw))
	require.Len(t, prod.batches[1], 1)

	require.NoError(t, pub.Close())
	require.True(t, prod.closed)
}

// The insert path is plain SQL, so an in-memory SQLite table stands in for
// ClickHouse here.
func TestClickHouseStorageStoreBatch(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()

	store := NewClickHouseStorage(db, "ticks",
		`CREATE TABLE ticks (ts TEXT, asset_id TEXT, symbol TEXT, price REAL, event_id TEXT, received TEXT)`)
	require.NoError(t, store.Init(ctx))

	now := time.Now()
	ticks := []*models.Tick{
		{ID: "1", AssetID: "bitcoin", Symbol: "BTCUSDT", Price: 1, Timestamp: now, Received: now},
		{ID: "2", AssetID: "bitcoin", Symbol: "BTCUSDT", Price: 2, Timestamp: now.Add(time.Second), Received: now},
		{ID: "3", AssetID: "", Price: 3, Timestamp: now},
		nil,
	}
	require.NoError(t, store.StoreBatch(ctx, ticks))
	require.NoError(t, store.Store(ctx, &models.Tick{ID: "4", AssetID: "ethereum", Price: 4, Timestamp: now, Received: now}))
	require.NoError(t, store.StoreBatch(ctx, nil))

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ticks`).Scan(&n))
	require.Equal(t, 3, n)

	var sum float64
	require.NoError(t, db.QueryRowContext(ctx, `SELECT SUM(price) FROM ticks WHERE asset_id = ?`, "bitcoin").Scan(&sum))
	require.Equal(t, 3.0, sum)
	require.NoError(t, store.Health(ctx))
}
