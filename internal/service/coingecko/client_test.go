package coingecko

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/domain/repository"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, APIKey: "demo"})
}

func TestTopMarketsSortedAndCapped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/coins/markets", r.URL.Path)
		q := r.URL.Query()
		require.Equal(t, "eur", q.Get("vs_currency"))
		require.Equal(t, "market_cap_desc", q.Get("order"))
		require.Equal(t, "2", q.Get("per_page"))
		require.Equal(t, "1h,24h,7d", q.Get("price_change_percentage"))
		require.Equal(t, "demo", r.Header.Get("x-cg-demo-api-key"))
		_, _ = w.Write([]byte(`[
			{"id":"ethereum","symbol":"eth","name":"Ethereum","current_price":3000,"market_cap":300,"total_volume":10,
			 "price_change_percentage_1h_in_currency":0.1,"price_change_percentage_24h_in_currency":-1.5,"price_change_percentage_7d_in_currency":4},
			{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":60000,"market_cap":1200,"total_volume":20},
			{"id":"tether","symbol":"usdt","name":"Tether","current_price":1,"market_cap":100,"total_volume":30}
		]`))
	})

	got, err := c.TopMarkets(context.Background(), "eur", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "bitcoin", got[0].ID)
	require.Equal(t, "BTC", got[0].Symbol)
	require.Equal(t, "ethereum", got[1].ID)
	require.Equal(t, -1.5, got[1].Change24h)
	require.Equal(t, 4.0, got[1].Change7d)
	require.Equal(t, "eur", got[1].Fiat)
}

func TestTopMarketsRateLimited(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := c.TopMarkets(context.Background(), "usd", 25)
	require.ErrorIs(t, err, models.ErrRateLimited)
}

func TestTopMarketsUpstreamError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.TopMarkets(context.Background(), "usd", 25)
	require.ErrorIs(t, err, models.ErrUpstream)
	require.NotErrorIs(t, err, models.ErrRateLimited)
}

func TestMarketsByIDsKeepsRequestOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "solana,bitcoin", r.URL.Query().Get("ids"))
		_, _ = w.Write([]byte(`[{"id":"bitcoin","symbol":"btc","market_cap":2},{"id":"solana","symbol":"sol","market_cap":1}]`))
	})
	got, err := c.Markets(context.Background(), "usd", []string{"solana", "bitcoin"})
	require.NoError(t, err)
	require.Equal(t, "solana", got[0].ID)
	require.Equal(t, "bitcoin", got[1].ID)
}

func TestMarketsEmptyIsNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	_, err := c.Markets(context.Background(), "usd", []string{"nope"})
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestHistory(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/coins/bitcoin/market_chart", r.URL.Path)
		require.Equal(t, "1", r.URL.Query().Get("days"))
		require.Equal(t, "minutely", r.URL.Query().Get("interval"))
		_, _ = w.Write([]byte(`{"prices":[[1700000000000,100.5],[1700000060000,101],[1700000120000,0]]}`))
	})
	pts, err := c.History(context.Background(), "bitcoin", "usd", 1, repository.GranularityMinute)
	require.NoError(t, err)
	require.Len(t, pts, 2)
	require.Equal(t, int64(1700000060000), pts[1].Time.UnixMilli())
	require.Equal(t, 101.0, pts[1].Price)
}

func TestHistoryNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.History(context.Background(), "nope", "usd", 1, repository.GranularityAuto)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestSearchFirstMatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "pepe coin", r.URL.Query().Get("query"))
		_, _ = w.Write([]byte(`{"coins":[{"id":"pepe","symbol":"PEPE"},{"id":"pepecoin","symbol":"PEPECOIN"}]}`))
	})
	id, err := c.Search(context.Background(), " pepe coin ")
	require.NoError(t, err)
	require.Equal(t, "pepe", id)
}

func TestSearchNoMatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"coins":[]}`))
	})
	_, err := c.Search(context.Background(), "zzz")
	require.ErrorIs(t, err, models.ErrNotFound)

	_, err = c.Search(context.Background(), "  ")
	require.ErrorIs(t, err, models.ErrNotFound)
}
