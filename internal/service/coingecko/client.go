// Package coingecko is the primary ranked-market, history and search provider.
package coingecko

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/domain/repository"
	"CoinPulse/internal/service/upstream"
	xhttp "CoinPulse/pkg/http"
	"CoinPulse/pkg/logger"
	"CoinPulse/pkg/util"
)

const (
	provider    = "coingecko"
	maxPageSize = 25
	apiKeyHead  = "x-cg-demo-api-key"
)

// Client implements repository.MarketProvider against the CoinGecko v3 API.
type Client struct {
	http    *xhttp.Client
	limiter *rate.Limiter
	metrics repository.Metrics
	log     *logger.Logger
}

type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
}

type Option func(*Client)

func WithMetrics(m repository.Metrics) Option { return func(c *Client) { c.metrics = m } }

func WithLogger(l *logger.Logger) Option { return func(c *Client) { c.log = l } }

// WithLimiter replaces the request pacing limiter.
func WithLimiter(l *rate.Limiter) Option { return func(c *Client) { c.limiter = l } }

func New(cfg Config, opts ...Option) *Client {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	c := &Client{
		http: xhttp.NewClient(
			xhttp.WithBaseURL(cfg.BaseURL),
			xhttp.WithTimeout(cfg.Timeout),
			xhttp.WithHeader(apiKeyHead, cfg.APIKey),
		),
		limiter: rate.NewLimiter(limit, 1),
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type marketRow struct {
	ID           string    `json:"id"`
	Symbol       string    `json:"symbol"`
	Name         string    `json:"name"`
	Image        string    `json:"image"`
	CurrentPrice float64   `json:"current_price"`
	MarketCap    float64   `json:"market_cap"`
	TotalVolume  float64   `json:"total_volume"`
	Change24h    float64   `json:"price_change_percentage_24h"`
	Change1hCur  float64   `json:"price_change_percentage_1h_in_currency"`
	Change24hCur *float64  `json:"price_change_percentage_24h_in_currency"`
	Change7dCur  float64   `json:"price_change_percentage_7d_in_currency"`
	LastUpdated  time.Time `json:"last_updated"`
}

func (r marketRow) snapshot(fiat string) models.MarketSnapshot {
	ch24 := r.Change24h
	if r.Change24hCur != nil {
		ch24 = *r.Change24hCur
	}
	return models.MarketSnapshot{
		ID:        r.ID,
		Symbol:    strings.ToUpper(r.Symbol),
		Name:      r.Name,
		Image:     r.Image,
		Price:     r.CurrentPrice,
		Volume24h: r.TotalVolume,
		Change1h:  r.Change1hCur,
		Change24h: ch24,
		Change7d:  r.Change7dCur,
		MarketCap: r.MarketCap,
		Fiat:      fiat,
		UpdatedAt: r.LastUpdated,
	}
}

func marketQuery(fiat string, count int) url.Values {
	q := url.Values{}
	q.Set("vs_currency", fiat)
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(count))
	q.Set("page", "1")
	q.Set("sparkline", "false")
	q.Set("price_change_percentage", "1h,24h,7d")
	return q
}

// TopMarkets returns up to count assets ordered by market cap, largest first.
func (c *Client) TopMarkets(ctx context.Context, fiat string, count int) ([]models.MarketSnapshot, error) {
	if count <= 0 || count > maxPageSize {
		count = maxPageSize
	}
	rows, err := c.markets(ctx, "top_markets", marketQuery(fiat, count))
	if err != nil {
		return nil, err
	}

	out := make([]models.MarketSnapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.snapshot(fiat))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].MarketCap > out[j].MarketCap })
	if len(out) > count {
		out = out[:count]
	}
	return out, nil
}

// Markets returns snapshots for specific ids in request order. Unknown ids are
// omitted; an empty result is ErrNotFound.
func (c *Client) Markets(ctx context.Context, fiat string, ids []string) ([]models.MarketSnapshot, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := marketQuery(fiat, 250)
	q.Set("ids", strings.Join(ids, ","))
	rows, err := c.markets(ctx, "markets", q)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s markets %v: %w", provider, ids, models.ErrNotFound)
	}

	byID := make(map[string]models.MarketSnapshot, len(rows))
	for _, r := range rows {
		byID[r.ID] = r.snapshot(fiat)
	}
	out := make([]models.MarketSnapshot, 0, len(rows))
	for _, id := range ids {
		if s, ok := byID[id]; ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func (c *Client) markets(ctx context.Context, op string, q url.Values) ([]marketRow, error) {
	var rows []marketRow
	if err := c.get(ctx, op, "/coins/markets", q, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

type chartResponse struct {
	Prices [][]float64 `json:"prices"`
}

// History returns (ms, price) samples for the last days.
func (c *Client) History(ctx context.Context, assetID, fiat string, days int, g repository.Granularity) ([]models.PricePoint, error) {
	if days < 1 {
		days = 1
	}
	q := url.Values{}
	q.Set("vs_currency", fiat)
	q.Set("days", strconv.Itoa(days))
	if g != repository.GranularityAuto {
		q.Set("interval", string(g))
	}

	var resp chartResponse
	if err := c.get(ctx, "history", "/coins/"+url.PathEscape(assetID)+"/market_chart", q, &resp); err != nil {
		return nil, err
	}

	points := make([]models.PricePoint, 0, len(resp.Prices))
	for _, p := range resp.Prices {
		if len(p) < 2 || p[1] <= 0 {
			continue
		}
		points = append(points, models.PricePoint{Time: util.FromUnixMillisFloat(p[0]), Price: p[1]})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%s history %s: %w", provider, assetID, models.ErrNotFound)
	}
	return points, nil
}

type searchResponse struct {
	Coins []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
	} `json:"coins"`
}

// Search resolves free text to the first matching asset id.
func (c *Client) Search(ctx context.Context, query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", fmt.Errorf("%s search: empty query: %w", provider, models.ErrNotFound)
	}
	var resp searchResponse
	if err := c.get(ctx, "search", "/search", url.Values{"query": {query}}, &resp); err != nil {
		return "", err
	}
	if len(resp.Coins) == 0 || resp.Coins[0].ID == "" {
		return "", fmt.Errorf("%s search %q: %w", provider, query, models.ErrNotFound)
	}
	return resp.Coins[0].ID, nil
}

func (c *Client) get(ctx context.Context, op, path string, q url.Values, dest interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	started := time.Now()
	err := c.http.GetJSON(ctx, path, q, dest)
	err = upstream.Observe(c.metrics, provider, op, started, err)
	if err != nil {
		c.log.Debug("provider call failed",
			logger.String("provider", provider),
			logger.String("op", op),
			logger.Error(err),
		)
	}
	return err
}
