// Package binance is the secondary candle provider and the live trade stream.
package binance

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/domain/repository"
	"CoinPulse/internal/service/upstream"
	xhttp "CoinPulse/pkg/http"
	"CoinPulse/pkg/util"
)

const (
	provider = "binance"
	maxLimit = 1000
)

// Candles implements repository.CandleProvider over the klines endpoint.
type Candles struct {
	http    *xhttp.Client
	metrics repository.Metrics
}

func NewCandles(restURL string, timeout time.Duration, m repository.Metrics) *Candles {
	return &Candles{
		http:    xhttp.NewClient(xhttp.WithBaseURL(restURL), xhttp.WithTimeout(timeout)),
		metrics: m,
	}
}

// Closes returns the close price of the last limit one-minute candles keyed
// by candle open time.
func (c *Candles) Closes(ctx context.Context, symbol string, limit int) ([]models.PricePoint, error) {
	if limit <= 0 || limit > maxLimit {
		limit = maxLimit
	}
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("interval", "1m")
	q.Set("limit", strconv.Itoa(limit))

	started := time.Now()
	var rows [][]interface{}
	err := c.http.GetJSON(ctx, "/api/v3/klines", q, &rows)
	if xhttp.StatusCode(err) == http.StatusBadRequest {
		// unknown symbols come back as 400 with code -1121
		err = fmt.Errorf("%s klines %s: %w: %w", provider, symbol, models.ErrNotFound, err)
	}
	if err = upstream.Observe(c.metrics, provider, "klines", started, err); err != nil {
		return nil, err
	}

	points := make([]models.PricePoint, 0, len(rows))
	for _, row := range rows {
		if len(row) < 5 {
			continue
		}
		openMs, ok := util.ToFloat(row[0])
		if !ok {
			continue
		}
		closePx, ok := util.ToFloat(row[4])
		if !ok || closePx <= 0 {
			continue
		}
		points = append(points, models.PricePoint{Time: util.FromUnixMillisFloat(openMs), Price: closePx})
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%s klines %s: %w", provider, symbol, models.ErrNotFound)
	}
	return points, nil
}
