// Package dexscreener lists newly created on-chain pairs.
package dexscreener

import (
	"context"
	"net/url"
	"time"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/domain/repository"
	"CoinPulse/internal/service/upstream"
	xhttp "CoinPulse/pkg/http"
	"CoinPulse/pkg/util"
)

const provider = "dexscreener"

type Client struct {
	http    *xhttp.Client
	metrics repository.Metrics
}

func New(baseURL string, timeout time.Duration, m repository.Metrics) *Client {
	return &Client{
		http:    xhttp.NewClient(xhttp.WithBaseURL(baseURL), xhttp.WithTimeout(timeout)),
		metrics: m,
	}
}

type token struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

type pair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	URL         string `json:"url"`
	PairAddress string `json:"pairAddress"`
	BaseToken   token  `json:"baseToken"`
	QuoteToken  token  `json:"quoteToken"`
	PriceUSD    string `json:"priceUsd"`
	Liquidity   struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PairCreatedAt int64 `json:"pairCreatedAt"`
}

type pairsResponse struct {
	Pairs []pair `json:"pairs"`
}

// LatestPairs returns the pairs listed for chain in provider order.
func (c *Client) LatestPairs(ctx context.Context, chain string) ([]models.DexPair, error) {
	started := time.Now()
	var resp pairsResponse
	err := c.http.GetJSON(ctx, "/latest/dex/pairs/"+url.PathEscape(chain), nil, &resp)
	if err = upstream.Observe(c.metrics, provider, "latest_pairs", started, err); err != nil {
		return nil, err
	}

	out := make([]models.DexPair, 0, len(resp.Pairs))
	for _, p := range resp.Pairs {
		price, _ := util.ToFloat(p.PriceUSD)
		dp := models.DexPair{
			ChainID:      p.ChainID,
			DexID:        p.DexID,
			PairAddress:  p.PairAddress,
			BaseSymbol:   p.BaseToken.Symbol,
			BaseName:     p.BaseToken.Name,
			QuoteSymbol:  p.QuoteToken.Symbol,
			PriceUSD:     price,
			LiquidityUSD: p.Liquidity.USD,
			Volume24h:    p.Volume.H24,
			URL:          p.URL,
		}
		if dp.ChainID == "" {
			dp.ChainID = chain
		}
		if p.PairCreatedAt > 0 {
			dp.CreatedAt = util.FromUnixMillis(p.PairCreatedAt)
		}
		out = append(out, dp)
	}
	return out, nil
}
