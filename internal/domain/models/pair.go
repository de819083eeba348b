package models

import "time"

// DexPair is a newly created on-chain trading pair.
type DexPair struct {
	ChainID      string    `json:"chain_id"`
	DexID        string    `json:"dex_id"`
	PairAddress  string    `json:"pair_address"`
	BaseSymbol   string    `json:"base_symbol"`
	BaseName     string    `json:"base_name"`
	QuoteSymbol  string    `json:"quote_symbol"`
	PriceUSD     float64   `json:"price_usd"`
	LiquidityUSD float64   `json:"liquidity_usd"`
	Volume24h    float64   `json:"volume_24h"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"created_at"`
}
