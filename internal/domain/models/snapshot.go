package models

import "time"

// MarketSnapshot is a point-in-time market summary in one fiat currency.
type MarketSnapshot struct {
	ID        string    `json:"id"`
	Symbol    string    `json:"symbol"`
	Name      string    `json:"name"`
	Image     string    `json:"image,omitempty"`
	Price     float64   `json:"price"`
	Volume24h float64   `json:"volume_24h"`
	Change1h  float64   `json:"change_1h"`
	Change24h float64   `json:"change_24h"`
	Change7d  float64   `json:"change_7d"`
	MarketCap float64   `json:"market_cap"`
	Fiat      string    `json:"fiat"`
	UpdatedAt time.Time `json:"updated_at"`
}
