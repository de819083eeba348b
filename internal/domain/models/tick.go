package models

import "time"

// Tick is one accepted live trade price.
type Tick struct {
	ID        string    `json:"id"`
	AssetID   string    `json:"asset_id"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Received  time.Time `json:"received"`
}
