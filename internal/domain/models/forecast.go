package models

import "time"

type Horizon string

const (
	Horizon1h  Horizon = "1h"
	Horizon4h  Horizon = "4h"
	Horizon24h Horizon = "24h"
)

// Minutes is the projection length used by the forecast math.
func (h Horizon) Minutes() float64 {
	switch h {
	case Horizon1h:
		return 60
	case Horizon4h:
		return 240
	case Horizon24h:
		return 1440
	default:
		return 0
	}
}

type Forecast struct {
	Horizon    Horizon `json:"horizon"`
	Change     float64 `json:"change"`
	Likelihood float64 `json:"likelihood"`
	Confidence float64 `json:"confidence"`
}

type ForecastSet struct {
	AssetID     string     `json:"asset_id"`
	Drift       float64    `json:"drift"`
	Volatility  float64    `json:"volatility"`
	Horizons    []Forecast `json:"horizons"`
	GeneratedAt time.Time  `json:"generated_at"`
}
