package service

import (
	"time"

	"CoinPulse/internal/domain/models"
)

// Forecaster maps a price series and 24h volume to a three-horizon forecast.
type Forecaster interface {
	Forecast(assetID string, prices []float64, volume24h float64) (*models.ForecastSet, error)
}

// RetryPolicy schedules retries per logical channel.
type RetryPolicy interface {
	RecordFailure(channel string, now time.Time) time.Duration
	RecordSuccess(channel string)
	ShouldWait(channel string, now time.Time) time.Duration
	Health(channel string) models.ProviderHealth
}
