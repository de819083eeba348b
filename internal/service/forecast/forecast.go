// Package forecast derives short-horizon directional estimates from a price
// window. Results are reproducible for identical input; they are a heuristic
// signal, not a validated model.
package forecast

import (
	"fmt"
	"math"
	"time"

	"CoinPulse/internal/domain/models"
	"CoinPulse/pkg/util"
)

const (
	MinPoints = 20

	shortWindow = 30
	shortSpan   = 15
	longWindow  = 120
	longSpan    = 60

	varianceFloor = 1e-9
	volScale      = 0.01
	moveScale     = 0.2
)

var horizons = []struct {
	tag   models.Horizon
	scale float64
}{
	{models.Horizon1h, 1.0},
	{models.Horizon4h, 0.9},
	{models.Horizon24h, 0.8},
}

// Compute is the pure forecast function over raw prices.
func Compute(prices []float64, volume24h float64) (*models.ForecastSet, error) {
	if len(prices) < MinPoints {
		return nil, fmt.Errorf("%w: have %d points, need %d", models.ErrInsufficientData, len(prices), MinPoints)
	}

	rets := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i] <= 0 || prices[i-1] <= 0 {
			return nil, fmt.Errorf("%w: non-positive price at %d", models.ErrInsufficientData, i)
		}
		rets = append(rets, math.Log(prices[i]/prices[i-1]))
	}

	drift := 0.6*ema(tail(rets, shortWindow), shortSpan) + 0.4*ema(tail(rets, longWindow), longSpan)
	vol := stddev(rets)

	volScore := math.Max(0, 1-vol/volScale)
	volumeAdj := math.Min(1, math.Log10(volume24h+10)/6)
	conf := util.Clamp(0.4*volScore+0.6*volumeAdj, 0.1, 0.95)

	set := &models.ForecastSet{
		Drift:      drift,
		Volatility: vol,
		Horizons:   make([]models.Forecast, 0, len(horizons)),
	}
	for _, h := range horizons {
		change := math.Exp(drift*h.tag.Minutes()) - 1
		like := util.Clamp(conf*(1-math.Min(0.5, math.Abs(change)/moveScale)), 0.05, 0.98)
		set.Horizons = append(set.Horizons, models.Forecast{
			Horizon:    h.tag,
			Change:     change,
			Likelihood: like,
			Confidence: conf * h.scale,
		})
	}
	return set, nil
}

func tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

// ema seeds with the first sample and blends each following one with 2/(span+1).
func ema(xs []float64, span int) float64 {
	if len(xs) == 0 {
		return 0
	}
	a := 2 / (float64(span) + 1)
	e := xs[0]
	for _, x := range xs[1:] {
		e = x*a + e*(1-a)
	}
	return e
}

func stddev(xs []float64) float64 {
	if len(xs) < 2 {
		return math.Sqrt(varianceFloor)
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	var sq float64
	for _, x := range xs {
		sq += (x - mean) * (x - mean)
	}
	return math.Sqrt(math.Max(sq/float64(len(xs)-1), varianceFloor))
}

// Engine stamps Compute results with an asset id and generation time.
type Engine struct {
	now func() time.Time
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Forecast(assetID string, prices []float64, volume24h float64) (*models.ForecastSet, error) {
	set, err := Compute(prices, volume24h)
	if err != nil {
		return nil, err
	}
	set.AssetID = assetID
	set.GeneratedAt = e.now().UTC()
	return set, nil
}
