package forecast

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"CoinPulse/internal/domain/models"
)

func flat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func randomWalk(seed int64, n int, step float64) []float64 {
	r := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	p := 100.0
	for i := range out {
		p *= math.Exp(r.NormFloat64() * step)
		out[i] = p
	}
	return out
}

func TestInsufficientData(t *testing.T) {
	for n := 0; n < MinPoints; n++ {
		set, err := Compute(flat(n, 100), 1e6)
		require.ErrorIs(t, err, models.ErrInsufficientData)
		require.Nil(t, set)
	}
	_, err := Compute(flat(MinPoints, 100), 0)
	require.NoError(t, err)
}

func TestZeroDrift(t *testing.T) {
	set, err := Compute(flat(25, 100), 0)
	require.NoError(t, err)
	require.Len(t, set.Horizons, 3)

	// zero volume gives volumeAdj = log10(10)/6; the variance floor keeps
	// volScore just under 1
	volScore := 1 - math.Sqrt(1e-9)/0.01
	want := 0.4*volScore + 0.6*(1.0/6)
	require.InDelta(t, 0.498735, want, 1e-6)

	for _, h := range set.Horizons {
		require.Zero(t, h.Change)
		require.InDelta(t, want, h.Likelihood, 1e-12)
	}
	require.InDelta(t, want, set.Horizons[0].Confidence, 1e-12)
	require.InDelta(t, want*0.9, set.Horizons[1].Confidence, 1e-12)
	require.InDelta(t, want*0.8, set.Horizons[2].Confidence, 1e-12)
	require.Equal(t, models.Horizon24h, set.Horizons[2].Horizon)
}

func TestDeterministic(t *testing.T) {
	prices := randomWalk(7, 150, 0.002)
	a, err := Compute(prices, 5e8)
	require.NoError(t, err)
	b, err := Compute(prices, 5e8)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestBounds(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		step := 0.0005 * float64(seed%10+1)
		prices := randomWalk(seed, 20+int(seed)*5, step)
		volume := math.Pow(10, float64(seed%12))
		set, err := Compute(prices, volume)
		require.NoError(t, err)
		for _, h := range set.Horizons {
			require.GreaterOrEqual(t, h.Likelihood, 0.05)
			require.LessOrEqual(t, h.Likelihood, 0.98)
		}
		require.GreaterOrEqual(t, set.Horizons[0].Confidence, 0.1)
		require.LessOrEqual(t, set.Horizons[0].Confidence, 0.95)
	}
}

func TestUptrendProjectsUp(t *testing.T) {
	prices := make([]float64, 60)
	for i := range prices {
		prices[i] = 100 * math.Exp(0.0001*float64(i))
	}
	set, err := Compute(prices, 1e9)
	require.NoError(t, err)
	require.InDelta(t, 0.0001, set.Drift, 1e-9)
	require.InDelta(t, math.Exp(0.0001*60)-1, set.Horizons[0].Change, 1e-9)
	require.Greater(t, set.Horizons[2].Change, set.Horizons[1].Change)
}

func TestRejectsNonPositivePrices(t *testing.T) {
	prices := flat(30, 100)
	prices[10] = 0
	_, err := Compute(prices, 1)
	require.ErrorIs(t, err, models.ErrInsufficientData)
}

func TestEngineStampsResult(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	e := New(WithClock(func() time.Time { return at }))
	set, err := e.Forecast("bitcoin", flat(30, 50), 10)
	require.NoError(t, err)
	require.Equal(t, "bitcoin", set.AssetID)
	require.Equal(t, at, set.GeneratedAt)
}
