package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"CoinPulse/internal/domain/models"
)

func value(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Counter != nil {
		return out.GetCounter().GetValue()
	}
	return out.GetGauge().GetValue()
}

func TestRecorderStreamStateIsExclusive(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.RecordStreamState("bitcoin", models.StateConnecting)
	r.RecordStreamState("bitcoin", models.StateLive)

	require.Equal(t, 1.0, value(t, r.streamState.WithLabelValues("bitcoin", "live")))
	require.Equal(t, 0.0, value(t, r.streamState.WithLabelValues("bitcoin", "connecting")))
}

func TestRecorderCounters(t *testing.T) {
	r := New(prometheus.NewRegistry())
	r.RecordTick("eth", "accepted")
	r.RecordTick("eth", "accepted")
	r.RecordTick("eth", "malformed")
	r.RecordBackoff("top-markets", 4*time.Second)
	r.RecordForecast("eth", &models.ForecastSet{Horizons: []models.Forecast{{Horizon: models.Horizon1h, Confidence: 0.42}}})

	require.Equal(t, 2.0, value(t, r.ticksTotal.WithLabelValues("eth", "accepted")))
	require.Equal(t, 1.0, value(t, r.ticksTotal.WithLabelValues("eth", "malformed")))
	require.Equal(t, 4.0, value(t, r.backoffSeconds.WithLabelValues("top-markets")))
	require.Equal(t, 0.42, value(t, r.forecastConf.WithLabelValues("eth", "1h")))
}
