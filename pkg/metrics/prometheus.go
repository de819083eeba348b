package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"CoinPulse/internal/domain/models"
)

var streamStates = []models.SessionState{
	models.StateIdle, models.StateConnecting, models.StateLive, models.StateDegraded, models.StateClosed,
}

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	providerRequests *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	backoffSeconds   *prometheus.GaugeVec
	streamState      *prometheus.GaugeVec
	ticksTotal       *prometheus.CounterVec
	forecastConf     *prometheus.GaugeVec
	errorsTotal      *prometheus.CounterVec
}

// New creates a recorder registered on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		providerRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpulse_provider_requests_total",
				Help: "Upstream provider calls by outcome",
			},
			[]string{"provider", "op", "result"},
		),
		providerLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coinpulse_provider_request_seconds",
				Help:    "Upstream provider call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "op"},
		),
		backoffSeconds: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinpulse_backoff_seconds",
				Help: "Current retry delay per channel",
			},
			[]string{"channel"},
		),
		streamState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinpulse_stream_state",
				Help: "1 for the current state of an asset stream, 0 otherwise",
			},
			[]string{"asset", "state"},
		),
		ticksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpulse_ticks_total",
				Help: "Inbound stream ticks by outcome",
			},
			[]string{"asset", "result"},
		),
		forecastConf: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "coinpulse_forecast_confidence",
				Help: "Latest forecast confidence per horizon",
			},
			[]string{"asset", "horizon"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coinpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
	}
}

func (r *Recorder) RecordProviderRequest(provider, op, result string, seconds float64) {
	r.providerRequests.WithLabelValues(provider, op, result).Inc()
	r.providerLatency.WithLabelValues(provider, op).Observe(seconds)
}

func (r *Recorder) RecordBackoff(channel string, delay time.Duration) {
	r.backoffSeconds.WithLabelValues(channel).Set(delay.Seconds())
}

func (r *Recorder) RecordStreamState(assetID string, state models.SessionState) {
	for _, s := range streamStates {
		v := 0.0
		if s == state {
			v = 1
		}
		r.streamState.WithLabelValues(assetID, string(s)).Set(v)
	}
}

func (r *Recorder) RecordTick(assetID, result string) {
	r.ticksTotal.WithLabelValues(assetID, result).Inc()
}

func (r *Recorder) RecordForecast(assetID string, set *models.ForecastSet) {
	if set == nil {
		return
	}
	for _, h := range set.Horizons {
		r.forecastConf.WithLabelValues(assetID, string(h.Horizon)).Set(h.Confidence)
	}
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// Nop discards everything.
type Nop struct{}

func (Nop) RecordProviderRequest(string, string, string, float64) {}
func (Nop) RecordBackoff(string, time.Duration)                    {}
func (Nop) RecordStreamState(string, models.SessionState)          {}
func (Nop) RecordTick(string, string)                              {}
func (Nop) RecordForecast(string, *models.ForecastSet)             {}
func (Nop) RecordError(string)                                     {}
