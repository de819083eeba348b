package models

import "time"

type SessionState string

const (
	StateIdle       SessionState = "idle"
	StateConnecting SessionState = "connecting"
	StateLive       SessionState = "live"
	StateDegraded   SessionState = "degraded"
	StateClosed     SessionState = "closed"
)

// SessionStatus is what the stream surfaces to collaborators.
type SessionStatus struct {
	AssetID    string        `json:"asset_id"`
	Symbol     string        `json:"symbol"`
	State      SessionState  `json:"state"`
	Failures   int           `json:"failures"`
	RetryIn    time.Duration `json:"retry_in"`
	LastError  string        `json:"last_error,omitempty"`
	LastTickAt time.Time     `json:"last_tick_at,omitempty"`
}

// ProviderHealth tracks one logical retry channel.
type ProviderHealth struct {
	Channel     string    `json:"channel"`
	Failures    int       `json:"failures"`
	NextRetryAt time.Time `json:"next_retry_at,omitempty"`
}

// StreamChannel names the backoff channel of an asset's live stream.
func StreamChannel(assetID string) string { return "stream:" + assetID }

const ChannelTopMarkets = "top-markets"
