package api

type TopMarketsRequest struct {
	Refresh bool `query:"refresh"`
}

// WatchlistAddRequest adds by id, or by free-text query when id is empty.
type WatchlistAddRequest struct {
	AssetID string `json:"asset_id" validate:"required_without=Query,max=100"`
	Query   string `json:"query" validate:"max=64"`
}

type SelectRequest struct {
	AssetID string `json:"asset_id" validate:"required,max=100"`
}

type SettingsRequest struct {
	Fiat           string `json:"fiat" validate:"omitempty,alpha,min=3,max=5"`
	RefreshSeconds int    `json:"refresh_seconds" validate:"gte=0,lte=3600"`
}

// OverrideRequest pins an exchange pair; an empty symbol clears it.
type OverrideRequest struct {
	AssetID string `json:"asset_id" validate:"required,max=100"`
	Symbol  string `json:"symbol" validate:"omitempty,alphanum,max=20"`
}

type SearchRequest struct {
	Query string `query:"q" validate:"required,max=64"`
}

type PairsRequest struct {
	Refresh bool `query:"refresh"`
}

type TicksRequest struct {
	AssetID string `query:"asset_id" validate:"required"`
	From    string `query:"from"`
	To      string `query:"to"`
	Limit   int    `query:"limit" default:"500" validate:"gte=1,lte=5000"`
}
