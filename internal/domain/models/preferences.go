package models

// Preferences is the collaborator-owned user configuration.
type Preferences struct {
	Fiat            string            `json:"fiat"`
	RefreshSeconds  int               `json:"refresh_seconds"`
	Watchlist       []string          `json:"watchlist"`
	SymbolOverrides map[string]string `json:"symbol_overrides"`
}
