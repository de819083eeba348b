package binance

import "strings"

var fiatQuotes = map[string]string{
	"usd": "USDT",
	"eur": "EUR",
	"gbp": "GBP",
	"try": "TRY",
	"brl": "BRL",
	"aud": "AUD",
	"jpy": "JPY",
}

// Wrapped and staked tokens trade against their underlying pair.
var symbolAliases = map[string]string{
	"WBTC":   "BTC",
	"CBBTC":  "BTC",
	"BTCB":   "BTC",
	"WETH":   "ETH",
	"STETH":  "ETH",
	"WSTETH": "ETH",
	"WEETH":  "ETH",
	"WBNB":   "BNB",
	"WSOL":   "SOL",
}

// QuoteFor returns the quote asset for a fiat code, USDT when unlisted.
func QuoteFor(fiat string) string {
	if q, ok := fiatQuotes[strings.ToLower(fiat)]; ok {
		return q
	}
	return "USDT"
}

// BaseFor resolves aliases for an asset ticker.
func BaseFor(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if base, ok := symbolAliases[s]; ok {
		return base
	}
	return s
}

// PairSymbol derives the exchange pair, e.g. ("wbtc", "eur") -> "BTCEUR".
func PairSymbol(symbol, fiat string) string {
	base := BaseFor(symbol)
	if base == "" {
		return ""
	}
	return base + QuoteFor(fiat)
}
