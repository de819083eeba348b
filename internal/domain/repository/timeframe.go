package repository

// Granularity is the sampling interval requested from the history provider.
type Granularity string

const (
	GranularityAuto   Granularity = ""
	GranularityMinute Granularity = "minutely"
	GranularityHourly Granularity = "hourly"
	GranularityDaily  Granularity = "daily"
)

// IsValidGranularity returns true if g is a supported granularity.
func IsValidGranularity(g Granularity) bool {
	switch g {
	case GranularityAuto, GranularityMinute, GranularityHourly, GranularityDaily:
		return true
	default:
		return false
	}
}

// GranularityForDays picks the finest interval the provider serves for a span.
func GranularityForDays(days int) Granularity {
	switch {
	case days <= 1:
		return GranularityAuto
	case days <= 90:
		return GranularityHourly
	default:
		return GranularityDaily
	}
}

// NormalizeGranularity converts a raw string to a valid granularity or auto.
func NormalizeGranularity(s string) Granularity {
	g := Granularity(s)
	if IsValidGranularity(g) {
		return g
	}
	return GranularityAuto
}
