package models

import "time"

// Provenance marks which provider produced a series.
type Provenance int

const (
	SourcePrimary Provenance = iota
	SourceSecondary
)

func (p Provenance) String() string {
	switch p {
	case SourcePrimary:
		return "primary"
	case SourceSecondary:
		return "secondary"
	default:
		return "unknown"
	}
}

func (p Provenance) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

type PricePoint struct {
	Time  time.Time `json:"time"`
	Price float64   `json:"price"`
}

// AssetSeries is a strictly time-ordered, capacity-bounded window of prices.
type AssetSeries struct {
	AssetID  string       `json:"asset_id"`
	Points   []PricePoint `json:"points"`
	Source   Provenance   `json:"source"`
	Capacity int          `json:"capacity"`
}

func NewAssetSeries(assetID string, capacity int, source Provenance) *AssetSeries {
	return &AssetSeries{AssetID: assetID, Capacity: capacity, Source: source}
}

// Append adds a point at the tail. A timestamp not after the last one is
// nudged forward by a nanosecond so ordering stays strict. The oldest points
// are evicted once Capacity is exceeded.
func (s *AssetSeries) Append(t time.Time, price float64) {
	if n := len(s.Points); n > 0 {
		if last := s.Points[n-1].Time; !t.After(last) {
			t = last.Add(time.Nanosecond)
		}
	}
	s.Points = append(s.Points, PricePoint{Time: t, Price: price})
	s.trim()
}

// Replace swaps the whole window, keeping the newest Capacity points.
func (s *AssetSeries) Replace(points []PricePoint, source Provenance) {
	s.Points = make([]PricePoint, 0, len(points))
	s.Source = source
	for _, p := range points {
		s.Append(p.Time, p.Price)
	}
}

func (s *AssetSeries) trim() {
	if s.Capacity > 0 && len(s.Points) > s.Capacity {
		drop := len(s.Points) - s.Capacity
		kept := make([]PricePoint, s.Capacity)
		copy(kept, s.Points[drop:])
		s.Points = kept
	}
}

func (s *AssetSeries) Len() int { return len(s.Points) }

func (s *AssetSeries) Prices() []float64 {
	out := make([]float64, len(s.Points))
	for i, p := range s.Points {
		out[i] = p.Price
	}
	return out
}

func (s *AssetSeries) Last() (PricePoint, bool) {
	if len(s.Points) == 0 {
		return PricePoint{}, false
	}
	return s.Points[len(s.Points)-1], true
}

// Clone returns a deep copy safe to hand to readers.
func (s *AssetSeries) Clone() *AssetSeries {
	c := *s
	c.Points = append([]PricePoint(nil), s.Points...)
	return &c
}
