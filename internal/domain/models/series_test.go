package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAppendEvictsOldestFIFO(t *testing.T) {
	s := NewAssetSeries("bitcoin", 5, SourcePrimary)
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < 8; i++ {
		s.Append(base.Add(time.Duration(i)*time.Second), float64(i))
	}
	require.Equal(t, 5, s.Len())
	require.Equal(t, []float64{3, 4, 5, 6, 7}, s.Prices())
}

func TestAppendKeepsStrictOrder(t *testing.T) {
	s := NewAssetSeries("bitcoin", 10, SourcePrimary)
	ts := time.Unix(1_700_000_000, 0)
	s.Append(ts, 1)
	s.Append(ts, 2)
	s.Append(ts.Add(-time.Second), 3)
	for i := 1; i < s.Len(); i++ {
		require.True(t, s.Points[i].Time.After(s.Points[i-1].Time))
	}
	require.Equal(t, []float64{1, 2, 3}, s.Prices())
}

func TestReplaceKeepsNewest(t *testing.T) {
	s := NewAssetSeries("eth", 3, SourcePrimary)
	base := time.Unix(0, 0)
	pts := make([]PricePoint, 6)
	for i := range pts {
		pts[i] = PricePoint{Time: base.Add(time.Duration(i) * time.Minute), Price: float64(i)}
	}
	s.Replace(pts, SourceSecondary)
	require.Equal(t, []float64{3, 4, 5}, s.Prices())
	require.Equal(t, SourceSecondary, s.Source)

	c := s.Clone()
	c.Append(base.Add(time.Hour), 99)
	require.Equal(t, []float64{3, 4, 5}, s.Prices())
}
