package middleware

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"CoinPulse/internal/domain/models"
	"CoinPulse/pkg/metrics"
)

type recordingProc struct {
	mu       sync.Mutex
	got      []*models.Tick
	failures int
}

func (r *recordingProc) Process(_ context.Context, t *models.Tick) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("sink down")
	}
	r.got = append(r.got, t)
	return nil
}

func (r *recordingProc) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func tick(asset string, price float64) *models.Tick {
	return &models.Tick{AssetID: asset, Price: price, Timestamp: time.Now()}
}

func TestPipelineValidates(t *testing.T) {
	p := NewRealtimePipeline(&recordingProc{}, metrics.Nop{})
	require.Error(t, p.Process(context.Background(), nil))
	require.Error(t, p.Process(context.Background(), &models.Tick{AssetID: "btc", Price: 1}))
	require.Error(t, p.Process(context.Background(), tick("", 1)))
	require.Error(t, p.Process(context.Background(), tick("btc", 0)))
}

func TestPipelineThrottlesPerAsset(t *testing.T) {
	p := NewRealtimePipeline(&recordingProc{}, metrics.Nop{}, WithMaxRPS(5), WithBufferSize(100))
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Process(context.Background(), tick("bitcoin", 1)))
	}
	require.Equal(t, 5, p.Depth())

	require.NoError(t, p.Process(context.Background(), tick("ethereum", 1)))
	require.Equal(t, 6, p.Depth())
}

func TestPipelineBufferFull(t *testing.T) {
	p := NewRealtimePipeline(&recordingProc{}, metrics.Nop{}, WithMaxRPS(100), WithBufferSize(2))
	require.NoError(t, p.Process(context.Background(), tick("a", 1)))
	require.NoError(t, p.Process(context.Background(), tick("a", 1)))
	require.Error(t, p.Process(context.Background(), tick("a", 1)))
}

func TestPipelineFlushesWithRetry(t *testing.T) {
	proc := &recordingProc{failures: 2}
	p := NewRealtimePipeline(proc, metrics.Nop{})
	p.Start(context.Background())
	defer p.Stop()

	require.NoError(t, p.Process(context.Background(), tick("solana", 150)))
	require.NoError(t, p.Process(context.Background(), tick("solana", 151)))
	require.Eventually(t, func() bool { return proc.count() == 2 }, 3*time.Second, 20*time.Millisecond)
	require.Equal(t, 150.0, proc.got[0].Price)
}
