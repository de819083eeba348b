package usecase

import (
	"context"
	"sync"
	"time"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	dsvc "CoinPulse/internal/domain/service"
	"CoinPulse/pkg/logger"
)

// StreamManager keeps at most one live Session per process.
type StreamManager struct {
	stream   drepo.PriceStream
	policy   dsvc.RetryPolicy
	metrics  drepo.Metrics
	log      *logger.Logger
	capacity int
	now      func() time.Time

	onUpdate func(assetID string, series *models.AssetSeries)
	onTick   func(ctx context.Context, t *models.Tick)

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	current *Session
}

type StreamOption func(*StreamManager)

func WithStreamCapacity(n int) StreamOption {
	return func(m *StreamManager) {
		if n > 0 {
			m.capacity = n
		}
	}
}

func WithStreamClock(now func() time.Time) StreamOption {
	return func(m *StreamManager) { m.now = now }
}

func WithStreamLogger(l *logger.Logger) StreamOption {
	return func(m *StreamManager) { m.log = l }
}

// WithTickHandler receives every accepted tick, e.g. to feed a sink.
func WithTickHandler(fn func(ctx context.Context, t *models.Tick)) StreamOption {
	return func(m *StreamManager) { m.onTick = fn }
}

func NewStreamManager(stream drepo.PriceStream, policy dsvc.RetryPolicy, metrics drepo.Metrics, opts ...StreamOption) *StreamManager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &StreamManager{
		stream:     stream,
		policy:     policy,
		metrics:    metrics,
		log:        logger.Nop(),
		capacity:   120,
		now:        time.Now,
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnUpdate registers the buffer change hook. It runs on the session goroutine.
func (m *StreamManager) OnUpdate(fn func(assetID string, series *models.AssetSeries)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onUpdate = fn
}

// Open closes any current session, waiting for its transport to shut, and
// starts a new one for assetID on symbol.
func (m *StreamManager) Open(assetID, symbol string) *Session {
	return m.open(assetID, symbol, nil, nil)
}

// OpenUnresolved starts a session whose symbol lookup failed with cause.
// The session owns the buffer at once and retries resolve on the asset's
// backoff channel before dialing. A cause or resolve error wrapping
// models.ErrNotFound stops the retries.
func (m *StreamManager) OpenUnresolved(assetID string, resolve SymbolResolver, cause error) *Session {
	return m.open(assetID, "", resolve, cause)
}

func (m *StreamManager) open(assetID, symbol string, resolve SymbolResolver, cause error) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		m.current.close()
		m.current = nil
	}

	ctx, cancel := context.WithCancel(m.baseCtx)
	s := &Session{
		assetID:  assetID,
		symbol:   symbol,
		channel:  models.StreamChannel(assetID),
		resolve:  resolve,
		startErr: cause,
		stream:   m.stream,
		policy:   m.policy,
		metrics:  m.metrics,
		log:      m.log,
		now:      m.now,
		onUpdate: m.onUpdate,
		onTick:   m.onTick,
		state:    models.StateIdle,
		series:   models.NewAssetSeries(assetID, m.capacity, models.SourcePrimary),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	// a fresh selection starts its ladder from scratch
	m.policy.RecordSuccess(s.channel)
	m.current = s
	go s.run(ctx)
	return s
}

// Close stops the current session, if any, and returns once it is closed.
func (m *StreamManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.close()
		m.current = nil
	}
}

// Current returns the active session or nil.
func (m *StreamManager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Shutdown closes the current session and refuses to keep reconnecting.
func (m *StreamManager) Shutdown() {
	m.Close()
	m.baseCancel()
}
