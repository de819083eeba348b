package middleware

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"CoinPulse/internal/domain/models"
	domrepo "CoinPulse/internal/domain/repository"
	"CoinPulse/pkg/logger"
)

// Proc is the minimal processor interface the pipeline needs.
type Proc interface {
	Process(ctx context.Context, t *models.Tick) error
}

// RealtimePipeline sits between the live stream and a tick sink. It
// validates, throttles per asset and queues ticks so a slow sink never stalls
// the stream.
type RealtimePipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	log     *logger.Logger
	maxRPS  int
	bufSize int
	bufCh   chan *models.Tick

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}

	transform func(*models.Tick) *models.Tick
}

type PipelineOption func(*RealtimePipeline)

// WithMaxRPS sets the max ticks per second per asset.
func WithMaxRPS(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the queue depth in front of the sink.
func WithBufferSize(n int) PipelineOption {
	return func(p *RealtimePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithTransform sets a hook applied to each tick before validation.
func WithTransform(fn func(*models.Tick) *models.Tick) PipelineOption {
	return func(p *RealtimePipeline) { p.transform = fn }
}

func WithPipelineLogger(l *logger.Logger) PipelineOption {
	return func(p *RealtimePipeline) { p.log = l }
}

// NewRealtimePipeline creates a new pipeline.
func NewRealtimePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *RealtimePipeline {
	p := &RealtimePipeline{
		proc:     proc,
		metrics:  metrics,
		log:      logger.Nop(),
		maxRPS:   20,
		bufSize:  1000,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan *models.Tick, p.bufSize)
	return p
}

// Start launches the flusher. It is a no-op when already running.
func (p *RealtimePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.flush(ctx, p.done)
}

func (p *RealtimePipeline) flush(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	backoff := 50 * time.Millisecond
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.bufCh:
			for {
				err := p.proc.Process(ctx, t)
				if err == nil {
					backoff = 50 * time.Millisecond
					break
				}
				p.metrics.RecordError("pipeline_flush")
				p.log.Warn("tick sink failed", logger.String("asset", t.AssetID), logger.Error(err))
				if backoff < 2*time.Second {
					backoff *= 2
				}
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
				if len(p.bufCh) == cap(p.bufCh) {
					p.metrics.RecordError("pipeline_buffer_drop")
					break
				}
			}
		}
	}
}

// Stop halts the flusher and waits for it to exit. Queued ticks are dropped.
func (p *RealtimePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()
	cancel()
	<-done
}

// Process validates, throttles and queues t. Throttled ticks are dropped
// silently; a full queue is an error.
func (p *RealtimePipeline) Process(_ context.Context, t *models.Tick) error {
	if p.transform != nil {
		t = p.transform(t)
	}
	if err := validateTick(t); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return err
	}
	if !p.allow(t.AssetID) {
		p.metrics.RecordError("pipeline_throttle")
		return nil
	}

	select {
	case p.bufCh <- t:
		return nil
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return fmt.Errorf("pipeline buffer full (%d)", p.bufSize)
	}
}

// Depth returns the number of queued ticks.
func (p *RealtimePipeline) Depth() int { return len(p.bufCh) }

func validateTick(t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick nil")
	}
	if t.AssetID == "" {
		return fmt.Errorf("asset empty")
	}
	if t.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if t.Price <= 0 || math.IsNaN(t.Price) || math.IsInf(t.Price, 0) {
		return fmt.Errorf("price invalid")
	}
	return nil
}

func (p *RealtimePipeline) allow(assetID string) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	l, ok := p.limiters[assetID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(p.maxRPS), p.maxRPS)
		p.limiters[assetID] = l
	}
	p.mu.Unlock()
	return l.Allow()
}
