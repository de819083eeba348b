package usecase

import (
	"context"
	"fmt"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
)

const (
	SinkNone       = "none"
	SinkKafka      = "kafka"
	SinkClickHouse = "clickhouse"
)

// TickProcessor routes accepted ticks to the configured sink.
type TickProcessor struct {
	pub     drepo.Publisher
	store   drepo.Storage
	metrics drepo.Metrics
	backend string
}

func NewTickProcessor(pub drepo.Publisher, store drepo.Storage, metrics drepo.Metrics, backend string) *TickProcessor {
	return &TickProcessor{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
	}
}

func (p *TickProcessor) Backend() string { return p.backend }

// Process sends one tick to the backend.
func (p *TickProcessor) Process(ctx context.Context, t *models.Tick) error {
	if t == nil {
		return fmt.Errorf("tick is nil")
	}

	var err error
	switch p.backend {
	case SinkKafka:
		err = p.pub.Publish(ctx, t)
	case SinkClickHouse:
		err = p.store.Store(ctx, t)
	case SinkNone, "":
		return nil
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("sink")
		return fmt.Errorf("process tick: %w", err)
	}
	return nil
}

// ProcessBatch sends several ticks in one call.
func (p *TickProcessor) ProcessBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	var err error
	switch p.backend {
	case SinkKafka:
		err = p.pub.PublishBatch(ctx, ticks)
	case SinkClickHouse:
		err = p.store.StoreBatch(ctx, ticks)
	case SinkNone, "":
		return nil
	default:
		err = fmt.Errorf("unknown backend: %s", p.backend)
	}

	if err != nil {
		p.metrics.RecordError("sink_batch")
		return fmt.Errorf("process batch: %w", err)
	}
	return nil
}

// Close closes underlying resources if available.
func (p *TickProcessor) Close() {
	if p.pub != nil {
		_ = p.pub.Close()
	}
	if p.store != nil {
		_ = p.store.Close()
	}
}
