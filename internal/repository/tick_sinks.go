package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/domain/repository"
	pkgkafka "CoinPulse/pkg/kafka"
)

const insertChunk = 2000

// ClickHouseStorage writes ticks to a MergeTree table.
type ClickHouseStorage struct {
	db     *sql.DB
	table  string
	schema []string
}

func NewClickHouseStorage(db *sql.DB, table string, schema ...string) repository.Storage {
	return &ClickHouseStorage{db: db, table: table, schema: schema}
}

func (s *ClickHouseStorage) Init(ctx context.Context) error {
	for _, stmt := range s.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init %s: %w", s.table, err)
		}
	}
	return nil
}

func (s *ClickHouseStorage) Store(ctx context.Context, t *models.Tick) error {
	return s.StoreBatch(ctx, []*models.Tick{t})
}

// StoreBatch inserts ticks with multi-row VALUES in chunks. Ticks without an
// asset or timestamp are skipped.
func (s *ClickHouseStorage) StoreBatch(ctx context.Context, ticks []*models.Tick) error {
	for start := 0; start < len(ticks); start += insertChunk {
		end := min(start+insertChunk, len(ticks))

		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*6)
		for _, t := range ticks[start:end] {
			if t == nil || t.AssetID == "" || t.Timestamp.IsZero() {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?, ?)")
			args = append(args, t.Timestamp.UTC(), t.AssetID, t.Symbol, t.Price, t.ID, t.Received.UTC())
		}
		if len(values) == 0 {
			continue
		}

		q := fmt.Sprintf("INSERT INTO %s (ts, asset_id, symbol, price, event_id, received) VALUES %s", s.table, strings.Join(values, ","))
		if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %s: %w", s.table, err)
		}
	}
	return nil
}

func (s *ClickHouseStorage) Query(ctx context.Context, assetID string, from, to time.Time, limit int) ([]*models.Tick, error) {
	q := fmt.Sprintf("SELECT event_id, asset_id, symbol, price, ts, received FROM %s WHERE asset_id = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", s.table)
	rows, err := s.db.QueryContext(ctx, q, assetID, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Tick
	for rows.Next() {
		var t models.Tick
		if err := rows.Scan(&t.ID, &t.AssetID, &t.Symbol, &t.Price, &t.Timestamp, &t.Received); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *ClickHouseStorage) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the pool belongs to the clickhouse client.
func (s *ClickHouseStorage) Close() error { return nil }

type batchProducer interface {
	PublishBatch(ctx context.Context, messages []pkgkafka.Message) error
	Close() error
}

// KafkaPublisher publishes ticks keyed by asset id so one asset stays on
// one partition.
type KafkaPublisher struct {
	producer batchProducer
}

func NewKafkaPublisher(producer batchProducer) repository.Publisher {
	return &KafkaPublisher{producer: producer}
}

type tickMessage struct {
	ID       string  `json:"id"`
	AssetID  string  `json:"asset_id"`
	Symbol   string  `json:"symbol"`
	Price    float64 `json:"price"`
	TS       int64   `json:"ts"`
	Received int64   `json:"received"`
}

func toMessage(t *models.Tick) pkgkafka.Message {
	return pkgkafka.Message{
		Key: []byte(t.AssetID),
		Value: tickMessage{
			ID:       t.ID,
			AssetID:  t.AssetID,
			Symbol:   t.Symbol,
			Price:    t.Price,
			TS:       t.Timestamp.UnixMilli(),
			Received: t.Received.UnixMilli(),
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, t *models.Tick) error {
	return p.producer.PublishBatch(ctx, []pkgkafka.Message{toMessage(t)})
}

func (p *KafkaPublisher) PublishBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	msgs := make([]pkgkafka.Message, 0, len(ticks))
	for _, t := range ticks {
		if t != nil {
			msgs = append(msgs, toMessage(t))
		}
	}
	return p.producer.PublishBatch(ctx, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
