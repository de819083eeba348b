package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	dsvc "CoinPulse/internal/domain/service"
	"CoinPulse/pkg/logger"
)

type sessionEvent int

const (
	evSelect sessionEvent = iota
	evMessage
	evFailure
	evRetry
	evClose
)

var transitions = map[models.SessionState]map[sessionEvent]models.SessionState{
	models.StateIdle: {
		evSelect: models.StateConnecting,
		evClose:  models.StateClosed,
	},
	models.StateConnecting: {
		evMessage: models.StateLive,
		evFailure: models.StateDegraded,
		evClose:   models.StateClosed,
	},
	models.StateLive: {
		evMessage: models.StateLive,
		evFailure: models.StateDegraded,
		evClose:   models.StateClosed,
	},
	models.StateDegraded: {
		evRetry: models.StateConnecting,
		evClose: models.StateClosed,
	},
	models.StateClosed: {},
}

var errTransportClosed = errors.New("transport closed by peer")

// SymbolResolver looks up the exchange pair for a session that started
// without one.
type SymbolResolver func(ctx context.Context) (string, error)

// Session is the live subscription for one selected asset. Its buffer and
// state are only written by its own goroutine and by ReplaceHistory.
type Session struct {
	assetID  string
	channel  string
	resolve  SymbolResolver
	startErr error

	stream  drepo.PriceStream
	policy  dsvc.RetryPolicy
	metrics drepo.Metrics
	log     *logger.Logger
	now     func() time.Time

	onUpdate func(assetID string, series *models.AssetSeries)
	onTick   func(ctx context.Context, t *models.Tick)

	mu       sync.Mutex
	symbol   string
	state    models.SessionState
	series   *models.AssetSeries
	lastErr  error
	lastTick time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

func (s *Session) AssetID() string { return s.assetID }

// Symbol is empty until the exchange pair is resolved.
func (s *Session) Symbol() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.symbol
}

func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Status reports state plus the remaining reconnect wait when degraded.
func (s *Session) Status() models.SessionStatus {
	s.mu.Lock()
	st := models.SessionStatus{
		AssetID:    s.assetID,
		Symbol:     s.symbol,
		State:      s.state,
		LastTickAt: s.lastTick,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	s.mu.Unlock()

	h := s.policy.Health(s.channel)
	st.Failures = h.Failures
	if st.State == models.StateDegraded {
		st.RetryIn = s.policy.ShouldWait(s.channel, s.now())
	}
	return st
}

// Series returns a copy of the rolling buffer.
func (s *Session) Series() *models.AssetSeries {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.series.Clone()
}

// ReplaceHistory swaps the buffer for fetched history. Live points newer
// than the history tail are kept after it.
func (s *Session) ReplaceHistory(points []models.PricePoint, source models.Provenance) {
	s.mu.Lock()
	live := s.series.Points
	s.series.Replace(points, source)
	tail, ok := s.series.Last()
	for _, p := range live {
		if !ok || p.Time.After(tail.Time) {
			s.series.Append(p.Time, p.Price)
		}
	}
	snapshot := s.series.Clone()
	s.mu.Unlock()

	if s.onUpdate != nil {
		s.onUpdate(s.assetID, snapshot)
	}
}

func (s *Session) fire(ev sessionEvent) bool {
	s.mu.Lock()
	next, ok := transitions[s.state][ev]
	changed := ok && next != s.state
	if ok {
		s.state = next
	}
	s.mu.Unlock()

	if changed && s.metrics != nil {
		s.metrics.RecordStreamState(s.assetID, next)
	}
	return ok
}

// close cancels the loop and blocks until the transport is shut.
func (s *Session) close() {
	s.fire(evClose)
	s.cancel()
	<-s.done
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	s.fire(evSelect)

	err := s.startErr
	for {
		if err == nil {
			err = s.connectOnce(ctx)
		}
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, models.ErrNotFound) && s.Symbol() == "" {
			// no pair exists; keep the buffer without a stream
			s.park(err)
			<-ctx.Done()
			return
		}
		wait := s.fail(err)
		if !sleepCtx(ctx, wait) {
			return
		}
		s.fire(evRetry)
		err = nil
	}
}

func (s *Session) connectOnce(ctx context.Context) error {
	symbol, err := s.resolveSymbol(ctx)
	if err != nil {
		return err
	}
	conn, err := s.stream.Open(ctx, symbol)
	if err != nil {
		return err
	}
	defer conn.Close()
	return s.consume(ctx, conn)
}

func (s *Session) resolveSymbol(ctx context.Context) (string, error) {
	if sym := s.Symbol(); sym != "" {
		return sym, nil
	}
	if s.resolve == nil {
		return "", fmt.Errorf("stream %s: no symbol: %w", s.assetID, models.ErrNotFound)
	}
	sym, err := s.resolve(ctx)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.symbol = sym
	s.mu.Unlock()
	s.log.Info("stream symbol resolved", logger.String("asset", s.assetID), logger.String("symbol", sym))
	return sym, nil
}

// park marks the session degraded with no reconnect scheduled.
func (s *Session) park(err error) {
	s.fire(evFailure)
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.log.Warn("stream unavailable", logger.String("asset", s.assetID), logger.Error(err))
}

func (s *Session) consume(ctx context.Context, conn drepo.StreamConn) error {
	frames, errs := conn.Read(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return err
			}
		case frame, ok := <-frames:
			if !ok {
				if err, eok := <-errs; eok && err != nil {
					return err
				}
				return fmt.Errorf("%w: %w", models.ErrStream, errTransportClosed)
			}
			s.handleFrame(ctx, frame)
		}
	}
}

func (s *Session) handleFrame(ctx context.Context, frame []byte) {
	if s.State() == models.StateConnecting {
		s.fire(evMessage)
		s.policy.RecordSuccess(s.channel)
		s.mu.Lock()
		s.lastErr = nil
		s.mu.Unlock()
		s.log.Info("stream live", logger.String("asset", s.assetID), logger.String("symbol", s.Symbol()))
	}

	price, err := s.stream.ParsePrice(frame)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordTick(s.assetID, "malformed")
		}
		return
	}

	now := s.now()
	s.mu.Lock()
	s.series.Append(now, price)
	s.lastTick = now
	snapshot := s.series.Clone()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordTick(s.assetID, "accepted")
	}
	if s.onUpdate != nil {
		s.onUpdate(s.assetID, snapshot)
	}
	if s.onTick != nil {
		s.onTick(ctx, &models.Tick{
			ID:        uuid.NewString(),
			AssetID:   s.assetID,
			Symbol:    s.Symbol(),
			Price:     price,
			Timestamp: now,
			Received:  now,
		})
	}
}

func (s *Session) fail(err error) time.Duration {
	s.fire(evFailure)
	wait := s.policy.RecordFailure(s.channel, s.now())
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordError("stream")
	}
	s.log.Warn("stream degraded",
		logger.String("asset", s.assetID),
		logger.String("symbol", s.Symbol()),
		logger.Duration("retry_in", wait),
		logger.Error(err),
	)
	return wait
}

// sleepCtx waits d or until ctx is done. It reports whether d elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
