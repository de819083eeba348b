package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/domain/repository"
	"CoinPulse/pkg/logger"
	"CoinPulse/pkg/util"
)

// Stream implements repository.PriceStream over the public trade stream.
type Stream struct {
	wsURL        string
	dialer       *websocket.Dialer
	pingInterval time.Duration
	log          *logger.Logger
}

type StreamOption func(*Stream)

func WithHandshakeTimeout(d time.Duration) StreamOption {
	return func(s *Stream) {
		if d > 0 {
			s.dialer.HandshakeTimeout = d
		}
	}
}

func WithPingInterval(d time.Duration) StreamOption {
	return func(s *Stream) { s.pingInterval = d }
}

func WithStreamLogger(l *logger.Logger) StreamOption {
	return func(s *Stream) { s.log = l }
}

func NewStream(wsURL string, opts ...StreamOption) *Stream {
	s := &Stream{
		wsURL:        strings.TrimRight(wsURL, "/"),
		dialer:       &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		pingInterval: 30 * time.Second,
		log:          logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open dials <ws>/<symbol>@trade.
func (s *Stream) Open(ctx context.Context, symbol string) (repository.StreamConn, error) {
	u := fmt.Sprintf("%s/%s@trade", s.wsURL, strings.ToLower(symbol))
	conn, _, err := s.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("binance dial %s: %w: %w", symbol, models.ErrStream, err)
	}
	s.log.Debug("binance: connected", logger.String("symbol", symbol))
	return &streamConn{conn: conn, pingInterval: s.pingInterval, closed: make(chan struct{})}, nil
}

type tradeFrame struct {
	Event string `json:"e"`
	Price string `json:"p"`
	Time  int64  `json:"T"`
}

// ParsePrice extracts the trade price from one frame.
func (s *Stream) ParsePrice(frame []byte) (float64, error) {
	var f tradeFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrMalformedMessage, err)
	}
	if f.Event != "" && f.Event != "trade" {
		return 0, fmt.Errorf("%w: event %q", models.ErrMalformedMessage, f.Event)
	}
	p, ok := util.ToFloat(f.Price)
	if !ok || p <= 0 {
		return 0, fmt.Errorf("%w: price %q", models.ErrMalformedMessage, f.Price)
	}
	return p, nil
}

type streamConn struct {
	conn         *websocket.Conn
	pingInterval time.Duration

	readOnce  sync.Once
	closeOnce sync.Once
	closed    chan struct{}
	writeMu   sync.Mutex
}

// Read starts the read and ping loops. Subsequent calls return nil channels.
func (c *streamConn) Read(ctx context.Context) (<-chan []byte, <-chan error) {
	var (
		frames chan []byte
		errs   chan error
	)
	c.readOnce.Do(func() {
		frames = make(chan []byte, 256)
		errs = make(chan error, 1)
		go c.pingLoop(ctx)
		go c.readLoop(ctx, frames, errs)
	})
	return frames, errs
}

func (c *streamConn) readLoop(ctx context.Context, frames chan<- []byte, errs chan<- error) {
	defer close(frames)
	defer close(errs)
	for {
		_, b, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
			case <-ctx.Done():
			default:
				errs <- fmt.Errorf("binance read: %w: %w", models.ErrStream, err)
			}
			return
		}
		select {
		case frames <- b:
		case <-c.closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (c *streamConn) pingLoop(ctx context.Context) {
	if c.pingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
		}
	}
}

// Close sends a close frame and tears down the socket. Safe to call twice.
func (c *streamConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}
