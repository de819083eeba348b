package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	"CoinPulse/internal/service/backoff"
	"CoinPulse/internal/service/forecast"
)

type fakeConn struct {
	feed      chan []byte
	kill      chan error
	closed    chan struct{}
	closeOnce sync.Once
	onClose   func()
}

func (c *fakeConn) Read(ctx context.Context) (<-chan []byte, <-chan error) {
	frames := make(chan []byte)
	errs := make(chan error, 1)
	go func() {
		defer close(frames)
		defer close(errs)
		for {
			select {
			case <-c.closed:
				return
			case <-ctx.Done():
				return
			case err := <-c.kill:
				errs <- err
				return
			case f := <-c.feed:
				select {
				case frames <- f:
				case <-c.closed:
					return
				}
			}
		}
	}()
	return frames, errs
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.onClose != nil {
			c.onClose()
		}
	})
	return nil
}

type fakeStream struct {
	mu       sync.Mutex
	active   int
	overlaps int
	symbols  []string
	failNext int
	failSyms map[string]bool
	conns    []*fakeConn
}

func (s *fakeStream) Open(ctx context.Context, symbol string) (drepo.StreamConn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols = append(s.symbols, symbol)
	if s.failSyms[symbol] {
		return nil, fmt.Errorf("dial %s: %w", symbol, models.ErrStream)
	}
	if s.failNext > 0 {
		s.failNext--
		return nil, fmt.Errorf("dial: %w", models.ErrStream)
	}
	if s.active > 0 {
		s.overlaps++
	}
	s.active++
	c := &fakeConn{feed: make(chan []byte), kill: make(chan error, 1), closed: make(chan struct{})}
	c.onClose = func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}
	s.conns = append(s.conns, c)
	return c, nil
}

func (s *fakeStream) ParsePrice(frame []byte) (float64, error) {
	v, err := strconv.ParseFloat(string(frame), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrMalformedMessage, err)
	}
	return v, nil
}

func (s *fakeStream) last() *fakeConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) == 0 {
		return nil
	}
	return s.conns[len(s.conns)-1]
}

func (s *fakeStream) opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.symbols)
}

func (s *fakeStream) opensOf(symbol string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sym := range s.symbols {
		if sym == symbol {
			n++
		}
	}
	return n
}

type fakeGateway struct {
	mu        sync.Mutex
	topErr    error
	topCalls  int
	blockSnap map[string]chan struct{}
	snapFiats []string
	overrides map[string]string
	history   int
	search    map[string]string
	pairErr   error
	pairFails int // negative fails forever
	pairCalls int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		blockSnap: map[string]chan struct{}{},
		overrides: map[string]string{},
		history:   30,
		search:    map[string]string{},
	}
}

func (g *fakeGateway) FetchTopMarkets(ctx context.Context, fiat string, count int) ([]models.MarketSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.topCalls++
	if g.topErr != nil {
		return nil, g.topErr
	}
	return []models.MarketSnapshot{{ID: "bitcoin", Symbol: "BTC", Fiat: fiat}}, nil
}

func (g *fakeGateway) FetchMarkets(ctx context.Context, fiat string, ids []string) ([]models.MarketSnapshot, error) {
	out := make([]models.MarketSnapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.MarketSnapshot{ID: id, Fiat: fiat})
	}
	return out, nil
}

func (g *fakeGateway) FetchSnapshot(ctx context.Context, assetID, fiat string) (models.MarketSnapshot, error) {
	g.mu.Lock()
	block := g.blockSnap[assetID]
	g.snapFiats = append(g.snapFiats, fiat)
	g.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return models.MarketSnapshot{}, ctx.Err()
		}
	}
	return models.MarketSnapshot{ID: assetID, Fiat: fiat, Volume24h: 1e9, Price: 100}, nil
}

func (g *fakeGateway) FetchHistory(ctx context.Context, assetID, fiat string, days int, gran drepo.Granularity) (*models.AssetSeries, error) {
	s := models.NewAssetSeries(assetID, 120, models.SourcePrimary)
	base := time.Now().Add(-time.Hour)
	for i := 0; i < g.history; i++ {
		s.Append(base.Add(time.Duration(i)*time.Minute), 100+float64(i))
	}
	return s, nil
}

func (g *fakeGateway) ResolveSearch(ctx context.Context, query string) (string, error) {
	if id, ok := g.search[query]; ok {
		return id, nil
	}
	return "", models.ErrNotFound
}

func (g *fakeGateway) ResolvePair(ctx context.Context, assetID, fiat string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pairCalls++
	if g.pairErr != nil && g.pairFails != 0 {
		g.pairFails--
		return "", g.pairErr
	}
	if sym, ok := g.overrides[assetID]; ok {
		return sym, nil
	}
	return fmt.Sprintf("%sUSDT", assetID), nil
}

func (g *fakeGateway) SetSymbolOverride(assetID, symbol string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if symbol == "" {
		delete(g.overrides, assetID)
		return
	}
	g.overrides[assetID] = symbol
}

type memPrefs struct {
	mu      sync.Mutex
	saved   *models.Preferences
	saves   int
	loadErr error
}

func (m *memPrefs) Load(context.Context) (models.Preferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saved == nil {
		return models.Preferences{}, models.ErrNotFound
	}
	return *m.saved, m.loadErr
}

func (m *memPrefs) Save(_ context.Context, p models.Preferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = &p
	m.saves++
	return nil
}

func (m *memPrefs) Close() error { return nil }

type harness struct {
	orch   *Orchestrator
	gw     *fakeGateway
	stream *fakeStream
	policy *backoff.Controller
	prefs  *memPrefs
}

func newHarness(t *testing.T, capacity int) *harness {
	t.Helper()
	h := &harness{
		gw:     newFakeGateway(),
		stream: &fakeStream{},
		policy: backoff.New(backoff.WithBase(10*time.Millisecond), backoff.WithMax(40*time.Millisecond)),
		prefs:  &memPrefs{},
	}
	streams := NewStreamManager(h.stream, h.policy, nil, WithStreamCapacity(capacity))
	h.orch = NewOrchestrator(OrchestratorDeps{
		Gateway:    h.gw,
		Streams:    streams,
		Policy:     h.policy,
		Forecaster: forecast.New(),
		Prefs:      h.prefs,
	}, OrchestratorConfig{DefaultFiat: "usd", RefreshSeconds: 5, MinRefreshSeconds: 2, TopCount: 25})
	t.Cleanup(h.orch.Shutdown)
	return h
}

func (h *harness) waitConn(t *testing.T, n int) *fakeConn {
	t.Helper()
	require.Eventually(t, func() bool {
		h.stream.mu.Lock()
		defer h.stream.mu.Unlock()
		return len(h.stream.conns) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return h.stream.last()
}

func (h *harness) session(t *testing.T) *Session {
	t.Helper()
	s := h.orch.streams.Current()
	require.NotNil(t, s)
	return s
}

func TestSelectAssetKeepsSingleSession(t *testing.T) {
	h := newHarness(t, 120)
	ctx := context.Background()

	for i, id := range []string{"bitcoin", "ethereum", "solana", "bitcoin"} {
		require.NoError(t, h.orch.SelectAsset(ctx, id))
		h.waitConn(t, i+1)
	}

	h.stream.mu.Lock()
	require.Zero(t, h.stream.overlaps)
	require.Equal(t, 1, h.stream.active)
	h.stream.mu.Unlock()

	sel, err := h.orch.Selected()
	require.NoError(t, err)
	require.Equal(t, "bitcoin", sel.AssetID)
	require.Equal(t, "bitcoinUSDT", h.session(t).Symbol())
}

func TestSelectAssetDiscardsStaleResults(t *testing.T) {
	h := newHarness(t, 120)
	ctx := context.Background()
	release := make(chan struct{})
	h.gw.blockSnap["slow"] = release

	done := make(chan error, 1)
	go func() { done <- h.orch.SelectAsset(ctx, "slow") }()

	require.Eventually(t, func() bool {
		h.gw.mu.Lock()
		defer h.gw.mu.Unlock()
		return len(h.gw.snapFiats) > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.orch.SelectAsset(ctx, "fast"))
	close(release)
	require.ErrorIs(t, <-done, models.ErrStaleResult)

	sel, err := h.orch.Selected()
	require.NoError(t, err)
	require.Equal(t, "fast", sel.AssetID)
	require.NotNil(t, sel.Snapshot)
	require.Equal(t, "fast", sel.Snapshot.ID)
	require.Equal(t, "fast", h.session(t).AssetID())
}

func TestSelectAssetKeepsHistoryWhenSymbolUnresolved(t *testing.T) {
	h := newHarness(t, 120)
	h.gw.pairErr = fmt.Errorf("snapshot: %w", models.ErrRateLimited)
	h.gw.pairFails = 2

	err := h.orch.SelectAsset(context.Background(), "bitcoin")
	require.ErrorIs(t, err, models.ErrRateLimited)

	sel, err := h.orch.Selected()
	require.NoError(t, err)
	require.NotNil(t, sel.Snapshot)
	require.NotNil(t, sel.Series)
	require.Equal(t, 30, sel.Series.Len())
	require.NotNil(t, sel.Forecast)

	// resolution is retried on the stream channel before dialing
	conn := h.waitConn(t, 1)
	require.Equal(t, "bitcoinUSDT", h.session(t).Symbol())
	require.Equal(t, 2, h.policy.Failures(models.StreamChannel("bitcoin")))
	h.gw.mu.Lock()
	require.Equal(t, 3, h.gw.pairCalls)
	h.gw.mu.Unlock()

	conn.feed <- []byte("131")
	require.Eventually(t, func() bool { return h.session(t).State() == models.StateLive }, time.Second, 5*time.Millisecond)
	require.Zero(t, h.policy.Failures(models.StreamChannel("bitcoin")))
}

func TestSelectAssetWithoutPairKeepsBuffer(t *testing.T) {
	h := newHarness(t, 120)
	h.gw.pairErr = fmt.Errorf("resolve symbol: %w", models.ErrNotFound)
	h.gw.pairFails = -1

	err := h.orch.SelectAsset(context.Background(), "obscure")
	require.ErrorIs(t, err, models.ErrNotFound)

	sel, err := h.orch.Selected()
	require.NoError(t, err)
	require.Equal(t, 30, sel.Series.Len())
	require.NotNil(t, sel.Forecast)

	require.Eventually(t, func() bool { return h.session(t).State() == models.StateDegraded }, time.Second, 5*time.Millisecond)
	st := h.session(t).Status()
	require.NotEmpty(t, st.LastError)
	require.Zero(t, st.RetryIn)
	require.Never(t, func() bool { return h.stream.opens() > 0 }, 60*time.Millisecond, 5*time.Millisecond)
	h.gw.mu.Lock()
	require.Equal(t, 1, h.gw.pairCalls)
	h.gw.mu.Unlock()
}

func TestSelectAssetWhileDegradedCancelsReconnect(t *testing.T) {
	h := newHarness(t, 120)
	ctx := context.Background()
	h.stream.failSyms = map[string]bool{"alphaUSDT": true}

	require.NoError(t, h.orch.SelectAsset(ctx, "alpha"))
	require.Eventually(t, func() bool {
		return h.stream.opensOf("alphaUSDT") >= 2 && h.session(t).State() == models.StateDegraded
	}, 2*time.Second, 2*time.Millisecond)

	require.NoError(t, h.orch.SelectAsset(ctx, "beta"))
	h.waitConn(t, 1)
	require.Equal(t, "beta", h.session(t).AssetID())

	attempts := h.stream.opensOf("alphaUSDT")
	require.Never(t, func() bool { return h.stream.opensOf("alphaUSDT") > attempts }, 100*time.Millisecond, 5*time.Millisecond)

	h.stream.mu.Lock()
	defer h.stream.mu.Unlock()
	require.Equal(t, 1, h.stream.active)
	require.Zero(t, h.stream.overlaps)
}

func TestSessionReconnectsAfterFailure(t *testing.T) {
	h := newHarness(t, 120)
	ctx := context.Background()
	require.NoError(t, h.orch.SelectAsset(ctx, "bitcoin"))

	conn := h.waitConn(t, 1)
	conn.feed <- []byte("101")
	require.Eventually(t, func() bool { return h.session(t).State() == models.StateLive }, time.Second, 5*time.Millisecond)

	conn.kill <- errors.New("reset by peer")
	require.Eventually(t, func() bool {
		return h.policy.Failures(models.StreamChannel("bitcoin")) == 1
	}, time.Second, 5*time.Millisecond)

	next := h.waitConn(t, 2)
	require.NotSame(t, conn, next)
	next.feed <- []byte("102")
	require.Eventually(t, func() bool { return h.session(t).State() == models.StateLive }, time.Second, 5*time.Millisecond)
	require.Zero(t, h.policy.Failures(models.StreamChannel("bitcoin")))
}

func TestSessionDialFailureDegrades(t *testing.T) {
	h := newHarness(t, 120)
	h.stream.failNext = 2
	require.NoError(t, h.orch.SelectAsset(context.Background(), "bitcoin"))

	require.Eventually(t, func() bool { return h.stream.opens() >= 3 }, 2*time.Second, 5*time.Millisecond)
	conn := h.waitConn(t, 1)
	conn.feed <- []byte("100")
	require.Eventually(t, func() bool { return h.session(t).State() == models.StateLive }, time.Second, 5*time.Millisecond)

	st := h.session(t).Status()
	require.Empty(t, st.LastError)
	require.Zero(t, st.Failures)
}

func TestSessionDropsMalformedAndBoundsBuffer(t *testing.T) {
	h := newHarness(t, 25)
	h.gw.history = 20
	require.NoError(t, h.orch.SelectAsset(context.Background(), "bitcoin"))
	require.Equal(t, 20, h.session(t).Series().Len())

	conn := h.waitConn(t, 1)
	conn.feed <- []byte("not-a-price")
	for i := 0; i < 10; i++ {
		conn.feed <- []byte(strconv.Itoa(200 + i))
	}
	conn.feed <- []byte("{}")

	require.Eventually(t, func() bool {
		last, ok := h.session(t).Series().Last()
		return ok && last.Price == 209
	}, time.Second, 5*time.Millisecond)

	series := h.session(t).Series()
	require.Equal(t, 25, series.Len())
	for i := 1; i < len(series.Points); i++ {
		require.True(t, series.Points[i].Time.After(series.Points[i-1].Time))
	}
}

func TestSelectedCarriesForecast(t *testing.T) {
	h := newHarness(t, 120)
	require.NoError(t, h.orch.SelectAsset(context.Background(), "bitcoin"))

	sel, err := h.orch.Selected()
	require.NoError(t, err)
	require.NotNil(t, sel.Forecast)
	require.False(t, sel.Insufficient)
	require.Len(t, sel.Forecast.Horizons, 3)
	require.Equal(t, models.SourcePrimary, sel.Series.Source)
}

func TestSelectedWithoutEnoughHistory(t *testing.T) {
	h := newHarness(t, 120)
	h.gw.history = 5
	require.NoError(t, h.orch.SelectAsset(context.Background(), "bitcoin"))

	sel, err := h.orch.Selected()
	require.NoError(t, err)
	require.Nil(t, sel.Forecast)
	require.True(t, sel.Insufficient)
	require.Equal(t, 5, sel.Series.Len())

	// live ticks fill the buffer until a forecast is possible
	conn := h.waitConn(t, 1)
	for i := 0; i < 15; i++ {
		conn.feed <- []byte(strconv.Itoa(110 + i))
	}
	require.Eventually(t, func() bool {
		sel, err := h.orch.Selected()
		return err == nil && sel.Forecast != nil && !sel.Insufficient
	}, time.Second, 5*time.Millisecond)
}

func TestSelectedWithoutSelection(t *testing.T) {
	h := newHarness(t, 120)
	_, err := h.orch.Selected()
	require.ErrorIs(t, err, models.ErrNoSelection)
}

func TestRefreshTopMarketsBacksOff(t *testing.T) {
	h := newHarness(t, 120)
	ctx := context.Background()
	h.gw.topErr = fmt.Errorf("503: %w", models.ErrUpstream)

	require.ErrorIs(t, h.orch.RefreshTopMarkets(ctx), models.ErrUpstream)
	require.ErrorIs(t, h.orch.RefreshTopMarkets(ctx), models.ErrBackoff)
	require.Equal(t, 1, h.gw.topCalls)
	require.NotEmpty(t, h.orch.Status().TopMarketsErr)

	h.gw.mu.Lock()
	h.gw.topErr = nil
	h.gw.mu.Unlock()
	require.Eventually(t, func() bool { return h.orch.RefreshTopMarkets(ctx) == nil }, time.Second, 5*time.Millisecond)
	require.Len(t, h.orch.TopMarkets(), 1)
	st := h.orch.Status()
	require.Empty(t, st.TopMarketsErr)
	require.Equal(t, StatusLive, st.State)
	require.Zero(t, st.TopMarketsWait)
	require.Zero(t, h.policy.Failures(models.ChannelTopMarkets))
}

func TestGlobalState(t *testing.T) {
	now := time.Now()
	live := &models.SessionStatus{State: models.StateLive}
	degraded := &models.SessionStatus{State: models.StateDegraded}
	connecting := &models.SessionStatus{State: models.StateConnecting}

	require.Equal(t, StatusUpdating, globalState(Status{}, 0))
	require.Equal(t, StatusLimited, globalState(Status{LastRefresh: now}, time.Second))
	require.Equal(t, StatusLimited, globalState(Status{LastRefresh: now, Session: degraded}, 0))
	require.Equal(t, StatusUpdating, globalState(Status{LastRefresh: now, Session: connecting}, 0))
	require.Equal(t, StatusLive, globalState(Status{LastRefresh: now, Session: live}, 0))
}

func TestSetFiatReselects(t *testing.T) {
	h := newHarness(t, 120)
	ctx := context.Background()
	require.NoError(t, h.orch.SelectAsset(ctx, "bitcoin"))

	require.ErrorIs(t, h.orch.SetFiat(ctx, "us dollars"), models.ErrInvalidPreference)
	require.NoError(t, h.orch.SetFiat(ctx, "EUR"))

	sel, err := h.orch.Selected()
	require.NoError(t, err)
	require.Equal(t, "eur", sel.Snapshot.Fiat)
	require.Equal(t, "eur", h.orch.Status().Fiat)
	require.Equal(t, "eur", h.prefs.saved.Fiat)
	require.Equal(t, "eur", h.orch.TopMarkets()[0].Fiat)
}

func TestSearchAndAddSelectsFirstMatch(t *testing.T) {
	h := newHarness(t, 120)
	ctx := context.Background()
	h.gw.search["sol"] = "solana"
	h.gw.search["eth"] = "ethereum"

	_, err := h.orch.SearchAndAdd(ctx, "nope")
	require.ErrorIs(t, err, models.ErrNotFound)

	id, err := h.orch.SearchAndAdd(ctx, "sol")
	require.NoError(t, err)
	require.Equal(t, "solana", id)

	id, err = h.orch.SearchAndAdd(ctx, "eth")
	require.NoError(t, err)
	require.Equal(t, "ethereum", id)

	sel, err := h.orch.Selected()
	require.NoError(t, err)
	require.Equal(t, "solana", sel.AssetID)

	ids, snaps := h.orch.Watchlist()
	require.Equal(t, []string{"solana", "ethereum"}, ids)
	require.Len(t, snaps, 2)
}

func TestWatchlistEditsPersist(t *testing.T) {
	h := newHarness(t, 120)
	ctx := context.Background()

	require.NoError(t, h.orch.AddToWatchlist(ctx, "bitcoin"))
	require.NoError(t, h.orch.AddToWatchlist(ctx, "ethereum"))
	require.NoError(t, h.orch.AddToWatchlist(ctx, "bitcoin"))
	require.ErrorIs(t, h.orch.AddToWatchlist(ctx, " "), models.ErrInvalidPreference)
	require.Equal(t, []string{"bitcoin", "ethereum"}, h.prefs.saved.Watchlist)

	require.NoError(t, h.orch.RemoveFromWatchlist(ctx, "bitcoin"))
	require.ErrorIs(t, h.orch.RemoveFromWatchlist(ctx, "bitcoin"), models.ErrNotFound)
	require.Equal(t, []string{"ethereum"}, h.prefs.saved.Watchlist)

	require.NoError(t, h.orch.ClearWatchlist(ctx))
	ids, _ := h.orch.Watchlist()
	require.Empty(t, ids)
	require.Empty(t, h.prefs.saved.Watchlist)
}

func TestSetRefreshIntervalFloor(t *testing.T) {
	h := newHarness(t, 120)
	ctx := context.Background()

	got, err := h.orch.SetRefreshInterval(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, 2, got)

	got, err = h.orch.SetRefreshInterval(ctx, 30)
	require.NoError(t, err)
	require.Equal(t, 30, got)
	require.Equal(t, 30, h.prefs.saved.RefreshSeconds)

	_, err = h.orch.SetRefreshInterval(ctx, 0)
	require.ErrorIs(t, err, models.ErrInvalidPreference)
}

func TestSymbolOverrideRestartsSession(t *testing.T) {
	h := newHarness(t, 120)
	ctx := context.Background()
	require.NoError(t, h.orch.SelectAsset(ctx, "wrapped-thing"))
	h.waitConn(t, 1)

	require.NoError(t, h.orch.SetSymbolOverride(ctx, "wrapped-thing", "wbtcusdt"))
	h.waitConn(t, 2)
	require.Equal(t, "WBTCUSDT", h.session(t).Symbol())
	require.Equal(t, map[string]string{"wrapped-thing": "WBTCUSDT"}, h.orch.Overrides())
	require.Equal(t, "WBTCUSDT", h.prefs.saved.SymbolOverrides["wrapped-thing"])

	h.stream.mu.Lock()
	require.Zero(t, h.stream.overlaps)
	h.stream.mu.Unlock()
}

func TestStartRestoresPreferences(t *testing.T) {
	h := newHarness(t, 120)
	h.prefs.saved = &models.Preferences{
		Fiat:            "gbp",
		RefreshSeconds:  1,
		Watchlist:       []string{"ethereum", "ethereum", "bitcoin"},
		SymbolOverrides: map[string]string{"ethereum": "ETHBTC"},
	}

	require.NoError(t, h.orch.Start(context.Background()))

	st := h.orch.Status()
	require.Equal(t, "gbp", st.Fiat)
	require.Equal(t, 2, st.RefreshSeconds)
	require.Equal(t, "ethereum", st.Selected)
	ids, _ := h.orch.Watchlist()
	require.Equal(t, []string{"ethereum", "bitcoin"}, ids)
	require.Equal(t, "ETHBTC", h.session(t).Symbol())
	require.Len(t, h.orch.TopMarkets(), 1)
}

func TestStartKeepsPreferencesDespiteInvalidValue(t *testing.T) {
	h := newHarness(t, 120)
	h.prefs.saved = &models.Preferences{Fiat: "eur", Watchlist: []string{"solana"}}
	h.prefs.loadErr = fmt.Errorf("refresh_seconds %q: %w", "ten", models.ErrInvalidPreference)

	require.NoError(t, h.orch.Start(context.Background()))

	st := h.orch.Status()
	require.Equal(t, "eur", st.Fiat)
	require.Equal(t, 5, st.RefreshSeconds)
	require.Equal(t, "solana", st.Selected)
}
