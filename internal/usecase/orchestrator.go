package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	dsvc "CoinPulse/internal/domain/service"
	"CoinPulse/pkg/logger"
	"CoinPulse/pkg/metrics"
)

const jobTopMarkets = "top-markets"

var fiatPattern = regexp.MustCompile(`^[a-z]{3,5}$`)

// MarketGateway is the provider surface the orchestrator consumes.
type MarketGateway interface {
	FetchTopMarkets(ctx context.Context, fiat string, count int) ([]models.MarketSnapshot, error)
	FetchMarkets(ctx context.Context, fiat string, ids []string) ([]models.MarketSnapshot, error)
	FetchSnapshot(ctx context.Context, assetID, fiat string) (models.MarketSnapshot, error)
	FetchHistory(ctx context.Context, assetID, fiat string, days int, g drepo.Granularity) (*models.AssetSeries, error)
	ResolveSearch(ctx context.Context, query string) (string, error)
	ResolvePair(ctx context.Context, assetID, fiat string) (string, error)
	SetSymbolOverride(assetID, symbol string)
}

type OrchestratorConfig struct {
	DefaultFiat       string
	RefreshSeconds    int
	MinRefreshSeconds int
	TopCount          int
	HistoryDays       int
	DefaultWatchlist  []string
}

// Selection is the read model of the currently selected asset. Insufficient
// is set while the buffer is too short to forecast.
type Selection struct {
	AssetID      string                 `json:"asset_id"`
	Snapshot     *models.MarketSnapshot `json:"snapshot,omitempty"`
	Series       *models.AssetSeries    `json:"series,omitempty"`
	Forecast     *models.ForecastSet    `json:"forecast,omitempty"`
	Insufficient bool                   `json:"insufficient_data"`
	Session      *models.SessionStatus  `json:"session,omitempty"`
}

// Global states reported by Status.
const (
	StatusUpdating = "updating"
	StatusLive     = "live"
	StatusLimited  = "limited"
)

// Status is the aggregate health view.
type Status struct {
	State          string                  `json:"state"`
	Fiat           string                  `json:"fiat"`
	RefreshSeconds int                     `json:"refresh_seconds"`
	Selected       string                  `json:"selected,omitempty"`
	Session        *models.SessionStatus   `json:"session,omitempty"`
	Channels       []models.ProviderHealth `json:"channels"`
	TopMarketsErr  string                  `json:"top_markets_error,omitempty"`
	TopMarketsWait int                     `json:"top_markets_retry_in"`
	LastRefresh    time.Time               `json:"last_refresh,omitempty"`
	PairsFetched   time.Time               `json:"pairs_fetched,omitempty"`
}

// backoffSnapshotter is implemented by retry policies that can list channels.
type backoffSnapshotter interface {
	Snapshot() []models.ProviderHealth
}

// Orchestrator owns the selection, fiat, refresh interval and watch-list and
// composes the gateway, stream manager and forecaster around them.
type Orchestrator struct {
	gw         MarketGateway
	streams    *StreamManager
	policy     dsvc.RetryPolicy
	forecaster dsvc.Forecaster
	prefs      drepo.PreferenceStore
	pairs      *PairFeed
	poller     *Poller
	metrics    drepo.Metrics
	log        *logger.Logger
	cfg        OrchestratorConfig
	now        func() time.Time

	sf       singleflight.Group
	selectMu sync.Mutex

	mu          sync.RWMutex
	fiat        string
	refresh     int
	watchlist   []string
	overrides   map[string]string
	selected    string
	generation  uint64
	top         []models.MarketSnapshot
	topErr      error
	lastRefresh time.Time
	watch       []models.MarketSnapshot
	snapshot    *models.MarketSnapshot
	forecast    *models.ForecastSet
	short       bool
}

type OrchestratorDeps struct {
	Gateway    MarketGateway
	Streams    *StreamManager
	Policy     dsvc.RetryPolicy
	Forecaster dsvc.Forecaster
	Prefs      drepo.PreferenceStore
	Pairs      *PairFeed
	Poller     *Poller
	Metrics    drepo.Metrics
	Logger     *logger.Logger
}

func NewOrchestrator(d OrchestratorDeps, cfg OrchestratorConfig) *Orchestrator {
	if cfg.MinRefreshSeconds < 1 {
		cfg.MinRefreshSeconds = 2
	}
	if cfg.DefaultFiat == "" {
		cfg.DefaultFiat = "usd"
	}
	if cfg.RefreshSeconds == 0 {
		cfg.RefreshSeconds = 5
	}
	if cfg.TopCount <= 0 {
		cfg.TopCount = 25
	}
	if cfg.HistoryDays <= 0 {
		cfg.HistoryDays = 1
	}
	if d.Logger == nil {
		d.Logger = logger.Nop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Nop{}
	}
	o := &Orchestrator{
		gw:         d.Gateway,
		streams:    d.Streams,
		policy:     d.Policy,
		forecaster: d.Forecaster,
		prefs:      d.Prefs,
		pairs:      d.Pairs,
		poller:     d.Poller,
		metrics:    d.Metrics,
		log:        d.Logger.Component("orchestrator"),
		cfg:        cfg,
		now:        time.Now,
		fiat:       cfg.DefaultFiat,
		refresh:    max(cfg.RefreshSeconds, cfg.MinRefreshSeconds),
		watchlist:  slices.Clone(cfg.DefaultWatchlist),
		overrides:  make(map[string]string),
	}
	o.streams.OnUpdate(o.onSeriesUpdate)
	return o
}

// Start loads preferences, performs the first refresh, schedules polling and
// selects the first watch-list asset. Provider failures are logged, not
// returned.
func (o *Orchestrator) Start(ctx context.Context) error {
	if err := o.loadPreferences(ctx); err != nil {
		return err
	}

	if err := o.RefreshTopMarkets(ctx); err != nil {
		o.log.Warn("initial top markets refresh failed", logger.Error(err))
	}
	if o.pairs != nil {
		if _, err := o.pairs.Refresh(ctx); err != nil {
			o.log.Warn("initial pair discovery failed", logger.Error(err))
		}
	}

	if o.poller != nil {
		if err := o.poller.Schedule(jobTopMarkets, o.refreshInterval(), o.pollTopMarkets); err != nil {
			return err
		}
		o.poller.Start()
	}

	o.mu.RLock()
	var first string
	if len(o.watchlist) > 0 {
		first = o.watchlist[0]
	}
	o.mu.RUnlock()
	if first != "" {
		if err := o.SelectAsset(ctx, first); err != nil && !errors.Is(err, models.ErrStaleResult) {
			o.log.Warn("initial selection failed", logger.String("asset", first), logger.Error(err))
		}
	}
	return nil
}

// Shutdown stops polling and closes the live session.
func (o *Orchestrator) Shutdown() {
	if o.poller != nil {
		o.poller.Stop()
	}
	o.streams.Shutdown()
}

func (o *Orchestrator) loadPreferences(ctx context.Context) error {
	if o.prefs == nil {
		return nil
	}
	p, err := o.prefs.Load(ctx)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return o.persist(ctx)
	case errors.Is(err, models.ErrInvalidPreference):
		o.log.Warn("ignoring invalid stored preference", logger.Error(err))
	case err != nil:
		return fmt.Errorf("load preferences: %w", err)
	}

	o.mu.Lock()
	if p.Fiat != "" {
		o.fiat = p.Fiat
	}
	if p.RefreshSeconds > 0 {
		o.refresh = max(p.RefreshSeconds, o.cfg.MinRefreshSeconds)
	}
	if p.Watchlist != nil {
		o.watchlist = dedupe(p.Watchlist)
	}
	for id, sym := range p.SymbolOverrides {
		o.overrides[id] = strings.ToUpper(sym)
		o.gw.SetSymbolOverride(id, sym)
	}
	o.mu.Unlock()
	return nil
}

func (o *Orchestrator) persist(ctx context.Context) error {
	if o.prefs == nil {
		return nil
	}
	o.mu.RLock()
	p := models.Preferences{
		Fiat:            o.fiat,
		RefreshSeconds:  o.refresh,
		Watchlist:       slices.Clone(o.watchlist),
		SymbolOverrides: make(map[string]string, len(o.overrides)),
	}
	for k, v := range o.overrides {
		p.SymbolOverrides[k] = v
	}
	o.mu.RUnlock()

	if err := o.prefs.Save(ctx, p); err != nil {
		o.metrics.RecordError("preferences")
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func (o *Orchestrator) isCurrent(gen uint64) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.generation == gen
}

// SelectAsset switches the live selection to assetID. The prior session is
// closed before the new one opens; fetch results that complete after a newer
// selection are discarded with models.ErrStaleResult.
func (o *Orchestrator) SelectAsset(ctx context.Context, assetID string) error {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return fmt.Errorf("select: empty asset id: %w", models.ErrNotFound)
	}

	o.mu.Lock()
	o.generation++
	gen := o.generation
	o.selected = assetID
	o.snapshot = nil
	o.forecast = nil
	o.short = true
	fiat := o.fiat
	o.mu.Unlock()

	symbol, symErr := o.gw.ResolvePair(ctx, assetID, fiat)

	o.selectMu.Lock()
	if !o.isCurrent(gen) {
		o.selectMu.Unlock()
		return models.ErrStaleResult
	}
	var sess *Session
	if symErr != nil {
		o.log.Warn("stream symbol unresolved", logger.String("asset", assetID), logger.Error(symErr))
		resolve := func(ctx context.Context) (string, error) { return o.gw.ResolvePair(ctx, assetID, fiat) }
		sess = o.streams.OpenUnresolved(assetID, resolve, symErr)
	} else {
		sess = o.streams.Open(assetID, symbol)
	}
	o.selectMu.Unlock()

	var (
		snap    models.MarketSnapshot
		snapErr error
		series  *models.AssetSeries
		histErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		snap, snapErr = o.gw.FetchSnapshot(gctx, assetID, fiat)
		return nil
	})
	g.Go(func() error {
		series, histErr = o.gw.FetchHistory(gctx, assetID, fiat, o.cfg.HistoryDays, drepo.GranularityForDays(o.cfg.HistoryDays))
		return nil
	})
	_ = g.Wait()

	if !o.isCurrent(gen) {
		return models.ErrStaleResult
	}

	if snapErr == nil {
		o.mu.Lock()
		if o.generation == gen {
			o.snapshot = &snap
		}
		o.mu.Unlock()
	}
	if histErr == nil {
		sess.ReplaceHistory(series.Points, series.Source)
		if series.Source == models.SourceSecondary {
			o.log.Info("history served by fallback", logger.String("asset", assetID))
		}
	}

	return errors.Join(symErr, snapErr, histErr)
}

// onSeriesUpdate recomputes the forecast for the selected asset. It runs on
// the session goroutine and must not call back into the stream manager.
func (o *Orchestrator) onSeriesUpdate(assetID string, series *models.AssetSeries) {
	o.mu.RLock()
	if o.selected != assetID {
		o.mu.RUnlock()
		return
	}
	var volume float64
	if o.snapshot != nil {
		volume = o.snapshot.Volume24h
	}
	gen := o.generation
	o.mu.RUnlock()

	set, err := o.forecaster.Forecast(assetID, series.Prices(), volume)
	if err != nil && !errors.Is(err, models.ErrInsufficientData) {
		o.log.Debug("forecast failed", logger.String("asset", assetID), logger.Error(err))
	}

	o.mu.Lock()
	if o.generation == gen {
		o.forecast = set
		o.short = errors.Is(err, models.ErrInsufficientData)
	}
	o.mu.Unlock()

	if set != nil {
		o.metrics.RecordForecast(assetID, set)
		o.log.Debug("forecast updated", logger.String("asset", assetID),
			logger.Float64("drift", set.Drift), logger.Float64("volatility", set.Volatility))
	}
}

// SetFiat changes the quote currency and refreshes everything priced in it.
func (o *Orchestrator) SetFiat(ctx context.Context, code string) error {
	code = strings.ToLower(strings.TrimSpace(code))
	if !fiatPattern.MatchString(code) {
		return fmt.Errorf("fiat %q: %w", code, models.ErrInvalidPreference)
	}

	o.mu.Lock()
	changed := o.fiat != code
	o.fiat = code
	selected := o.selected
	if changed {
		o.top = nil
		o.watch = nil
	}
	o.mu.Unlock()

	if err := o.persist(ctx); err != nil {
		o.log.Warn("persist fiat", logger.Error(err))
	}
	if !changed {
		return nil
	}

	if err := o.RefreshTopMarkets(ctx); err != nil {
		o.log.Warn("refresh after fiat change", logger.Error(err))
	}
	if selected != "" {
		if err := o.SelectAsset(ctx, selected); err != nil && !errors.Is(err, models.ErrStaleResult) {
			o.log.Warn("reselect after fiat change", logger.String("asset", selected), logger.Error(err))
		}
	}
	return nil
}

func (o *Orchestrator) pollTopMarkets(ctx context.Context) {
	if err := o.RefreshTopMarkets(ctx); err != nil && !errors.Is(err, models.ErrBackoff) {
		o.log.Debug("poll top markets", logger.Error(err))
	}
}

// RefreshTopMarkets fetches the ranked list and then the watch-list. Calls
// overlapping an in-flight refresh share its result; calls inside the backoff
// window return models.ErrBackoff.
func (o *Orchestrator) RefreshTopMarkets(ctx context.Context) error {
	if wait := o.policy.ShouldWait(models.ChannelTopMarkets, o.now()); wait > 0 {
		return fmt.Errorf("%w: retry in %s", models.ErrBackoff, wait.Round(time.Millisecond))
	}

	o.mu.RLock()
	fiat := o.fiat
	o.mu.RUnlock()

	_, err, _ := o.sf.Do(models.ChannelTopMarkets+":"+fiat, func() (interface{}, error) {
		return nil, o.refreshTop(ctx, fiat)
	})
	return err
}

func (o *Orchestrator) refreshTop(ctx context.Context, fiat string) error {
	list, err := o.gw.FetchTopMarkets(ctx, fiat, o.cfg.TopCount)

	o.mu.Lock()
	if o.fiat != fiat {
		o.mu.Unlock()
		return models.ErrStaleResult
	}
	if err != nil {
		o.topErr = err
		o.mu.Unlock()
		if models.IsRetryable(err) {
			wait := o.policy.RecordFailure(models.ChannelTopMarkets, o.now())
			o.log.Warn("top markets degraded", logger.Duration("retry_in", wait), logger.Error(err))
		}
		o.metrics.RecordError("top_markets")
		return err
	}
	o.top = list
	o.topErr = nil
	o.lastRefresh = o.now()
	o.mu.Unlock()
	o.policy.RecordSuccess(models.ChannelTopMarkets)

	if err := o.RefreshWatchlist(ctx); err != nil && !errors.Is(err, models.ErrStaleResult) {
		o.log.Debug("watchlist refresh", logger.Error(err))
	}
	return nil
}

// RefreshWatchlist fetches snapshots for the watch-list in the current fiat.
func (o *Orchestrator) RefreshWatchlist(ctx context.Context) error {
	o.mu.RLock()
	fiat := o.fiat
	ids := slices.Clone(o.watchlist)
	o.mu.RUnlock()

	if len(ids) == 0 {
		o.mu.Lock()
		o.watch = nil
		o.mu.Unlock()
		return nil
	}

	list, err := o.gw.FetchMarkets(ctx, fiat, ids)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fiat != fiat {
		return models.ErrStaleResult
	}
	o.watch = list
	return nil
}

// Search resolves free text to an asset id.
func (o *Orchestrator) Search(ctx context.Context, query string) (string, error) {
	return o.gw.ResolveSearch(ctx, query)
}

// SearchAndAdd resolves query, adds the match to the watch-list and selects
// it when nothing is selected yet.
func (o *Orchestrator) SearchAndAdd(ctx context.Context, query string) (string, error) {
	id, err := o.Search(ctx, query)
	if err != nil {
		return "", err
	}
	if err := o.AddToWatchlist(ctx, id); err != nil {
		return id, err
	}

	o.mu.RLock()
	none := o.selected == ""
	o.mu.RUnlock()
	if none {
		if err := o.SelectAsset(ctx, id); err != nil && !errors.Is(err, models.ErrStaleResult) {
			o.log.Warn("select after add", logger.String("asset", id), logger.Error(err))
		}
	}
	return id, nil
}

func (o *Orchestrator) AddToWatchlist(ctx context.Context, assetID string) error {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return fmt.Errorf("watchlist: empty id: %w", models.ErrInvalidPreference)
	}
	o.mu.Lock()
	if slices.Contains(o.watchlist, assetID) {
		o.mu.Unlock()
		return nil
	}
	o.watchlist = append(o.watchlist, assetID)
	o.mu.Unlock()

	if err := o.persist(ctx); err != nil {
		return err
	}
	if err := o.RefreshWatchlist(ctx); err != nil && !errors.Is(err, models.ErrStaleResult) {
		o.log.Debug("watchlist refresh", logger.Error(err))
	}
	return nil
}

func (o *Orchestrator) RemoveFromWatchlist(ctx context.Context, assetID string) error {
	o.mu.Lock()
	idx := slices.Index(o.watchlist, assetID)
	if idx < 0 {
		o.mu.Unlock()
		return fmt.Errorf("watchlist %s: %w", assetID, models.ErrNotFound)
	}
	o.watchlist = slices.Delete(o.watchlist, idx, idx+1)
	o.watch = slices.DeleteFunc(o.watch, func(s models.MarketSnapshot) bool { return s.ID == assetID })
	o.mu.Unlock()
	return o.persist(ctx)
}

func (o *Orchestrator) ClearWatchlist(ctx context.Context) error {
	o.mu.Lock()
	o.watchlist = []string{}
	o.watch = nil
	o.mu.Unlock()
	return o.persist(ctx)
}

// Watchlist returns the ids in insertion order and their latest snapshots.
func (o *Orchestrator) Watchlist() ([]string, []models.MarketSnapshot) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.watchlist), slices.Clone(o.watch)
}

// SetRefreshInterval updates the poll interval, raising it to the floor.
func (o *Orchestrator) SetRefreshInterval(ctx context.Context, seconds int) (int, error) {
	if seconds <= 0 {
		return 0, fmt.Errorf("refresh %d: %w", seconds, models.ErrInvalidPreference)
	}
	seconds = max(seconds, o.cfg.MinRefreshSeconds)

	o.mu.Lock()
	o.refresh = seconds
	o.mu.Unlock()

	if o.poller != nil {
		if err := o.poller.Reschedule(jobTopMarkets, o.refreshInterval()); err != nil {
			o.log.Debug("reschedule", logger.Error(err))
		}
	}
	return seconds, o.persist(ctx)
}

func (o *Orchestrator) refreshInterval() time.Duration {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return time.Duration(o.refresh) * time.Second
}

// SetSymbolOverride pins or clears the exchange pair for assetID and
// restarts the stream when that asset is selected.
func (o *Orchestrator) SetSymbolOverride(ctx context.Context, assetID, symbol string) error {
	assetID = strings.TrimSpace(assetID)
	if assetID == "" {
		return fmt.Errorf("override: empty id: %w", models.ErrInvalidPreference)
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	o.mu.Lock()
	if symbol == "" {
		delete(o.overrides, assetID)
	} else {
		o.overrides[assetID] = symbol
	}
	selected := o.selected
	o.mu.Unlock()
	o.gw.SetSymbolOverride(assetID, symbol)

	if err := o.persist(ctx); err != nil {
		return err
	}
	if selected == assetID {
		if err := o.SelectAsset(ctx, assetID); err != nil && !errors.Is(err, models.ErrStaleResult) {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) TopMarkets() []models.MarketSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.top)
}

// Pairs returns the last new-pair list, refreshing once if none was fetched.
func (o *Orchestrator) Pairs(ctx context.Context, refresh bool) ([]models.DexPair, error) {
	if o.pairs == nil {
		return nil, nil
	}
	list, at := o.pairs.Latest()
	if refresh || at.IsZero() {
		return o.pairs.Refresh(ctx)
	}
	return list, nil
}

// Selected returns the current selection or models.ErrNoSelection.
func (o *Orchestrator) Selected() (*Selection, error) {
	o.mu.RLock()
	sel := &Selection{AssetID: o.selected, Snapshot: o.snapshot, Forecast: o.forecast, Insufficient: o.short}
	o.mu.RUnlock()
	if sel.AssetID == "" {
		return nil, models.ErrNoSelection
	}

	if s := o.streams.Current(); s != nil && s.AssetID() == sel.AssetID {
		st := s.Status()
		sel.Session = &st
		sel.Series = s.Series()
	}
	return sel, nil
}

func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	st := Status{
		Fiat:           o.fiat,
		RefreshSeconds: o.refresh,
		Selected:       o.selected,
		LastRefresh:    o.lastRefresh,
	}
	if o.topErr != nil {
		st.TopMarketsErr = o.topErr.Error()
	}
	o.mu.RUnlock()

	if s := o.streams.Current(); s != nil {
		ss := s.Status()
		st.Session = &ss
	}
	if snap, ok := o.policy.(backoffSnapshotter); ok {
		st.Channels = snap.Snapshot()
	} else {
		st.Channels = []models.ProviderHealth{o.policy.Health(models.ChannelTopMarkets)}
	}
	if o.pairs != nil {
		_, st.PairsFetched = o.pairs.Latest()
	}
	wait := o.policy.ShouldWait(models.ChannelTopMarkets, o.now())
	st.TopMarketsWait = int(math.Ceil(wait.Seconds()))
	st.State = globalState(st, wait)
	return st
}

// globalState is limited while any backoff or degraded session is visible,
// updating until the first successful refresh, live otherwise.
func globalState(st Status, topWait time.Duration) string {
	switch {
	case topWait > 0:
		return StatusLimited
	case st.Session != nil && st.Session.State == models.StateDegraded:
		return StatusLimited
	case st.LastRefresh.IsZero():
		return StatusUpdating
	case st.Session != nil && st.Session.State == models.StateConnecting:
		return StatusUpdating
	default:
		return StatusLive
	}
}

// Overrides returns a copy of the manual symbol overrides.
func (o *Orchestrator) Overrides() map[string]string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[string]string, len(o.overrides))
	for k, v := range o.overrides {
		out[k] = v
	}
	return out
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}
