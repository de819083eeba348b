package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"CoinPulse/internal/domain/models"
	drepo "CoinPulse/internal/domain/repository"
	"CoinPulse/pkg/cache"
	"CoinPulse/pkg/logger"
)

type PairFeedConfig struct {
	Chains   []string
	PerChain int
	MaxPairs int
	Spacing  time.Duration
	CacheTTL time.Duration
}

// PairFeed merges newly listed pairs across chains. It is best effort: a
// failing chain is skipped.
type PairFeed struct {
	src     drepo.PairSource
	cfg     PairFeedConfig
	cache   cache.Service
	metrics drepo.Metrics
	log     *logger.Logger

	mu      sync.RWMutex
	latest  []models.DexPair
	fetched time.Time
}

func NewPairFeed(src drepo.PairSource, cfg PairFeedConfig, c cache.Service, metrics drepo.Metrics, log *logger.Logger) *PairFeed {
	if cfg.PerChain <= 0 {
		cfg.PerChain = 15
	}
	if cfg.MaxPairs <= 0 {
		cfg.MaxPairs = 45
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PairFeed{src: src, cfg: cfg, cache: c, metrics: metrics, log: log}
}

func (f *PairFeed) cacheKey(chains []string) string {
	return cache.GenerateKeyWithParams("pairs", strings.Join(chains, ","))
}

// Refresh fetches chains (the configured set when empty) and stores the
// merged list.
func (f *PairFeed) Refresh(ctx context.Context, chains ...string) ([]models.DexPair, error) {
	if len(chains) == 0 {
		chains = f.cfg.Chains
	}
	list, err := cache.GetOrLoad(ctx, f.cache, f.cacheKey(chains), f.cfg.CacheTTL, func(ctx context.Context) ([]models.DexPair, error) {
		return f.load(ctx, chains)
	})
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.latest = list
	f.fetched = time.Now()
	f.mu.Unlock()
	return list, nil
}

func (f *PairFeed) load(ctx context.Context, chains []string) ([]models.DexPair, error) {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if f.cfg.Spacing > 0 {
		limiter = rate.NewLimiter(rate.Every(f.cfg.Spacing), 1)
	}

	var (
		out  []models.DexPair
		errs []error
	)
	for _, chain := range chains {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		pairs, err := f.src.LatestPairs(ctx, chain)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			errs = append(errs, fmt.Errorf("chain %s: %w", chain, err))
			if f.metrics != nil {
				f.metrics.RecordError("pairs")
			}
			f.log.Warn("pair discovery failed", logger.String("chain", chain), logger.Error(err))
			continue
		}
		if len(pairs) > f.cfg.PerChain {
			pairs = pairs[:f.cfg.PerChain]
		}
		for i := range pairs {
			if pairs[i].ChainID == "" {
				pairs[i].ChainID = chain
			}
		}
		out = append(out, pairs...)
	}

	if len(chains) > 0 && len(errs) == len(chains) {
		return nil, errors.Join(append([]error{models.ErrUpstream}, errs...)...)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > f.cfg.MaxPairs {
		out = out[:f.cfg.MaxPairs]
	}
	return out, nil
}

// Latest returns the last merged list and when it was fetched.
func (f *PairFeed) Latest() ([]models.DexPair, time.Time) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]models.DexPair(nil), f.latest...), f.fetched
}
