// Package backoff implements a per-channel doubling retry policy with a cap.
// It only computes schedules; callers own the timers.
package backoff

import (
	"sort"
	"sync"
	"time"

	"CoinPulse/internal/domain/models"
	"CoinPulse/internal/domain/repository"
)

const (
	DefaultBase = 2 * time.Second
	DefaultMax  = 20 * time.Second
)

type channelState struct {
	failures  int
	nextRetry time.Time
}

// Controller tracks consecutive failures per logical channel.
type Controller struct {
	mu       sync.Mutex
	base     time.Duration
	max      time.Duration
	channels map[string]*channelState
	metrics  repository.Metrics
}

type Option func(*Controller)

func WithBase(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.base = d
		}
	}
}

func WithMax(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.max = d
		}
	}
}

func WithMetrics(m repository.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

func New(opts ...Option) *Controller {
	c := &Controller{
		base:     DefaultBase,
		max:      DefaultMax,
		channels: make(map[string]*channelState),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.max < c.base {
		c.max = c.base
	}
	return c
}

// Delay returns min(max, base*2^(failures-1)), or 0 for no failures.
func (c *Controller) Delay(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}
	d := c.base
	for i := 1; i < failures && d < c.max; i++ {
		d *= 2
	}
	if d > c.max {
		d = c.max
	}
	return d
}

// RecordFailure counts a failure on channel and returns the delay before the
// next allowed attempt.
func (c *Controller) RecordFailure(channel string, now time.Time) time.Duration {
	c.mu.Lock()
	st, ok := c.channels[channel]
	if !ok {
		st = &channelState{}
		c.channels[channel] = st
	}
	st.failures++
	delay := c.Delay(st.failures)
	st.nextRetry = now.Add(delay)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordBackoff(channel, delay)
	}
	return delay
}

// RecordSuccess clears the channel.
func (c *Controller) RecordSuccess(channel string) {
	c.mu.Lock()
	_, existed := c.channels[channel]
	delete(c.channels, channel)
	c.mu.Unlock()

	if existed && c.metrics != nil {
		c.metrics.RecordBackoff(channel, 0)
	}
}

// ShouldWait returns the time left until channel may be retried.
func (c *Controller) ShouldWait(channel string, now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.channels[channel]
	if !ok || !st.nextRetry.After(now) {
		return 0
	}
	return st.nextRetry.Sub(now)
}

// Failures returns the consecutive failure count for channel.
func (c *Controller) Failures(channel string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.channels[channel]; ok {
		return st.failures
	}
	return 0
}

func (c *Controller) Health(channel string) models.ProviderHealth {
	c.mu.Lock()
	defer c.mu.Unlock()
	h := models.ProviderHealth{Channel: channel}
	if st, ok := c.channels[channel]; ok {
		h.Failures = st.failures
		h.NextRetryAt = st.nextRetry
	}
	return h
}

// Snapshot lists every channel currently backing off, sorted by name.
func (c *Controller) Snapshot() []models.ProviderHealth {
	c.mu.Lock()
	out := make([]models.ProviderHealth, 0, len(c.channels))
	for name, st := range c.channels {
		out = append(out, models.ProviderHealth{Channel: name, Failures: st.failures, NextRetryAt: st.nextRetry})
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Channel < out[j].Channel })
	return out
}
