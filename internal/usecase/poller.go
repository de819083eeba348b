package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"CoinPulse/pkg/logger"
)

// Poller runs named periodic jobs. A tick is skipped while the previous run
// of the same job is still in flight.
type Poller struct {
	ctx  context.Context
	cron *cron.Cron
	log  *logger.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID
	jobs    map[string]func(context.Context)
	started bool
}

func NewPoller(ctx context.Context, log *logger.Logger) *Poller {
	if log == nil {
		log = logger.Nop()
	}
	return &Poller{
		ctx:     ctx,
		cron:    cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger))),
		log:     log,
		entries: make(map[string]cron.EntryID),
		jobs:    make(map[string]func(context.Context)),
	}
}

// Schedule registers or replaces job name to run every interval.
func (p *Poller) Schedule(name string, every time.Duration, fn func(context.Context)) error {
	if every < time.Second {
		return fmt.Errorf("poller %s: interval %s below one second", name, every)
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.entries[name]; ok {
		p.cron.Remove(id)
	}
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		if p.ctx.Err() != nil {
			return
		}
		fn(p.ctx)
	}))
	id, err := p.cron.AddJob(fmt.Sprintf("@every %s", every), job)
	if err != nil {
		return fmt.Errorf("poller %s: %w", name, err)
	}
	p.entries[name] = id
	p.jobs[name] = fn
	p.log.Debug("poller scheduled", logger.String("job", name), logger.Duration("every", every))
	return nil
}

// Reschedule changes the interval of an existing job.
func (p *Poller) Reschedule(name string, every time.Duration) error {
	p.mu.Lock()
	fn, ok := p.jobs[name]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("poller %s: not scheduled", name)
	}
	return p.Schedule(name, every, fn)
}

func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		p.cron.Start()
		p.started = true
	}
}

// Stop halts scheduling and waits for running jobs to return.
func (p *Poller) Stop() {
	p.mu.Lock()
	started := p.started
	p.started = false
	p.mu.Unlock()
	if started {
		<-p.cron.Stop().Done()
	}
}
