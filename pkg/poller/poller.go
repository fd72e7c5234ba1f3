// Package poller runs a fetch function on a fixed interval without overlapping calls.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 5 * time.Second

// FetchFunc performs one refresh. Errors are logged and the next tick proceeds as usual.
type FetchFunc func(ctx context.Context) error

// Ticker abstracts time.Ticker for tests.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// Poller calls Fetch immediately on Run and then once per tick. A tick that fires while the
// previous fetch is still outstanding is skipped, not queued.
type Poller struct {
	interval  time.Duration
	fetch     FetchFunc
	logger    *zap.Logger
	newTicker func(time.Duration) Ticker

	busy    atomic.Bool
	skipped atomic.Int64
	runs    atomic.Int64
	wg      sync.WaitGroup
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the logger used for failed fetches.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithTicker overrides the ticker factory.
func WithTicker(fn func(time.Duration) Ticker) Option {
	return func(p *Poller) {
		if fn != nil {
			p.newTicker = fn
		}
	}
}

// New builds a poller. A non-positive interval falls back to DefaultInterval.
func New(interval time.Duration, fetch FetchFunc, opts ...Option) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Poller{
		interval: interval,
		fetch:    fetch,
		logger:   zap.NewNop(),
		newTicker: func(d time.Duration) Ticker {
			return realTicker{t: time.NewTicker(d)}
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks until ctx is cancelled, then waits for any in-flight fetch to return.
func (p *Poller) Run(ctx context.Context) {
	ticker := p.newTicker(p.interval)
	defer ticker.Stop()
	defer p.wg.Wait()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			p.tick(ctx)
		}
	}
}

// Skipped reports how many ticks were dropped because a fetch was outstanding.
func (p *Poller) Skipped() int64 { return p.skipped.Load() }

// Runs reports how many fetches were started.
func (p *Poller) Runs() int64 { return p.runs.Load() }

func (p *Poller) tick(ctx context.Context) {
	if !p.busy.CompareAndSwap(false, true) {
		p.skipped.Add(1)
		return
	}
	p.runs.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.busy.Store(false)
		if err := p.fetch(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn("poll fetch failed", zap.Error(err))
		}
	}()
}
