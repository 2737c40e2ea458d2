// Package poller provides the restartable polling primitive driving
// periodic backend refreshes. The interval backs off on successive
// no-op refreshes up to a ceiling, a manual trigger forces an immediate
// refresh and resets the backoff, and an optional standby predicate
// suspends polling while the observed surface is idle.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// RefreshFunc performs one refresh. It reports whether the refresh
// observed a change; no-op refreshes grow the polling interval.
type RefreshFunc func(ctx context.Context) (changed bool, err error)

// Options configures a Poller.
type Options struct {
	// Name labels the poller in logs.
	Name string
	// Interval is the base polling interval.
	Interval time.Duration
	// BackoffFactor multiplies the interval after each no-op refresh.
	// Values below 1 disable backoff.
	BackoffFactor float64
	// MaxInterval caps the backed-off interval. Zero means no cap.
	MaxInterval time.Duration
	// Standby, when set and returning true, suspends refreshes. The
	// poller keeps ticking at the current interval and resumes
	// refreshing once Standby reports false again.
	Standby func() bool
}

// Poller runs a RefreshFunc on an adaptive interval. A constructed
// poller is inert: nothing fires until Start, so the caller can await
// the first refresh deterministically before periodic polling begins.
type Poller struct {
	refresh RefreshFunc
	opts    Options

	mu       sync.Mutex
	interval time.Duration
	standby  func() bool
	started  bool
	disposed bool

	trigger chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates an inert poller.
func New(refresh RefreshFunc, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.BackoffFactor < 1 {
		opts.BackoffFactor = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		refresh:  refresh,
		opts:     opts,
		interval: opts.Interval,
		standby:  opts.Standby,
		trigger:  make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// SetStandby installs or replaces the standby predicate. Useful when
// the predicate's owner is constructed after the poller.
func (p *Poller) SetStandby(fn func() bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.standby = fn
}

func (p *Poller) inStandby() bool {
	p.mu.Lock()
	fn := p.standby
	p.mu.Unlock()
	return fn != nil && fn()
}

// Start performs the first refresh synchronously, then begins periodic
// polling. It returns the first refresh's error; polling continues
// regardless. Calling Start more than once or after Dispose is an
// error.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return fmt.Errorf("poller %s is disposed", p.opts.Name)
	}
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("poller %s is already started", p.opts.Name)
	}
	p.started = true
	p.mu.Unlock()

	_, err := p.runRefresh(ctx)
	go p.loop()
	return err
}

// Trigger forces an immediate refresh and resets the backoff. It never
// blocks; a trigger while one is already pending coalesces.
func (p *Poller) Trigger() {
	p.mu.Lock()
	p.interval = p.opts.Interval
	disposed := p.disposed
	p.mu.Unlock()
	if disposed {
		return
	}
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Dispose halts all pending timers. Idempotent; no refresh fires after
// Dispose returns, though an in-flight refresh may still complete.
func (p *Poller) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	started := p.started
	p.mu.Unlock()

	p.cancel()
	if started {
		<-p.done
	}
}

// IsDisposed reports whether Dispose has been called. Refresh functions
// use it as a commit guard for results of calls started pre-disposal.
func (p *Poller) IsDisposed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disposed
}

func (p *Poller) loop() {
	defer close(p.done)

	timer := time.NewTimer(p.currentInterval())
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.trigger:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		case <-timer.C:
			if p.inStandby() {
				// Suspended; keep ticking without refreshing so a
				// visibility change picks polling back up.
				timer.Reset(p.currentInterval())
				continue
			}
		}

		if p.IsDisposed() {
			return
		}
		changed, err := p.runRefresh(p.ctx)
		if p.IsDisposed() {
			return
		}
		p.applyBackoff(changed, err)
		timer.Reset(p.currentInterval())
	}
}

func (p *Poller) runRefresh(ctx context.Context) (bool, error) {
	changed, err := p.refresh(ctx)
	if err != nil && ctx.Err() == nil {
		log.Debugf("Poller %s refresh failed: %v", p.opts.Name, err)
	}
	return changed, err
}

// applyBackoff grows the interval after a no-op refresh and resets it
// after an observed change. Errors count as no-ops: a failing side is
// polled progressively less often until something changes.
func (p *Poller) applyBackoff(changed bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if changed && err == nil {
		p.interval = p.opts.Interval
		return
	}
	next := time.Duration(float64(p.interval) * p.opts.BackoffFactor)
	if p.opts.MaxInterval > 0 && next > p.opts.MaxInterval {
		next = p.opts.MaxInterval
	}
	if next > p.interval {
		p.interval = next
	}
}

func (p *Poller) currentInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}
