package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/zalando/gateway/metrics"
)

// DefaultPollingInterval is used when the poller options don't set one.
const DefaultPollingInterval = 10 * time.Second

// ErrPollerClosed is returned by a closed poller that never received any
// instances.
var ErrPollerClosed = errors.New("poller closed")

// PollerOptions configure a Poller.
type PollerOptions struct {
	// Name of the polled service, used in the logs and the metrics.
	Name string

	// Interval between two polls. Defaults to DefaultPollingInterval.
	Interval time.Duration

	Metrics *metrics.Metrics
}

type snapshot struct {
	instances []Instance
	fetched   time.Time
}

// Poller polls a provider in the background, and serves the last
// successfully fetched instances.
//
// A poll is skipped when the previous one is still running. When a poll
// fails, the error is logged and the previous instances are kept. The
// poller polls once right after it was created.
type Poller struct {
	provider Provider
	options  PollerOptions
	current  atomic.Pointer[snapshot]
	polling  atomic.Bool
	closed   atomic.Bool
	cold     singleflight.Group
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	once     sync.Once
}

// NewPoller creates a poller and starts polling.
func NewPoller(p Provider, o PollerOptions) *Poller {
	if o.Interval <= 0 {
		o.Interval = DefaultPollingInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	pl := &Poller{
		provider: p,
		options:  o,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	log.Infof("polling service %s every %v", o.Name, o.Interval)
	go pl.run(ctx)
	return pl
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.options.Interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) store(instances []Instance) {
	if instances == nil {
		instances = []Instance{}
	}

	p.current.Store(&snapshot{instances: instances, fetched: time.Now()})
	p.options.Metrics.SetDiscoveredInstances(p.options.Name, len(instances))
}

func (p *Poller) poll(ctx context.Context) {
	if p.closed.Load() {
		return
	}

	if !p.polling.CompareAndSwap(false, true) {
		log.Debugf("skipping poll of %s, previous poll still running", p.options.Name)
		return
	}

	defer p.polling.Store(false)

	instances, err := p.provider.Get(ctx)
	if p.closed.Load() {
		return
	}

	if err != nil {
		log.Warnf("failed to poll service %s: %v", p.options.Name, err)
		p.options.Metrics.IncDiscoveryErrors(p.options.Name)
		return
	}

	p.store(instances)
}

// Get returns the last polled instances. It blocks only when no poll has
// succeeded yet, fetching the instances from the provider once for all the
// concurrent callers. The shared fetch runs until the poller is closed, and
// each caller stops waiting for it when its own context is done. A non-nil
// empty list means that the service has no instances.
func (p *Poller) Get(ctx context.Context) ([]Instance, error) {
	if s := p.current.Load(); s != nil {
		return s.instances, nil
	}

	if p.closed.Load() {
		return nil, ErrPollerClosed
	}

	c := p.cold.DoChan("", p.fetchCold)
	select {
	case r := <-c:
		if r.Err != nil {
			return nil, r.Err
		}

		return r.Val.([]Instance), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Poller) fetchCold() (any, error) {
	if s := p.current.Load(); s != nil {
		return s.instances, nil
	}

	instances, err := p.provider.Get(p.ctx)
	if err != nil {
		p.options.Metrics.IncDiscoveryErrors(p.options.Name)
		return nil, err
	}

	if !p.closed.Load() {
		p.store(instances)
	}

	if instances == nil {
		instances = []Instance{}
	}

	return instances, nil
}

// Age returns the time since the last successful poll, and false if there
// was none.
func (p *Poller) Age() (time.Duration, bool) {
	s := p.current.Load()
	if s == nil {
		return 0, false
	}

	return time.Since(s.fetched), true
}

// Close stops polling, and waits for the polling loop to exit. The context
// of a running poll is cancelled, and its result is discarded.
func (p *Poller) Close() {
	p.once.Do(func() {
		p.closed.Store(true)
		p.cancel()
		<-p.done
		log.Infof("stopped polling service %s", p.options.Name)
	})
}
