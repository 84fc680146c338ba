package circuit

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zalando/gateway/metrics"
	"github.com/zalando/gateway/routing"
)

const DefaultIdleTTL = time.Hour

type GuardHouseOptions struct {
	// IdleTTL is the time after an unused guard gets recycled. Defaults to
	// DefaultIdleTTL.
	IdleTTL time.Duration

	Metrics *metrics.Metrics
}

type houseEntry struct {
	options routing.QoSOptions
	guard   Guard
	ts      time.Time
}

// GuardHouse holds the guards of the routes, ensures synchronized access to
// them and recycles the idle ones.
type GuardHouse struct {
	idleTTL time.Duration
	metrics *metrics.Metrics
	lookup  map[string]*houseEntry
	mx      sync.Mutex
}

func NewGuardHouse(o GuardHouseOptions) *GuardHouse {
	if o.IdleTTL <= 0 {
		o.IdleTTL = DefaultIdleTTL
	}

	return &GuardHouse{
		idleTTL: o.IdleTTL,
		metrics: o.Metrics,
		lookup:  make(map[string]*houseEntry),
	}
}

func (h *GuardHouse) idle(e *houseEntry, now time.Time) bool {
	return now.Sub(e.ts) > h.idleTTL
}

func (h *GuardHouse) dropIdle(now time.Time) {
	for key, e := range h.lookup {
		if h.idle(e, now) {
			delete(h.lookup, key)
		}
	}
}

// Get returns the guard of a route, keyed by its load balancer key. The
// guard is created when it doesn't exist yet, or when the QoS options of the
// route have changed.
func (h *GuardHouse) Get(route *routing.DownstreamRoute) (Guard, error) {
	key := route.LoadBalancerKey

	h.mx.Lock()
	defer h.mx.Unlock()

	now := time.Now()

	e, ok := h.lookup[key]
	if ok && e.options == route.QoS && !h.idle(e, now) {
		e.ts = now
		return e.guard, nil
	}

	g, err := NewGuard(key, route.QoS, h.metrics)
	if err != nil {
		return nil, err
	}

	if ok && e.options != route.QoS {
		log.Infof("qos options of %s changed", key)
	}

	// check if there is any other to evict, evict if yes
	h.dropIdle(now)

	h.lookup[key] = &houseEntry{options: route.QoS, guard: g, ts: now}
	return g, nil
}
