package loadbalancer

import (
	"io"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/zalando/gateway/routing"
)

type houseEntry struct {
	options routing.LoadBalancerOptions
	lb      LoadBalancer
}

// House holds one load balancer per route. The load balancer of a route is
// created on its first request, and recreated when the load balancer
// options of the route change.
type House struct {
	mx        sync.Mutex
	balancers map[string]houseEntry
}

// NewHouse creates an empty house.
func NewHouse() *House {
	return &House{balancers: make(map[string]houseEntry)}
}

func sameOptions(left, right routing.LoadBalancerOptions) bool {
	la, _ := AlgorithmFromString(left.Type)
	ra, _ := AlgorithmFromString(right.Type)
	if la != ra {
		return false
	}

	if la == CookieStickySessions {
		return left.Key == right.Key && left.Expiry == right.Expiry
	}

	return true
}

// Get returns the load balancer of a route. The services are used only when
// the load balancer needs to be created.
func (h *House) Get(route *routing.DownstreamRoute, services Services) (LoadBalancer, error) {
	h.mx.Lock()
	defer h.mx.Unlock()

	key := route.LoadBalancerKey
	e, ok := h.balancers[key]
	if ok && sameOptions(e.options, route.LoadBalancer) {
		return e.lb, nil
	}

	lb, err := New(route, services)
	if err != nil {
		return nil, err
	}

	if ok {
		log.Infof("load balancer of %s changed from %s to %s", key, e.options.Type, route.LoadBalancer.Type)
		if c, isCloser := e.lb.(io.Closer); isCloser {
			c.Close()
		}
	}

	h.balancers[key] = houseEntry{options: route.LoadBalancer, lb: lb}
	return lb, nil
}

// Close closes the load balancers that hold resources.
func (h *House) Close() {
	h.mx.Lock()
	defer h.mx.Unlock()

	for key, e := range h.balancers {
		if c, ok := e.lb.(io.Closer); ok {
			c.Close()
		}

		delete(h.balancers, key)
	}
}
