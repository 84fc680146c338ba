package loadbalancer

import (
	"net/http"
	"sync"

	"github.com/zalando/gateway/discovery"
	"github.com/zalando/gateway/routing"
)

type roundRobin struct {
	services Services
	name     string

	mx   sync.Mutex
	last int
}

func newRoundRobin(route *routing.DownstreamRoute, services Services) LoadBalancer {
	return &roundRobin{services: services, name: serviceName(route)}
}

// Lease implements LoadBalancer with a round-robin algorithm. When the list
// of instances shrinks below the index, it starts over from the first
// instance.
func (rr *roundRobin) Lease(r *http.Request) (discovery.Instance, error) {
	instances, err := fetch(r, rr.services, rr.name)
	if err != nil {
		return discovery.Instance{}, err
	}

	rr.mx.Lock()
	defer rr.mx.Unlock()

	if rr.last >= len(instances) {
		rr.last = 0
	}

	i := instances[rr.last]
	rr.last = (rr.last + 1) % len(instances)
	return i, nil
}

func (rr *roundRobin) Release(discovery.Instance) {}
