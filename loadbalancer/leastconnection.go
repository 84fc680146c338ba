package loadbalancer

import (
	"net/http"
	"sync"

	"github.com/zalando/gateway/discovery"
	"github.com/zalando/gateway/routing"
)

type lease struct {
	instance    discovery.Instance
	connections int
}

type leastConnection struct {
	services Services
	name     string

	mx     sync.Mutex
	leases []lease
}

func newLeastConnection(route *routing.DownstreamRoute, services Services) LoadBalancer {
	return &leastConnection{services: services, name: serviceName(route)}
}

// drops the leases of the instances that are gone, and adds the new
// instances without connections
func (lc *leastConnection) reconcile(instances []discovery.Instance) {
	current := make(map[string]bool, len(instances))
	for _, i := range instances {
		current[i.Address()] = true
	}

	known := make(map[string]bool, len(lc.leases))
	kept := lc.leases[:0]
	for _, l := range lc.leases {
		if current[l.instance.Address()] {
			kept = append(kept, l)
			known[l.instance.Address()] = true
		}
	}

	for _, i := range instances {
		if !known[i.Address()] {
			kept = append(kept, lease{instance: i})
			known[i.Address()] = true
		}
	}

	lc.leases = kept
}

// Lease implements LoadBalancer, selecting the instance with the fewest
// active leases. On a tie, the first of them wins.
func (lc *leastConnection) Lease(r *http.Request) (discovery.Instance, error) {
	instances, err := fetch(r, lc.services, lc.name)
	if err != nil {
		return discovery.Instance{}, err
	}

	lc.mx.Lock()
	defer lc.mx.Unlock()

	lc.reconcile(instances)

	least := 0
	for i := range lc.leases {
		if lc.leases[i].connections < lc.leases[least].connections {
			least = i
		}
	}

	lc.leases[least].connections++
	return lc.leases[least].instance, nil
}

// Release decrements the leases of the instance. Releasing an unknown
// instance, or one without leases, is ignored.
func (lc *leastConnection) Release(i discovery.Instance) {
	lc.mx.Lock()
	defer lc.mx.Unlock()

	for j := range lc.leases {
		if lc.leases[j].instance.Address() != i.Address() {
			continue
		}

		if lc.leases[j].connections > 0 {
			lc.leases[j].connections--
		}

		return
	}
}
