package loadbalancer

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/zalando/gateway/discovery"
	"github.com/zalando/gateway/routing"
)

// DefaultStickySessionExpiry is used for cookie sticky sessions without a
// configured expiry.
const DefaultStickySessionExpiry = 20 * time.Minute

// Algorithm indicates the used load balancing algorithm.
type Algorithm int

const (
	// NoLoadBalancer always selects the first instance.
	NoLoadBalancer Algorithm = iota

	// RoundRobin selects the instances in turn.
	RoundRobin

	// LeastConnection selects the instance with the fewest active leases.
	LeastConnection

	// CookieStickySessions binds the clients to an instance with a cookie,
	// and selects the instances of new clients in turn.
	CookieStickySessions
)

// LoadBalancer leases an instance for a request. The instance is released
// when the request is done.
type LoadBalancer interface {
	Lease(*http.Request) (discovery.Instance, error)
	Release(discovery.Instance)
}

// Services returns the current instances of a route.
type Services func(context.Context) ([]discovery.Instance, error)

type initializeAlgorithm func(route *routing.DownstreamRoute, services Services) LoadBalancer

var algorithms = map[Algorithm]initializeAlgorithm{
	NoLoadBalancer:       newNoLoadBalancer,
	RoundRobin:           newRoundRobin,
	LeastConnection:      newLeastConnection,
	CookieStickySessions: newCookieStickySessions,
}

// AlgorithmFromString parses the string representation of the algorithm
// definition. The empty string means NoLoadBalancer.
func AlgorithmFromString(a string) (Algorithm, error) {
	switch strings.ToLower(a) {
	case "", "noloadbalancer":
		return NoLoadBalancer, nil
	case "roundrobin":
		return RoundRobin, nil
	case "leastconnection":
		return LeastConnection, nil
	case "cookiestickysessions":
		return CookieStickySessions, nil
	default:
		return NoLoadBalancer, &Error{Kind: ErrUnableToFindLoadBalancer, Service: a}
	}
}

// String returns the string representation of an algorithm definition.
func (a Algorithm) String() string {
	switch a {
	case NoLoadBalancer:
		return "NoLoadBalancer"
	case RoundRobin:
		return "RoundRobin"
	case LeastConnection:
		return "LeastConnection"
	case CookieStickySessions:
		return "CookieStickySessions"
	default:
		return ""
	}
}

// New creates the load balancer configured for a route.
func New(route *routing.DownstreamRoute, services Services) (LoadBalancer, error) {
	if services == nil {
		panic("loadbalancer: nil services")
	}

	a, err := AlgorithmFromString(route.LoadBalancer.Type)
	if err != nil {
		return nil, err
	}

	initialize, ok := algorithms[a]
	if !ok {
		return nil, &Error{Kind: ErrUnableToFindLoadBalancer, Service: route.LoadBalancer.Type}
	}

	return initialize(route, services), nil
}

func serviceName(route *routing.DownstreamRoute) string {
	if route.ServiceName != "" {
		return route.ServiceName
	}

	return route.LoadBalancerKey
}

// fetches the instances, failing on a missing or empty list
func fetch(r *http.Request, services Services, name string) ([]discovery.Instance, error) {
	instances, err := services(r.Context())
	if err != nil {
		return nil, err
	}

	if instances == nil {
		return nil, servicesError(ErrServicesNull, name)
	}

	if len(instances) == 0 {
		return nil, servicesError(ErrServicesEmpty, name)
	}

	return instances, nil
}

type noLoadBalancer struct {
	services Services
	name     string
}

func newNoLoadBalancer(route *routing.DownstreamRoute, services Services) LoadBalancer {
	return &noLoadBalancer{services: services, name: serviceName(route)}
}

// Lease returns the first instance.
func (lb *noLoadBalancer) Lease(r *http.Request) (discovery.Instance, error) {
	instances, err := lb.services(r.Context())
	if err != nil {
		return discovery.Instance{}, err
	}

	if len(instances) == 0 {
		return discovery.Instance{}, servicesError(ErrServicesEmpty, lb.name)
	}

	return instances[0], nil
}

func (lb *noLoadBalancer) Release(discovery.Instance) {}
