package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/zalando/gateway/routing"
)

// ProviderFactory creates the provider of a service.
type ProviderFactory func(namespace, service string) (Provider, error)

// ErrRegistryClosed is returned when requesting a poller from a closed
// registry.
var ErrRegistryClosed = errors.New("registry closed")

// NewProviderFactory creates the provider factory for the configured
// discovery backend: consul or kube.
func NewProviderFactory(o routing.ServiceDiscoveryOptions) (ProviderFactory, error) {
	switch o.Type {
	case "consul", "Consul", "PollConsul":
		address := o.Host
		if o.Port > 0 {
			address = net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
		}

		if o.Scheme != "" && address != "" {
			address = o.Scheme + "://" + address
		}

		co := ConsulOptions{Address: address, Token: o.Token, WaitTime: o.WaitTime}
		client, err := NewConsulClient(co)
		if err != nil {
			return nil, fmt.Errorf("failed to create consul client: %w", err)
		}

		return func(_, service string) (Provider, error) {
			return NewConsul(client, service, co), nil
		}, nil
	case "kube", "Kube", "PollKube":
		ko := KubernetesOptions{Token: o.Token, TokenFile: o.TokenFile}
		if o.Host != "" {
			scheme := o.Scheme
			if scheme == "" {
				scheme = "https"
			}

			ko.APIURL = scheme + "://" + o.Host
			if o.Port > 0 {
				ko.APIURL = scheme + "://" + net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
			}
		}

		return func(namespace, service string) (Provider, error) {
			if namespace == "" {
				namespace = o.Namespace
			}

			return NewKubernetes(namespace, service, ko), nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported service discovery type: %q", o.Type)
	}
}

// Registry holds one poller per service.
type Registry struct {
	factory ProviderFactory
	options PollerOptions

	mx      sync.Mutex
	pollers map[string]*Poller
	closed  bool
}

// NewRegistry creates a registry. The pollers are created on the first
// request of their service.
func NewRegistry(f ProviderFactory, o PollerOptions) *Registry {
	return &Registry{
		factory: f,
		options: o,
		pollers: make(map[string]*Poller),
	}
}

// Get returns the poller of a service.
func (r *Registry) Get(namespace, service string) (*Poller, error) {
	key := namespace + "/" + service

	r.mx.Lock()
	defer r.mx.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}

	if p, ok := r.pollers[key]; ok {
		return p, nil
	}

	provider, err := r.factory(namespace, service)
	if err != nil {
		return nil, err
	}

	o := r.options
	o.Name = key
	p := NewPoller(provider, o)
	r.pollers[key] = p
	return p, nil
}

// Close stops all the pollers.
func (r *Registry) Close() {
	r.mx.Lock()
	defer r.mx.Unlock()

	r.closed = true
	for key, p := range r.pollers {
		p.Close()
		delete(r.pollers, key)
	}
}

// StaticOrPolled returns the instances of a route: the configured hosts,
// or the polled instances of its service.
func (r *Registry) StaticOrPolled(route *routing.DownstreamRoute) Provider {
	if !route.UsesServiceDiscovery() {
		return staticInstances(route)
	}

	return ProviderFunc(func(ctx context.Context) ([]Instance, error) {
		if r == nil {
			return nil, fmt.Errorf("no service discovery configured for service %s", route.ServiceName)
		}

		p, err := r.Get(route.ServiceNamespace, route.ServiceName)
		if err != nil {
			return nil, err
		}

		return p.Get(ctx)
	})
}

func staticInstances(route *routing.DownstreamRoute) Static {
	s := make(Static, len(route.DownstreamHostAndPorts))
	for i, hp := range route.DownstreamHostAndPorts {
		s[i] = Instance{
			Name: route.Key,
			Host: hp.Host,
			Port: hp.Port,
			ID:   hp.String(),
		}
	}

	return s
}
