/*
Package discovery provides the instances of the downstream services.

A Provider reports the current instances of a single service, e.g. from
Consul, from the Kubernetes endpoints API, or from a static list. The
Poller wraps a provider with a background refresh, so the readers get the
last known instances without waiting for the backend. The Registry holds
one poller per service.
*/
package discovery

import (
	"context"
	"net"
	"strconv"
)

// Instance is an addressable instance of a downstream service, as reported
// by a provider at a point in time.
type Instance struct {
	Name    string
	Host    string
	Port    int
	ID      string
	Version string
	Tags    []string
}

// Address returns host:port of the instance.
func (i Instance) Address() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

// Provider reports the current instances of a service.
type Provider interface {
	Get(ctx context.Context) ([]Instance, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(context.Context) ([]Instance, error)

func (f ProviderFunc) Get(ctx context.Context) ([]Instance, error) {
	return f(ctx)
}

// Static is a fixed list of instances.
type Static []Instance

func (s Static) Get(context.Context) ([]Instance, error) {
	return s, nil
}
