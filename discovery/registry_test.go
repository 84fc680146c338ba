package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zalando/gateway/routing"
)

func TestRegistry(t *testing.T) {
	var created []string
	r := NewRegistry(func(namespace, service string) (Provider, error) {
		created = append(created, namespace+"/"+service)
		return Static{{Name: service, Host: "10.0.0.1", Port: 80}}, nil
	}, PollerOptions{Interval: time.Hour})

	p1, err := r.Get("shop", "orders")
	require.NoError(t, err)

	p2, err := r.Get("shop", "orders")
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	p3, err := r.Get("shop", "payments")
	require.NoError(t, err)
	assert.NotSame(t, p1, p3)
	assert.Equal(t, []string{"shop/orders", "shop/payments"}, created)

	instances, err := p3.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "payments", instances[0].Name)

	r.Close()
	_, err = r.Get("shop", "orders")
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestStaticOrPolled(t *testing.T) {
	r := NewRegistry(func(namespace, service string) (Provider, error) {
		return Static{{Name: service, Host: "10.0.0.9", Port: 9090}}, nil
	}, PollerOptions{Interval: time.Hour})
	defer r.Close()

	static := &routing.DownstreamRoute{
		Key: "orders",
		DownstreamHostAndPorts: []routing.HostAndPort{
			{Host: "localhost", Port: 8081},
			{Host: "localhost", Port: 8082},
		},
	}

	instances, err := r.StaticOrPolled(static).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Instance{
		{Name: "orders", Host: "localhost", Port: 8081, ID: "localhost:8081"},
		{Name: "orders", Host: "localhost", Port: 8082, ID: "localhost:8082"},
	}, instances)

	discovered := &routing.DownstreamRoute{ServiceName: "payments", ServiceNamespace: "shop"}
	instances, err = r.StaticOrPolled(discovered).Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Instance{{Name: "payments", Host: "10.0.0.9", Port: 9090}}, instances)

	var none *Registry
	_, err = none.StaticOrPolled(discovered).Get(context.Background())
	assert.Error(t, err)
}

func TestProviderFactory(t *testing.T) {
	f, err := NewProviderFactory(routing.ServiceDiscoveryOptions{Type: "consul", Host: "localhost", Port: 8500})
	require.NoError(t, err)

	p, err := f("", "orders")
	require.NoError(t, err)
	assert.IsType(t, &Consul{}, p)

	f, err = NewProviderFactory(routing.ServiceDiscoveryOptions{Type: "kube", Namespace: "shop"})
	require.NoError(t, err)

	p, err = f("", "orders")
	require.NoError(t, err)
	require.IsType(t, &Kubernetes{}, p)
	assert.Equal(t, "shop", p.(*Kubernetes).namespace)

	_, err = NewProviderFactory(routing.ServiceDiscoveryOptions{Type: "eureka"})
	assert.Error(t, err)
}
