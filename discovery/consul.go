package discovery

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	consulapi "github.com/hashicorp/consul/api"
	log "github.com/sirupsen/logrus"
)

const versionTagPrefix = "version-"

// ConsulOptions configure the Consul client.
type ConsulOptions struct {
	// Address of the Consul agent, host:port or a URL.
	Address string
	Token   string

	// WaitTime enables blocking queries: a poll waits at most this long
	// for a change of the service. Zero disables blocking queries.
	WaitTime time.Duration
}

// NewConsulClient creates a Consul API client.
func NewConsulClient(o ConsulOptions) (*consulapi.Client, error) {
	cfg := consulapi.DefaultConfig()
	if o.Address != "" {
		cfg.Address = o.Address
	}

	if o.Token != "" {
		cfg.Token = o.Token
	}

	return consulapi.NewClient(cfg)
}

// Consul provides the healthy instances of a service registered in
// Consul.
type Consul struct {
	client   *consulapi.Client
	service  string
	waitTime time.Duration

	mx        sync.Mutex
	lastIndex uint64
}

// NewConsul creates a provider for a Consul service.
func NewConsul(client *consulapi.Client, service string, o ConsulOptions) *Consul {
	return &Consul{
		client:   client,
		service:  service,
		waitTime: o.WaitTime,
	}
}

func (c *Consul) Get(ctx context.Context) ([]Instance, error) {
	q := &consulapi.QueryOptions{}
	if c.waitTime > 0 {
		c.mx.Lock()
		q.WaitIndex = c.lastIndex
		c.mx.Unlock()
		q.WaitTime = c.waitTime
	}

	entries, meta, err := c.client.Health().Service(c.service, "", true, q.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch healthy entries of %s: %w", c.service, err)
	}

	if meta != nil {
		c.mx.Lock()
		c.lastIndex = meta.LastIndex
		c.mx.Unlock()
	}

	instances := make([]Instance, 0, len(entries))
	for _, e := range entries {
		if i, ok := consulInstance(e); ok {
			instances = append(instances, i)
			continue
		}

		log.Debugf("skipping invalid consul entry of %s", c.service)
	}

	return instances, nil
}

func consulInstance(e *consulapi.ServiceEntry) (Instance, bool) {
	if e == nil || e.Service == nil {
		return Instance{}, false
	}

	host := e.Service.Address
	if host == "" && e.Node != nil {
		host = e.Node.Address
	}

	if host == "" ||
		strings.Contains(host, "http://") ||
		strings.Contains(host, "https://") ||
		e.Service.Port <= 0 {
		return Instance{}, false
	}

	return Instance{
		Name:    e.Service.Service,
		Host:    host,
		Port:    e.Service.Port,
		ID:      e.Service.ID,
		Version: versionFromTags(e.Service.Tags),
		Tags:    e.Service.Tags,
	}, true
}

func versionFromTags(tags []string) string {
	for _, t := range tags {
		if strings.HasPrefix(t, versionTagPrefix) {
			return strings.TrimPrefix(t, versionTagPrefix)
		}
	}

	return ""
}
