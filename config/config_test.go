package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zalando/gateway/routing"
)

func TestDefaults(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.ParseArgs("gateway", nil))

	assert.Equal(t, ":9090", cfg.Address)
	assert.Equal(t, ":9911", cfg.MetricsAddress)
	assert.Equal(t, log.InfoLevel, cfg.ApplicationLogLevel)
	assert.Equal(t, 90*time.Second, cfg.RequestTimeout())
	assert.Equal(t, time.Hour, cfg.ToGuardHouseOptions(nil).IdleTTL)

	routes, global, err := cfg.ToRoutes()
	require.NoError(t, err)
	assert.Empty(t, routes)
	assert.Equal(t, "http", global.DownstreamScheme)
	assert.False(t, global.ServiceDiscovery.Enabled())
}

func TestConfigFile(t *testing.T) {
	cfg := NewConfig()
	require.NoError(t, cfg.ParseArgs("gateway", []string{"-config", "testdata/gateway.yaml"}))

	assert.Equal(t, ":9999", cfg.Address)
	assert.Equal(t, log.DebugLevel, cfg.ApplicationLogLevel)
	assert.True(t, cfg.AccessLogDisabled)
	assert.Equal(t, 5*time.Second, cfg.ToPollerOptions(nil).Interval)

	lo := cfg.ToLoggingOptions()
	assert.Equal(t, "debug", lo.ApplicationLogLevel)
	assert.True(t, lo.AccessLogDisabled)

	t.Run("command line overrides the file", func(t *testing.T) {
		cfg := NewConfig()
		require.NoError(t, cfg.ParseArgs("gateway", []string{
			"-config", "testdata/gateway.yaml",
			"-address", ":8080",
			"-application-log-level", "WARN",
		}))

		assert.Equal(t, ":8080", cfg.Address)
		assert.Equal(t, log.WarnLevel, cfg.ApplicationLogLevel)
	})
}

func TestToRoutes(t *testing.T) {
	cfg, err := Load("testdata/gateway.yaml")
	require.NoError(t, err)

	routes, global, err := cfg.ToRoutes()
	require.NoError(t, err)
	require.Len(t, routes, 4)

	assert.Equal(t, routing.GlobalConfig{
		DownstreamScheme: "http",
		LoadBalancer:     routing.LoadBalancerOptions{Type: "RoundRobin"},
		QoS:              routing.QoSOptions{Timeout: 3 * time.Second},
		RateLimit:        routing.RateLimitOptions{ClientIDHeader: "X-Client-Id", StatusCode: 503},
		ServiceDiscovery: routing.ServiceDiscoveryOptions{
			Type:            "consul",
			Host:            "consul.local",
			Port:            8500,
			Namespace:       "shop",
			PollingInterval: 5 * time.Second,
		},
	}, global)

	comments := &routing.DownstreamRoute{
		Key:                    "comments",
		LoadBalancerKey:        "/posts/{postId}/comments|GET",
		DownstreamPathTemplate: "/api/posts/{postId}/comments",
		DownstreamScheme:       "http",
		DownstreamHostAndPorts: []routing.HostAndPort{
			{Host: "comments.local", Port: 8080},
			{Host: "comments.local", Port: 8081},
		},
		LoadBalancer: routing.LoadBalancerOptions{Type: "RoundRobin"},
		QoS:          routing.QoSOptions{Timeout: 3 * time.Second},
		RateLimit:    routing.RateLimitOptions{ClientIDHeader: "X-Client-Id", StatusCode: 503},
	}

	users := &routing.DownstreamRoute{
		Key:                    "users",
		LoadBalancerKey:        "/users/{userId}|GET",
		DownstreamPathTemplate: "/api/users/{userId}",
		DownstreamScheme:       "https",
		ServiceName:            "users",
		ServiceNamespace:       "shop",
		LoadBalancer: routing.LoadBalancerOptions{
			Type:   "CookieStickySessions",
			Key:    "session",
			Expiry: time.Minute,
		},
		QoS: routing.QoSOptions{
			Timeout:                         500 * time.Millisecond,
			TimeoutStrategy:                 "pessimistic",
			ExceptionsAllowedBeforeBreaking: 3,
			DurationOfBreak:                 10 * time.Second,
		},
		RateLimit: routing.RateLimitOptions{
			Enabled:         true,
			ClientIDHeader:  "X-Client-Id",
			ClientWhitelist: []string{"admin"},
			Limit:           10,
			Period:          time.Second,
			StatusCode:      503,
		},
		Metadata: map[string]string{"team": "accounts"},
	}

	t.Run("static routes", func(t *testing.T) {
		require.Len(t, routes[0].Downstream, 1)
		if d := cmp.Diff(comments, routes[0].Downstream[0]); d != "" {
			t.Errorf("invalid comments route: %s", d)
		}

		require.Len(t, routes[1].Downstream, 1)
		if d := cmp.Diff(users, routes[1].Downstream[0]); d != "" {
			t.Errorf("invalid users route: %s", d)
		}

		assert.Equal(t, "/posts/{postId}/comments", routes[0].UpstreamPathTemplate.String())
		assert.Equal(t, []string{"Get"}, routes[0].UpstreamHTTPMethod)
		assert.Equal(t, "accounts", routes[1].Downstream[0].MetadataString("team", ""))
	})

	t.Run("service override", func(t *testing.T) {
		r := routes[2]
		assert.Nil(t, r.UpstreamPathTemplate)
		require.Len(t, r.Downstream, 1)
		assert.Equal(t, "orders", r.Downstream[0].ServiceName)
		assert.Equal(t, "shop", r.Downstream[0].ServiceNamespace)
		assert.Equal(t, "LeastConnection", r.Downstream[0].LoadBalancer.Type)
		assert.False(t, r.Downstream[0].RateLimit.Enabled)
	})

	t.Run("aggregate", func(t *testing.T) {
		r := routes[3]
		assert.Equal(t, "/posts/{postId}/comments-with-users", r.UpstreamPathTemplate.String())
		require.Len(t, r.Downstream, 2)
		assert.Same(t, routes[0].Downstream[0], r.Downstream[0])
		assert.Same(t, routes[1].Downstream[0], r.Downstream[1])
		assert.Equal(t, []routing.AggregateConfig{{
			RouteKey:  "users",
			JSONPath:  "$[*].userId",
			Parameter: "userId",
		}}, r.Aggregates)
		assert.True(t, r.IsAggregate())
	})

	t.Run("resolves", func(t *testing.T) {
		f := routing.NewFinder(routes)
		m, err := f.Find("/posts/7/comments-with-users", "GET", "gateway.local", nil)
		require.NoError(t, err)
		assert.Same(t, routes[3], m.Route)
		assert.Equal(t, []routing.Binding{{Name: "postId", Value: "7"}}, m.Bindings)
	})
}

func TestInvalidConfig(t *testing.T) {
	for _, test := range []struct {
		title string
		yaml  string
	}{{
		title: "invalid log level",
		yaml:  "application-log-level: LOUD",
	}, {
		title: "missing downstream path",
		yaml: `
routes:
- upstreamPathTemplate: /orders
  downstreamHostAndPorts: [{host: orders.local, port: 80}]`,
	}, {
		title: "missing downstream hosts",
		yaml: `
routes:
- upstreamPathTemplate: /orders
  downstreamPathTemplate: /orders`,
	}, {
		title: "missing upstream path",
		yaml: `
routes:
- downstreamPathTemplate: /orders
  downstreamHostAndPorts: [{host: orders.local, port: 80}]`,
	}, {
		title: "invalid upstream template",
		yaml: `
routes:
- upstreamPathTemplate: /orders/{id
  downstreamPathTemplate: /orders
  downstreamHostAndPorts: [{host: orders.local, port: 80}]`,
	}, {
		title: "duplicate keys",
		yaml: `
routes:
- key: orders
  upstreamPathTemplate: /orders
  downstreamPathTemplate: /orders
  downstreamHostAndPorts: [{host: orders.local, port: 80}]
- key: orders
  upstreamPathTemplate: /orders2
  downstreamPathTemplate: /orders
  downstreamHostAndPorts: [{host: orders.local, port: 80}]`,
	}, {
		title: "unknown aggregate route key",
		yaml: `
routes:
- key: orders
  upstreamPathTemplate: /orders
  downstreamPathTemplate: /orders
  downstreamHostAndPorts: [{host: orders.local, port: 80}]
aggregates:
- upstreamPathTemplate: /all
  routeKeys: [orders, payments]`,
	}, {
		title: "first aggregate route depends on itself",
		yaml: `
routes:
- key: orders
  upstreamPathTemplate: /orders
  downstreamPathTemplate: /orders
  downstreamHostAndPorts: [{host: orders.local, port: 80}]
- key: payments
  upstreamPathTemplate: /payments
  downstreamPathTemplate: /payments
  downstreamHostAndPorts: [{host: payments.local, port: 80}]
aggregates:
- upstreamPathTemplate: /all
  routeKeys: [orders, payments]
  routeKeysConfig:
  - routeKey: orders
    jsonPath: $.id
    parameter: id`,
	}, {
		title: "invalid rate limit period",
		yaml: `
routes:
- upstreamPathTemplate: /orders
  downstreamPathTemplate: /orders
  downstreamHostAndPorts: [{host: orders.local, port: 80}]
  rateLimitOptions: {enableRateLimiting: true, period: often, limit: 3}`,
	}, {
		title: "rate limit without limit",
		yaml: `
routes:
- upstreamPathTemplate: /orders
  downstreamPathTemplate: /orders
  downstreamHostAndPorts: [{host: orders.local, port: 80}]
  rateLimitOptions: {enableRateLimiting: true, period: 1s}`,
	}, {
		title: "not yaml",
		yaml:  "routes: {",
	}} {
		t.Run(test.title, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "gateway.yaml")
			require.NoError(t, os.WriteFile(path, []byte(test.yaml), 0o644))

			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestMissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
