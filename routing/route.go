package routing

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HostAndPort is a statically configured downstream address.
type HostAndPort struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

func (hp HostAndPort) String() string {
	return net.JoinHostPort(hp.Host, strconv.Itoa(hp.Port))
}

// LoadBalancerOptions selects and configures the load balancer of a route.
// Type is one of the algorithm names understood by the loadbalancer
// package. For cookie sticky sessions, Key is the name of the cookie.
type LoadBalancerOptions struct {
	Type   string
	Key    string
	Expiry time.Duration
}

// QoSOptions configures the timeout and the circuit breaker wrapping the
// downstream calls of a route.
type QoSOptions struct {
	Timeout                         time.Duration
	TimeoutStrategy                 string
	ExceptionsAllowedBeforeBreaking int
	DurationOfBreak                 time.Duration
}

// Enabled returns true when either the timeout or the circuit breaker is
// active.
func (o QoSOptions) Enabled() bool {
	return o.Timeout > 0 || o.ExceptionsAllowedBeforeBreaking > 0
}

// RateLimitOptions limits the requests that each client can send to a
// route in a period. Clients are identified by the value of the
// ClientIDHeader.
type RateLimitOptions struct {
	Enabled         bool
	ClientIDHeader  string
	ClientWhitelist []string
	Limit           int
	Period          time.Duration

	// QuotaExceededMessage is the body of the rejected responses. It is a
	// format string receiving the limit and the period.
	QuotaExceededMessage string
	StatusCode           int

	// DisableHeaders suppresses the X-Rate-Limit-* and Retry-After headers.
	DisableHeaders bool
}

// ServiceDiscoveryOptions configures the discovery backend used by routes
// that refer to a service name.
type ServiceDiscoveryOptions struct {
	// Type is consul or kube. Empty disables service discovery.
	Type            string
	Scheme          string
	Host            string
	Port            int
	Token           string
	TokenFile       string
	Namespace       string
	PollingInterval time.Duration
	WaitTime        time.Duration
}

// Enabled reports whether a discovery backend is configured.
func (o ServiceDiscoveryOptions) Enabled() bool {
	return o.Type != ""
}

// GlobalConfig holds the settings that apply to every route without its
// own, and to the routes created in dynamic mode.
type GlobalConfig struct {
	DownstreamScheme      string
	DownstreamHTTPVersion string
	LoadBalancer          LoadBalancerOptions
	QoS                   QoSOptions
	RateLimit             RateLimitOptions
	ServiceDiscovery      ServiceDiscoveryOptions
}

// DownstreamRoute describes a single downstream target: where to send the
// request and how to protect and balance the call.
type DownstreamRoute struct {
	// Key identifies the route in aggregates and in aggregated responses.
	Key string

	// LoadBalancerKey identifies the load balancer and the QoS guard shared
	// by the requests of this route.
	LoadBalancerKey string

	DownstreamPathTemplate              string
	DownstreamScheme                    string
	DownstreamHTTPVersion               string
	DownstreamHostAndPorts              []HostAndPort
	ServiceName                         string
	ServiceNamespace                    string
	LoadBalancer                        LoadBalancerOptions
	QoS                                 QoSOptions
	RateLimit                           RateLimitOptions
	Metadata                            map[string]string
	DangerousAcceptAnyServerCertificate bool
}

// UsesServiceDiscovery returns true when the instances of the route come
// from a discovery provider instead of the static host list.
func (r *DownstreamRoute) UsesServiceDiscovery() bool {
	return r.ServiceName != ""
}

// AggregateConfig declares that the calls of the route RouteKey depend on
// the response of the first route of an aggregate: one call is made for
// every distinct value that JSONPath selects from that response, with the
// value bound to the placeholder Parameter.
type AggregateConfig struct {
	RouteKey  string
	JSONPath  string
	Parameter string
}

// Route is an upstream route: the request shape it accepts, and one or more
// downstream routes serving it.
type Route struct {
	UpstreamPathTemplate    *Template
	UpstreamHeaderTemplates []*HeaderTemplate
	UpstreamHTTPMethod      []string
	UpstreamHost            string

	Downstream []*DownstreamRoute

	// Aggregator names a custom aggregator. Empty selects the default
	// JSON aggregator.
	Aggregator string
	Aggregates []AggregateConfig
}

// IsAggregate returns true for routes fanning out to multiple downstream
// routes.
func (r *Route) IsAggregate() bool {
	return len(r.Downstream) > 1 || r.Aggregator != "" || len(r.Aggregates) > 0
}

func (r *Route) acceptsMethod(method string) bool {
	if len(r.UpstreamHTTPMethod) == 0 {
		return true
	}

	for _, m := range r.UpstreamHTTPMethod {
		if strings.EqualFold(m, method) {
			return true
		}
	}

	return false
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}

	return host
}

func (r *Route) acceptsHost(host string) bool {
	if r.UpstreamHost == "" {
		return true
	}

	if _, _, err := net.SplitHostPort(r.UpstreamHost); err == nil {
		return strings.EqualFold(r.UpstreamHost, host)
	}

	return strings.EqualFold(r.UpstreamHost, stripPort(host))
}

// Match is the result of resolving a request to a route.
type Match struct {
	Route    *Route
	Bindings []Binding
}

// LoadBalancerKey creates the key shared by the requests of a configured
// route, from its upstream shape.
func LoadBalancerKey(upstreamPathTemplate string, methods []string, host string) string {
	m := make([]string, len(methods))
	for i := range methods {
		m[i] = strings.ToUpper(methods[i])
	}

	key := upstreamPathTemplate + "|" + strings.Join(m, ",")
	if host != "" {
		key += "|" + host
	}

	return key
}

func defaultMethod(method string) string {
	if method == "" {
		return http.MethodGet
	}

	return strings.ToUpper(method)
}
