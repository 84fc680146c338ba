package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/zalando/gateway/routing"
)

type HostAndPort struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LoadBalancerConfig struct {
	Type     string `yaml:"type"`
	Key      string `yaml:"key"`
	ExpiryMs int    `yaml:"expiryMs"`
}

type QoSConfig struct {
	TimeoutMs                       int    `yaml:"timeoutMs"`
	TimeoutStrategy                 string `yaml:"timeoutStrategy"`
	ExceptionsAllowedBeforeBreaking int    `yaml:"exceptionsAllowedBeforeBreaking"`
	DurationOfBreakMs               int    `yaml:"durationOfBreakMs"`
}

// RateLimitConfig enables the rate limiting of a route. Period is a Go
// duration, e.g. 1s or 5m.
type RateLimitConfig struct {
	EnableRateLimiting bool     `yaml:"enableRateLimiting"`
	ClientWhitelist    []string `yaml:"clientWhitelist"`
	Period             string   `yaml:"period"`
	Limit              int      `yaml:"limit"`
}

// GlobalRateLimitConfig holds the rate limiting settings shared by the
// routes.
type GlobalRateLimitConfig struct {
	ClientIDHeader          string `yaml:"clientIdHeader"`
	QuotaExceededMessage    string `yaml:"quotaExceededMessage"`
	HTTPStatusCode          int    `yaml:"httpStatusCode"`
	DisableRateLimitHeaders bool   `yaml:"disableRateLimitHeaders"`
}

type ServiceDiscoveryConfig struct {
	Type              string `yaml:"type"`
	Scheme            string `yaml:"scheme"`
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	Token             string `yaml:"token"`
	TokenFile         string `yaml:"tokenFile"`
	Namespace         string `yaml:"namespace"`
	PollingIntervalMs int    `yaml:"pollingIntervalMs"`
	WaitTimeMs        int    `yaml:"waitTimeMs"`
}

// RouteConfig is a static route of the config file. The options left empty
// are taken from the global config.
type RouteConfig struct {
	Key                                 string              `yaml:"key"`
	UpstreamPathTemplate                string              `yaml:"upstreamPathTemplate"`
	UpstreamHTTPMethod                  []string            `yaml:"upstreamHttpMethod"`
	UpstreamHost                        string              `yaml:"upstreamHost"`
	UpstreamHeaderTemplates             map[string]string   `yaml:"upstreamHeaderTemplates"`
	RouteIsCaseSensitive                bool                `yaml:"routeIsCaseSensitive"`
	DownstreamPathTemplate              string              `yaml:"downstreamPathTemplate"`
	DownstreamScheme                    string              `yaml:"downstreamScheme"`
	DownstreamHTTPVersion               string              `yaml:"downstreamHttpVersion"`
	DownstreamHostAndPorts              []HostAndPort       `yaml:"downstreamHostAndPorts"`
	ServiceName                         string              `yaml:"serviceName"`
	ServiceNamespace                    string              `yaml:"serviceNamespace"`
	LoadBalancerOptions                 *LoadBalancerConfig `yaml:"loadBalancerOptions"`
	QoSOptions                          *QoSConfig          `yaml:"qosOptions"`
	RateLimitOptions                    *RateLimitConfig    `yaml:"rateLimitOptions"`
	Metadata                            map[string]string   `yaml:"metadata"`
	DangerousAcceptAnyServerCertificate bool                `yaml:"dangerousAcceptAnyServerCertificate"`
}

// AggregateKeyConfig makes the calls of a route depend on the response of
// the first route of the aggregate.
type AggregateKeyConfig struct {
	RouteKey  string `yaml:"routeKey"`
	JSONPath  string `yaml:"jsonPath"`
	Parameter string `yaml:"parameter"`
}

// AggregateRouteConfig fans the requests out to the routes with the listed
// keys.
type AggregateRouteConfig struct {
	UpstreamPathTemplate    string               `yaml:"upstreamPathTemplate"`
	UpstreamHTTPMethod      []string             `yaml:"upstreamHttpMethod"`
	UpstreamHost            string               `yaml:"upstreamHost"`
	UpstreamHeaderTemplates map[string]string    `yaml:"upstreamHeaderTemplates"`
	RouteIsCaseSensitive    bool                 `yaml:"routeIsCaseSensitive"`
	RouteKeys               []string             `yaml:"routeKeys"`
	RouteKeysConfig         []AggregateKeyConfig `yaml:"routeKeysConfig"`
	Aggregator              string               `yaml:"aggregator"`
}

type GlobalConfig struct {
	DownstreamScheme         string                 `yaml:"downstreamScheme"`
	DownstreamHTTPVersion    string                 `yaml:"downstreamHttpVersion"`
	LoadBalancerOptions      LoadBalancerConfig     `yaml:"loadBalancerOptions"`
	QoSOptions               QoSConfig              `yaml:"qosOptions"`
	RateLimitOptions         GlobalRateLimitConfig  `yaml:"rateLimitOptions"`
	ServiceDiscoveryProvider ServiceDiscoveryConfig `yaml:"serviceDiscoveryProvider"`
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (c LoadBalancerConfig) toRouting() routing.LoadBalancerOptions {
	return routing.LoadBalancerOptions{
		Type:   c.Type,
		Key:    c.Key,
		Expiry: millis(c.ExpiryMs),
	}
}

func (c QoSConfig) toRouting() routing.QoSOptions {
	return routing.QoSOptions{
		Timeout:                         millis(c.TimeoutMs),
		TimeoutStrategy:                 c.TimeoutStrategy,
		ExceptionsAllowedBeforeBreaking: c.ExceptionsAllowedBeforeBreaking,
		DurationOfBreak:                 millis(c.DurationOfBreakMs),
	}
}

func (c GlobalRateLimitConfig) toRouting() routing.RateLimitOptions {
	return routing.RateLimitOptions{
		ClientIDHeader:       c.ClientIDHeader,
		QuotaExceededMessage: c.QuotaExceededMessage,
		StatusCode:           c.HTTPStatusCode,
		DisableHeaders:       c.DisableRateLimitHeaders,
	}
}

// toRouting applies the route settings to the global ones.
func (c RateLimitConfig) toRouting(global routing.RateLimitOptions) (routing.RateLimitOptions, error) {
	o := global
	o.Enabled = c.EnableRateLimiting
	o.ClientWhitelist = c.ClientWhitelist
	o.Limit = c.Limit
	if !o.Enabled {
		return o, nil
	}

	period, err := time.ParseDuration(c.Period)
	if err != nil {
		return o, fmt.Errorf("invalid rate limit period %q: %w", c.Period, err)
	}

	if period <= 0 || c.Limit <= 0 {
		return o, fmt.Errorf("invalid rate limit: %d per %s", c.Limit, c.Period)
	}

	o.Period = period
	return o, nil
}

func (c ServiceDiscoveryConfig) toRouting() routing.ServiceDiscoveryOptions {
	return routing.ServiceDiscoveryOptions{
		Type:            c.Type,
		Scheme:          c.Scheme,
		Host:            c.Host,
		Port:            c.Port,
		Token:           c.Token,
		TokenFile:       c.TokenFile,
		Namespace:       c.Namespace,
		PollingInterval: millis(c.PollingIntervalMs),
		WaitTime:        millis(c.WaitTimeMs),
	}
}

func (c GlobalConfig) toRouting() routing.GlobalConfig {
	scheme := c.DownstreamScheme
	if scheme == "" {
		scheme = "http"
	}

	return routing.GlobalConfig{
		DownstreamScheme:      scheme,
		DownstreamHTTPVersion: c.DownstreamHTTPVersion,
		LoadBalancer:          c.LoadBalancerOptions.toRouting(),
		QoS:                   c.QoSOptions.toRouting(),
		RateLimit:             c.RateLimitOptions.toRouting(),
		ServiceDiscovery:      c.ServiceDiscoveryProvider.toRouting(),
	}
}

func upstreamTemplates(path string, caseSensitive bool, headers map[string]string) (*routing.Template, []*routing.HeaderTemplate, error) {
	t, err := routing.NewTemplate(path, caseSensitive)
	if err != nil {
		return nil, nil, err
	}

	h, err := routing.NewHeaderTemplates(headers)
	if err != nil {
		return nil, nil, err
	}

	return t, h, nil
}

func (rc RouteConfig) downstream(global routing.GlobalConfig) (*routing.DownstreamRoute, error) {
	if rc.DownstreamPathTemplate == "" {
		return nil, fmt.Errorf("missing downstream path template")
	}

	if !strings.HasPrefix(rc.DownstreamPathTemplate, "/") {
		return nil, fmt.Errorf("downstream path template %q must start with /", rc.DownstreamPathTemplate)
	}

	if rc.ServiceName == "" && len(rc.DownstreamHostAndPorts) == 0 {
		return nil, fmt.Errorf("missing downstream hosts or service name")
	}

	d := &routing.DownstreamRoute{
		Key:                                 rc.Key,
		LoadBalancerKey:                     routing.LoadBalancerKey(rc.UpstreamPathTemplate, rc.UpstreamHTTPMethod, rc.UpstreamHost),
		DownstreamPathTemplate:              rc.DownstreamPathTemplate,
		DownstreamScheme:                    rc.DownstreamScheme,
		DownstreamHTTPVersion:               rc.DownstreamHTTPVersion,
		ServiceName:                         rc.ServiceName,
		ServiceNamespace:                    rc.ServiceNamespace,
		LoadBalancer:                        global.LoadBalancer,
		QoS:                                 global.QoS,
		RateLimit:                           global.RateLimit,
		Metadata:                            rc.Metadata,
		DangerousAcceptAnyServerCertificate: rc.DangerousAcceptAnyServerCertificate,
	}

	if d.Key == "" {
		d.Key = d.LoadBalancerKey
	}

	if d.DownstreamScheme == "" {
		d.DownstreamScheme = global.DownstreamScheme
	}

	if d.DownstreamHTTPVersion == "" {
		d.DownstreamHTTPVersion = global.DownstreamHTTPVersion
	}

	if d.ServiceName != "" && d.ServiceNamespace == "" {
		d.ServiceNamespace = global.ServiceDiscovery.Namespace
	}

	if rc.LoadBalancerOptions != nil {
		d.LoadBalancer = rc.LoadBalancerOptions.toRouting()
	}

	if rc.QoSOptions != nil {
		d.QoS = rc.QoSOptions.toRouting()
	}

	if rc.RateLimitOptions != nil {
		var err error
		if d.RateLimit, err = rc.RateLimitOptions.toRouting(global.RateLimit); err != nil {
			return nil, err
		}
	}

	for _, hp := range rc.DownstreamHostAndPorts {
		d.DownstreamHostAndPorts = append(d.DownstreamHostAndPorts, routing.HostAndPort{Host: hp.Host, Port: hp.Port})
	}

	return d, nil
}

func (rc RouteConfig) route(global routing.GlobalConfig) (*routing.Route, error) {
	d, err := rc.downstream(global)
	if err != nil {
		return nil, err
	}

	r := &routing.Route{
		UpstreamHTTPMethod: rc.UpstreamHTTPMethod,
		UpstreamHost:       rc.UpstreamHost,
		Downstream:         []*routing.DownstreamRoute{d},
	}

	// routes without an upstream template are only used as the overrides
	// of the dynamic routes of their service
	if rc.UpstreamPathTemplate == "" {
		if rc.ServiceName == "" {
			return nil, fmt.Errorf("missing upstream path template")
		}

		return r, nil
	}

	r.UpstreamPathTemplate, r.UpstreamHeaderTemplates, err = upstreamTemplates(
		rc.UpstreamPathTemplate,
		rc.RouteIsCaseSensitive,
		rc.UpstreamHeaderTemplates,
	)

	return r, err
}

func (ac AggregateRouteConfig) route(byKey map[string]*routing.DownstreamRoute) (*routing.Route, error) {
	if len(ac.RouteKeys) == 0 {
		return nil, fmt.Errorf("aggregate without route keys")
	}

	t, h, err := upstreamTemplates(ac.UpstreamPathTemplate, ac.RouteIsCaseSensitive, ac.UpstreamHeaderTemplates)
	if err != nil {
		return nil, err
	}

	r := &routing.Route{
		UpstreamPathTemplate:    t,
		UpstreamHeaderTemplates: h,
		UpstreamHTTPMethod:      ac.UpstreamHTTPMethod,
		UpstreamHost:            ac.UpstreamHost,
		Aggregator:              ac.Aggregator,
	}

	for _, key := range ac.RouteKeys {
		d, ok := byKey[key]
		if !ok {
			return nil, fmt.Errorf("unknown route key: %s", key)
		}

		r.Downstream = append(r.Downstream, d)
	}

	for _, c := range ac.RouteKeysConfig {
		if c.RouteKey == ac.RouteKeys[0] {
			return nil, fmt.Errorf("the first route %s cannot depend on itself", c.RouteKey)
		}

		if !slices.Contains(ac.RouteKeys[1:], c.RouteKey) {
			return nil, fmt.Errorf("unknown route key in aggregate config: %s", c.RouteKey)
		}

		if c.JSONPath == "" || c.Parameter == "" {
			return nil, fmt.Errorf("missing json path or parameter for %s", c.RouteKey)
		}

		r.Aggregates = append(r.Aggregates, routing.AggregateConfig{
			RouteKey:  c.RouteKey,
			JSONPath:  c.JSONPath,
			Parameter: c.Parameter,
		})
	}

	return r, nil
}

// ToRoutes converts the configured routes and aggregates to routing routes,
// applying the global settings to the options the routes leave empty.
func (c *Config) ToRoutes() ([]*routing.Route, routing.GlobalConfig, error) {
	global := c.Global.toRouting()

	var routes []*routing.Route
	byKey := make(map[string]*routing.DownstreamRoute)
	for i, rc := range c.Routes {
		r, err := rc.route(global)
		if err != nil {
			return nil, routing.GlobalConfig{}, fmt.Errorf("invalid route %d (%s): %w", i, rc.UpstreamPathTemplate, err)
		}

		if rc.Key != "" {
			if _, ok := byKey[rc.Key]; ok {
				return nil, routing.GlobalConfig{}, fmt.Errorf("duplicate route key: %s", rc.Key)
			}

			byKey[rc.Key] = r.Downstream[0]
		}

		routes = append(routes, r)
	}

	for i, ac := range c.Aggregates {
		r, err := ac.route(byKey)
		if err != nil {
			return nil, routing.GlobalConfig{}, fmt.Errorf("invalid aggregate %d (%s): %w", i, ac.UpstreamPathTemplate, err)
		}

		routes = append(routes, r)
	}

	return routes, global, nil
}
