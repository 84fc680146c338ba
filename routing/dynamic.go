package routing

import (
	"net/http"
	"strings"
	"sync"

	"github.com/dimfeld/httppath"
	log "github.com/sirupsen/logrus"
)

const (
	stickySessionsType = "CookieStickySessions"

	// the placeholder holding the downstream path of dynamic routes
	dynamicPathPlaceholder = "downstreamPath"
)

// DynamicProvider creates the routes on the fly when the gateway runs
// without upstream routes, with service discovery: the first segment of
// the request path names the service, the rest is forwarded as the
// downstream path.
//
// Configured routes with a service name are not matched in this mode, but
// they override the global settings for the requests of their service.
type DynamicProvider struct {
	overrides map[string]*DownstreamRoute
	cache     sync.Map
}

// NewDynamicProvider creates a dynamic route provider. The routes are used
// only as per service overrides.
func NewDynamicProvider(routes []*Route) *DynamicProvider {
	overrides := make(map[string]*DownstreamRoute)
	for _, r := range routes {
		for _, d := range r.Downstream {
			if d.ServiceName == "" {
				continue
			}

			if _, ok := overrides[d.ServiceName]; !ok {
				overrides[d.ServiceName] = d
			}
		}
	}

	return &DynamicProvider{overrides: overrides}
}

func splitServicePath(path string) (service, downstreamPath string) {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	path = strings.TrimPrefix(httppath.Clean(path), "/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i], path[i:]
	}

	return path, "/"
}

func dynamicCacheKey(service, downstreamPath, method string, lb LoadBalancerOptions) string {
	if strings.EqualFold(lb.Type, stickySessionsType) {
		return stickySessionsType + ":" + lb.Key + ":" + service
	}

	return "/" + service + downstreamPath + "|" + method
}

// Get returns the route for a request. The routes are cached by service
// and downstream path, or, for cookie sticky sessions, by service and
// cookie name, so the requests sharing a sticky session store share one
// route. A cached route is returned unchanged.
//
// The query argument is not part of the downstream path; it is forwarded
// with the request.
func (p *DynamicProvider) Get(path, query, method string, global GlobalConfig, host string, headers http.Header) (*Match, error) {
	method = defaultMethod(method)
	service, downstreamPath := splitServicePath(path)
	if service == "" {
		return nil, &RouteNotFoundError{Path: path, Method: method}
	}

	lb := global.LoadBalancer
	if o, ok := p.overrides[service]; ok {
		lb = o.LoadBalancer
	}

	key := dynamicCacheKey(service, downstreamPath, method, lb)
	bindings := []Binding{{
		Name:  dynamicPathPlaceholder,
		Value: strings.TrimPrefix(downstreamPath, "/"),
	}}

	if r, ok := p.cache.Load(key); ok {
		return &Match{Route: r.(*Route), Bindings: bindings}, nil
	}

	d := &DownstreamRoute{
		Key:                    key,
		LoadBalancerKey:        key,
		DownstreamPathTemplate: "/{" + dynamicPathPlaceholder + "}",
		DownstreamScheme:       global.DownstreamScheme,
		DownstreamHTTPVersion:  global.DownstreamHTTPVersion,
		ServiceName:            service,
		ServiceNamespace:       global.ServiceDiscovery.Namespace,
		LoadBalancer:           global.LoadBalancer,
		QoS:                    global.QoS,
		RateLimit:              global.RateLimit,
	}

	if o, ok := p.overrides[service]; ok {
		d.DownstreamScheme = o.DownstreamScheme
		d.DownstreamHTTPVersion = o.DownstreamHTTPVersion
		d.LoadBalancer = o.LoadBalancer
		d.QoS = o.QoS
		d.RateLimit = o.RateLimit
		d.Metadata = o.Metadata
		d.DangerousAcceptAnyServerCertificate = o.DangerousAcceptAnyServerCertificate
		if o.ServiceNamespace != "" {
			d.ServiceNamespace = o.ServiceNamespace
		}
	}

	r := &Route{
		UpstreamHTTPMethod: []string{method},
		Downstream:         []*DownstreamRoute{d},
	}

	// concurrent creators of the same key build equivalent routes
	p.cache.Store(key, r)
	log.Debugf("created dynamic route %s for service %s", key, service)
	return &Match{Route: r, Bindings: bindings}, nil
}
