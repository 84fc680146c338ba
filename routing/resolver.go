package routing

import (
	"errors"
	"net/http"
)

// Resolver resolves requests with the configured routes, falling back to
// dynamic routes when service discovery is enabled.
type Resolver struct {
	finder  *Finder
	dynamic *DynamicProvider
	global  GlobalConfig
}

// NewResolver creates a resolver for the configured routes and global
// settings.
func NewResolver(routes []*Route, global GlobalConfig) *Resolver {
	r := &Resolver{
		finder: NewFinder(routes),
		global: global,
	}

	if global.ServiceDiscovery.Enabled() {
		r.dynamic = NewDynamicProvider(routes)
	}

	return r
}

// Resolve returns the route of a request.
func (r *Resolver) Resolve(req *http.Request) (*Match, error) {
	if !r.finder.Empty() {
		m, err := r.finder.Find(req.URL.Path, req.Method, req.Host, req.Header)

		var notFound *RouteNotFoundError
		if err == nil || r.dynamic == nil || !errors.As(err, &notFound) {
			return m, err
		}
	}

	if r.dynamic == nil {
		return nil, &RouteNotFoundError{Path: req.URL.Path, Method: req.Method}
	}

	return r.dynamic.Get(req.URL.Path, req.URL.RawQuery, req.Method, r.global, req.Host, req.Header)
}
