package routing

import (
	"net/http"
	"sort"

	"github.com/dimfeld/httppath"
	log "github.com/sirupsen/logrus"
)

// Finder selects the route of a request from the configured upstream
// routes.
type Finder struct {
	routes []*Route
}

func routeTieKey(r *Route) string {
	if len(r.Downstream) == 0 {
		return ""
	}

	return r.Downstream[0].Key
}

// NewFinder creates a finder for the routes with an upstream path
// template. The routes are ordered by the priority of their templates, so
// the result of a lookup does not depend on the order of the input.
func NewFinder(routes []*Route) *Finder {
	var sorted []*Route
	for _, r := range routes {
		if r.UpstreamPathTemplate == nil {
			continue
		}

		sorted = append(sorted, r)
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := sorted[i].UpstreamPathTemplate, sorted[j].UpstreamPathTemplate
		if ti.value != tj.value {
			return ti.less(tj)
		}

		if sorted[i].UpstreamHost != sorted[j].UpstreamHost {
			return sorted[i].UpstreamHost > sorted[j].UpstreamHost
		}

		return routeTieKey(sorted[i]) < routeTieKey(sorted[j])
	})

	return &Finder{routes: sorted}
}

// Empty returns true when the finder has no routes.
func (f *Finder) Empty() bool {
	return len(f.routes) == 0
}

// Find returns the best matching route for a request. The routes are
// filtered by method, host and header templates, then by the path
// template in priority order. A matching route with an explicit upstream
// host wins over the routes without one. When nothing matches, it returns
// a *RouteNotFoundError.
func (f *Finder) Find(path, method, host string, headers http.Header) (*Match, error) {
	path = httppath.Clean(path)

	var first *Match
	for _, r := range f.routes {
		if !r.acceptsMethod(method) || !r.acceptsHost(host) {
			continue
		}

		hb, ok := matchHeaders(r.UpstreamHeaderTemplates, headers)
		if !ok {
			continue
		}

		pb, ok := r.UpstreamPathTemplate.Match(path)
		if !ok {
			continue
		}

		m := &Match{Route: r, Bindings: append(pb, hb...)}
		if r.UpstreamHost != "" {
			return m, nil
		}

		if first == nil {
			first = m
		}
	}

	if first != nil {
		return first, nil
	}

	log.Debugf("no route found for %s %s", method, path)
	return nil, &RouteNotFoundError{Path: path, Method: method}
}
