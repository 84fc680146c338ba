package proxy

import (
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"github.com/zalando/gateway/metrics"
	"github.com/zalando/gateway/routing"
)

type multiplexError string

func (e multiplexError) Error() string { return string(e) }

const (
	errNoDownstreamRoute multiplexError = "route has no downstream route"
	errMissingResponse   multiplexError = "downstream call returned no response"
)

// Executor executes a single downstream call, and records its outcome on
// the request context.
type Executor interface {
	Execute(rc *RequestContext)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(*RequestContext)

func (f ExecutorFunc) Execute(rc *RequestContext) { f(rc) }

// Multiplexer executes the downstream calls of a route. Routes with a
// single downstream route, and upgrade requests, are executed directly.
// Aggregate routes fan out to their downstream routes concurrently, and the
// responses are merged by an aggregator.
type Multiplexer struct {
	executor    Executor
	aggregators *AggregatorRegistry
	metrics     *metrics.Metrics
}

func NewMultiplexer(e Executor, aggregators *AggregatorRegistry, m *metrics.Metrics) *Multiplexer {
	return &Multiplexer{executor: e, aggregators: aggregators, metrics: m}
}

// Multiplex executes the route, and returns the context holding the final
// response or the errors.
func (m *Multiplexer) Multiplex(rc *RequestContext, route *routing.Route) *RequestContext {
	legs := route.Downstream
	if len(legs) == 0 {
		rc.AddError(errNoDownstreamRoute)
		return rc
	}

	if len(legs) == 1 || rc.IsUpgrade() {
		rc.Route = legs[0]
		m.executor.Execute(rc)
		return rc
	}

	var contexts []*RequestContext
	if len(route.Aggregates) == 0 {
		contexts = m.fanOut(rc, legs)
	} else {
		main := m.executeLeg(rc, legs[0], nil)
		if main.HasErrors() || main.Response == nil {
			main.release()
			rc.recordDownstreamURLs(main)
			log.Debugf("main route %s of %s failed, skipping the dependent routes", legs[0].Key, route.UpstreamPathTemplate)
			rc.copyResultFrom(main)
			if !rc.HasErrors() {
				rc.AddError(errMissingResponse)
			}

			return rc
		}

		contexts = append([]*RequestContext{main}, m.fanOutDependent(rc, route, main)...)
	}

	defer func() {
		for _, c := range contexts {
			c.release()
		}
	}()

	rc.recordDownstreamURLs(contexts...)
	m.metrics.ObserveLegs(len(contexts))
	return m.aggregate(rc, route, contexts)
}

func (m *Multiplexer) executeLeg(rc *RequestContext, leg *routing.DownstreamRoute, binding *routing.Binding) *RequestContext {
	c := rc.Clone()
	c.Route = leg
	if binding != nil {
		// the new binding takes precedence over the upstream ones
		c.Bindings = append([]routing.Binding{*binding}, c.Bindings...)
	}

	m.executor.Execute(c)
	return c
}

type plannedLeg struct {
	route   *routing.DownstreamRoute
	binding *routing.Binding
}

func (m *Multiplexer) run(rc *RequestContext, plan []plannedLeg) []*RequestContext {
	contexts := make([]*RequestContext, len(plan))

	// failing calls don't cancel the others
	var g errgroup.Group
	for i, p := range plan {
		i, p := i, p
		g.Go(func() error {
			contexts[i] = m.executeLeg(rc, p.route, p.binding)
			return nil
		})
	}

	g.Wait()
	return contexts
}

func (m *Multiplexer) fanOut(rc *RequestContext, legs []*routing.DownstreamRoute) []*RequestContext {
	plan := make([]plannedLeg, len(legs))
	for i, leg := range legs {
		plan[i] = plannedLeg{route: leg}
	}

	return m.run(rc, plan)
}

func findAggregateConfig(route *routing.Route, key string) (routing.AggregateConfig, bool) {
	for _, c := range route.Aggregates {
		if c.RouteKey == key {
			return c, true
		}
	}

	return routing.AggregateConfig{}, false
}

func (m *Multiplexer) fanOutDependent(rc *RequestContext, route *routing.Route, main *RequestContext) []*RequestContext {
	var plan []plannedLeg
	for _, leg := range route.Downstream[1:] {
		c, ok := findAggregateConfig(route, leg.Key)
		if !ok {
			plan = append(plan, plannedLeg{route: leg})
			continue
		}

		values := selectValues(main.Response.Body, c.JSONPath)
		log.Debugf("route %s depends on %d values of %s", leg.Key, len(values), c.JSONPath)
		for _, v := range values {
			plan = append(plan, plannedLeg{
				route:   leg,
				binding: &routing.Binding{Name: c.Parameter, Value: v},
			})
		}
	}

	return m.run(rc, plan)
}

func (m *Multiplexer) aggregate(rc *RequestContext, route *routing.Route, contexts []*RequestContext) *RequestContext {
	for _, c := range contexts {
		if c.HasErrors() {
			rc.copyResultFrom(c)
			return rc
		}
	}

	if len(contexts) == 1 {
		rc.copyResultFrom(contexts[0])
		return rc
	}

	var a Aggregator = SimpleJSONAggregator{}
	if route.Aggregator != "" {
		var err error
		if a, err = m.aggregators.Get(route.Aggregator); err != nil {
			log.Errorf("error while aggregating %s: %v", route.UpstreamPathTemplate, err)
			rc.AddError(err)
			return rc
		}
	}

	rsp, err := a.Aggregate(route, contexts)
	if err != nil {
		rc.AddError(err)
		return rc
	}

	rc.Response = rsp
	return rc
}

// normalizeJSONPath converts the JSONPath style of the $. prefix and the
// [*] wildcards to gjson syntax.
func normalizeJSONPath(p string) string {
	p = strings.TrimPrefix(p, "$")
	p = strings.ReplaceAll(p, "[*]", ".#")
	return strings.TrimPrefix(p, ".")
}

func collectValues(r gjson.Result, seen map[string]bool, values []string) []string {
	if r.IsArray() {
		for _, ri := range r.Array() {
			values = collectValues(ri, seen, values)
		}

		return values
	}

	if !r.Exists() || r.Type == gjson.Null {
		return values
	}

	v := r.String()
	if seen[v] {
		return values
	}

	seen[v] = true
	return append(values, v)
}

// selectValues returns the distinct values selected by a JSON path, in the
// order of their first occurrence.
func selectValues(body []byte, path string) []string {
	r := gjson.GetBytes(body, normalizeJSONPath(path))
	return collectValues(r, make(map[string]bool), nil)
}
