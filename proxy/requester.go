package proxy

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zalando/gateway/circuit"
	"github.com/zalando/gateway/discovery"
	"github.com/zalando/gateway/loadbalancer"
	"github.com/zalando/gateway/metrics"
	"github.com/zalando/gateway/ratelimit"
	"github.com/zalando/gateway/routing"
)

// DefaultTimeout is the timeout of the downstream calls of the routes
// without a QoS timeout.
const DefaultTimeout = 90 * time.Second

var hopHeaders = map[string]bool{
	"Te":                  true,
	"Connection":          true,
	"Proxy-Connection":    true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

func cloneHeaderExcluding(h http.Header, excludeList map[string]bool) http.Header {
	hh := make(http.Header, len(h))
	for k, v := range h {
		// The http package converts header names to their canonical version.
		if !excludeList[http.CanonicalHeaderKey(k)] {
			hh[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
		}
	}

	return hh
}

// downstreamError indicates that the downstream call failed without a
// response.
type downstreamError struct {
	route string
	url   string
	err   error
}

func (e *downstreamError) Error() string {
	return fmt.Sprintf("error calling %s for route %s: %v", e.url, e.route, e.err)
}

func (e *downstreamError) Unwrap() error { return e.err }

type RequesterOptions struct {
	Balancers *loadbalancer.House
	Guards    *circuit.GuardHouse

	// Discovery provides the instances of the routes with a service name.
	// It can be nil when no route uses service discovery.
	Discovery *discovery.Registry

	// RateLimits holds the quotas of the clients of the routes with rate
	// limiting. When nil, the requests are not limited.
	RateLimits *ratelimit.Registry

	// Transport is used for the downstream calls. Defaults to a clone of
	// http.DefaultTransport.
	Transport *http.Transport

	// Timeout of the downstream calls of the routes without a QoS timeout.
	// The QoS timeout of a route replaces it, even when longer. Defaults to
	// DefaultTimeout.
	Timeout time.Duration

	Metrics *metrics.Metrics
}

// Requester executes the downstream call of a request context: it leases
// an instance of the downstream route, sends the request through the QoS
// guard of the route, and reads the response.
type Requester struct {
	balancers *loadbalancer.House
	guards    *circuit.GuardHouse
	discovery *discovery.Registry
	limits    *ratelimit.Registry
	metrics   *metrics.Metrics
	timeout   time.Duration
	client    *http.Client
	insecure  *http.Client
	upgrade   *upgradeProxy
	insecureU *upgradeProxy
}

func NewRequester(o RequesterOptions) *Requester {
	if o.Transport == nil {
		o.Transport = http.DefaultTransport.(*http.Transport).Clone()
	}

	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}

	if o.Balancers == nil {
		o.Balancers = loadbalancer.NewHouse()
	}

	if o.Guards == nil {
		o.Guards = circuit.NewGuardHouse(circuit.GuardHouseOptions{Metrics: o.Metrics})
	}

	insecureTransport := o.Transport.Clone()
	if insecureTransport.TLSClientConfig == nil {
		insecureTransport.TLSClientConfig = &tls.Config{}
	}

	insecureTransport.TLSClientConfig.InsecureSkipVerify = true

	return &Requester{
		balancers: o.Balancers,
		guards:    o.Guards,
		discovery: o.Discovery,
		limits:    o.RateLimits,
		metrics:   o.Metrics,
		timeout:   o.Timeout,
		client:    &http.Client{Transport: o.Transport},
		insecure:  &http.Client{Transport: insecureTransport},
		upgrade:   &upgradeProxy{},
		insecureU: &upgradeProxy{insecure: true},
	}
}

func (r *Requester) services(route *routing.DownstreamRoute) loadbalancer.Services {
	return r.discovery.StaticOrPolled(route).Get
}

func downstreamURL(rc *RequestContext, route *routing.DownstreamRoute, i discovery.Instance) string {
	scheme := route.DownstreamScheme
	if scheme == "" {
		scheme = "http"
	}

	u := url.URL{
		Scheme:   scheme,
		Host:     i.Address(),
		Path:     routing.Substitute(route.DownstreamPathTemplate, rc.Bindings),
		RawQuery: rc.Query,
	}

	return u.String()
}

// leaseRequest provides the headers and the context of the request to the
// load balancers.
func leaseRequest(rc *RequestContext) *http.Request {
	r := &http.Request{
		Method: rc.Method,
		URL:    &url.URL{Path: rc.Path, RawQuery: rc.Query},
		Header: rc.Header,
		Host:   rc.Host,
	}

	return r.WithContext(rc.Context())
}

// Execute executes the downstream call of the route set on the request
// context. Upgrade requests are tunneled to the leased instance.
func (r *Requester) Execute(rc *RequestContext) {
	route := rc.Route

	quota, err := r.limits.Check(route, rc.Header)
	if err != nil {
		r.metrics.IncRateLimited(route.LoadBalancerKey)
		rc.AddError(err)
		return
	}

	lb, err := r.balancers.Get(route, r.services(route))
	if err != nil {
		rc.AddError(err)
		return
	}

	instance, err := lb.Lease(leaseRequest(rc))
	if err != nil {
		log.Debugf("failed to lease an instance for %s: %v", route.LoadBalancerKey, err)
		r.metrics.IncLeaseErrors(route.LoadBalancerKey)
		rc.AddError(err)
		return
	}

	defer lb.Release(instance)
	r.metrics.IncLeases(route.LoadBalancerKey, instance.Address())

	u := downstreamURL(rc, route, instance)
	rc.Items[ItemDownstreamURL] = u
	rc.Items[ItemInstanceID] = instance.ID

	if rc.upgrade != nil {
		r.tunnel(rc, route, u)
		return
	}

	guard, err := r.guards.Get(route)
	if err != nil {
		rc.AddError(err)
		return
	}

	client := r.client
	if route.DangerousAcceptAnyServerCertificate {
		client = r.insecure
	}

	start := time.Now()
	rsp, err := guard.Do(rc.Context(), func(ctx context.Context) (*http.Response, error) {
		if route.QoS.Timeout > 0 {
			return send(ctx, client, rc, u)
		}

		return r.sendWithDefaultTimeout(ctx, client, rc, u)
	})

	if err != nil {
		rc.AddError(wrapDownstreamError(route, u, err))
		return
	}

	r.metrics.MeasureBackend(route.LoadBalancerKey, rsp.StatusCode, start)

	// the body was read by send
	body, _ := io.ReadAll(rsp.Body)
	rc.Response = &DownstreamResponse{
		StatusCode: rsp.StatusCode,
		Header:     cloneHeaderExcluding(rsp.Header, hopHeaders),
		Body:       body,
	}

	copyHeader(rc.Response.Header, quota)
}

// sendWithDefaultTimeout applies the timeout of the requester to the calls
// of the routes without their own.
func (r *Requester) sendWithDefaultTimeout(ctx context.Context, client *http.Client, rc *RequestContext, u string) (*http.Response, error) {
	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rsp, err := send(tctx, client, rc, u)
	if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return nil, circuit.ErrTimeout
	}

	return rsp, err
}

func wrapDownstreamError(route *routing.DownstreamRoute, u string, err error) error {
	if errors.Is(err, circuit.ErrCircuitOpen) || errors.Is(err, circuit.ErrTimeout) {
		return err
	}

	return &downstreamError{route: route.Key, url: u, err: err}
}

// send executes the http request, and reads the response body.
func send(ctx context.Context, client *http.Client, rc *RequestContext, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, rc.Method, u, rc.bodyReader())
	if err != nil {
		return nil, err
	}

	req.Header = cloneHeaderExcluding(rc.Header, hopHeaders)
	req.ContentLength = int64(len(rc.Body))

	rsp, err := client.Do(req)
	if err != nil {
		return nil, err
	}

	defer rsp.Body.Close()
	body, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, err
	}

	rsp.Body = io.NopCloser(bytes.NewReader(body))
	return rsp, nil
}

func (r *Requester) tunnel(rc *RequestContext, route *routing.DownstreamRoute, u string) {
	target, err := url.Parse(u)
	if err != nil {
		rc.AddError(err)
		return
	}

	req := rc.upgrade.r.Clone(rc.Context())
	req.URL = target
	req.Host = target.Host
	req.RequestURI = ""
	req.Body = http.NoBody
	req.ContentLength = int64(len(rc.Body))
	if len(rc.Body) > 0 {
		req.Body = io.NopCloser(bytes.NewReader(rc.Body))
	}

	p := r.upgrade
	if route.DangerousAcceptAnyServerCertificate {
		p = r.insecureU
	}

	if err := p.serveHTTP(rc.upgrade.w, req); err != nil {
		rc.AddError(&downstreamError{route: route.Key, url: u, err: err})
		return
	}

	rc.handled = true
}
