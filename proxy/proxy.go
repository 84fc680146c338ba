package proxy

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zalando/gateway/circuit"
	"github.com/zalando/gateway/loadbalancer"
	"github.com/zalando/gateway/logging"
	"github.com/zalando/gateway/ratelimit"
	"github.com/zalando/gateway/routing"
)

// Resolver resolves the route of an upstream request.
type Resolver interface {
	Resolve(*http.Request) (*routing.Match, error)
}

type Options struct {
	Resolver    Resolver
	Multiplexer *Multiplexer

	// When set, no access log entry is logged for the requests.
	AccessLogDisabled bool
}

// Proxy is the HTTP handler of the gateway. It resolves the route of the
// incoming requests, executes the downstream calls of the route, and
// writes the response.
type Proxy struct {
	resolver          Resolver
	multiplexer       *Multiplexer
	accessLogDisabled bool
}

// proxyError is used to map the errors of the request execution to the
// status code, and optional headers, of the response.
type proxyError struct {
	err              error
	code             int
	additionalHeader http.Header
	body             string
}

func (e proxyError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("proxy error %d: %v", e.code, e.err)
	}

	return fmt.Sprintf("proxy error: %d", e.code)
}

func (e proxyError) Unwrap() error { return e.err }

func New(o Options) *Proxy {
	return &Proxy{
		resolver:          o.Resolver,
		multiplexer:       o.Multiplexer,
		accessLogDisabled: o.AccessLogDisabled,
	}
}

func newProxyError(err error) *proxyError {
	var (
		perr     *proxyError
		notFound *routing.RouteNotFoundError
		dsErr    *downstreamError
		quotaErr *ratelimit.QuotaExceededError
	)

	switch {
	case errors.As(err, &perr):
		return perr
	case errors.As(err, &notFound):
		return &proxyError{err: err, code: http.StatusNotFound}
	case errors.Is(err, loadbalancer.ErrServicesNull), errors.Is(err, loadbalancer.ErrServicesEmpty):
		return &proxyError{err: err, code: http.StatusServiceUnavailable}
	case errors.Is(err, loadbalancer.ErrUnableToFindLoadBalancer):
		return &proxyError{err: err, code: http.StatusNotFound}
	case errors.Is(err, circuit.ErrUnableToFindQoSProvider):
		return &proxyError{err: err, code: http.StatusNotFound}
	case errors.Is(err, circuit.ErrCircuitOpen):
		return &proxyError{
			err:              err,
			code:             http.StatusServiceUnavailable,
			additionalHeader: http.Header{"X-Circuit-Open": []string{"true"}},
		}
	case errors.Is(err, circuit.ErrTimeout):
		return &proxyError{err: err, code: http.StatusServiceUnavailable}
	case errors.As(err, &quotaErr):
		return &proxyError{
			err:              err,
			code:             quotaErr.StatusCode,
			additionalHeader: quotaErr.Header(),
			body:             quotaErr.Message,
		}
	case errors.Is(err, ratelimit.ErrUnknownClient), errors.Is(err, ratelimit.ErrInvalidRule):
		return &proxyError{err: err, code: http.StatusServiceUnavailable}
	case errors.Is(err, ErrCouldNotFindAggregator):
		return &proxyError{err: err, code: http.StatusNotFound}
	case errors.As(err, &dsErr):
		return &proxyError{err: err, code: http.StatusBadGateway}
	default:
		return &proxyError{err: err, code: http.StatusInternalServerError}
	}
}

func (p *Proxy) errorResponse(w http.ResponseWriter, rc *RequestContext, err error) {
	perr := newProxyError(err)
	if len(perr.additionalHeader) > 0 {
		copyHeader(w.Header(), perr.additionalHeader)
	}

	switch perr.code {
	case http.StatusNotFound, http.StatusTooManyRequests:
		log.Debugf("request %s %s not served: %v", rc.Method, rc.Path, err)
	case http.StatusInternalServerError:
		log.Errorf("error while proxying %s %s, request %s: %v", rc.Method, rc.Path, rc.ID, err)
	default:
		log.Warnf("error while proxying %s %s, status code %d: %v", rc.Method, rc.Path, perr.code, err)
	}

	if perr.body == "" {
		w.Header().Set("Content-Length", "0")
		w.WriteHeader(perr.code)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(perr.body)))
	w.WriteHeader(perr.code)
	if _, err := w.Write([]byte(perr.body)); err != nil {
		log.Debugf("error while writing the error response: %v", err)
	}
}

func (p *Proxy) serveResponse(w http.ResponseWriter, rsp *DownstreamResponse) {
	for k, v := range rsp.Header {
		if !hopHeaders[k] {
			w.Header()[k] = v
		}
	}

	w.Header().Set("Content-Length", strconv.Itoa(len(rsp.Body)))
	w.WriteHeader(rsp.StatusCode)
	if _, err := w.Write(rsp.Body); err != nil {
		log.Debugf("error while writing the response: %v", err)
	}
}

func (p *Proxy) logAccess(lw *logging.LoggingWriter, r *http.Request, rc *RequestContext, route string, start time.Time) {
	if p.accessLogDisabled {
		return
	}

	entry := &logging.AccessEntry{
		Request:      r,
		StatusCode:   lw.GetCode(),
		ResponseSize: lw.GetBytes(),
		RequestTime:  start,
		Duration:     time.Since(start),
		Route:        route,
	}

	if rc != nil {
		entry.RequestID = rc.ID
		entry.Downstream = rc.downstreamURLs()
	}

	logging.LogAccess(entry)
}

// http.Handler implementation
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	lw := logging.NewLoggingWriter(w)
	start := time.Now()

	var (
		rc    *RequestContext
		route string
	)

	defer func() { p.logAccess(lw, r, rc, route, start) }()

	rc, err := NewRequestContext(r)
	if err != nil {
		p.errorResponse(lw, &RequestContext{Method: r.Method, Path: r.URL.Path}, &proxyError{
			err:  err,
			code: http.StatusBadRequest,
		})

		return
	}

	m, err := p.resolver.Resolve(r)
	if err != nil {
		p.errorResponse(lw, rc, err)
		return
	}

	switch {
	case m.Route.UpstreamPathTemplate != nil:
		route = m.Route.UpstreamPathTemplate.String()
	case len(m.Route.Downstream) > 0:
		route = m.Route.Downstream[0].Key
	}

	rc.Bindings = m.Bindings
	if rc.IsUpgrade() {
		rc.upgrade = &upgradeTarget{w: lw, r: r}
	}

	result := p.multiplexer.Multiplex(rc, m.Route)
	switch {
	case result.handled:
	case result.HasErrors():
		p.errorResponse(lw, rc, result.Errors[0])
	case result.Response == nil:
		p.errorResponse(lw, rc, errMissingResponse)
	default:
		p.serveResponse(lw, result.Response)
	}
}
