package proxy

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/zalando/gateway/routing"
)

// Item keys set by the requester.
const (
	ItemDownstreamURL = "DownstreamUrl"
	ItemInstanceID    = "DownstreamInstanceId"
)

// DownstreamResponse is a downstream response read into memory.
type DownstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// RequestContext carries an upstream request through the execution of its
// downstream calls. Fan-out executes a clone per downstream call.
type RequestContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	ID         string
	Method     string
	Path       string
	Query      string
	Host       string
	Scheme     string
	RemoteAddr string
	Header     http.Header

	// Body is shared between the clones and must not be modified.
	Body []byte

	Bindings []routing.Binding

	// Principal identifies the caller, when an authenticating handler in
	// front of the proxy has set it.
	Principal string

	// Items holds the values set while executing the request.
	Items map[string]any

	// Route is the downstream route executed with this context.
	Route *routing.DownstreamRoute

	Response *DownstreamResponse
	Errors   []error

	upgrade *upgradeTarget
	handled bool
}

type upgradeTarget struct {
	w http.ResponseWriter
	r *http.Request
}

func cloneHeader(h http.Header) http.Header {
	hh := make(http.Header, len(h))
	copyHeader(hh, h)
	return hh
}

func copyHeader(to, from http.Header) {
	for k, v := range from {
		to[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
	}
}

// NewRequestContext reads the body of an upstream request and creates its
// context.
func NewRequestContext(r *http.Request) (*RequestContext, error) {
	var body []byte
	if r.Body != nil {
		var err error
		body, err = io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	return &RequestContext{
		ctx:        r.Context(),
		ID:         uuid.New().String(),
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      r.URL.RawQuery,
		Host:       r.Host,
		Scheme:     scheme,
		RemoteAddr: r.RemoteAddr,
		Header:     cloneHeader(r.Header),
		Body:       body,
		Items:      make(map[string]any),
	}, nil
}

// Context returns the context of the request. It is cancelled when the
// upstream request is cancelled.
func (rc *RequestContext) Context() context.Context {
	if rc.ctx == nil {
		return context.Background()
	}

	return rc.ctx
}

// Clone creates a context for a downstream call of the request. The clone
// has its own headers, bindings and items, and a context derived from the
// original one.
func (rc *RequestContext) Clone() *RequestContext {
	ctx, cancel := context.WithCancel(rc.Context())
	return &RequestContext{
		ctx:        ctx,
		cancel:     cancel,
		ID:         uuid.New().String(),
		Method:     rc.Method,
		Path:       rc.Path,
		Query:      rc.Query,
		Host:       rc.Host,
		Scheme:     rc.Scheme,
		RemoteAddr: rc.RemoteAddr,
		Header:     cloneHeader(rc.Header),
		Body:       rc.Body,
		Bindings:   append([]routing.Binding(nil), rc.Bindings...),
		Principal:  rc.Principal,
		Items:      make(map[string]any),
	}
}

// release cancels the context of a clone.
func (rc *RequestContext) release() {
	if rc.cancel != nil {
		rc.cancel()
	}
}

// AddError records a failure of the request.
func (rc *RequestContext) AddError(err error) {
	rc.Errors = append(rc.Errors, err)
}

// HasErrors returns true when the request failed.
func (rc *RequestContext) HasErrors() bool {
	return len(rc.Errors) > 0
}

// IsUpgrade returns true for protocol upgrade requests, e.g. WebSocket.
func (rc *RequestContext) IsUpgrade() bool {
	return isUpgradeRequest(rc.Header)
}

// copyResultFrom copies the outcome of a downstream call to the context.
func (rc *RequestContext) copyResultFrom(leg *RequestContext) {
	rc.Response = leg.Response
	rc.Errors = append(rc.Errors, leg.Errors...)
}

// recordDownstreamURLs stores the URLs called by the downstream calls of
// an aggregate on the context of the upstream request.
func (rc *RequestContext) recordDownstreamURLs(legs ...*RequestContext) {
	var urls []string
	for _, leg := range legs {
		urls = append(urls, leg.downstreamURLs()...)
	}

	if len(urls) > 0 {
		rc.Items[ItemDownstreamURL] = urls
	}
}

// downstreamURLs returns the URLs called for the request, set by the
// requester for a single call, or by the multiplexer for aggregates.
func (rc *RequestContext) downstreamURLs() []string {
	switch v := rc.Items[ItemDownstreamURL].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	default:
		return nil
	}
}

func (rc *RequestContext) bodyReader() io.Reader {
	if len(rc.Body) == 0 {
		return http.NoBody
	}

	return bytes.NewReader(rc.Body)
}
