package ratelimit

import (
	"fmt"
	"math"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/zalando/gateway/routing"
)

const (
	DefaultClientIDHeader       = "ClientId"
	DefaultQuotaExceededMessage = "API calls quota exceeded! maximum admitted %d per %v."
	DefaultStatusCode           = http.StatusTooManyRequests
	DefaultCleanInterval        = time.Minute

	LimitHeader      = "X-Rate-Limit-Limit"
	RemainingHeader  = "X-Rate-Limit-Remaining"
	RetryAfterHeader = "Retry-After"
)

type rateLimitError string

func (e rateLimitError) Error() string { return string(e) }

const (
	ErrUnknownClient rateLimitError = "rate limited client could not be identified"
	ErrInvalidRule   rateLimitError = "invalid rate limit rule"
)

// QuotaExceededError is returned for the requests of a client that used up
// its quota.
type QuotaExceededError struct {
	Route      string
	Client     string
	StatusCode int
	Message    string
	RetryAfter time.Duration

	headers bool
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota of client %s exceeded for route %s", e.Client, e.Route)
}

// Header returns the Retry-After header of the rejected response, in
// seconds. It is empty when the headers are disabled for the route.
func (e *QuotaExceededError) Header() http.Header {
	if !e.headers {
		return nil
	}

	return http.Header{RetryAfterHeader: []string{strconv.Itoa(retryAfterSeconds(e.RetryAfter))}}
}

func retryAfterSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

type Options struct {
	// CleanInterval is the time after the bucket of an idle client is
	// dropped. Defaults to DefaultCleanInterval.
	CleanInterval time.Duration
}

type bucket struct {
	limit   int
	period  time.Duration
	limiter *rate.Limiter
	ts      time.Time
}

// Registry holds the token buckets of the clients of the routes.
type Registry struct {
	cleanInterval time.Duration
	now           func() time.Time

	mx        sync.Mutex
	buckets   map[string]*bucket
	lastClean time.Time
}

func NewRegistry(o Options) *Registry {
	if o.CleanInterval <= 0 {
		o.CleanInterval = DefaultCleanInterval
	}

	return &Registry{
		cleanInterval: o.CleanInterval,
		now:           time.Now,
		buckets:       make(map[string]*bucket),
		lastClean:     time.Now(),
	}
}

func (r *Registry) dropIdle(now time.Time) {
	if now.Sub(r.lastClean) < r.cleanInterval {
		return
	}

	r.lastClean = now
	for key, b := range r.buckets {
		if now.Sub(b.ts) > max(r.cleanInterval, b.period) {
			delete(r.buckets, key)
		}
	}
}

func (r *Registry) get(key string, o routing.RateLimitOptions, now time.Time) *rate.Limiter {
	r.mx.Lock()
	defer r.mx.Unlock()

	r.dropIdle(now)

	b, ok := r.buckets[key]
	if !ok || b.limit != o.Limit || b.period != o.Period {
		every := rate.Every(o.Period / time.Duration(o.Limit))
		b = &bucket{
			limit:   o.Limit,
			period:  o.Period,
			limiter: rate.NewLimiter(every, o.Limit),
		}

		r.buckets[key] = b
	}

	b.ts = now
	return b.limiter
}

func message(o routing.RateLimitOptions) string {
	format := o.QuotaExceededMessage
	if format == "" {
		format = DefaultQuotaExceededMessage
	}

	return fmt.Sprintf(format, o.Limit, o.Period)
}

// Check takes a request of a client from the quota of the route. It
// returns the headers informing the client about its quota, or an error when
// the request must be rejected. A nil registry doesn't limit any request.
func (r *Registry) Check(route *routing.DownstreamRoute, h http.Header) (http.Header, error) {
	o := route.RateLimit
	if r == nil || !o.Enabled {
		return nil, nil
	}

	if o.Limit <= 0 || o.Period <= 0 {
		log.Warnf("rate limit of route %s is misconfigured: %d per %v", route.Key, o.Limit, o.Period)
		return nil, fmt.Errorf("%w for route %s", ErrInvalidRule, route.Key)
	}

	header := o.ClientIDHeader
	if header == "" {
		header = DefaultClientIDHeader
	}

	client := h.Get(header)
	if client == "" {
		return nil, fmt.Errorf("%w for route %s", ErrUnknownClient, route.Key)
	}

	if slices.Contains(o.ClientWhitelist, client) {
		return nil, nil
	}

	now := r.now()
	l := r.get(route.LoadBalancerKey+"|"+client, o, now)
	res := l.ReserveN(now, 1)
	if d := res.DelayFrom(now); d > 0 {
		res.CancelAt(now)
		log.Debugf("blocked request of client %s on route %s, quota %d per %v exceeded", client, route.Key, o.Limit, o.Period)

		code := o.StatusCode
		if code == 0 {
			code = DefaultStatusCode
		}

		return nil, &QuotaExceededError{
			Route:      route.Key,
			Client:     client,
			StatusCode: code,
			Message:    message(o),
			RetryAfter: d,
			headers:    !o.DisableHeaders,
		}
	}

	if o.DisableHeaders {
		return nil, nil
	}

	remaining := max(int(l.TokensAt(now)), 0)
	return http.Header{
		LimitHeader:     []string{strconv.Itoa(o.Limit)},
		RemainingHeader: []string{strconv.Itoa(remaining)},
	}, nil
}
