package circuit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zalando/gateway/metrics"
	"github.com/zalando/gateway/routing"
)

type qosError string

func (e qosError) Error() string { return string(e) }

const (
	ErrCircuitOpen             qosError = "circuit is open"
	ErrTimeout                 qosError = "timeout calling downstream"
	ErrUnableToFindQoSProvider qosError = "unable to find qos provider"
)

// TimeoutStrategy defines whether the guard waits for the call after the
// deadline was exceeded.
type TimeoutStrategy int

const (
	// Optimistic cancels the context of the call, and waits for it to
	// return.
	Optimistic TimeoutStrategy = iota

	// Pessimistic returns at the deadline, and drains the result of the
	// call in the background.
	Pessimistic
)

// TimeoutStrategyFromString parses a timeout strategy. The empty string
// means Optimistic.
func TimeoutStrategyFromString(s string) (TimeoutStrategy, error) {
	switch strings.ToLower(s) {
	case "", "optimistic":
		return Optimistic, nil
	case "pessimistic":
		return Pessimistic, nil
	default:
		return Optimistic, fmt.Errorf("%w: invalid timeout strategy %q", ErrUnableToFindQoSProvider, s)
	}
}

func (s TimeoutStrategy) String() string {
	if s == Pessimistic {
		return "pessimistic"
	}

	return "optimistic"
}

// Guard protects the downstream calls of a route.
//
// The context passed to the call is cancelled when Do returns, therefore the
// call needs to consume the response body before returning. The guard never
// retries.
type Guard interface {
	Do(ctx context.Context, call func(context.Context) (*http.Response, error)) (*http.Response, error)
}

// NoopGuard executes the calls without protection.
type NoopGuard struct{}

func (NoopGuard) Do(ctx context.Context, call func(context.Context) (*http.Response, error)) (*http.Response, error) {
	return call(ctx)
}

type result struct {
	rsp *http.Response
	err error
}

type guard struct {
	timeout  time.Duration
	strategy TimeoutStrategy
	breaker  *breaker
}

// NewGuard creates the guard of a route. When neither the timeout nor the
// breaker are enabled in the options, it returns a NoopGuard.
func NewGuard(route string, o routing.QoSOptions, m *metrics.Metrics) (Guard, error) {
	if route == "" {
		return nil, fmt.Errorf("%w: missing route key", ErrUnableToFindQoSProvider)
	}

	strategy, err := TimeoutStrategyFromString(o.TimeoutStrategy)
	if err != nil {
		return nil, err
	}

	if !o.Enabled() {
		return NoopGuard{}, nil
	}

	return &guard{
		timeout:  o.Timeout,
		strategy: strategy,
		breaker:  newBreaker(route, o.ExceptionsAllowedBeforeBreaking, durationOfBreak(o.DurationOfBreak), m),
	}, nil
}

func (g *guard) Do(ctx context.Context, call func(context.Context) (*http.Response, error)) (*http.Response, error) {
	var done func(bool)
	if g.breaker != nil {
		var ok bool
		if done, ok = g.breaker.allow(); !ok {
			return nil, ErrCircuitOpen
		}
	}

	rsp, err := g.call(ctx, call)
	if done != nil {
		// calls abandoned by the caller say nothing about the downstream
		// service, but the trial call of a half-open breaker needs an outcome
		done(ctx.Err() != nil || err == nil && rsp != nil && rsp.StatusCode < http.StatusInternalServerError)
	}

	return rsp, err
}

func (g *guard) call(ctx context.Context, call func(context.Context) (*http.Response, error)) (*http.Response, error) {
	if g.timeout <= 0 {
		return call(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, g.timeout)
	if g.strategy == Pessimistic {
		return callPessimistic(ctx, tctx, cancel, call)
	}

	defer cancel()
	rsp, err := call(tctx)
	return timedOut(ctx, tctx, rsp, err)
}

func callPessimistic(
	ctx, tctx context.Context,
	cancel context.CancelFunc,
	call func(context.Context) (*http.Response, error),
) (*http.Response, error) {
	c := make(chan result, 1)
	go func() {
		rsp, err := call(tctx)
		c <- result{rsp: rsp, err: err}
	}()

	select {
	case r := <-c:
		cancel()
		return timedOut(ctx, tctx, r.rsp, r.err)
	case <-tctx.Done():
		go func() {
			defer cancel()
			if r := <-c; r.rsp != nil && r.rsp.Body != nil {
				r.rsp.Body.Close()
			}
		}()

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		return nil, ErrTimeout
	}
}

// timedOut maps a failed call to ErrTimeout when the deadline of the guard
// was exceeded, and not the one of the incoming request.
func timedOut(ctx, tctx context.Context, rsp *http.Response, err error) (*http.Response, error) {
	if err == nil {
		return rsp, nil
	}

	if ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		if rsp != nil && rsp.Body != nil {
			rsp.Body.Close()
		}

		return nil, ErrTimeout
	}

	return rsp, err
}
