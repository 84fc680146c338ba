package circuit

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/zalando/gateway/metrics"
)

const (
	DefaultDurationOfBreak = 5 * time.Second
	MinDurationOfBreak     = 500 * time.Millisecond
	MaxDurationOfBreak     = 24 * time.Hour
)

type breaker struct {
	route    string
	failures int
	gb       *gobreaker.TwoStepCircuitBreaker
}

func durationOfBreak(d time.Duration) time.Duration {
	switch {
	case d < MinDurationOfBreak:
		return DefaultDurationOfBreak
	case d > MaxDurationOfBreak:
		return MaxDurationOfBreak
	default:
		return d
	}
}

func stateValue(s gobreaker.State) int {
	switch s {
	case gobreaker.StateOpen:
		return metrics.CircuitOpen
	case gobreaker.StateHalfOpen:
		return metrics.CircuitHalfOpen
	default:
		return metrics.CircuitClosed
	}
}

// newBreaker returns nil when the breaker is disabled. The duration of the
// break is expected to be normalized by durationOfBreak.
func newBreaker(route string, failures int, d time.Duration, m *metrics.Metrics) *breaker {
	if failures <= 0 {
		return nil
	}

	b := &breaker{route: route, failures: failures}
	b.gb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        route,
		MaxRequests: 1,
		Timeout:     d,
		ReadyToTrip: b.readyToTrip,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if to == gobreaker.StateClosed {
				log.Infof("circuit breaker %v went from %v to %v", name, from.String(), to.String())
			} else {
				log.Warnf("circuit breaker %v went from %v to %v", name, from.String(), to.String())
			}

			m.SetCircuitState(name, stateValue(to))
		},
	})

	m.SetCircuitState(route, metrics.CircuitClosed)
	return b
}

func (b *breaker) readyToTrip(c gobreaker.Counts) bool {
	return int(c.ConsecutiveFailures) >= b.failures
}

// allow returns false when the breaker is open, or when the half-open trial
// call is already in flight.
func (b *breaker) allow() (func(bool), bool) {
	done, err := b.gb.Allow()

	// this error can only indicate that the breaker is not closed
	if err != nil {
		return nil, false
	}

	return done, true
}

func (b *breaker) state() gobreaker.State {
	return b.gb.State()
}
