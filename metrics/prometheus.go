package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	promNamespace             = "gateway"
	promLoadBalancerSubsystem = "loadbalancer"
	promCircuitSubsystem      = "circuit"
	promDiscoverySubsystem    = "discovery"
	promBackendSubsystem      = "backend"
	promMultiplexSubsystem    = "multiplex"
	promRateLimitSubsystem    = "ratelimit"
)

// Circuit breaker states as reported by the circuit_state gauge.
const (
	CircuitClosed   = 0
	CircuitHalfOpen = 1
	CircuitOpen     = 2
)

// Options configure the metrics.
type Options struct {
	// Prefix replaces the default namespace, gateway.
	Prefix string

	// HistogramBuckets of the duration histograms. Defaults to the
	// prometheus default buckets.
	HistogramBuckets []float64

	// EnableRuntimeMetrics registers the Go runtime and process
	// collectors.
	EnableRuntimeMetrics bool
}

// Metrics collects the metrics of the gateway with prometheus. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	leasesM          *prometheus.CounterVec
	leaseErrorsM     *prometheus.CounterVec
	circuitStateM    *prometheus.GaugeVec
	pollErrorsM      *prometheus.CounterVec
	instancesM       *prometheus.GaugeVec
	backendDurationM *prometheus.HistogramVec
	legsM            prometheus.Histogram
	rateLimitedM     *prometheus.CounterVec

	registry *prometheus.Registry
	handler  http.Handler
}

// New creates the metrics with a private registry.
func New(o Options) *Metrics {
	namespace := promNamespace
	if o.Prefix != "" {
		namespace = strings.TrimSuffix(o.Prefix, ".")
	}

	buckets := o.HistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	m := &Metrics{
		leasesM: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: promLoadBalancerSubsystem,
			Name:      "leases_total",
			Help:      "The total of leased downstream instances.",
		}, []string{"route", "host"}),
		leaseErrorsM: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: promLoadBalancerSubsystem,
			Name:      "lease_errors_total",
			Help:      "The total of failed leases.",
		}, []string{"route"}),
		circuitStateM: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: promCircuitSubsystem,
			Name:      "state",
			Help:      "The state of the circuit breaker of a route: 0 closed, 1 half-open, 2 open.",
		}, []string{"route"}),
		pollErrorsM: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: promDiscoverySubsystem,
			Name:      "poll_errors_total",
			Help:      "The total of failed service discovery polls.",
		}, []string{"service"}),
		instancesM: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: promDiscoverySubsystem,
			Name:      "instances",
			Help:      "The number of instances of a service in the last successful poll.",
		}, []string{"service"}),
		backendDurationM: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: promBackendSubsystem,
			Name:      "duration_seconds",
			Help:      "Duration in seconds of a downstream request.",
			Buckets:   buckets,
		}, []string{"route", "code"}),
		legsM: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: promMultiplexSubsystem,
			Name:      "legs",
			Help:      "The number of downstream requests made for a multiplexed request.",
			Buckets:   []float64{1, 2, 3, 5, 8, 13, 21},
		}),
		rateLimitedM: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: promRateLimitSubsystem,
			Name:      "rejected_total",
			Help:      "The total of requests rejected by the rate limit of a route.",
		}, []string{"route"}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.leasesM,
		m.leaseErrorsM,
		m.circuitStateM,
		m.pollErrorsM,
		m.instancesM,
		m.backendDurationM,
		m.legsM,
		m.rateLimitedM,
	)

	if o.EnableRuntimeMetrics {
		m.registry.MustRegister(collectors.NewGoCollector())
		m.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}

	m.handler = promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return m
}

// Registry returns the prometheus registry of the metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ServeHTTP serves the metrics in the prometheus exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.handler.ServeHTTP(w, r)
}

func (m *Metrics) IncLeases(route, host string) {
	if m == nil {
		return
	}

	m.leasesM.WithLabelValues(route, host).Inc()
}

func (m *Metrics) IncLeaseErrors(route string) {
	if m == nil {
		return
	}

	m.leaseErrorsM.WithLabelValues(route).Inc()
}

func (m *Metrics) SetCircuitState(route string, state int) {
	if m == nil {
		return
	}

	m.circuitStateM.WithLabelValues(route).Set(float64(state))
}

func (m *Metrics) IncDiscoveryErrors(service string) {
	if m == nil {
		return
	}

	m.pollErrorsM.WithLabelValues(service).Inc()
}

func (m *Metrics) SetDiscoveredInstances(service string, n int) {
	if m == nil {
		return
	}

	m.instancesM.WithLabelValues(service).Set(float64(n))
}

// MeasureBackend observes the duration of a downstream request. A code of
// zero means that no response was received.
func (m *Metrics) MeasureBackend(route string, code int, start time.Time) {
	if m == nil {
		return
	}

	m.backendDurationM.WithLabelValues(route, strconv.Itoa(code)).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveLegs(n int) {
	if m == nil {
		return
	}

	m.legsM.Observe(float64(n))
}

func (m *Metrics) IncRateLimited(route string) {
	if m == nil {
		return
	}

	m.rateLimitedM.WithLabelValues(route).Inc()
}
