/*
This command runs the gateway with the routes of a yaml config file.

For the list of command line options, run:

	gateway -help

An example config file can be found in config/testdata.
*/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/zalando/gateway/circuit"
	"github.com/zalando/gateway/config"
	"github.com/zalando/gateway/discovery"
	"github.com/zalando/gateway/loadbalancer"
	"github.com/zalando/gateway/logging"
	"github.com/zalando/gateway/metrics"
	"github.com/zalando/gateway/proxy"
	"github.com/zalando/gateway/ratelimit"
	"github.com/zalando/gateway/routing"
)

const shutdownTimeout = 30 * time.Second

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		log.Errorf("Failed to write health check: %v", err)
	}
}

func serveSupport(address string, m *metrics.Metrics) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m)
	mux.HandleFunc("/healthz", healthCheck)

	server := &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: time.Minute,
	}

	go func() {
		log.Infof("support listener on %s", address)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("support listener error: %v", err)
		}
	}()

	return server
}

func run(cfg *config.Config) error {
	if err := logging.Init(cfg.ToLoggingOptions()); err != nil {
		return err
	}

	routes, global, err := cfg.ToRoutes()
	if err != nil {
		return err
	}

	if len(routes) == 0 && !global.ServiceDiscovery.Enabled() {
		log.Warn("no routes configured and service discovery disabled")
	}

	m := metrics.New(cfg.ToMetricsOptions())

	var registry *discovery.Registry
	if global.ServiceDiscovery.Enabled() {
		factory, err := discovery.NewProviderFactory(global.ServiceDiscovery)
		if err != nil {
			return err
		}

		registry = discovery.NewRegistry(factory, cfg.ToPollerOptions(m))
		defer registry.Close()
	}

	balancers := loadbalancer.NewHouse()
	defer balancers.Close()

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost

	requester := proxy.NewRequester(proxy.RequesterOptions{
		Balancers:  balancers,
		Guards:     circuit.NewGuardHouse(cfg.ToGuardHouseOptions(m)),
		Discovery:  registry,
		Transport:  transport,
		Timeout:    cfg.RequestTimeout(),
		Metrics:    m,
		RateLimits: ratelimit.NewRegistry(ratelimit.Options{}),
	})

	p := proxy.New(proxy.Options{
		Resolver:          routing.NewResolver(routes, global),
		Multiplexer:       proxy.NewMultiplexer(requester, proxy.NewAggregatorRegistry(), m),
		AccessLogDisabled: cfg.AccessLogDisabled,
	})

	var support *http.Server
	if cfg.MetricsAddress != "" {
		support = serveSupport(cfg.MetricsAddress, m)
	}

	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           p,
		ReadHeaderTimeout: time.Minute,
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGTERM, os.Interrupt)
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sig
		log.Info("Shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if support != nil {
			support.Shutdown(ctx)
		}

		server.Shutdown(ctx)
	}()

	log.Infof("listening on %s, %d routes", cfg.Address, len(routes))
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	// wait for the open requests
	<-done
	return nil
}

func main() {
	cfg := config.NewConfig()
	if err := cfg.Parse(); err != nil {
		log.Fatalf("Error processing config: %s", err)
	}

	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}
