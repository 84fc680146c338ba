package config

import (
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/zalando/gateway/circuit"
	"github.com/zalando/gateway/discovery"
	"github.com/zalando/gateway/logging"
	"github.com/zalando/gateway/metrics"
	"github.com/zalando/gateway/proxy"
)

const (
	defaultAddress        = ":9090"
	defaultMetricsAddress = ":9911"
	defaultLogLevel       = "INFO"
)

type Config struct {
	ConfigFile string
	Flags      *flag.FlagSet

	// generic:
	Address        string `yaml:"address"`
	MetricsAddress string `yaml:"metrics-address"`

	// downstream:
	RequestTimeoutMs    int `yaml:"request-timeout-ms"`
	GuardIdleTTLMs      int `yaml:"guard-idle-ttl-ms"`
	MaxIdleConnsPerHost int `yaml:"max-idle-conns-per-host"`

	// logging, metrics:
	ApplicationLogLevel       log.Level `yaml:"-"`
	ApplicationLogLevelString string    `yaml:"application-log-level"`
	ApplicationLogPrefix      string    `yaml:"application-log-prefix"`
	ApplicationLogJSONEnabled bool      `yaml:"application-log-json-enabled"`
	AccessLogDisabled         bool      `yaml:"access-log-disabled"`
	AccessLogJSONEnabled      bool      `yaml:"access-log-json-enabled"`
	MetricsPrefix             string    `yaml:"metrics-prefix"`
	EnableRuntimeMetrics      bool      `yaml:"enable-runtime-metrics"`

	// routes:
	Routes     []RouteConfig          `yaml:"routes"`
	Aggregates []AggregateRouteConfig `yaml:"aggregates"`
	Global     GlobalConfig           `yaml:"global"`
}

func NewConfig() *Config {
	cfg := new(Config)

	flag := flag.NewFlagSet("", flag.ExitOnError)
	flag.StringVar(&cfg.ConfigFile, "config", "", "if provided the routes and the flags will be loaded from this yaml config file. Flags given on the command line override the values of the file")
	flag.StringVar(&cfg.Address, "address", defaultAddress, "network address that the gateway should listen on")
	flag.StringVar(&cfg.MetricsAddress, "metrics-address", defaultMetricsAddress, "network address used for exposing the /metrics endpoint. An empty value disables the listener")
	flag.IntVar(&cfg.RequestTimeoutMs, "request-timeout-ms", int(proxy.DefaultTimeout/time.Millisecond), "timeout of the downstream requests of the routes without a QoS timeout")
	flag.IntVar(&cfg.GuardIdleTTLMs, "guard-idle-ttl-ms", int(circuit.DefaultIdleTTL/time.Millisecond), "the QoS guards of the routes not used for this time are recreated on the next request")
	flag.IntVar(&cfg.MaxIdleConnsPerHost, "max-idle-conns-per-host", 64, "maximum idle connections per downstream host")
	flag.StringVar(&cfg.ApplicationLogLevelString, "application-log-level", defaultLogLevel, "log level for application logs, possible values: PANIC, FATAL, ERROR, WARN, INFO, DEBUG, TRACE")
	flag.StringVar(&cfg.ApplicationLogPrefix, "application-log-prefix", "[APP]", "prefix for each log entry")
	flag.BoolVar(&cfg.ApplicationLogJSONEnabled, "application-log-json-enabled", false, "when this flag is set, log in JSON format is used")
	flag.BoolVar(&cfg.AccessLogDisabled, "access-log-disabled", false, "when this flag is set, no access log is printed")
	flag.BoolVar(&cfg.AccessLogJSONEnabled, "access-log-json-enabled", false, "when this flag is set, log in JSON format is used")
	flag.StringVar(&cfg.MetricsPrefix, "metrics-prefix", "", "allows setting a custom namespace for the metrics, defaults to gateway")
	flag.BoolVar(&cfg.EnableRuntimeMetrics, "runtime-metrics", true, "enables Go runtime and process metrics")

	cfg.Flags = flag
	return cfg
}

func validate(c *Config) error {
	if _, err := log.ParseLevel(c.ApplicationLogLevelString); err != nil {
		return err
	}

	if c.RequestTimeoutMs < 0 {
		return fmt.Errorf("invalid request timeout: %d", c.RequestTimeoutMs)
	}

	if c.GuardIdleTTLMs < 0 {
		return fmt.Errorf("invalid guard idle TTL: %d", c.GuardIdleTTLMs)
	}

	_, _, err := c.ToRoutes()
	return err
}

func (c *Config) Parse() error {
	return c.ParseArgs(os.Args[0], os.Args[1:])
}

// ParseArgs parses the command line, and loads the config file when one is
// given.
func (c *Config) ParseArgs(progname string, args []string) error {
	c.Flags.Init(progname, flag.ExitOnError)
	err := c.Flags.Parse(args)
	if err != nil {
		return err
	}

	// check if arguments were correctly parsed.
	if len(c.Flags.Args()) != 0 {
		return fmt.Errorf("invalid arguments: %s", c.Flags.Args())
	}

	if c.ConfigFile != "" {
		if err := c.load(c.ConfigFile); err != nil {
			return err
		}

		// the flags of the command line take precedence
		err = c.Flags.Parse(args)
		if err != nil {
			return err
		}
	}

	if err := validate(c); err != nil {
		return err
	}

	c.ApplicationLogLevel, _ = log.ParseLevel(c.ApplicationLogLevelString)
	return nil
}

func (c *Config) load(path string) error {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("invalid config file: %w", err)
	}

	err = yaml.Unmarshal(yamlFile, c)
	if err != nil {
		return fmt.Errorf("unmarshalling config file error: %w", err)
	}

	return nil
}

// Load reads a yaml config file, without parsing the command line.
func Load(path string) (*Config, error) {
	c := NewConfig()
	if err := c.ParseArgs("gateway", []string{"-config", path}); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *Config) ToLoggingOptions() logging.Options {
	return logging.Options{
		ApplicationLogLevel:       c.ApplicationLogLevel.String(),
		ApplicationLogPrefix:      c.ApplicationLogPrefix,
		ApplicationLogJSONEnabled: c.ApplicationLogJSONEnabled,
		AccessLogDisabled:         c.AccessLogDisabled,
		AccessLogJSONEnabled:      c.AccessLogJSONEnabled,
	}
}

func (c *Config) ToMetricsOptions() metrics.Options {
	return metrics.Options{
		Prefix:               c.MetricsPrefix,
		EnableRuntimeMetrics: c.EnableRuntimeMetrics,
	}
}

func (c *Config) ToPollerOptions(m *metrics.Metrics) discovery.PollerOptions {
	return discovery.PollerOptions{
		Interval: millis(c.Global.ServiceDiscoveryProvider.PollingIntervalMs),
		Metrics:  m,
	}
}

func (c *Config) ToGuardHouseOptions(m *metrics.Metrics) circuit.GuardHouseOptions {
	return circuit.GuardHouseOptions{
		IdleTTL: millis(c.GuardIdleTTLMs),
		Metrics: m,
	}
}

func (c *Config) RequestTimeout() time.Duration {
	return millis(c.RequestTimeoutMs)
}
