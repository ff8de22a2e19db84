package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kstaniek/go-serialport-server/internal/hub"
	"github.com/kstaniek/go-serialport-server/internal/serialport"
)

const envPrefix = "SERIALPORT_SERVER_"

type appConfig struct {
	listenAddr      string
	driver          string
	logFormat       string
	logLevel        string
	metricsAddr     string
	hubBuffer       int
	hubPolicy       string
	logMetricsEvery time.Duration
	maxClients      int
	handshakeTO     time.Duration
	clientReadTO    time.Duration
	readInterval    time.Duration
	readChunkSize   int
	writeQueue      int
	mdnsEnable      bool
	mdnsName        string
}

func defaultConfig() *appConfig {
	return &appConfig{
		listenAddr:    ":20100",
		driver:        "bugst",
		logFormat:     "text",
		logLevel:      "info",
		hubBuffer:     512,
		hubPolicy:     "drop",
		handshakeTO:   3 * time.Second,
		clientReadTO:  60 * time.Second,
		readInterval:  200 * time.Millisecond,
		readChunkSize: 1024,
		writeQueue:    64,
	}
}

// parseFlags parses args into a validated config. The bool result reports -version.
func parseFlags(args []string) (*appConfig, bool, error) {
	cfg := defaultConfig()
	fs := flag.NewFlagSet("serialport-server", flag.ContinueOnError)
	fs.StringVar(&cfg.listenAddr, "listen", cfg.listenAddr, "TCP listen address")
	fs.StringVar(&cfg.driver, "driver", cfg.driver, "Serial driver: bugst|tarm")
	fs.StringVar(&cfg.logFormat, "log-format", cfg.logFormat, "Log format: text|json")
	fs.StringVar(&cfg.logLevel, "log-level", cfg.logLevel, "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	fs.IntVar(&cfg.hubBuffer, "hub-buffer", cfg.hubBuffer, "Per-client event buffer")
	fs.StringVar(&cfg.hubPolicy, "hub-policy", cfg.hubPolicy, "Backpressure policy: drop|kick")
	fs.DurationVar(&cfg.logMetricsEvery, "log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	fs.IntVar(&cfg.maxClients, "max-clients", 0, "Maximum simultaneous TCP clients (0 = unlimited)")
	fs.DurationVar(&cfg.handshakeTO, "handshake-timeout", cfg.handshakeTO, "Client handshake timeout")
	fs.DurationVar(&cfg.clientReadTO, "client-read-timeout", cfg.clientReadTO, "Per-connection read deadline")
	fs.DurationVar(&cfg.readInterval, "read-interval", cfg.readInterval, "Default pause between port reads when start_read_port omits interval")
	fs.IntVar(&cfg.readChunkSize, "read-chunk-size", cfg.readChunkSize, "Default read size when start_read_port omits size")
	fs.IntVar(&cfg.writeQueue, "write-queue", cfg.writeQueue, "Per-port queued writes before write_port fails")
	fs.BoolVar(&cfg.mdnsEnable, "mdns-enable", false, "Enable mDNS/Avahi advertisement")
	fs.StringVar(&cfg.mdnsName, "mdns-name", "", "mDNS instance name (default serialport-server-<hostname>)")
	showVersion := fs.Bool("version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}
	if *showVersion {
		return cfg, true, nil
	}

	// Track which flags were explicitly set to give them precedence over env.
	setFlags := map[string]struct{}{}
	fs.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })
	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		return nil, false, fmt.Errorf("environment override error: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, false, fmt.Errorf("configuration error: %w", err)
	}
	return cfg, false, nil
}

// validate performs basic semantic validation of the parsed configuration.
// It does not attempt to open devices or listeners – only checks values/ranges.
func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.driver {
	case "bugst", "tarm":
	default:
		return fmt.Errorf("invalid driver: %s", c.driver)
	}
	if _, err := hub.ParsePolicy(c.hubPolicy); err != nil {
		return fmt.Errorf("invalid hub-policy: %w", err)
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0 (got %d)", c.hubBuffer)
	}
	if c.handshakeTO <= 0 {
		return fmt.Errorf("handshake-timeout must be > 0")
	}
	if c.clientReadTO <= 0 {
		return fmt.Errorf("client-read-timeout must be > 0")
	}
	if c.readInterval <= 0 {
		return fmt.Errorf("read-interval must be > 0")
	}
	if c.readChunkSize <= 0 || c.readChunkSize > serialport.MaxChunkSize {
		return fmt.Errorf("read-chunk-size must be in 1..%d (got %d)", serialport.MaxChunkSize, c.readChunkSize)
	}
	if c.writeQueue <= 0 {
		return fmt.Errorf("write-queue must be > 0 (got %d)", c.writeQueue)
	}
	if c.maxClients < 0 {
		return fmt.Errorf("max-clients must be >= 0")
	}
	return nil
}

// applyEnvOverrides maps SERIALPORT_SERVER_* environment variables to config
// fields unless the corresponding flag was explicitly set. Empty values are
// ignored. Durations use time.ParseDuration syntax.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	fail := func(key string, err error) {
		if firstErr == nil {
			firstErr = fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
		}
	}
	lookup := func(flagName, key string) (string, bool) {
		if _, ok := set[flagName]; ok {
			return "", false
		}
		v, ok := os.LookupEnv(envPrefix + key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}
	str := func(flagName, key string, dst *string) {
		if v, ok := lookup(flagName, key); ok {
			*dst = v
		}
	}
	num := func(flagName, key string, min int, dst *int) {
		if v, ok := lookup(flagName, key); ok {
			n, err := strconv.Atoi(v)
			if err == nil && n < min {
				err = fmt.Errorf("must be >= %d", min)
			}
			if err != nil {
				fail(key, err)
				return
			}
			*dst = n
		}
	}
	dur := func(flagName, key string, dst *time.Duration) {
		if v, ok := lookup(flagName, key); ok {
			d, err := time.ParseDuration(v)
			if err == nil && d < 0 {
				err = errors.New("must not be negative")
			}
			if err != nil {
				fail(key, err)
				return
			}
			*dst = d
		}
	}

	str("listen", "LISTEN", &c.listenAddr)
	str("driver", "DRIVER", &c.driver)
	str("log-format", "LOG_FORMAT", &c.logFormat)
	str("log-level", "LOG_LEVEL", &c.logLevel)
	if _, ok := set["metrics-addr"]; !ok {
		// An empty value explicitly disables metrics.
		if v, ok := os.LookupEnv(envPrefix + "METRICS"); ok {
			c.metricsAddr = strings.TrimSpace(v)
		}
	}
	num("hub-buffer", "HUB_BUFFER", 1, &c.hubBuffer)
	str("hub-policy", "HUB_POLICY", &c.hubPolicy)
	dur("log-metrics-interval", "LOG_METRICS_INTERVAL", &c.logMetricsEvery)
	num("max-clients", "MAX_CLIENTS", 0, &c.maxClients)
	dur("handshake-timeout", "HANDSHAKE_TIMEOUT", &c.handshakeTO)
	dur("client-read-timeout", "CLIENT_READ_TIMEOUT", &c.clientReadTO)
	dur("read-interval", "READ_INTERVAL", &c.readInterval)
	num("read-chunk-size", "READ_CHUNK_SIZE", 1, &c.readChunkSize)
	num("write-queue", "WRITE_QUEUE", 1, &c.writeQueue)
	if v, ok := lookup("mdns-enable", "MDNS_ENABLE"); ok {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			c.mdnsEnable = true
		case "0", "false", "no", "off":
			c.mdnsEnable = false
		default:
			fail("MDNS_ENABLE", fmt.Errorf("not a boolean: %q", v))
		}
	}
	str("mdns-name", "MDNS_NAME", &c.mdnsName)
	return firstErr
}
