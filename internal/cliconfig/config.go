package cliconfig

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bft-labs/pushwire/pkg/conn"
	"github.com/bft-labs/pushwire/pkg/credentials"
	"github.com/bft-labs/pushwire/pkg/log"
	"github.com/bft-labs/pushwire/pkg/pool"
	"github.com/bft-labs/pushwire/pkg/wire"
)

// Config holds CLI configuration for pushwire.
type Config struct {
	Production bool

	Host         string
	Port         int
	FeedbackHost string
	FeedbackPort int

	Keystore string
	Password string

	ProxyHost    string
	ProxyPort    int
	VerifyServer bool

	Threads             int
	Retries             int
	SimpleFormat        bool
	DialTimeout         time.Duration
	SocketTimeout       time.Duration
	ReconcileTimeout    time.Duration
	MaxPerConnection    int
	SleepBetween        time.Duration
	DelayBetweenWorkers time.Duration
	BreakerThreshold    int

	WatchCredentials bool
	LogLevel         string
	Debug            bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Threads:             1,
		Retries:             3,
		DialTimeout:         conn.DefaultDialTimeout,
		SocketTimeout:       30 * time.Second,
		ReconcileTimeout:    5 * time.Second,
		MaxPerConnection:    200,
		DelayBetweenWorkers: pool.DefaultDelayBetweenWorkers,
		LogLevel:            "info",
		Password:            os.Getenv("PUSHWIRE_PASSWORD"),
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	if c.Keystore == "" {
		return fmt.Errorf("keystore is required")
	}

	if c.Host == "" {
		c.Host = conn.NewDescriptor(nil, c.Production).Host
	}
	if c.Port == 0 {
		c.Port = conn.GatewayPort
	}
	if c.FeedbackHost == "" {
		c.FeedbackHost = conn.NewFeedbackDescriptor(nil, c.Production).Host
	}
	if c.FeedbackPort == 0 {
		c.FeedbackPort = conn.FeedbackPort
	}

	if c.Port < 0 || c.Port > 65535 || c.FeedbackPort < 0 || c.FeedbackPort > 65535 {
		return fmt.Errorf("port out of range")
	}
	if c.ProxyHost != "" && c.ProxyPort <= 0 {
		return fmt.Errorf("proxy-port is required with proxy-host")
	}
	if c.Threads < 1 {
		return fmt.Errorf("threads must be positive")
	}
	if c.Retries < 1 {
		return fmt.Errorf("retries must be positive")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	return nil
}

// Logger builds the console logger for the configured level.
func (c Config) Logger() *log.ZerologAdapter {
	level := log.ParseLevel(c.LogLevel)
	if c.Debug {
		level = log.LevelDebug
	}
	return log.NewZerologAdapter(level)
}

// Credentials loads the keystore. A file-backed provider is returned so the
// credential watcher can reload it.
func (c Config) Credentials() (*credentials.File, error) {
	return credentials.NewFile(c.Keystore, c.Password)
}

// Descriptor returns the gateway descriptor for cred.
func (c Config) Descriptor(cred credentials.Provider) conn.Descriptor {
	return c.descriptor(c.Host, c.Port, cred)
}

// FeedbackDescriptor returns the feedback service descriptor for cred.
func (c Config) FeedbackDescriptor(cred credentials.Provider) conn.Descriptor {
	return c.descriptor(c.FeedbackHost, c.FeedbackPort, cred)
}

func (c Config) descriptor(host string, port int, cred credentials.Provider) conn.Descriptor {
	return conn.Descriptor{
		Host:                    host,
		Port:                    port,
		Credentials:             cred,
		ProxyHost:               c.ProxyHost,
		ProxyPort:               c.ProxyPort,
		VerifyServerCertificate: c.VerifyServer,
		DialTimeout:             c.DialTimeout,
	}
}

// PoolConfig maps the CLI settings onto the engine configuration.
func (c Config) PoolConfig() pool.Config {
	cfg := pool.DefaultConfig()
	cfg.DelayBetweenWorkers = c.DelayBetweenWorkers
	if cfg.DelayBetweenWorkers == 0 {
		cfg.DelayBetweenWorkers = -1
	}

	w := &cfg.Worker
	w.MaxPerConnection = c.MaxPerConnection
	w.SleepBetween = c.SleepBetween

	s := &w.Session
	s.Retries = c.Retries
	s.SocketTimeout = c.SocketTimeout
	s.ReconcileTimeout = c.ReconcileTimeout
	s.Debug = c.Debug
	if c.SimpleFormat {
		s.Format = wire.FormatSimple
	}

	if c.BreakerThreshold > 0 {
		cfg.Breaker = &conn.BreakerConfig{FailureThreshold: uint32(c.BreakerThreshold)}
	}
	return cfg
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
