package cliconfig

import (
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Production          *bool  `toml:"production" yaml:"production"`
	Host                string `toml:"host" yaml:"host"`
	Port                int    `toml:"port" yaml:"port"`
	FeedbackHost        string `toml:"feedback_host" yaml:"feedback_host"`
	FeedbackPort        int    `toml:"feedback_port" yaml:"feedback_port"`
	Keystore            string `toml:"keystore" yaml:"keystore"`
	Password            string `toml:"password" yaml:"password"`
	ProxyHost           string `toml:"proxy_host" yaml:"proxy_host"`
	ProxyPort           int    `toml:"proxy_port" yaml:"proxy_port"`
	VerifyServer        *bool  `toml:"verify_server" yaml:"verify_server"`
	Threads             int    `toml:"threads" yaml:"threads"`
	Retries             int    `toml:"retries" yaml:"retries"`
	SimpleFormat        *bool  `toml:"simple_format" yaml:"simple_format"`
	DialTimeout         string `toml:"dial_timeout" yaml:"dial_timeout"`
	SocketTimeout       string `toml:"socket_timeout" yaml:"socket_timeout"`
	ReconcileTimeout    string `toml:"reconcile_timeout" yaml:"reconcile_timeout"`
	MaxPerConnection    int    `toml:"max_per_connection" yaml:"max_per_connection"`
	SleepBetween        string `toml:"sleep_between" yaml:"sleep_between"`
	DelayBetweenWorkers string `toml:"delay_between_workers" yaml:"delay_between_workers"`
	BreakerThreshold    int    `toml:"breaker_threshold" yaml:"breaker_threshold"`
	WatchCredentials    *bool  `toml:"watch_credentials" yaml:"watch_credentials"`
	LogLevel            string `toml:"log_level" yaml:"log_level"`
	Debug               *bool  `toml:"debug" yaml:"debug"`
}

// LoadFileConfig reads and parses a config file from the given path. Files
// ending in .yaml or .yml are parsed as YAML, anything else as TOML.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &fc)
	default:
		err = toml.Unmarshal(b, &fc)
	}
	if err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.pushwire/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".pushwire", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setBool("production", fc.Production, &cfg.Production)
	s.setString("host", fc.Host, &cfg.Host)
	s.setInt("port", fc.Port, &cfg.Port)
	s.setString("feedback-host", fc.FeedbackHost, &cfg.FeedbackHost)
	s.setInt("feedback-port", fc.FeedbackPort, &cfg.FeedbackPort)
	s.setString("keystore", fc.Keystore, &cfg.Keystore)
	s.setString("password", fc.Password, &cfg.Password)
	s.setString("proxy-host", fc.ProxyHost, &cfg.ProxyHost)
	s.setInt("proxy-port", fc.ProxyPort, &cfg.ProxyPort)
	s.setBool("verify-server", fc.VerifyServer, &cfg.VerifyServer)
	s.setInt("threads", fc.Threads, &cfg.Threads)
	s.setInt("retries", fc.Retries, &cfg.Retries)
	s.setBool("simple", fc.SimpleFormat, &cfg.SimpleFormat)
	s.setInt("max-per-connection", fc.MaxPerConnection, &cfg.MaxPerConnection)
	s.setInt("breaker-threshold", fc.BreakerThreshold, &cfg.BreakerThreshold)
	s.setBool("watch-credentials", fc.WatchCredentials, &cfg.WatchCredentials)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setBool("debug", fc.Debug, &cfg.Debug)

	if err := s.setDuration("dial-timeout", fc.DialTimeout, &cfg.DialTimeout); err != nil {
		return err
	}
	if err := s.setDuration("socket-timeout", fc.SocketTimeout, &cfg.SocketTimeout); err != nil {
		return err
	}
	if err := s.setDuration("reconcile-timeout", fc.ReconcileTimeout, &cfg.ReconcileTimeout); err != nil {
		return err
	}
	if err := s.setDuration("sleep-between", fc.SleepBetween, &cfg.SleepBetween); err != nil {
		return err
	}
	if err := s.setDuration("delay-between-workers", fc.DelayBetweenWorkers, &cfg.DelayBetweenWorkers); err != nil {
		return err
	}

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
