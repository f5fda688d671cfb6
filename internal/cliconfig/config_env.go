package cliconfig

import "os"

// ApplyEnvConfig applies PUSHWIRE_* environment variables to cfg. Flags that
// have been explicitly set (changed map) win over the environment.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setBoolFromString("production", os.Getenv("PUSHWIRE_PRODUCTION"), &cfg.Production)
	s.setString("host", os.Getenv("PUSHWIRE_HOST"), &cfg.Host)
	s.setString("feedback-host", os.Getenv("PUSHWIRE_FEEDBACK_HOST"), &cfg.FeedbackHost)
	s.setString("keystore", os.Getenv("PUSHWIRE_KEYSTORE"), &cfg.Keystore)
	s.setString("password", os.Getenv("PUSHWIRE_PASSWORD"), &cfg.Password)
	s.setString("proxy-host", os.Getenv("PUSHWIRE_PROXY_HOST"), &cfg.ProxyHost)
	s.setString("log-level", os.Getenv("PUSHWIRE_LOG_LEVEL"), &cfg.LogLevel)
	s.setBoolFromString("verify-server", os.Getenv("PUSHWIRE_VERIFY_SERVER"), &cfg.VerifyServer)
	s.setBoolFromString("simple", os.Getenv("PUSHWIRE_SIMPLE_FORMAT"), &cfg.SimpleFormat)
	s.setBoolFromString("watch-credentials", os.Getenv("PUSHWIRE_WATCH_CREDENTIALS"), &cfg.WatchCredentials)
	s.setBoolFromString("debug", os.Getenv("PUSHWIRE_DEBUG"), &cfg.Debug)

	ints := []struct {
		flag, env string
		dst       *int
	}{
		{"port", "PUSHWIRE_PORT", &cfg.Port},
		{"feedback-port", "PUSHWIRE_FEEDBACK_PORT", &cfg.FeedbackPort},
		{"proxy-port", "PUSHWIRE_PROXY_PORT", &cfg.ProxyPort},
		{"threads", "PUSHWIRE_THREADS", &cfg.Threads},
		{"retries", "PUSHWIRE_RETRIES", &cfg.Retries},
		{"max-per-connection", "PUSHWIRE_MAX_PER_CONNECTION", &cfg.MaxPerConnection},
		{"breaker-threshold", "PUSHWIRE_BREAKER_THRESHOLD", &cfg.BreakerThreshold},
	}
	for _, v := range ints {
		if err := s.setIntFromString(v.flag, os.Getenv(v.env), v.dst); err != nil {
			return err
		}
	}

	if err := s.setDuration("dial-timeout", os.Getenv("PUSHWIRE_DIAL_TIMEOUT"), &cfg.DialTimeout); err != nil {
		return err
	}
	if err := s.setDuration("socket-timeout", os.Getenv("PUSHWIRE_SOCKET_TIMEOUT"), &cfg.SocketTimeout); err != nil {
		return err
	}
	if err := s.setDuration("reconcile-timeout", os.Getenv("PUSHWIRE_RECONCILE_TIMEOUT"), &cfg.ReconcileTimeout); err != nil {
		return err
	}
	if err := s.setDuration("sleep-between", os.Getenv("PUSHWIRE_SLEEP_BETWEEN"), &cfg.SleepBetween); err != nil {
		return err
	}
	if err := s.setDuration("delay-between-workers", os.Getenv("PUSHWIRE_DELAY_BETWEEN_WORKERS"), &cfg.DelayBetweenWorkers); err != nil {
		return err
	}

	return nil
}
