package cliconfig

import (
	"testing"
	"time"

	"github.com/bft-labs/pushwire/pkg/conn"
	"github.com/bft-labs/pushwire/pkg/credentials"
	"github.com/bft-labs/pushwire/pkg/wire"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Threads != 1 {
		t.Errorf("Threads = %v, want 1", cfg.Threads)
	}
	if cfg.Retries != 3 {
		t.Errorf("Retries = %v, want 3", cfg.Retries)
	}
	if cfg.SocketTimeout != 30*time.Second {
		t.Errorf("SocketTimeout = %v, want 30s", cfg.SocketTimeout)
	}
	if cfg.MaxPerConnection != 200 {
		t.Errorf("MaxPerConnection = %v, want 200", cfg.MaxPerConnection)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		wantErr  bool
		wantHost string
	}{
		{
			name:     "sandbox derived",
			config:   Config{Keystore: "push.p12", Threads: 1, Retries: 3, LogLevel: "info"},
			wantHost: conn.SandboxGatewayHost,
		},
		{
			name:     "production derived",
			config:   Config{Keystore: "push.p12", Production: true, Threads: 1, Retries: 3, LogLevel: "info"},
			wantHost: conn.ProductionGatewayHost,
		},
		{
			name:     "explicit host kept",
			config:   Config{Keystore: "push.p12", Host: "127.0.0.1", Threads: 1, Retries: 3, LogLevel: "debug"},
			wantHost: "127.0.0.1",
		},
		{
			name:    "missing keystore",
			config:  Config{Threads: 1, Retries: 3, LogLevel: "info"},
			wantErr: true,
		},
		{
			name:    "zero threads",
			config:  Config{Keystore: "push.p12", Retries: 3, LogLevel: "info"},
			wantErr: true,
		},
		{
			name:    "zero retries",
			config:  Config{Keystore: "push.p12", Threads: 1, LogLevel: "info"},
			wantErr: true,
		},
		{
			name:    "proxy without port",
			config:  Config{Keystore: "push.p12", ProxyHost: "proxy", Threads: 1, Retries: 3, LogLevel: "info"},
			wantErr: true,
		},
		{
			name:    "unknown log level",
			config:  Config{Keystore: "push.p12", Threads: 1, Retries: 3, LogLevel: "loud"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if tt.wantErr {
				return
			}
			if tt.config.Host != tt.wantHost {
				t.Errorf("Host = %v, want %v", tt.config.Host, tt.wantHost)
			}
			if tt.config.Port != conn.GatewayPort {
				t.Errorf("Port = %v, want %v", tt.config.Port, conn.GatewayPort)
			}
			if tt.config.FeedbackPort != conn.FeedbackPort {
				t.Errorf("FeedbackPort = %v, want %v", tt.config.FeedbackPort, conn.FeedbackPort)
			}
		})
	}
}

func TestConfig_Descriptors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Keystore = "push.p12"
	cfg.Production = true
	cfg.ProxyHost = "proxy.local"
	cfg.ProxyPort = 3128
	cfg.VerifyServer = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	var cred credentials.Provider
	d := cfg.Descriptor(cred)
	if d.Addr() != "gateway.push.apple.com:2195" {
		t.Errorf("Addr() = %v", d.Addr())
	}
	if d.ProxyHost != "proxy.local" || d.ProxyPort != 3128 {
		t.Errorf("proxy = %v:%v", d.ProxyHost, d.ProxyPort)
	}
	if !d.VerifyServerCertificate {
		t.Error("VerifyServerCertificate = false, want true")
	}

	fb := cfg.FeedbackDescriptor(cred)
	if fb.Addr() != "feedback.push.apple.com:2196" {
		t.Errorf("feedback Addr() = %v", fb.Addr())
	}
}

func TestConfig_PoolConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retries = 5
	cfg.SleepBetween = 10 * time.Millisecond
	cfg.DelayBetweenWorkers = 0
	cfg.SimpleFormat = true
	cfg.BreakerThreshold = 4

	pc := cfg.PoolConfig()
	if pc.Worker.Session.Retries != 5 {
		t.Errorf("Retries = %v, want 5", pc.Worker.Session.Retries)
	}
	if pc.Worker.SleepBetween != 10*time.Millisecond {
		t.Errorf("SleepBetween = %v, want 10ms", pc.Worker.SleepBetween)
	}
	if pc.DelayBetweenWorkers >= 0 {
		t.Errorf("DelayBetweenWorkers = %v, want negative (no delay)", pc.DelayBetweenWorkers)
	}
	if pc.Worker.Session.Format != wire.FormatSimple {
		t.Errorf("Format = %v, want simple", pc.Worker.Session.Format)
	}
	if pc.Breaker == nil || pc.Breaker.FailureThreshold != 4 {
		t.Errorf("Breaker = %+v, want threshold 4", pc.Breaker)
	}

	if DefaultConfig().PoolConfig().Breaker != nil {
		t.Error("breaker enabled by default")
	}
}

func TestConfig_Logger(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Logger() == nil {
		t.Fatal("Logger() = nil")
	}
}
