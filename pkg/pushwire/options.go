package pushwire

import (
	"context"

	"github.com/bft-labs/pushwire/pkg/conn"
	"github.com/bft-labs/pushwire/pkg/credentials"
	"github.com/bft-labs/pushwire/pkg/log"
	"github.com/bft-labs/pushwire/pkg/pool"
)

// Plugin is an optional component started with the client.
type Plugin interface {
	Name() string
	Initialize(ctx context.Context, cfg PluginConfig) error
	Shutdown(ctx context.Context) error
}

// PluginConfig is handed to plugins when the client starts.
type PluginConfig struct {
	Descriptor  conn.Descriptor
	Credentials credentials.Provider
	Logger      log.Logger
}

// Option configures optional behavior of a Client.
type Option func(*options)

type options struct {
	logger   log.Logger
	dialer   conn.Dialer
	config   pool.Config
	plugins  []Plugin
	feedback *conn.Descriptor
}

func defaultOptions() options {
	return options{
		logger: log.NewNoopLogger(),
		config: pool.DefaultConfig(),
	}
}

// WithLogger sets the logger. If not provided, nothing is logged.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDialer replaces the TLS dialer, for example with a breaker or a test
// double.
func WithDialer(d conn.Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithConfig sets the engine configuration shared by every submission.
func WithConfig(cfg pool.Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithPlugin registers a plugin. Plugins are initialized in registration
// order and shut down in reverse order.
func WithPlugin(p Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, p)
	}
}

// WithFeedbackDescriptor overrides the feedback service derived from the
// gateway descriptor.
func WithFeedbackDescriptor(d conn.Descriptor) Option {
	return func(o *options) {
		o.feedback = &d
	}
}
