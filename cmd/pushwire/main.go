package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/pushwire/internal/cliconfig"
	"github.com/bft-labs/pushwire/pkg/ledger"
	"github.com/bft-labs/pushwire/pkg/log"
	"github.com/bft-labs/pushwire/pkg/payload"
	"github.com/bft-labs/pushwire/pkg/pushwire"
	"github.com/bft-labs/pushwire/plugins/credwatcher"
)

const longHelp = `Send notifications through the binary push gateway.

Highlights:
  - Enhanced frames with automatic reconciliation of rejected notifications.
  - Concurrent delivery across several connections with --threads.
  - Corporate proxies via HTTP CONNECT; configure via file, env, or flags.`

var exampleUsage = strings.TrimSpace(`
  pushwire send --keystore push.p12 --password secret --alert "hello" <token>...
  pushwire send --config $HOME/.pushwire/config.toml --tokens-file tokens.txt --threads 4
  pushwire feedback --keystore push.p12 --production
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

type sendOptions struct {
	alert      string
	raw        string
	badge      int
	sound      string
	expiry     int
	big        bool
	tokensFile string
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string
	logger := cfg.Logger()

	root := &cobra.Command{
		Use:           "pushwire",
		Short:         "Send notifications through the binary push gateway",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load config file first (default $HOME/.pushwire/config.toml), then apply flag overrides
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// Environment (PUSHWIRE_*) overrides the file but not explicit flags
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}

			if err := cfg.Validate(); err != nil {
				return err
			}

			logger = cfg.Logger()
			logCfg := cfg
			if len(logCfg.Password) > 0 {
				logCfg.Password = "*****"
			}
			zl := logger.Logger()
			zl.Debug().Interface("config", logCfg).Msg("configuration")
			return nil
		},
	}

	newClient := func() (*pushwire.Client, error) {
		cred, err := cfg.Credentials()
		if err != nil {
			return nil, fmt.Errorf("load keystore: %w", err)
		}
		opts := []pushwire.Option{
			pushwire.WithLogger(logger),
			pushwire.WithConfig(cfg.PoolConfig()),
			pushwire.WithFeedbackDescriptor(cfg.FeedbackDescriptor(cred)),
		}
		if cfg.WatchCredentials {
			opts = append(opts, credwatcher.WithCredentialWatcher(credwatcher.DefaultConfig()))
		}
		return pushwire.New(cfg.Descriptor(cred), opts...), nil
	}

	var so sendOptions
	send := &cobra.Command{
		Use:   "send [token...]",
		Short: "Send one payload to every token",
		RunE: func(cmd *cobra.Command, args []string) error {
			tokens, err := collectTokens(args, so.tokensFile)
			if err != nil {
				return err
			}
			if len(tokens) == 0 {
				return fmt.Errorf("no device tokens given")
			}
			p, err := buildPayload(so)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			client, err := newClient()
			if err != nil {
				return err
			}
			if err := client.Start(ctx); err != nil {
				return fmt.Errorf("start client: %w", err)
			}
			defer client.Close(context.WithoutCancel(ctx))

			outcomes, errs := client.SubmitConcurrent(ctx, tokens, p, cfg.Threads)
			for _, err := range errs {
				logger.Error("critical error", log.Err(err))
			}
			report(cmd, outcomes)

			if len(errs) > 0 || len(ledger.Failed(outcomes)) > 0 {
				return fmt.Errorf("%d of %d notifications failed", len(ledger.Failed(outcomes)), len(tokens))
			}
			return nil
		},
	}
	send.Flags().StringVar(&so.alert, "alert", "", "alert message")
	send.Flags().StringVar(&so.raw, "payload", "", "raw JSON payload (overrides --alert, --badge and --sound)")
	send.Flags().IntVar(&so.badge, "badge", 0, "badge number")
	send.Flags().StringVar(&so.sound, "sound", "", "sound name")
	send.Flags().IntVar(&so.expiry, "expiry", payload.DefaultExpiry, "time to live in seconds (0: do not store)")
	send.Flags().BoolVar(&so.big, "big", false, "allow payloads up to 2048 bytes")
	send.Flags().StringVar(&so.tokensFile, "tokens-file", "", "file with one device token per line")
	send.Flags().IntVar(&cfg.Threads, "threads", cfg.Threads, "number of concurrent connections")

	feedback := &cobra.Command{
		Use:   "feedback",
		Short: "List devices reported inactive by the feedback service",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			client, err := newClient()
			if err != nil {
				return err
			}
			records, err := client.Feedback(ctx)
			if err != nil {
				return fmt.Errorf("fetch feedback: %w", err)
			}
			for _, r := range records {
				fmt.Fprintln(cmd.OutOrStdout(), r.String())
			}
			return nil
		},
	}

	root.AddCommand(send, feedback)

	// Flags
	pf := root.PersistentFlags()
	pf.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.pushwire/config.toml)")
	pf.StringVar(&cfg.Keystore, "keystore", cfg.Keystore, "PKCS#12 (.p12, .pfx) or PEM keystore with the client certificate")
	pf.StringVar(&cfg.Password, "password", cfg.Password, "keystore password")
	pf.BoolVar(&cfg.Production, "production", cfg.Production, "use the production servers instead of the sandbox")

	pf.StringVar(&cfg.Host, "host", cfg.Host, "gateway host (derived from --production)")
	pf.IntVar(&cfg.Port, "port", cfg.Port, "gateway port")
	pf.StringVar(&cfg.FeedbackHost, "feedback-host", cfg.FeedbackHost, "feedback host (derived from --production)")
	pf.IntVar(&cfg.FeedbackPort, "feedback-port", cfg.FeedbackPort, "feedback port")
	for _, name := range []string{"host", "port", "feedback-host", "feedback-port"} {
		if err := pf.MarkHidden(name); err != nil {
			logger.Info("failed to hide flag", log.String("flag", name), log.Err(err))
		}
	}

	pf.StringVar(&cfg.ProxyHost, "proxy-host", cfg.ProxyHost, "HTTP CONNECT proxy host")
	pf.IntVar(&cfg.ProxyPort, "proxy-port", cfg.ProxyPort, "HTTP CONNECT proxy port")
	pf.BoolVar(&cfg.VerifyServer, "verify-server", cfg.VerifyServer, "verify the server certificate")

	pf.IntVar(&cfg.Retries, "retries", cfg.Retries, "write attempts per notification")
	pf.BoolVar(&cfg.SimpleFormat, "simple", cfg.SimpleFormat, "use simple frames (no error responses)")
	pf.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "connect and handshake timeout")
	pf.DurationVar(&cfg.SocketTimeout, "socket-timeout", cfg.SocketTimeout, "write timeout")
	pf.DurationVar(&cfg.ReconcileTimeout, "reconcile-timeout", cfg.ReconcileTimeout, "how long to wait for error responses")
	pf.IntVar(&cfg.MaxPerConnection, "max-per-connection", cfg.MaxPerConnection, "restart the connection after this many notifications")
	pf.DurationVar(&cfg.SleepBetween, "sleep-between", cfg.SleepBetween, "pause between two notifications")
	pf.DurationVar(&cfg.DelayBetweenWorkers, "delay-between-workers", cfg.DelayBetweenWorkers, "pause between two worker starts")
	pf.IntVar(&cfg.BreakerThreshold, "breaker-threshold", cfg.BreakerThreshold, "open the dial circuit breaker after this many failures (0 disables)")

	pf.BoolVar(&cfg.WatchCredentials, "watch-credentials", cfg.WatchCredentials, "reload the keystore when it changes")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	pf.BoolVar(&cfg.Debug, "debug", cfg.Debug, "log every frame and TLS handshake")

	if err := root.Execute(); err != nil {
		logger.Error("pushwire", log.Err(err))
		os.Exit(1)
	}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

func collectTokens(args []string, file string) ([]string, error) {
	tokens := append([]string(nil), args...)
	if file == "" {
		return tokens, nil
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			tokens = append(tokens, line)
		}
	}
	return tokens, sc.Err()
}

func buildPayload(so sendOptions) (payload.Payload, error) {
	if so.raw != "" {
		p := payload.NewRaw([]byte(so.raw))
		if so.big {
			p = payload.NewBig([]byte(so.raw))
		}
		return p.WithExpiry(so.expiry), nil
	}
	if so.alert == "" && so.badge == 0 && so.sound == "" {
		return nil, fmt.Errorf("one of --payload, --alert, --badge or --sound is required")
	}
	j := payload.NewJSON().SetExpiry(so.expiry)
	if so.alert != "" {
		j.Alert(so.alert)
	}
	if so.badge > 0 {
		j.Badge(so.badge)
	}
	if so.sound != "" {
		j.Sound(so.sound)
	}
	if so.big {
		j.Big()
	}
	return j, nil
}

func report(cmd *cobra.Command, outcomes []*ledger.Outcome) {
	out := cmd.OutOrStdout()
	for _, o := range ledger.Failed(outcomes) {
		fmt.Fprintln(out, o.String())
	}
	fmt.Fprintf(out, "%d sent, %d failed\n", len(ledger.Successful(outcomes)), len(ledger.Failed(outcomes)))
}
