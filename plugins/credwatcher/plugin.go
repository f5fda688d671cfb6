// Package credwatcher reloads a file-backed client certificate when the file
// changes on disk. Workers pick up the new certificate on their next dial.
package credwatcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/pushwire/pkg/log"
	"github.com/bft-labs/pushwire/pkg/pushwire"
)

// Reloader is a credential provider backed by a file.
// *credentials.File satisfies this interface.
type Reloader interface {
	Path() string
	Reload() error
}

// Plugin watches the credential file of the client it is registered with.
type Plugin struct {
	mu sync.Mutex

	// Configuration
	retryInterval time.Duration
	debounceDelay time.Duration
	onReload      func(error)

	// Runtime state
	source   Reloader
	logger   log.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// Config holds configuration options for the credential watcher.
type Config struct {
	// RetryInterval is the delay before retrying a failed reload, which
	// happens while a rotated file is still being written.
	// Default: 5 seconds
	RetryInterval time.Duration

	// DebounceDelay is the delay to wait after a file change before reloading.
	// Default: 100 milliseconds
	DebounceDelay time.Duration

	// OnReload, when set, is called after every reload attempt.
	OnReload func(err error)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RetryInterval: 5 * time.Second,
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a credential watcher plugin.
func New(cfg Config) *Plugin {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}
	return &Plugin{
		retryInterval: cfg.RetryInterval,
		debounceDelay: cfg.DebounceDelay,
		onReload:      cfg.OnReload,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "credwatcher"
}

// Initialize starts watching when the client's credentials come from a file.
func (p *Plugin) Initialize(ctx context.Context, cfg pushwire.PluginConfig) error {
	source, ok := cfg.Credentials.(Reloader)

	p.mu.Lock()
	p.logger = log.OrNoop(cfg.Logger)
	p.source = source
	p.mu.Unlock()

	if !ok {
		p.logger.Warn("credential watcher disabled: credentials are not file backed")
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(source.Path())); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("credential watcher started", log.String("path", source.Path()))

	p.wg.Add(1)
	go p.watchLoop(watchCtx, watcher)
	return nil
}

// Shutdown stops the watcher.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.mu.Unlock()
	p.wg.Wait()
	return nil
}

func (p *Plugin) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer p.wg.Done()
	defer watcher.Close()

	name := filepath.Base(p.source.Path())
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.debounceReload(ctx, p.debounceDelay)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("credential watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceReload(ctx context.Context, delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}
	p.debounce = time.AfterFunc(delay, func() {
		p.reload(ctx)
	})
}

func (p *Plugin) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	err := p.source.Reload()
	if p.onReload != nil {
		p.onReload(err)
	}
	if err != nil {
		p.logger.Warn("credential reload failed, retrying",
			log.String("path", p.source.Path()),
			log.Duration("retry_in", p.retryInterval),
			log.Err(err))
		p.debounceReload(ctx, p.retryInterval)
		return
	}
	p.logger.Info("credentials reloaded", log.String("path", p.source.Path()))
}

// Ensure Plugin implements pushwire.Plugin.
var _ pushwire.Plugin = (*Plugin)(nil)
