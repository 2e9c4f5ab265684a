package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	tlspkg "github.com/polisai/polis-channel/internal/tls"
)

const reloadDebounce = 100 * time.Millisecond

// ErrProviderClosed is returned by Reload after Close.
var ErrProviderClosed = errors.New("config provider closed")

// ProviderOption customizes a FileConfigProvider.
type ProviderOption func(*FileConfigProvider)

// WithLogger sets the logger used for reload events.
func WithLogger(logger *slog.Logger) ProviderOption {
	return func(p *FileConfigProvider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithReloadMetrics records every reload on collector.
func WithReloadMetrics(collector *tlspkg.TLSMetricsCollector) ProviderOption {
	return func(p *FileConfigProvider) {
		p.metrics = collector
	}
}

// FileConfigProvider loads channel configuration from a local file and
// publishes a new Snapshot whenever the file changes. A revision that fails to
// parse or whose certificates cannot be loaded is logged and the previous
// snapshot stays current.
type FileConfigProvider struct {
	path        string
	logger      *slog.Logger
	tlsLogger   *tlspkg.TLSLogger
	metrics     *tlspkg.TLSMetricsCollector
	reloadMu    sync.Mutex
	closed      bool
	mu          sync.RWMutex
	snapshot    Snapshot
	generation  int64
	subscribers []chan Snapshot
	watcher     *fsnotify.Watcher
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

// NewFileConfigProvider creates a new provider watching the specified file.
func NewFileConfigProvider(path string, opts ...ProviderOption) (*FileConfigProvider, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve absolute path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &FileConfigProvider{
		path:    absPath,
		logger:  slog.Default(),
		watcher: watcher,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.tlsLogger = tlspkg.NewTLSLogger(p.logger)

	// A missing or broken file is not fatal; the next valid write is picked up.
	if err := p.Reload(ctx); err != nil {
		p.logger.Warn("initial channel config load failed", "path", absPath, "error", err)
	}

	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		cancel()
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch directory: %w", err)
	}

	go p.watchLoop()

	return p, nil
}

// CurrentSnapshot returns the current configuration.
func (p *FileConfigProvider) CurrentSnapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// Subscribe returns a channel that receives configuration updates. The
// current snapshot is delivered immediately. A subscriber that falls behind
// only sees the latest snapshot.
func (p *FileConfigProvider) Subscribe() <-chan Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	ch := make(chan Snapshot, 1)
	p.subscribers = append(p.subscribers, ch)
	ch <- p.snapshot
	return ch
}

// Reload reads the file now and publishes a new snapshot on success. Reloads
// are serialized, so a newer generation always carries the later read.
func (p *FileConfigProvider) Reload(ctx context.Context) error {
	p.reloadMu.Lock()
	defer p.reloadMu.Unlock()
	if p.closed {
		return ErrProviderClosed
	}

	// #nosec G304 -- File path is configured at startup
	data, err := os.ReadFile(p.path)
	if err != nil {
		p.recordFailure(ctx, err)
		return fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		p.recordFailure(ctx, err)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	snapshot, err := NewSnapshot(cfg, p.generation+1)
	if err != nil {
		p.recordFailure(ctx, err)
		return err
	}
	p.generation = snapshot.Generation
	p.snapshot = snapshot

	for _, name := range snapshot.Names() {
		p.tlsLogger.LogConfigurationChange(ctx, name, snapshot.Channels[name].TLS, nil)
		if p.metrics != nil {
			p.metrics.RecordConfigReload(ctx, name, true)
		}
	}

	for _, ch := range p.subscribers {
		// Replace a snapshot the subscriber has not consumed yet.
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}

	return nil
}

// Close stops the watcher and waits for a reload in progress. No snapshot is
// published after Close returns.
func (p *FileConfigProvider) Close() error {
	p.cancel()
	err := p.watcher.Close()
	<-p.done

	p.reloadMu.Lock()
	p.closed = true
	p.reloadMu.Unlock()
	return err
}

func (p *FileConfigProvider) recordFailure(ctx context.Context, err error) {
	p.tlsLogger.LogConfigurationChange(ctx, filepath.Base(p.path), tlspkg.NewClientTLSConfig(), err)
	if p.metrics != nil {
		p.metrics.RecordConfigReload(ctx, filepath.Base(p.path), false)
	}
}

func (p *FileConfigProvider) watchLoop() {
	defer close(p.done)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-p.ctx.Done():
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}

			// Editors often replace the file, so watch the directory and filter.
			if filepath.Clean(event.Name) != p.path {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Chmod) {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(reloadDebounce, func() {
					if p.ctx.Err() != nil {
						return
					}
					if err := p.Reload(p.ctx); err != nil {
						if errors.Is(err, ErrProviderClosed) {
							return
						}
						p.logger.Error("channel config reload failed", "path", p.path, "error", err)
						return
					}
					p.logger.Info("channel config reloaded", "path", p.path)
				})
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.logger.Warn("config watcher error", "error", err)
		}
	}
}
