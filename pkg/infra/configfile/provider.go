package configfile

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/m-mizutani/cardsync/pkg/domain/interfaces"
	"github.com/m-mizutani/cardsync/pkg/domain/model"
	"github.com/m-mizutani/cardsync/pkg/domain/types"
	"github.com/m-mizutani/cardsync/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

const DefaultDebounce = 500 * time.Millisecond

// ChangeHandler receives the previous and the new configuration after a successful reload. old is nil
// when the first valid configuration arrives after an invalid or missing file.
type ChangeHandler func(old, updated *model.SyncConfig)

// Provider serves the sync configuration read from a YAML file. A reload that fails keeps the last
// valid configuration and only flips Status.
type Provider struct {
	path     string
	debounce time.Duration

	mu       sync.RWMutex
	current  *model.SyncConfig
	status   interfaces.ConfigStatus
	handlers []ChangeHandler
}

var _ interfaces.ConfigProvider = (*Provider)(nil)

type Option func(*Provider)

func WithDebounce(d time.Duration) Option {
	return func(x *Provider) {
		x.debounce = d
	}
}

func New(path string, options ...Option) *Provider {
	p := &Provider{
		path:     path,
		debounce: DefaultDebounce,
		status:   interfaces.ConfigStatus{Valid: false, Error: "configuration not loaded"},
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Parse decodes a configuration document over the defaults and validates it. Unknown keys are
// rejected so that typos do not silently fall back to defaults.
func Parse(r io.Reader) (*model.SyncConfig, error) {
	cfg := model.DefaultSyncConfig()

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, goerr.Wrap(types.ErrInvalidConfig, "failed to parse configuration",
			goerr.V("error", err.Error()))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (x *Provider) Path() string {
	return x.path
}

func (x *Provider) Current() *model.SyncConfig {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.current
}

func (x *Provider) Status() interfaces.ConfigStatus {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.status
}

func (x *Provider) OnConfigChange(handler ChangeHandler) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.handlers = append(x.handlers, handler)
}

// Load reads the file again. Handlers run when the configuration differs from the last valid one.
func (x *Provider) Load() error {
	cfg, err := x.read()
	if err != nil {
		x.mu.Lock()
		x.status = interfaces.ConfigStatus{Valid: false, Error: err.Error()}
		x.mu.Unlock()
		return err
	}

	x.mu.Lock()
	old := x.current
	x.current = cfg
	x.status = interfaces.ConfigStatus{Valid: true}
	handlers := append([]ChangeHandler{}, x.handlers...)
	x.mu.Unlock()

	if !reflect.DeepEqual(old, cfg) {
		for _, h := range handlers {
			h(old, cfg)
		}
	}
	return nil
}

func (x *Provider) read() (*model.SyncConfig, error) {
	data, err := os.ReadFile(x.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read configuration file", goerr.V("path", x.path))
	}

	cfg, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, goerr.Wrap(err, "invalid configuration file", goerr.V("path", x.path))
	}
	return cfg, nil
}

// Watch reloads the file whenever it changes until ctx is done. Bursts of events within the debounce
// window cause a single reload. The directory is watched so that editors replacing the file by
// rename are noticed.
func (x *Provider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return goerr.Wrap(err, "failed to create file watcher")
	}

	dir := filepath.Dir(x.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return goerr.Wrap(err, "failed to watch configuration directory", goerr.V("dir", dir))
	}

	go x.watch(logging.WithComponent(ctx, "config"), watcher)
	return nil
}

func (x *Provider) watch(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	target := filepath.Clean(x.path)
	timer := time.NewTimer(x.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			timer.Reset(x.debounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.From(ctx).Warn("file watcher error", slog.Any("error", err))

		case <-timer.C:
			if err := x.Load(); err != nil {
				logging.From(ctx).Error("failed to reload configuration, keeping last valid one",
					slog.String("path", x.path),
					slog.Any("error", err),
				)
				continue
			}
			logging.From(ctx).Info("configuration reloaded", slog.String("path", x.path))
		}
	}
}
