// 配置文件变更监听器。
//
// 监听配置文件所在目录的文件系统事件，防抖后重新加载配置并通知回调。
// 监听目录而不是文件本身，编辑器以重命名方式保存时也能收到事件。
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ReloadCallback 在配置重新加载成功后调用
type ReloadCallback func(old, updated *Config)

// Reloader 监听配置文件并在变更后重新加载
type Reloader struct {
	mu sync.RWMutex

	loader   *Loader
	path     string
	debounce time.Duration
	logger   *zap.Logger

	current   *Config
	callbacks []ReloadCallback

	watcher *fsnotify.Watcher
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// ReloaderOption 配置 Reloader
type ReloaderOption func(*Reloader)

// WithDebounceDelay 设置防抖时间
func WithDebounceDelay(d time.Duration) ReloaderOption {
	return func(r *Reloader) { r.debounce = d }
}

// WithReloaderLogger 设置日志记录器
func WithReloaderLogger(logger *zap.Logger) ReloaderOption {
	return func(r *Reloader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReloader 立即加载一次配置，之后由 Start 监听 path 的变更
func NewReloader(loader *Loader, path string, opts ...ReloaderOption) (*Reloader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	r := &Reloader{
		loader:   loader.WithConfigPath(abs),
		path:     abs,
		debounce: 200 * time.Millisecond,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "config_reloader"))

	cfg, err := r.loader.Load()
	if err != nil {
		return nil, err
	}
	r.current = cfg
	return r, nil
}

// Current 返回当前生效的配置
func (r *Reloader) Current() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// OnReload 注册重新加载回调
func (r *Reloader) OnReload(cb ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}

// Start 开始监听，非阻塞
func (r *Reloader) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("reloader already running")
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		_ = w.Close()
		return fmt.Errorf("watch %s: %w", filepath.Dir(r.path), err)
	}

	r.watcher = w
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	go r.loop(ctx)

	r.logger.Info("config reloader started",
		zap.String("path", r.path),
		zap.Duration("debounce", r.debounce))
	return nil
}

// Stop 停止监听并等待后台 goroutine 退出
func (r *Reloader) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	close(r.stopCh)
	done := r.doneCh
	w := r.watcher
	r.mu.Unlock()

	<-done
	return w.Close()
}

func (r *Reloader) loop(ctx context.Context) {
	defer close(r.doneCh)

	var (
		timer  *time.Timer
		settle <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("config watcher error", zap.Error(err))
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != r.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			settle = timer.C
		case <-settle:
			settle = nil
			r.reload()
		}
	}
}

// reload 重新加载配置，失败时保留旧配置
func (r *Reloader) reload() {
	cfg, err := r.loader.Load()
	if err != nil {
		r.logger.Warn("config reload failed, keeping previous config", zap.Error(err))
		return
	}

	r.mu.Lock()
	old := r.current
	r.current = cfg
	callbacks := make([]ReloadCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	r.logger.Info("config reloaded", zap.String("path", r.path))
	for _, cb := range callbacks {
		cb(old, cfg)
	}
}
