package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all settings.
const envPrefix = "OCCMTX"

var (
	ErrConfigFileNotFound = errors.New("config: file not found")
	ErrConfigParseError   = errors.New("config: parse error")
	ErrConfigValidation   = errors.New("config: validation failed")
)

var (
	globalMu  sync.RWMutex
	globalCfg *Config
)

// LoadOption customises Load.
type LoadOption func(*loadOptions)

type loadOptions struct {
	configPath  string
	searchPaths []string
	overrides   map[string]interface{}
}

// WithConfigPath reads the given YAML file.
func WithConfigPath(path string) LoadOption {
	return func(o *loadOptions) { o.configPath = path }
}

// WithSearchPaths looks for config.yaml in each directory in turn.
func WithSearchPaths(dirs ...string) LoadOption {
	return func(o *loadOptions) { o.searchPaths = append(o.searchPaths, dirs...) }
}

// WithOverrides sets keys after the file and environment are merged.
func WithOverrides(kv map[string]interface{}) LoadOption {
	return func(o *loadOptions) { o.overrides = kv }
}

// newViper builds a Viper instance with YAML file type, the OCCMTX_ env
// prefix, automatic env binding and a "." → "_" key replacer, so that
// "redis.addr" resolves to OCCMTX_REDIS_ADDR.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerKeys(v)
	return v
}

// Load merges the config file (if any), OCCMTX_* environment variables and
// overrides, applies defaults and validates the result.  The loaded Config
// also becomes the one returned by Get.
func Load(opts ...LoadOption) (*Config, error) {
	o := &loadOptions{}
	for _, opt := range opts {
		opt(o)
	}

	v := newViper()
	switch {
	case o.configPath != "":
		if _, err := os.Stat(o.configPath); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrConfigFileNotFound, o.configPath, err)
		}
		v.SetConfigFile(o.configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrConfigParseError, o.configPath, err)
		}
	case len(o.searchPaths) > 0:
		v.SetConfigName("config")
		for _, dir := range o.searchPaths {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var nf viper.ConfigFileNotFoundError
			if errors.As(err, &nf) {
				return nil, fmt.Errorf("%w: searched %v", ErrConfigFileNotFound, o.searchPaths)
			}
			return nil, fmt.Errorf("%w: %v", ErrConfigParseError, err)
		}
	}
	for k, val := range o.overrides {
		v.Set(k, val)
	}

	cfg, err := unmarshalAndFinalize(v)
	if err != nil {
		return nil, err
	}
	globalMu.Lock()
	globalCfg = cfg
	globalMu.Unlock()
	return cfg, nil
}

// LoadFromFile is Load(WithConfigPath(path)).
func LoadFromFile(path string) (*Config, error) {
	return Load(WithConfigPath(path))
}

// LoadFromEnv builds a Config from OCCMTX_* variables and defaults only.
func LoadFromEnv() (*Config, error) {
	return Load()
}

// MustLoad is Load that panics on error, for use in main().
func MustLoad(opts ...LoadOption) *Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

// Get returns the most recently loaded Config, or nil.
func Get() *Config {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalCfg
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", ErrConfigParseError, err)
	}
	ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigValidation, err)
	}
	return cfg, nil
}

// watchDebounce coalesces the burst of events editors emit on save.
const watchDebounce = 100 * time.Millisecond

// Watch reloads configPath whenever it changes on disk and passes each valid
// result to onChange.  Invalid results go to onError (if non-nil) and
// onChange is not called.  The directory is watched rather than the file so
// that atomic rename-on-save is seen.  Watch returns once the watcher is
// running; it stops when ctx is cancelled.
func Watch(ctx context.Context, configPath string, onChange func(*Config), onError func(error)) error {
	abs, err := filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("config: resolve %q: %w", configPath, err)
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("config: watch %q: %w", filepath.Dir(abs), err)
	}
	report := func(err error) {
		if onError != nil {
			onError(err)
		}
	}

	go func() {
		defer w.Close()
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(watchDebounce)
				} else {
					timer.Reset(watchDebounce)
				}
				fire = timer.C
			case <-fire:
				fire = nil
				cfg, err := Load(WithConfigPath(abs))
				if err != nil {
					report(err)
					continue
				}
				onChange(cfg)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				report(fmt.Errorf("config: watcher: %w", err))
			}
		}
	}()
	return nil
}
