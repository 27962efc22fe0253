package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/mdkashifakram/LLMGuardian/pkg/observability/logging"
)

var (
	config     *Config
	configOnce sync.Once
	configErr  error
	configMu   sync.RWMutex

	configUpdateCh chan *Config
	configUpdateMu sync.Mutex
)

// fileRoot matches the YAML file layout; all keys live under "llmguardian:".
type fileRoot struct {
	LLMGuardian Config `yaml:"llmguardian"`
}

// Load loads the configuration from the specified YAML file once and caches it globally.
func Load(configPath string) (*Config, error) {
	configOnce.Do(func() {
		cfg, err := Parse(configPath)
		if err != nil {
			configErr = err
			return
		}
		configMu.Lock()
		config = cfg
		configMu.Unlock()
	})
	if configErr != nil {
		return nil, configErr
	}
	configMu.RLock()
	defer configMu.RUnlock()
	return config, nil
}

// Parse parses the YAML config file without touching the global cache.
func Parse(configPath string) (*Config, error) {
	// Resolve symlinks to handle mounted config files
	resolved, _ := filepath.EvalSymlinks(configPath)
	if resolved == "" {
		resolved = configPath
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	root := &fileRoot{}
	if err := yaml.Unmarshal(data, root); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := &root.LLMGuardian
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a configuration with all defaults applied and no file input.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Replace replaces the globally cached config. It is safe for concurrent readers.
func Replace(newCfg *Config) {
	configMu.Lock()
	config = newCfg
	configErr = nil
	configMu.Unlock()

	configUpdateMu.Lock()
	if configUpdateCh != nil {
		select {
		case configUpdateCh <- newCfg:
		default:
			// Channel full or no listener, skip
		}
	}
	configUpdateMu.Unlock()
}

// Get returns the current configuration.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return config
}

// WatchConfigUpdates returns a channel that receives config updates.
// Only one watcher is supported at a time.
func WatchConfigUpdates() <-chan *Config {
	configUpdateMu.Lock()
	defer configUpdateMu.Unlock()

	if configUpdateCh == nil {
		configUpdateCh = make(chan *Config, 1)
	}
	return configUpdateCh
}

// Watch watches the config file for changes and replaces the global config
// on every successful re-parse. Runs until ctx is cancelled.
func Watch(ctx context.Context, configPath string) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logging.LogEvent("config_watcher_error", map[string]interface{}{
			"stage": "create_watcher",
			"error": err.Error(),
		})
		return
	}
	defer watcher.Close()

	cfgFile := configPath
	cfgDir := filepath.Dir(cfgFile)

	// Watch both the file and its directory to handle symlink swaps
	if err := watcher.Add(cfgDir); err != nil {
		logging.LogEvent("config_watcher_error", map[string]interface{}{
			"stage": "watch_dir",
			"dir":   cfgDir,
			"error": err.Error(),
		})
		return
	}
	_ = watcher.Add(cfgFile) // best-effort; may fail if file replaced by symlink later

	var (
		pending bool
		last    time.Time
	)

	reload := func() {
		newCfg, err := Parse(cfgFile)
		if err != nil {
			logging.LogEvent("config_reload_failed", map[string]interface{}{
				"file":  cfgFile,
				"error": err.Error(),
			})
			return
		}
		Replace(newCfg)
		logging.LogEvent("config_reloaded", map[string]interface{}{
			"file": cfgFile,
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove|fsnotify.Chmod) != 0 {
				if filepath.Base(ev.Name) == filepath.Base(cfgFile) || filepath.Dir(ev.Name) == cfgDir {
					if !pending || time.Since(last) > 250*time.Millisecond {
						pending = true
						last = time.Now()
						// Slight delay to let the file settle
						go func() { time.Sleep(300 * time.Millisecond); reload() }()
					}
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.LogEvent("config_watcher_error", map[string]interface{}{
				"stage": "watch_loop",
				"error": err.Error(),
			})
		}
	}
}
