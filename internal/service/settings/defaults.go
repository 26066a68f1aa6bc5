package settings

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Defaults holds the settings used by clients that never saved their own. Values come from the
// environment and are overridden by an optional YAML (or JSON) file.
type Defaults struct {
	path string
	base AppConfig

	mu      sync.RWMutex
	current AppConfig
}

// LoadDefaults reads path over base. An empty path uses base alone.
func LoadDefaults(path string, base AppConfig) (*Defaults, error) {
	d := &Defaults{path: path, base: base, current: base}
	if path == "" {
		return d, nil
	}
	if err := d.Reload(); err != nil {
		return nil, err
	}
	return d, nil
}

// Current returns the active defaults.
func (d *Defaults) Current() AppConfig {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.current
}

// Reload re-reads the file. Keys absent from the file keep their environment value.
func (d *Defaults) Reload() error {
	data, err := os.ReadFile(d.path)
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}

	cfg := d.base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse settings file %s: %w", d.path, err)
	}

	d.mu.Lock()
	d.current = cfg
	d.mu.Unlock()
	return nil
}

// Watch reloads the file whenever it changes until ctx is done. Sessions already running keep
// the settings they started with. The directory is watched so editors that replace the file
// are handled.
func (d *Defaults) Watch(ctx context.Context, logger zerolog.Logger) error {
	if d.path == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(d.path)); err != nil {
		watcher.Close()
		return err
	}

	target := filepath.Clean(d.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := d.Reload(); err != nil {
					logger.Warn().Err(err).Str("path", d.path).Msg("settings reload failed, keeping previous defaults")
					continue
				}
				logger.Info().Str("path", d.path).Msg("settings defaults reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn().Err(err).Msg("settings watcher error")
			}
		}
	}()
	return nil
}
