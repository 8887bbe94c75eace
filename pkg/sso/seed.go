package sso

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/lockhaven/fedgate/pkg/observability"
)

// seedFile is the on-disk shape of an org auth config bundle
type seedFile struct {
	Organizations []*AuthConfig `yaml:"organizations"`
}

// SeedLoader loads organization auth configs from a YAML file into the store
// and keeps them fresh while the file changes on disk. Reload also resets any
// cached protocol-initialization failures, so a fixed IdP endpoint is picked
// up without a restart.
type SeedLoader struct {
	configs *ConfigStore
	logger  *observability.Logger
}

// NewSeedLoader creates a seed loader
func NewSeedLoader(configs *ConfigStore, logger *observability.Logger) *SeedLoader {
	return &SeedLoader{
		configs: configs,
		logger:  logger.WithField("component", "seed_loader"),
	}
}

// Load reads the seed file and installs every org config it holds, returning
// the number of configs applied
func (l *SeedLoader) Load(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return 0, fmt.Errorf("failed to parse seed file: %w", err)
	}

	applied := 0
	for _, cfg := range seed.Organizations {
		if cfg.OrganizationID == "" || cfg.Domain == "" {
			l.logger.Warn("skipping seed entry without organization_id or domain")
			continue
		}
		if err := l.configs.Install(ctx, cfg); err != nil {
			return applied, fmt.Errorf("failed to install config for %s: %w", cfg.OrganizationID, err)
		}
		applied++
	}
	return applied, nil
}

// Watch reloads the seed file whenever it changes, until the context ends.
// Editors replace files rather than writing in place, so the watch is on the
// parent directory with events filtered to the seed path.
func (l *SeedLoader) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(path)
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
				n, err := l.Load(ctx, path)
				if err != nil {
					l.logger.WithError(err).Error("seed reload failed; keeping previous configs")
					continue
				}
				l.logger.WithField("configs", n).Info("seed file reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.WithError(err).Warn("seed watcher error")
			}
		}
	}()
	return nil
}
