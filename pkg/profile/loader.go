package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// reloadDelay debounces bursts of file events before triggering a reload.
const reloadDelay = 500 * time.Millisecond

// file is the on-disk shape: either a single profile mapping or a
// document with a top-level profiles list.
type file struct {
	Profiles []Profile `yaml:"profiles" json:"profiles"`
}

// Loader reads profiles from files and directories, with per-file caching
// and optional hot reload.
type Loader struct {
	logger  zerolog.Logger
	cache   map[string][]Profile
	mu      sync.RWMutex
	watcher *fsnotify.Watcher
}

// NewLoader creates a profile loader.
func NewLoader(logger zerolog.Logger) *Loader {
	return &Loader{
		logger: logger.With().Str("component", "profile-loader").Logger(),
		cache:  make(map[string][]Profile),
	}
}

// LoadFromPaths loads profiles from a list of file or directory paths.
// Every returned profile has defaults applied and passed validation.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Profile, error) {
	var all []Profile

	for _, path := range paths {
		profiles, err := l.loadFromPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to load from path %s: %w", path, err)
		}
		all = append(all, profiles...)
	}

	l.logger.Info().
		Int("total", len(all)).
		Int("sources", len(paths)).
		Msg("Profiles loaded from paths")

	return all, nil
}

// loadFromPath loads profiles from a single path (file or directory).
func (l *Loader) loadFromPath(ctx context.Context, path string) ([]Profile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}

	if info.IsDir() {
		return l.loadFromDirectory(ctx, path)
	}
	return l.loadFromFile(path)
}

// loadFromDirectory loads all profile files from a directory recursively.
func (l *Loader) loadFromDirectory(ctx context.Context, dirPath string) ([]Profile, error) {
	var profiles []Profile

	err := filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isProfileFile(path) {
			return nil
		}

		loaded, err := l.loadFromFile(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to load profile file")
			return nil // Continue processing other files
		}

		profiles = append(profiles, loaded...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	return profiles, nil
}

// loadFromFile loads the profiles defined in a single file.
func (l *Loader) loadFromFile(filePath string) ([]Profile, error) {
	l.mu.RLock()
	if cached, exists := l.cache[filePath]; exists {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	profiles, err := Parse(data, filepath.Ext(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}

	l.mu.Lock()
	l.cache[filePath] = profiles
	l.mu.Unlock()

	l.logger.Debug().
		Str("path", filePath).
		Int("profiles", len(profiles)).
		Msg("Profiles loaded from file")

	return profiles, nil
}

// Parse decodes profile definitions from YAML or JSON text, applies
// defaults, and validates each profile. ext selects the decoder
// (".json" for JSON, anything else for YAML).
func Parse(data []byte, ext string) ([]Profile, error) {
	var doc file
	var single Profile

	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		if len(doc.Profiles) == 0 {
			if err := json.Unmarshal(data, &single); err != nil {
				return nil, err
			}
		}
	} else {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		if len(doc.Profiles) == 0 {
			if err := yaml.Unmarshal(data, &single); err != nil {
				return nil, err
			}
		}
	}

	profiles := doc.Profiles
	if len(profiles) == 0 && single.Name != "" {
		profiles = []Profile{single}
	}
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no profiles defined")
	}

	for i := range profiles {
		profiles[i].applyDefaults()
		if err := profiles[i].Validate(); err != nil {
			return nil, err
		}
	}
	return profiles, nil
}

// ByName indexes profiles by name; later entries win on duplicates.
func ByName(profiles []Profile) map[string]Profile {
	index := make(map[string]Profile, len(profiles))
	for _, p := range profiles {
		index[p.Name] = p
	}
	return index
}

// Watch starts watching paths for profile changes and triggers reload on
// change. Reloads are debounced; the watcher stops when ctx is cancelled.
func (l *Loader) Watch(ctx context.Context, paths []string, reloadFn func([]Profile) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	l.watcher = watcher

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("path", path).Msg("Failed to stat path for watching")
			continue
		}

		if info.IsDir() {
			if err := l.watchDirectory(path); err != nil {
				l.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch directory")
			}
		} else {
			if err := watcher.Add(path); err != nil {
				l.logger.Warn().Err(err).Str("path", path).Msg("Failed to watch file")
			}
		}
	}

	go l.processEvents(ctx, paths, reloadFn)

	l.logger.Info().
		Int("paths", len(paths)).
		Msg("Started watching profile paths")

	return nil
}

// watchDirectory adds all directories under dirPath to the watcher.
func (l *Loader) watchDirectory(dirPath string) error {
	return filepath.WalkDir(dirPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return l.watcher.Add(path)
		}
		return nil
	})
}

// processEvents processes file system events and triggers reloads.
func (l *Loader) processEvents(ctx context.Context, paths []string, reloadFn func([]Profile) error) {
	var reloadTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if l.watcher != nil {
				_ = l.watcher.Close()
			}
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 && isProfileFile(event.Name) {
				l.logger.Debug().
					Str("file", event.Name).
					Str("op", event.Op.String()).
					Msg("Profile file changed")

				// Clear cache for this file
				l.mu.Lock()
				delete(l.cache, event.Name)
				l.mu.Unlock()

				// Debounce reload
				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadTimer = time.AfterFunc(reloadDelay, func() {
					if err := l.triggerReload(ctx, paths, reloadFn); err != nil {
						l.logger.Error().Err(err).Msg("Failed to reload profiles")
					}
				})
			}

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error().Err(err).Msg("Watcher error")
		}
	}
}

// triggerReload reloads all profiles from watched paths.
func (l *Loader) triggerReload(ctx context.Context, paths []string, reloadFn func([]Profile) error) error {
	l.logger.Info().Msg("Reloading profiles...")

	profiles, err := l.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to reload profiles: %w", err)
	}

	if err := reloadFn(profiles); err != nil {
		return fmt.Errorf("failed to apply reloaded profiles: %w", err)
	}

	l.logger.Info().
		Int("count", len(profiles)).
		Msg("Profiles reloaded successfully")

	return nil
}

// StopWatching stops watching for file changes.
func (l *Loader) StopWatching() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// ClearCache clears the profile cache.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.cache = make(map[string][]Profile)
	l.logger.Debug().Msg("Profile cache cleared")
}

// isProfileFile reports whether path looks like a profile definition.
func isProfileFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}
