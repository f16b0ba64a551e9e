// Package agents stores named agent profiles. A profile supplies a prompt
// prefix that is prepended to the task before the run starts.
package agents

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Profile is one agent record loaded from the profiles file.
type Profile struct {
	ID     string `yaml:"id" json:"id"`
	Name   string `yaml:"name" json:"name"`
	Prompt string `yaml:"prompt" json:"prompt"`
}

// Store loads agent profiles from a YAML (or JSON) file and hot-reloads on
// file changes. Lookups are by id or name.
type Store struct {
	path   string
	logger *zap.Logger

	mu       sync.RWMutex
	profiles []Profile

	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewStore reads the profiles file and starts watching it for changes. A
// missing file yields an empty store, not an error; the file may appear
// later.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	s := &Store{
		path:   path,
		logger: logger,
		done:   make(chan struct{}),
	}

	if err := s.reload(); err != nil {
		logger.Warn("Failed to load agent profiles", zap.String("path", path), zap.Error(err))
	}

	if err := s.initWatcher(); err != nil {
		// Hot reload is best effort; the store still works without it.
		logger.Warn("Failed to watch agent profiles", zap.String("path", path), zap.Error(err))
	}

	return s, nil
}

func (s *Store) initWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	// Watch the directory rather than the file so atomic replacements are
	// still observed.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch profiles directory: %w", err)
	}
	s.watcher = watcher

	s.wg.Add(1)
	go s.watchLoop()
	return nil
}

func (s *Store) watchLoop() {
	defer s.wg.Done()
	for {
		select {
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			// Small delay so the write has finished before we read.
			time.Sleep(100 * time.Millisecond)
			if err := s.reload(); err != nil {
				s.logger.Error("Failed to reload agent profiles", zap.Error(err))
			} else {
				s.logger.Info("Agent profiles reloaded", zap.String("path", s.path))
			}
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("Agent profile watcher error", zap.Error(err))
		case <-s.done:
			return
		}
	}
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			s.profiles = nil
			s.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read profiles %s: %w", s.path, err)
	}

	var profiles []Profile
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return fmt.Errorf("decode profiles %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.profiles = profiles
	s.mu.Unlock()
	return nil
}

// Resolve returns the prompt prefix for the given name or id, id taking
// precedence. The second return is false when no profile matches.
func (s *Store) Resolve(name, id string) (string, bool) {
	if name == "" && id == "" {
		return "", false
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if id != "" && p.ID == id {
			return p.Prompt, true
		}
		if name != "" && p.Name == name {
			return p.Prompt, true
		}
	}
	return "", false
}

// List returns a copy of all loaded profiles.
func (s *Store) List() []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Profile, len(s.profiles))
	copy(out, s.profiles)
	return out
}

// Close stops the file watcher.
func (s *Store) Close() error {
	close(s.done)
	if s.watcher != nil {
		s.watcher.Close()
	}
	s.wg.Wait()
	return nil
}
