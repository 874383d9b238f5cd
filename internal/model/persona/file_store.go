package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// FileStore serves personas from a JSON file and reloads it when it changes.
// A file that fails to load keeps the previously loaded set.
type FileStore struct {
	*MemoryStore
	path string
}

// NewFileStore loads personas from path.
func NewFileStore(path string) (*FileStore, error) {
	items, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{MemoryStore: NewMemoryStore(items), path: path}, nil
}

// Reload re-reads the file.
func (s *FileStore) Reload() error {
	items, err := loadFile(s.path)
	if err != nil {
		return err
	}
	s.Replace(items)
	return nil
}

// Watch reloads the file on every write until ctx is done. The parent
// directory is watched so editors that replace the file atomically are seen.
func (s *FileStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create persona watcher: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(s.path)
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
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if err := s.Reload(); err != nil {
					log.Printf("[persona] reload of %s failed, keeping previous set: %v", s.path, err)
					continue
				}
				log.Printf("[persona] reloaded %d personas from %s", len(s.List()), s.path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[persona] watcher error: %v", err)
			}
		}
	}()

	return nil
}

func loadFile(path string) ([]Persona, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read persona file: %w", err)
	}

	var items []Persona
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("failed to parse persona file %s: %w", path, err)
	}

	for i, item := range items {
		if strings.TrimSpace(item.ID) == "" || strings.TrimSpace(item.Instructions) == "" {
			return nil, fmt.Errorf("persona %d in %s needs id and instructions", i, path)
		}
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("persona file %s is empty", path)
	}
	return items, nil
}
