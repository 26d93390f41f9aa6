package cartclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var errMissingCachePath = errors.New("cartclient: cache path is required")

// SnapshotCache stores the last authoritative cart for offline fallback.
type SnapshotCache interface {
	Save(items []Item) error
	Load() ([]Item, bool, error)
}

type snapshotDocument struct {
	SavedAt time.Time `json:"savedAt"`
	Items   []Item    `json:"items"`
}

// FileSnapshotCache persists the snapshot as a JSON document.
type FileSnapshotCache struct {
	path  string
	clock func() time.Time
}

// NewFileSnapshotCache returns a cache writing to path.
func NewFileSnapshotCache(path string, clock func() time.Time) (*FileSnapshotCache, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errMissingCachePath
	}
	if clock == nil {
		clock = time.Now
	}
	return &FileSnapshotCache{path: path, clock: clock}, nil
}

// Save replaces the snapshot atomically.
func (c *FileSnapshotCache) Save(items []Item) error {
	encoded, err := json.MarshalIndent(snapshotDocument{SavedAt: c.clock().UTC(), Items: cloneItems(items)}, "", "  ")
	if err != nil {
		return fmt.Errorf("cartclient: encode snapshot: %w", err)
	}
	directory := filepath.Dir(c.path)
	if err := os.MkdirAll(directory, 0o700); err != nil {
		return fmt.Errorf("cartclient: create snapshot directory: %w", err)
	}
	temporary, err := os.CreateTemp(directory, ".cart-*.json")
	if err != nil {
		return fmt.Errorf("cartclient: create snapshot: %w", err)
	}
	temporaryPath := temporary.Name()
	if _, err := temporary.Write(encoded); err != nil {
		temporary.Close()
		os.Remove(temporaryPath)
		return fmt.Errorf("cartclient: write snapshot: %w", err)
	}
	if err := temporary.Close(); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("cartclient: write snapshot: %w", err)
	}
	if err := os.Rename(temporaryPath, c.path); err != nil {
		os.Remove(temporaryPath)
		return fmt.Errorf("cartclient: replace snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot. The boolean is false when none has been saved yet.
func (c *FileSnapshotCache) Load() ([]Item, bool, error) {
	raw, err := os.ReadFile(c.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cartclient: read snapshot: %w", err)
	}
	var document snapshotDocument
	if err := json.Unmarshal(raw, &document); err != nil {
		return nil, false, fmt.Errorf("cartclient: decode snapshot: %w", err)
	}
	return cloneItems(document.Items), true, nil
}
