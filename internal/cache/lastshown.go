// Package cache persists the most recently displayed detection so the
// overlay can show something meaningful immediately after a restart.
// Everything here is best-effort: a broken cache behaves like an empty one.
package cache

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/featherfront/feather-front/internal/detection"
)

// lastShownFile is the fixed key the last displayed detection is stored
// under inside the data directory.
const lastShownFile = "last_detection.json"

// LastShownStore reads and writes the persisted last-shown detection.
// Thread-safe.
type LastShownStore struct {
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// NewLastShownStore creates a store rooted at dataDir. The logger may be nil.
func NewLastShownStore(dataDir string, logger *slog.Logger) *LastShownStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LastShownStore{
		path:   filepath.Join(dataDir, lastShownFile),
		logger: logger,
	}
}

// Load returns the cached detection, or nil when the cache is absent,
// unreadable, or fails the non-empty-prediction invariant.
func (s *LastShownStore) Load() *detection.Detection {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("failed to read last-shown cache, treating as empty",
				"path", s.path, "error", err)
		}
		return nil
	}

	var cached detection.Detection
	if err := json.Unmarshal(data, &cached); err != nil {
		s.logger.Warn("last-shown cache is corrupt, discarding",
			"path", s.path, "error", err)
		return nil
	}

	if !cached.HasPrediction() {
		// Stale format or an empty placeholder, not worth showing
		return nil
	}
	return &cached
}

// Save writes the detection to disk. Detections without predictions are
// ignored. Failures are logged and swallowed.
func (s *LastShownStore) Save(d *detection.Detection) {
	if !d.HasPrediction() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(d)
	if err != nil {
		s.logger.Warn("failed to encode last-shown cache", "error", err)
		return
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.logger.Warn("failed to create cache directory", "path", s.path, "error", err)
		return
	}

	// tmp + rename so a crash mid-write never leaves a torn file
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Warn("failed to write last-shown cache", "path", tmp, "error", err)
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Warn("failed to replace last-shown cache", "path", s.path, "error", err)
	}
}

// Clear removes the cached detection. Missing file is not an error.
func (s *LastShownStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to clear last-shown cache", "path", s.path, "error", err)
	}
}
