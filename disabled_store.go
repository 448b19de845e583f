// disabled_store.go: Persistent disabled-plugin set with file watching
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package modloader

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agilira/argus"
)

// DisabledStore persists the disabled set as a newline-delimited list of
// module ids. Blank lines and lines starting with '#' are ignored.
//
// Example usage:
//
//	store := modloader.NewDisabledStore("/var/lib/app/disabled_plugins.txt", logger)
//	disabled, err := store.Load()
//	if err != nil {
//	    return err
//	}
//	rc.Disabled = disabled
type DisabledStore struct {
	path         string
	logger       Logger
	audit        *argus.AuditLogger
	pollInterval time.Duration

	mu sync.Mutex
}

// NewDisabledStore creates a store backed by path.
func NewDisabledStore(path string, logger Logger) *DisabledStore {
	return &DisabledStore{
		path:         filepath.Clean(path),
		logger:       NewLogger(logger),
		pollInterval: time.Second,
	}
}

// WithAuditLogger records every Save in the argus audit trail.
func (s *DisabledStore) WithAuditLogger(audit *argus.AuditLogger) *DisabledStore {
	s.audit = audit
	return s
}

// WithPollInterval sets the interval used by Watch.
func (s *DisabledStore) WithPollInterval(interval time.Duration) *DisabledStore {
	if interval > 0 {
		s.pollInterval = interval
	}
	return s
}

// Path returns the backing file path.
func (s *DisabledStore) Path() string { return s.path }

// Load reads the disabled set. A missing file is an empty set.
func (s *DisabledStore) Load() (IDSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *DisabledStore) load() (IDSet, error) {
	data, err := os.ReadFile(s.path) // #nosec G304 -- path is provided by the operator
	if err != nil {
		if os.IsNotExist(err) {
			return NewIDSet(), nil
		}
		return nil, NewStoreError(s.path, "failed to read disabled set", err)
	}
	return parseDisabledSet(data), nil
}

func parseDisabledSet(data []byte) IDSet {
	set := NewIDSet()
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		set.Add(ParseModuleID(line))
	}
	return set
}

// Save writes set atomically: a temporary file in the same directory is
// synced and renamed over the target.
func (s *DisabledStore) Save(set IDSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(set)
}

func (s *DisabledStore) save(set IDSet) error {
	var buf bytes.Buffer
	for _, id := range set.Sorted() {
		buf.WriteString(id.String())
		buf.WriteByte('\n')
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return NewStoreError(s.path, "failed to create store directory", err)
	}
	tmp, err := os.CreateTemp(dir, ".disabled-*.tmp")
	if err != nil {
		return NewStoreError(s.path, "failed to create temporary file", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		cleanup()
		return NewStoreError(s.path, "failed to write disabled set", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return NewStoreError(s.path, "failed to sync disabled set", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return NewStoreError(s.path, "failed to close temporary file", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return NewStoreError(s.path, "failed to replace disabled set", err)
	}

	s.logger.Info("Disabled set saved", "path", s.path, "count", len(set))
	if s.audit != nil {
		s.audit.LogSecurityEvent("disabled_set_saved", "Disabled plugin set written", map[string]interface{}{
			"path":  s.path,
			"count": len(set),
		})
	}
	return nil
}

// Disable adds ids to the stored set. It reports whether the file changed.
func (s *DisabledStore) Disable(ids ...ModuleID) (bool, error) {
	return s.update(func(set IDSet) bool {
		changed := false
		for _, id := range ids {
			id = id.Normalize()
			if !set.Contains(id) {
				set.Add(id)
				changed = true
			}
		}
		return changed
	})
}

// Enable removes ids from the stored set. It reports whether the file
// changed.
func (s *DisabledStore) Enable(ids ...ModuleID) (bool, error) {
	return s.update(func(set IDSet) bool {
		changed := false
		for _, id := range ids {
			id = id.Normalize()
			if set.Contains(id) {
				delete(set, id)
				changed = true
			}
		}
		return changed
	})
}

func (s *DisabledStore) update(mutate func(IDSet) bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.load()
	if err != nil {
		return false, err
	}
	if !mutate(set) {
		return false, nil
	}
	return true, s.save(set)
}

// Watch calls fn with the reloaded set whenever the file changes, until ctx
// is done. Read errors are logged and the change is skipped.
func (s *DisabledStore) Watch(ctx context.Context, fn func(IDSet)) error {
	watcher := argus.New(argus.Config{
		PollInterval:         s.pollInterval,
		CacheTTL:             s.pollInterval / 2,
		MaxWatchedFiles:      1,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, path string) {
			s.logger.Error("Disabled set watching error", "error", err, "file", path)
		},
	})

	err := watcher.Watch(s.path, func(event argus.ChangeEvent) {
		if event.IsDelete {
			s.logger.Warn("Disabled set file deleted", "path", event.Path)
			safeCall(s.logger, func() { fn(NewIDSet()) })
			return
		}
		set, err := s.Load()
		if err != nil {
			s.logger.Error("Failed to reload disabled set", "error", err, "path", event.Path)
			return
		}
		s.logger.Info("Disabled set reloaded", "path", event.Path, "count", len(set))
		safeCall(s.logger, func() { fn(set) })
	})
	if err != nil {
		return NewConfigWatcherError("failed to watch disabled set", err)
	}
	if err := watcher.Start(); err != nil {
		return NewConfigWatcherError("failed to start disabled set watcher", err)
	}

	go func() {
		<-ctx.Done()
		if err := watcher.Stop(); err != nil {
			s.logger.Warn("Failed to stop disabled set watcher", "error", err)
		}
	}()
	return nil
}
