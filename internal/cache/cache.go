// Package cache provides an in-memory LRU cache with expiry, a loader that
// collapses concurrent misses, and a janitor for periodic cleanup.
package cache

import (
	"log/slog"
	"time"
)

// Cache is the generic cache interface.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Purge()
	Size() int
}

// Cleaner is a cache that can drop its expired items.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically cleans registered caches.
type Manager struct {
	caches []Cleaner
	logger *slog.Logger
	stop   chan struct{}
	done   chan struct{}
}

// NewManager creates a cache manager
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// Register adds c; call before StartCleanup.
func (m *Manager) Register(c Cleaner) {
	m.caches = append(m.caches, c)
}

// StartCleanup starts periodic cleanup of expired entries
func (m *Manager) StartCleanup(interval time.Duration) {
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	go m.run(interval)
}

func (m *Manager) run(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.CleanAll(); n > 0 {
				m.logger.Debug("Expired cache items removed", "component", "cache", "count", n)
			}
		case <-m.stop:
			return
		}
	}
}

// CleanAll cleans every registered cache once.
func (m *Manager) CleanAll() int {
	total := 0
	for _, c := range m.caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop ends the cleanup loop and waits for it to exit.
func (m *Manager) Stop() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop = nil
}
