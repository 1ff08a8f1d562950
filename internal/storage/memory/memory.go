// Package memory is an in-process entry store with the same behavior as
// the SQLite repository. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"tracker/internal/core"
	"tracker/internal/importer"
	"tracker/internal/storage"
)

// SeedFile is the optional JSON file of table rows loaded by NewFromFiles.
const SeedFile = "seed_entries.json"

// Store keeps entries and the change log in maps guarded by mu.
type Store struct {
	mu      sync.Mutex
	entries map[int64]core.Entry
	nextID  int64
	changes []storage.Change
	seen    map[string]bool
}

// New returns a store holding entries. Entries without an id get the next free one.
func New(entries ...core.Entry) *Store {
	s := &Store{entries: make(map[int64]core.Entry), seen: make(map[string]bool)}
	for _, e := range entries {
		if e.ID == 0 {
			s.nextID++
			e.ID = s.nextID
		} else if e.ID > s.nextID {
			s.nextID = e.ID
		}
		s.entries[e.ID] = e.Clone()
	}
	return s
}

// NewFromFiles seeds a store from base/seed_entries.json when present.
// Rows that do not parse are skipped.
func NewFromFiles(base string, loc *time.Location) (*Store, error) {
	path := filepath.Join(base, SeedFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return New(), nil
	}
	res, err := importer.LoadFile(path, loc)
	if err != nil {
		return nil, fmt.Errorf("seed memory store: %w", err)
	}
	return New(res.Entries...), nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// CreateEntry validates e and stores it under a new id.
func (s *Store) CreateEntry(_ context.Context, e core.Entry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	e.ID = s.nextID
	s.entries[e.ID] = e.Clone()
	return e.ID, nil
}

// GetEntry returns a copy of entry id or storage.ErrNotFound.
func (s *Store) GetEntry(_ context.Context, id int64) (core.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return core.Entry{}, fmt.Errorf("%w: %d", storage.ErrNotFound, id)
	}
	return e.Clone(), nil
}

// matching returns entries passing f, newest first.
func (s *Store) matching(f storage.EntryFilter) []core.Entry {
	var out []core.Entry
	for _, e := range s.entries {
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if !f.Since.IsZero() && e.Date.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.Date.After(f.Until) {
			continue
		}
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// ListEntries returns entries newest first.
func (s *Store) ListEntries(_ context.Context, f storage.EntryFilter) (storage.EntryPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.matching(f)
	page := storage.EntryPage{Page: f.Page, PageSize: f.PageSize, Total: len(all)}
	if f.Page <= 0 {
		page.Entries = all
		return page, nil
	}
	if page.PageSize <= 0 {
		page.PageSize = storage.DefaultPageSize
	}
	start := (f.Page - 1) * page.PageSize
	if start > len(all) {
		start = len(all)
	}
	end := min(start+page.PageSize, len(all))
	page.Entries = all[start:end]
	return page, nil
}

// Records returns every matching entry in chart shape, oldest first.
func (s *Store) Records(_ context.Context, f storage.EntryFilter) ([]core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.matching(f)
	records := make([]core.Record, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		records = append(records, entries[i].Record())
	}
	return records, nil
}

func byCount(counts map[string]int) []storage.NameCount {
	out := make([]storage.NameCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, storage.NameCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// ListCategories returns categories by number of entries, most used first.
func (s *Store) ListCategories(context.Context) ([]storage.NameCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int{}
	for _, e := range s.entries {
		counts[e.Category]++
	}
	return byCount(counts), nil
}

// ListTags returns tags by number of tagged entries, most used first.
func (s *Store) ListTags(context.Context) ([]storage.NameCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[string]int{}
	for _, e := range s.entries {
		for _, t := range e.Tags {
			counts[t]++
		}
	}
	return byCount(counts), nil
}

// EntriesExist reports which of ids are stored.
func (s *Store) EntriesExist(_ context.Context, ids []int64) (map[int64]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if _, ok := s.entries[id]; ok {
			out[id] = true
		}
	}
	return out, nil
}

// ApplyUpdates stores edits, then deletions. Everything is checked first,
// so a missing entry leaves the store untouched.
func (s *Store) ApplyUpdates(_ context.Context, edits []core.Entry, deletions []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range edits {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entry %d: %w", e.ID, err)
		}
		if _, ok := s.entries[e.ID]; !ok {
			return fmt.Errorf("%w: %d", storage.ErrNotFound, e.ID)
		}
	}
	for _, id := range deletions {
		if _, ok := s.entries[id]; !ok {
			return fmt.Errorf("%w: %d", storage.ErrNotFound, id)
		}
	}
	for _, e := range edits {
		s.entries[e.ID] = e.Clone()
	}
	for _, id := range deletions {
		delete(s.entries, id)
	}
	return nil
}

// RecordChange appends to the audit log, ignoring repeated message ids.
func (s *Store) RecordChange(_ context.Context, c storage.Change) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[c.MessageID] {
		return false, nil
	}
	s.seen[c.MessageID] = true
	c.ID = int64(len(s.changes) + 1)
	s.changes = append(s.changes, c)
	return true, nil
}

// ListChanges returns the most recent audit log records.
func (s *Store) ListChanges(_ context.Context, limit int) ([]storage.Change, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.Change
	for i := len(s.changes) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.changes[i])
	}
	return out, nil
}
