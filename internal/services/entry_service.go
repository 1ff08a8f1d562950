// Package services orchestrates entry writes across SQLite and AMQP and
// builds chart views on top of the stored entries.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tracker/internal/amqp"
	"tracker/internal/core"
	"tracker/internal/ledger"
	"tracker/internal/storage"
	"tracker/internal/updates"
)

// EntryStore is the storage used by EntryService.
type EntryStore interface {
	CreateEntry(ctx context.Context, e core.Entry) (int64, error)
	GetEntry(ctx context.Context, id int64) (core.Entry, error)
	ListEntries(ctx context.Context, f storage.EntryFilter) (storage.EntryPage, error)
	Records(ctx context.Context, f storage.EntryFilter) ([]core.Record, error)
	ListCategories(ctx context.Context) ([]storage.NameCount, error)
	ListTags(ctx context.Context) ([]storage.NameCount, error)
	EntriesExist(ctx context.Context, ids []int64) (map[int64]bool, error)
	ApplyUpdates(ctx context.Context, edits []core.Entry, deletions []int64) error
}

// Publisher announces entry changes.
type Publisher interface {
	PublishEntriesUpdated(ctx context.Context, msg *amqp.EntriesUpdatedMessage) error
}

// EntryService saves entries locally first, then publishes a change
// notification. Publish failures are logged and never fail the write.
type EntryService struct {
	store     EntryStore
	publisher Publisher
	loc       *time.Location

	mu       sync.Mutex
	onChange []func()
}

// NewEntryService wires the store and an optional publisher.
func NewEntryService(store EntryStore, publisher Publisher, loc *time.Location) *EntryService {
	if loc == nil {
		loc = time.Local
	}
	return &EntryService{store: store, publisher: publisher, loc: loc}
}

// Location is the time zone used to interpret dates.
func (s *EntryService) Location() *time.Location { return s.loc }

// OnChange registers fn to run after every successful write.
func (s *EntryService) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *EntryService) changed(ctx context.Context, created, edited, deleted []int64) {
	s.mu.Lock()
	hooks := append([]func(){}, s.onChange...)
	s.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}

	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not configured, skipping change message")
		return
	}
	msg := amqp.NewEntriesUpdatedMessage(created, edited, deleted)
	if err := s.publisher.PublishEntriesUpdated(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "Failed to publish change message",
			"message_id", msg.MessageID, "error", err)
	}
}

// CreateEntry validates and stores e.
func (s *EntryService) CreateEntry(ctx context.Context, e core.Entry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	id, err := s.store.CreateEntry(ctx, e)
	if err != nil {
		return 0, fmt.Errorf("save entry: %w", err)
	}
	s.changed(ctx, []int64{id}, nil, nil)
	return id, nil
}

// DeleteEntry removes one entry.
func (s *EntryService) DeleteEntry(ctx context.Context, id int64) error {
	if err := s.store.ApplyUpdates(ctx, nil, []int64{id}); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	s.changed(ctx, nil, nil, []int64{id})
	return nil
}

// SubmitUpdates validates and applies a change set as one unit.
func (s *EntryService) SubmitUpdates(ctx context.Context, req updates.Request) error {
	v, err := updates.Validate(ctx, req, s.store, s.loc)
	if err != nil {
		return err
	}
	if v.Empty() {
		return nil
	}
	if err := updates.Apply(ctx, v, s.store); err != nil {
		return err
	}

	edited := make([]int64, len(v.Edits))
	for i, e := range v.Edits {
		edited[i] = e.ID
	}
	s.changed(ctx, nil, edited, v.Deletions)
	return nil
}

// Submit implements ledger.Submitter.
func (s *EntryService) Submit(ctx context.Context, p ledger.Payload) error {
	return s.SubmitUpdates(ctx, updates.FromPayload(p))
}

// GetEntry returns one entry.
func (s *EntryService) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	return s.store.GetEntry(ctx, id)
}

// ListEntries returns one page of entries.
func (s *EntryService) ListEntries(ctx context.Context, f storage.EntryFilter) (storage.EntryPage, error) {
	return s.store.ListEntries(ctx, f)
}

// Records returns matching entries in chart shape.
func (s *EntryService) Records(ctx context.Context, f storage.EntryFilter) ([]core.Record, error) {
	return s.store.Records(ctx, f)
}

func (s *EntryService) Categories(ctx context.Context) ([]storage.NameCount, error) {
	return s.store.ListCategories(ctx)
}

func (s *EntryService) Tags(ctx context.Context) ([]storage.NameCount, error) {
	return s.store.ListTags(ctx)
}

// IsNotFound reports whether err means the entry does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound) || errors.Is(err, updates.ErrNotFound)
}
