// Package storage persists entries, their tags and the change audit log in
// SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"tracker/internal/core"

	_ "modernc.org/sqlite"
)

// DefaultPageSize is the number of entries per list page.
const DefaultPageSize = 100

// ErrNotFound is returned for a missing entry.
var ErrNotFound = errors.New("entry not found")

// EntryFilter narrows entry listings. Page is 1-based; a zero Page lists
// every match without paging.
type EntryFilter struct {
	Category string
	Since    time.Time
	Until    time.Time
	Page     int
	PageSize int
}

// EntryPage is one page of a listing.
type EntryPage struct {
	Entries  []core.Entry
	Page     int
	PageSize int
	Total    int
}

func (p EntryPage) HasPrev() bool { return p.Page > 1 }
func (p EntryPage) HasNext() bool { return p.Page*p.PageSize < p.Total }

// NameCount is a category or tag with the number of entries using it.
type NameCount struct {
	Name  string
	Count int
}

// Change is one audit log record of an applied change set.
type Change struct {
	ID         int64
	MessageID  string
	ReceivedAt time.Time
	Deletions  int
	Edits      int
	Payload    string
}

// SQLiteRepository implements entry storage using SQLite
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	loc     *time.Location
}

// NewSQLiteRepository opens the database at dbPath, creating the directory
// if needed, and runs migrations. Entry dates are returned in loc.
func NewSQLiteRepository(dbPath string, loc *time.Location) (*SQLiteRepository, error) {
	if loc == nil {
		loc = time.Local
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, queries: New(db), loc: loc}, nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks the database connection.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(r.queries.WithTx(tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func writeTags(ctx context.Context, q *Queries, e core.Entry) error {
	if err := q.EnsureTag(ctx, e.Category); err != nil {
		return fmt.Errorf("ensure category %q: %w", e.Category, err)
	}
	if err := q.DeleteEntryTags(ctx, e.ID); err != nil {
		return fmt.Errorf("clear tags of entry %d: %w", e.ID, err)
	}
	for _, tag := range e.Tags {
		if err := q.EnsureTag(ctx, tag); err != nil {
			return fmt.Errorf("ensure tag %q: %w", tag, err)
		}
		if err := q.AddEntryTag(ctx, e.ID, tag); err != nil {
			return fmt.Errorf("tag entry %d: %w", e.ID, err)
		}
	}
	return nil
}

func toRow(e core.Entry) entryRow {
	return entryRow{
		ID:       e.ID,
		Amount:   e.Amount,
		DateMS:   e.Date.UnixMilli(),
		Category: e.Category,
		Comment:  e.Comment,
	}
}

func (r *SQLiteRepository) fromRow(row entryRow, tags []string) core.Entry {
	return core.Entry{
		ID:       row.ID,
		Date:     time.UnixMilli(row.DateMS).In(r.loc),
		Amount:   row.Amount,
		Category: row.Category,
		Tags:     tags,
		Comment:  row.Comment,
	}
}

func timeFromMillis(ms int64) time.Time {
	return time.UnixMilli(ms)
}

// CreateEntry stores a new entry and returns its id.
func (r *SQLiteRepository) CreateEntry(ctx context.Context, e core.Entry) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, err
	}
	err := r.inTx(ctx, func(q *Queries) error {
		if err := q.EnsureTag(ctx, e.Category); err != nil {
			return fmt.Errorf("ensure category: %w", err)
		}
		id, err := q.CreateEntry(ctx, toRow(e))
		if err != nil {
			return fmt.Errorf("create entry: %w", err)
		}
		e.ID = id
		return writeTags(ctx, q, e)
	})
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Entry saved to SQLite",
		"entry_id", e.ID,
		"amount", e.Amount,
		"category", e.Category)
	return e.ID, nil
}

// GetEntry returns the entry with the given id or ErrNotFound.
func (r *SQLiteRepository) GetEntry(ctx context.Context, id int64) (core.Entry, error) {
	row, err := r.queries.GetEntry(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Entry{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return core.Entry{}, fmt.Errorf("get entry: %w", err)
	}
	tags, err := r.queries.TagsFor(ctx, []int64{id})
	if err != nil {
		return core.Entry{}, fmt.Errorf("get entry tags: %w", err)
	}
	return r.fromRow(row, tags[id]), nil
}

// ListEntries returns entries newest first.
func (r *SQLiteRepository) ListEntries(ctx context.Context, f EntryFilter) (EntryPage, error) {
	page := EntryPage{Page: f.Page, PageSize: f.PageSize}
	limit, offset := 0, 0
	if f.Page > 0 {
		if page.PageSize <= 0 {
			page.PageSize = DefaultPageSize
		}
		limit = page.PageSize
		offset = (f.Page - 1) * page.PageSize
	}

	rows, err := r.queries.ListEntries(ctx, f, limit, offset)
	if err != nil {
		return page, fmt.Errorf("list entries: %w", err)
	}
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	tags, err := r.queries.TagsFor(ctx, ids)
	if err != nil {
		return page, fmt.Errorf("list entry tags: %w", err)
	}
	page.Entries = make([]core.Entry, 0, len(rows))
	for _, row := range rows {
		page.Entries = append(page.Entries, r.fromRow(row, tags[row.ID]))
	}

	if f.Page > 0 {
		page.Total, err = r.queries.CountEntries(ctx, f)
		if err != nil {
			return page, fmt.Errorf("count entries: %w", err)
		}
	} else {
		page.Total = len(page.Entries)
	}
	return page, nil
}

// Records returns every matching entry in chart shape, oldest first.
func (r *SQLiteRepository) Records(ctx context.Context, f EntryFilter) ([]core.Record, error) {
	f.Page = 0
	page, err := r.ListEntries(ctx, f)
	if err != nil {
		return nil, err
	}
	records := core.RecordsFromEntries(page.Entries)
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// ListCategories returns categories by number of entries, most used first.
func (r *SQLiteRepository) ListCategories(ctx context.Context) ([]NameCount, error) {
	out, err := r.queries.CategoryCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

// ListTags returns tags by number of tagged entries, most used first.
func (r *SQLiteRepository) ListTags(ctx context.Context) ([]NameCount, error) {
	out, err := r.queries.TagCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return out, nil
}

// EntriesExist reports which ids refer to stored entries.
func (r *SQLiteRepository) EntriesExist(ctx context.Context, ids []int64) (map[int64]bool, error) {
	out, err := r.queries.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("check entries: %w", err)
	}
	return out, nil
}

// ApplyUpdates stores edits, then deletions, in one transaction. A missing
// entry rolls back everything.
func (r *SQLiteRepository) ApplyUpdates(ctx context.Context, edits []core.Entry, deletions []int64) error {
	err := r.inTx(ctx, func(q *Queries) error {
		for _, e := range edits {
			if err := e.Validate(); err != nil {
				return fmt.Errorf("entry %d: %w", e.ID, err)
			}
			if err := q.EnsureTag(ctx, e.Category); err != nil {
				return fmt.Errorf("ensure category: %w", err)
			}
			n, err := q.UpdateEntry(ctx, toRow(e))
			if err != nil {
				return fmt.Errorf("update entry %d: %w", e.ID, err)
			}
			if n == 0 {
				return fmt.Errorf("%w: %d", ErrNotFound, e.ID)
			}
			if err := writeTags(ctx, q, e); err != nil {
				return err
			}
		}
		for _, id := range deletions {
			if err := q.DeleteEntryTags(ctx, id); err != nil {
				return fmt.Errorf("clear tags of entry %d: %w", id, err)
			}
			n, err := q.DeleteEntry(ctx, id)
			if err != nil {
				return fmt.Errorf("delete entry %d: %w", id, err)
			}
			if n == 0 {
				return fmt.Errorf("%w: %d", ErrNotFound, id)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Entry updates applied",
		"edits", len(edits),
		"deletions", len(deletions))
	return nil
}

// RecordChange appends to the audit log. A message id seen before is
// ignored and reported as not inserted.
func (r *SQLiteRepository) RecordChange(ctx context.Context, c Change) (bool, error) {
	n, err := r.queries.InsertChange(ctx, c)
	if err != nil {
		return false, fmt.Errorf("record change: %w", err)
	}
	return n > 0, nil
}

// ListChanges returns the most recent audit log records.
func (r *SQLiteRepository) ListChanges(ctx context.Context, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 20
	}
	out, err := r.queries.ListChanges(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list changes: %w", err)
	}
	return out, nil
}
