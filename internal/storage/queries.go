package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

// Queries holds the statements used by the repository.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type entryRow struct {
	ID       int64
	Amount   float64
	DateMS   int64
	Category string
	Comment  string
}

const ensureTag = `INSERT OR IGNORE INTO tags (name) VALUES (?)`

func (q *Queries) EnsureTag(ctx context.Context, name string) error {
	_, err := q.db.ExecContext(ctx, ensureTag, name)
	return err
}

const createEntry = `INSERT INTO entries (amount, date_ms, category, comment) VALUES (?, ?, ?, ?)`

func (q *Queries) CreateEntry(ctx context.Context, r entryRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, createEntry, r.Amount, r.DateMS, r.Category, r.Comment)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const updateEntry = `UPDATE entries
SET amount = ?, date_ms = ?, category = ?, comment = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?`

func (q *Queries) UpdateEntry(ctx context.Context, r entryRow) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateEntry, r.Amount, r.DateMS, r.Category, r.Comment, r.ID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const deleteEntry = `DELETE FROM entries WHERE id = ?`

func (q *Queries) DeleteEntry(ctx context.Context, id int64) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteEntry, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const getEntry = `SELECT id, amount, date_ms, category, comment FROM entries WHERE id = ?`

func (q *Queries) GetEntry(ctx context.Context, id int64) (entryRow, error) {
	var r entryRow
	err := q.db.QueryRowContext(ctx, getEntry, id).Scan(&r.ID, &r.Amount, &r.DateMS, &r.Category, &r.Comment)
	return r, err
}

const deleteEntryTags = `DELETE FROM entry_tags WHERE entry_id = ?`

func (q *Queries) DeleteEntryTags(ctx context.Context, entryID int64) error {
	_, err := q.db.ExecContext(ctx, deleteEntryTags, entryID)
	return err
}

const addEntryTag = `INSERT OR IGNORE INTO entry_tags (entry_id, tag) VALUES (?, ?)`

func (q *Queries) AddEntryTag(ctx context.Context, entryID int64, tag string) error {
	_, err := q.db.ExecContext(ctx, addEntryTag, entryID, tag)
	return err
}

// whereClause renders the filter conditions shared by list and count.
func whereClause(f EntryFilter) (string, []any) {
	var conds []string
	var args []any
	if f.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, f.Category)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "date_ms >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	if !f.Until.IsZero() {
		conds = append(conds, "date_ms <= ?")
		args = append(args, f.Until.UnixMilli())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (q *Queries) ListEntries(ctx context.Context, f EntryFilter, limit, offset int) ([]entryRow, error) {
	where, args := whereClause(f)
	query := `SELECT id, amount, date_ms, category, comment FROM entries` + where +
		` ORDER BY date_ms DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entryRow
	for rows.Next() {
		var r entryRow
		if err := rows.Scan(&r.ID, &r.Amount, &r.DateMS, &r.Category, &r.Comment); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *Queries) CountEntries(ctx context.Context, f EntryFilter) (int, error) {
	where, args := whereClause(f)
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`+where, args...).Scan(&n)
	return n, err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// TagsFor returns the tags of each listed entry, sorted by name.
func (q *Queries) TagsFor(ctx context.Context, ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`SELECT entry_id, tag FROM entry_tags WHERE entry_id IN (%s) ORDER BY tag`, placeholders(len(ids)))
	rows, err := q.db.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var tag string
		if err := rows.Scan(&id, &tag); err != nil {
			return nil, err
		}
		out[id] = append(out[id], tag)
	}
	return out, rows.Err()
}

func (q *Queries) ExistingIDs(ctx context.Context, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := fmt.Sprintf(`SELECT id FROM entries WHERE id IN (%s)`, placeholders(len(ids)))
	rows, err := q.db.QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

const categoryCounts = `SELECT category, COUNT(*) AS n FROM entries
WHERE category != ''
GROUP BY category
ORDER BY n DESC, category ASC`

const tagCounts = `SELECT tag, COUNT(*) AS n FROM entry_tags
WHERE tag != ''
GROUP BY tag
ORDER BY n DESC, tag ASC`

func (q *Queries) namesByCount(ctx context.Context, query string) ([]NameCount, error) {
	rows, err := q.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NameCount
	for rows.Next() {
		var nc NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			return nil, err
		}
		out = append(out, nc)
	}
	return out, rows.Err()
}

func (q *Queries) CategoryCounts(ctx context.Context) ([]NameCount, error) {
	return q.namesByCount(ctx, categoryCounts)
}

func (q *Queries) TagCounts(ctx context.Context) ([]NameCount, error) {
	return q.namesByCount(ctx, tagCounts)
}

const insertChange = `INSERT OR IGNORE INTO entry_changes (message_id, received_at, deletions, edits, payload)
VALUES (?, ?, ?, ?, ?)`

func (q *Queries) InsertChange(ctx context.Context, c Change) (int64, error) {
	res, err := q.db.ExecContext(ctx, insertChange, c.MessageID, c.ReceivedAt.UnixMilli(), c.Deletions, c.Edits, c.Payload)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listChanges = `SELECT id, message_id, received_at, deletions, edits, payload
FROM entry_changes ORDER BY received_at DESC, id DESC LIMIT ?`

func (q *Queries) ListChanges(ctx context.Context, limit int) ([]Change, error) {
	rows, err := q.db.QueryContext(ctx, listChanges, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Change
	for rows.Next() {
		var c Change
		var ms int64
		if err := rows.Scan(&c.ID, &c.MessageID, &ms, &c.Deletions, &c.Edits, &c.Payload); err != nil {
			return nil, err
		}
		c.ReceivedAt = timeFromMillis(ms)
		out = append(out, c)
	}
	return out, rows.Err()
}
