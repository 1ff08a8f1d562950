package http

import (
	"context"
	"sync"

	"tracker/internal/core"
	"tracker/internal/ledger"
)

// TableState is the toolbar view of the table session.
type TableState struct {
	Dirty   bool           `json:"dirty"`
	CanUndo bool           `json:"can_undo"`
	CanRedo bool           `json:"can_redo"`
	Saving  bool           `json:"saving"`
	View    string         `json:"view"`
	Pending ledger.Payload `json:"pending"`
	Rows    []TableRowView `json:"rows"`
}

// TableRowView is one row as rendered in the editable table.
type TableRowView struct {
	core.TableRow
	Edited  bool `json:"edited"`
	Deleted bool `json:"deleted"`
}

// TableSession owns the pending-change ledger of the editable entries
// table. The tracker is single user, so one session serves the server.
type TableSession struct {
	mu     sync.Mutex
	ledger *ledger.Ledger
	saver  *ledger.Saver
	view   string
}

// NewTableSession returns a session with no rows loaded.
func NewTableSession() *TableSession {
	s := &TableSession{ledger: ledger.New(nil)}
	s.saver = ledger.NewSaver(s.ledger, &s.mu)
	return s
}

// Load shows entries for view. Pending changes are never discarded: while
// the ledger is dirty or saving the current rows stay and Load returns
// false.
func (s *TableSession) Load(view string, entries []core.Entry) bool {
	if s.saver.InFlight() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ledger.Dirty() {
		return false
	}
	s.ledger.Reset(entries)
	s.view = view
	return true
}

// Edit parses row and records it as the new value of its row.
func (s *TableSession) Edit(row core.TableRow, parse func(core.TableRow) (core.Entry, error)) error {
	e, err := parse(row)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Edit(e.ID, e)
}

// Delete marks rows deleted as one undoable step.
func (s *TableSession) Delete(ids []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.DeleteRows(ids)
}

// Undo reverts the last step.
func (s *TableSession) Undo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Undo()
}

// Redo reapplies the last undone step.
func (s *TableSession) Redo() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Redo()
}

// Clear drops every pending change.
func (s *TableSession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ledger.Clear()
}

// Save submits the pending changes through sub.
func (s *TableSession) Save(ctx context.Context, sub ledger.Submitter) (ledger.Payload, error) {
	return s.saver.Save(ctx, sub)
}

// State snapshots the session for rendering.
func (s *TableSession) State() TableState {
	saving := s.saver.InFlight()
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.ledger.Rows()
	views := make([]TableRowView, len(rows))
	for i, r := range rows {
		views[i] = TableRowView{
			TableRow: core.RowFromEntry(r.Entry),
			Edited:   r.Edited,
			Deleted:  r.Deleted,
		}
	}
	return TableState{
		Dirty:   s.ledger.Dirty(),
		CanUndo: s.ledger.CanUndo(),
		CanRedo: s.ledger.CanRedo(),
		Saving:  saving,
		View:    s.view,
		Pending: s.ledger.Serialize(),
		Rows:    views,
	}
}
