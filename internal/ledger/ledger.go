// Package ledger tracks unsaved table edits and deletions against the rows
// that were loaded, with linear undo/redo, and produces the change set that
// is sent to the server on save.
package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"tracker/internal/core"
)

// Errors returned by ledger mutations.
var (
	ErrUnknownRow    = errors.New("unknown row")
	ErrRowDeleted    = errors.New("row is deleted")
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// Payload is the net change set submitted on save.
type Payload struct {
	Deletions []int64         `json:"deletions"`
	Edits     []core.TableRow `json:"edits"`
}

// Empty reports whether the payload carries no change.
func (p Payload) Empty() bool {
	return len(p.Deletions) == 0 && len(p.Edits) == 0
}

// Encode renders the payload as the JSON text posted in the "updates" field.
func (p Payload) Encode() (string, error) {
	if p.Deletions == nil {
		p.Deletions = []int64{}
	}
	if p.Edits == nil {
		p.Edits = []core.TableRow{}
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}
	return string(b), nil
}

// RowView is the current state of one loaded row.
type RowView struct {
	Entry   core.Entry
	Edited  bool
	Deleted bool
}

// Ledger is not safe for concurrent use; callers serialize access.
type Ledger struct {
	order    []int64
	baseline map[int64]core.Entry
	edits    map[int64]core.Entry
	deleted  map[int64]struct{}

	history []command
	// cursor is the number of history commands currently applied.
	cursor int
	// gen changes on every mutation so a save can detect concurrent edits.
	gen uint64
}

// New returns a clean ledger over the given rows.
func New(entries []core.Entry) *Ledger {
	l := &Ledger{}
	l.Reset(entries)
	return l
}

// Reset replaces the baseline and drops all pending state.
func (l *Ledger) Reset(entries []core.Entry) {
	l.order = make([]int64, 0, len(entries))
	l.baseline = make(map[int64]core.Entry, len(entries))
	for _, e := range entries {
		if _, dup := l.baseline[e.ID]; !dup {
			l.order = append(l.order, e.ID)
		}
		l.baseline[e.ID] = e.Clone()
	}
	l.Clear()
}

// Clear drops pending edits, deletions and the history. The baseline is kept.
func (l *Ledger) Clear() {
	l.edits = make(map[int64]core.Entry)
	l.deleted = make(map[int64]struct{})
	l.history = nil
	l.cursor = 0
	l.gen++
}

func (l *Ledger) current(id int64) core.Entry {
	if e, ok := l.edits[id]; ok {
		return e
	}
	return l.baseline[id]
}

// Edit records v as the new value of row id. Editing a deleted row is
// rejected; editing to the current value is a no-op. Any redo is discarded.
func (l *Ledger) Edit(id int64, v core.Entry) error {
	if _, ok := l.baseline[id]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRow, id)
	}
	if _, gone := l.deleted[id]; gone {
		return fmt.Errorf("%w: %d", ErrRowDeleted, id)
	}
	v = v.Clone()
	v.ID = id
	if err := v.Validate(); err != nil {
		return fmt.Errorf("row %d: %w", id, err)
	}
	old := l.current(id)
	if old.Equal(v) {
		return nil
	}
	_, hadEdit := l.edits[id]
	l.push(editCommand{id: id, old: old, new: v, hadEdit: hadEdit})
	return nil
}

// DeleteRows marks rows deleted as one undoable step. Unknown ids reject the
// whole call; ids already deleted are skipped.
func (l *Ledger) DeleteRows(ids []int64) error {
	var fresh []int64
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if _, ok := l.baseline[id]; !ok {
			return fmt.Errorf("%w: %d", ErrUnknownRow, id)
		}
		if _, gone := l.deleted[id]; gone || seen[id] {
			continue
		}
		seen[id] = true
		fresh = append(fresh, id)
	}
	if len(fresh) == 0 {
		return nil
	}
	l.push(deleteCommand{ids: fresh})
	return nil
}

func (l *Ledger) push(c command) {
	l.history = append(l.history[:l.cursor], c)
	c.apply(l)
	l.cursor++
	l.gen++
}

// Undo reverts the most recent applied step. It fails with
// ErrNothingToUndo when the history is empty.
func (l *Ledger) Undo() error {
	if l.cursor == 0 {
		return ErrNothingToUndo
	}
	l.cursor--
	l.history[l.cursor].invert(l)
	l.gen++
	return nil
}

// Redo reapplies the most recently undone step. Any new edit or deletion
// discards what could be redone.
func (l *Ledger) Redo() error {
	if l.cursor == len(l.history) {
		return ErrNothingToRedo
	}
	l.history[l.cursor].apply(l)
	l.cursor++
	l.gen++
	return nil
}

// CanUndo reports whether Undo has a step to revert.
func (l *Ledger) CanUndo() bool { return l.cursor > 0 }

// CanRedo reports whether Redo has a step to reapply.
func (l *Ledger) CanRedo() bool { return l.cursor < len(l.history) }

// Dirty reports whether there is anything to save.
func (l *Ledger) Dirty() bool {
	return len(l.deleted) > 0 || len(l.pendingEdits()) > 0
}

// pendingEdits returns edits that differ from the baseline and whose rows
// are not deleted, by ascending id.
func (l *Ledger) pendingEdits() []core.Entry {
	var out []core.Entry
	for id, e := range l.edits {
		if _, gone := l.deleted[id]; gone {
			continue
		}
		if e.Equal(l.baseline[id]) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (l *Ledger) pendingDeletions() []int64 {
	out := make([]int64, 0, len(l.deleted))
	for id := range l.deleted {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Serialize returns the net change set. A deleted row never appears among
// the edits.
func (l *Ledger) Serialize() Payload {
	p := Payload{Deletions: l.pendingDeletions(), Edits: []core.TableRow{}}
	for _, e := range l.pendingEdits() {
		p.Edits = append(p.Edits, core.RowFromEntry(e))
	}
	return p
}

// Rows returns every loaded row in load order with its current value.
func (l *Ledger) Rows() []RowView {
	out := make([]RowView, 0, len(l.order))
	for _, id := range l.order {
		_, gone := l.deleted[id]
		e := l.current(id)
		out = append(out, RowView{
			Entry:   e.Clone(),
			Edited:  !e.Equal(l.baseline[id]),
			Deleted: gone,
		})
	}
	return out
}

// Row returns the current value of row id.
func (l *Ledger) Row(id int64) (RowView, error) {
	base, ok := l.baseline[id]
	if !ok {
		return RowView{}, fmt.Errorf("%w: %d", ErrUnknownRow, id)
	}
	_, gone := l.deleted[id]
	e := l.current(id)
	return RowView{Entry: e.Clone(), Edited: !e.Equal(base), Deleted: gone}, nil
}

type snapshot struct {
	gen       uint64
	edits     []core.Entry
	deletions []int64
}

func (l *Ledger) snapshot() snapshot {
	return snapshot{gen: l.gen, edits: l.pendingEdits(), deletions: l.pendingDeletions()}
}

// commit folds a successfully saved snapshot into the baseline. If nothing
// changed since the snapshot the ledger ends up clean; otherwise changes
// made during the save stay pending. A saved edit that was undone or edited
// again during the save leaves the row's current value pending against the
// saved one. Saved deletions are final: their rows leave the ledger even if
// the deletion was undone meanwhile.
func (l *Ledger) commit(s snapshot) {
	unchanged := s.gen == l.gen
	for _, e := range s.edits {
		if _, ok := l.baseline[e.ID]; !ok {
			continue
		}
		cur := l.current(e.ID)
		l.baseline[e.ID] = e
		if cur.Equal(e) {
			delete(l.edits, e.ID)
		} else {
			l.edits[e.ID] = cur
		}
	}
	removed := make(map[int64]bool, len(s.deletions))
	for _, id := range s.deletions {
		removed[id] = true
		delete(l.baseline, id)
		delete(l.edits, id)
		delete(l.deleted, id)
	}
	if len(removed) > 0 {
		kept := l.order[:0]
		for _, id := range l.order {
			if !removed[id] {
				kept = append(kept, id)
			}
		}
		l.order = kept
	}
	if unchanged {
		l.Clear()
		return
	}
	l.history = nil
	l.cursor = 0
	l.gen++
}
