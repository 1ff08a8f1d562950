package ledger

import "tracker/internal/core"

// command is one reversible user mutation recorded in the history.
type command interface {
	apply(l *Ledger)
	invert(l *Ledger)
}

type editCommand struct {
	id       int64
	old, new core.Entry
	// hadEdit reports whether a pending edit existed before this one.
	hadEdit bool
}

func (c editCommand) apply(l *Ledger) {
	l.edits[c.id] = c.new
}

func (c editCommand) invert(l *Ledger) {
	if c.hadEdit {
		l.edits[c.id] = c.old
		return
	}
	delete(l.edits, c.id)
}

type deleteCommand struct {
	ids []int64
}

func (c deleteCommand) apply(l *Ledger) {
	for _, id := range c.ids {
		l.deleted[id] = struct{}{}
	}
}

func (c deleteCommand) invert(l *Ledger) {
	for _, id := range c.ids {
		delete(l.deleted, id)
	}
}
