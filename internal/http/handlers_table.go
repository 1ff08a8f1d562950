package http

import (
	"errors"
	"net/http"
	"strings"

	"tracker/internal/core"
	"tracker/internal/ledger"
	"tracker/internal/log"
	"tracker/internal/updates"
)

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// writeTable answers a table mutation with the new state: JSON for API
// clients, the re-rendered table fragment for htmx.
func (s *Server) writeTable(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder) {
	state := s.table.State()
	if wantsJSON(r) {
		writeJSON(w, http.StatusOK, state)
		return
	}
	b = b.TriggerTableChanged(state)
	s.renderFragment(r, b, "table", newPageData(r, "", listView{Table: state, Loaded: true})).Write(w)
}

// writeTableError maps ledger and validation errors to responses.
func (s *Server) writeTableError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusUnprocessableEntity
	switch {
	case errors.Is(err, ledger.ErrUnknownRow):
		status = http.StatusNotFound
	case errors.Is(err, ledger.ErrRowDeleted),
		errors.Is(err, ledger.ErrNothingToUndo),
		errors.Is(err, ledger.ErrNothingToRedo),
		errors.Is(err, ledger.ErrSaveInFlight):
		status = http.StatusConflict
	case errors.Is(err, errNoIDs), errors.Is(err, core.ErrInvalidID):
		status = http.StatusBadRequest
	}
	if wantsJSON(r) {
		writeJSONError(w, status, err.Error())
		return
	}
	ErrorResponse(status, err.Error()).TriggerErrorNotification(err.Error()).Write(w)
}

func (s *Server) handleTableState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.table.State())
}

func (s *Server) handleTableEdit(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	row := parser.Row()
	if row.ID == "" {
		s.writeTableError(w, r, errNoIDs)
		return
	}
	loc := s.entries.Location()
	err := s.table.Edit(row, func(row core.TableRow) (core.Entry, error) {
		return core.ParseRow(row, loc)
	})
	if err != nil {
		s.writeTableError(w, r, err)
		return
	}
	s.writeTable(w, r, NewHTMXResponse())
}

func (s *Server) handleTableDelete(w http.ResponseWriter, r *http.Request) {
	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	ids, err := ParseIDs(parser.Values("ids"))
	if err == nil {
		err = s.table.Delete(ids)
	}
	if err != nil {
		s.writeTableError(w, r, err)
		return
	}
	s.writeTable(w, r, NewHTMXResponse())
}

func (s *Server) handleTableUndo(w http.ResponseWriter, r *http.Request) {
	if err := s.table.Undo(); err != nil {
		s.writeTableError(w, r, err)
		return
	}
	s.writeTable(w, r, NewHTMXResponse())
}

func (s *Server) handleTableRedo(w http.ResponseWriter, r *http.Request) {
	if err := s.table.Redo(); err != nil {
		s.writeTableError(w, r, err)
		return
	}
	s.writeTable(w, r, NewHTMXResponse())
}

func (s *Server) handleTableClear(w http.ResponseWriter, r *http.Request) {
	s.table.Clear()
	s.writeTable(w, r, NewHTMXResponse())
}

// handleTableSave submits the pending changes. The table stays editable
// while the save runs; a failed save leaves every change pending.
func (s *Server) handleTableSave(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	payload, err := s.table.Save(ctx, s.entries)
	if err != nil {
		if errors.Is(err, ledger.ErrSaveInFlight) {
			s.writeTableError(w, r, err)
			return
		}
		if updates.IsClientError(err) {
			s.logger.WarnContext(ctx, "Table save rejected", "error", err)
			if wantsJSON(r) {
				writeJSONError(w, http.StatusBadRequest, err.Error())
				return
			}
			BadRequestError(err.Error()).TriggerErrorNotification(err.Error()).Write(w)
			return
		}
		s.events.LogError(ctx, "Table save failed", err, log.ComponentTable, log.OpSave,
			log.NewFields().WithChangeSet(len(payload.Edits), len(payload.Deletions)))
		if wantsJSON(r) {
			writeJSONError(w, http.StatusInternalServerError, "failed to save changes")
			return
		}
		InternalServerError("Failed to save changes").TriggerErrorNotification("Failed to save changes").Write(w)
		return
	}

	b := NewHTMXResponse()
	if payload.Empty() {
		b.TriggerNotification(NotificationInfo, "Nothing to save", 3000)
	} else {
		s.events.LogUpdatesApplied(ctx, len(payload.Edits), len(payload.Deletions))
		b.TriggerEntriesChanged(0, len(payload.Edits), len(payload.Deletions)).
			TriggerSuccessNotification("Changes saved")
	}
	s.writeTable(w, r, b)
}
