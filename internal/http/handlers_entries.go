package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"tracker/internal/core"
	"tracker/internal/log"
	"tracker/internal/sanitize"
	"tracker/internal/storage"
	"tracker/internal/updates"
)

type listView struct {
	Params     ListParams
	Page       storage.EntryPage
	Table      TableState
	Loaded     bool
	Categories []storage.NameCount
	Tags       []storage.NameCount
	Today      string
	PrevURL    string
	NextURL    string
}

type entryView struct {
	Entry core.Entry
	Row   core.TableRow
}

func isNotFound(err error) bool {
	return errors.Is(err, storage.ErrNotFound) || errors.Is(err, updates.ErrNotFound)
}

func (s *Server) today() string {
	return s.now().In(s.entries.Location()).Format(core.DateLayout)
}

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := ParseListParams(chi.URLParam(r, "first"), chi.URLParam(r, "second"), r.URL.Query())
	if err != nil {
		NotFoundError("Unknown time window").Write(w)
		return
	}

	filter := storage.EntryFilter{Category: p.Category, Page: p.Page, PageSize: storage.DefaultPageSize}
	if p.Window != nil {
		since, err := p.Window.Start(s.now())
		if err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}
		filter.Since = since
	}

	page, err := s.entries.ListEntries(ctx, filter)
	if err != nil {
		s.events.LogError(ctx, "Failed to list entries", err, log.ComponentEntries, log.OpList,
			log.NewFields().WithPath(r.URL.Path))
		InternalServerError("Failed to load entries").Write(w)
		return
	}
	visible := core.FilterEntries(page.Entries, p.Amount)
	loaded := s.table.Load(r.URL.RequestURI(), visible)

	categories, err := s.entries.Categories(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Category list error", "error", err)
	}
	tags, err := s.entries.Tags(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Tag list error", "error", err)
	}

	view := listView{
		Params:     p,
		Page:       page,
		Table:      s.table.State(),
		Loaded:     loaded,
		Categories: categories,
		Tags:       tags,
		Today:      s.today(),
	}
	if page.HasPrev() {
		view.PrevURL = p.PageURL(page.Page - 1)
	}
	if page.HasNext() {
		view.NextURL = p.PageURL(page.Page + 1)
	}
	s.render(w, r, http.StatusOK, "entries.html", newPageData(r, "Entries", view))
}

func (s *Server) handleCreateEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if resp := ParseFormOrFail(w, r); resp != nil {
		resp.Write(w)
		return
	}
	p, err := ParseListParams(chi.URLParam(r, "first"), chi.URLParam(r, "second"), r.URL.Query())
	if err != nil {
		NotFoundError("Unknown time window").Write(w)
		return
	}

	row := sanitize.Row(core.TableRow{
		Amount:   r.Form.Get("amount"),
		Date:     r.Form.Get("date"),
		Category: r.Form.Get("category"),
		Tags:     r.Form.Get("tags"),
		Comment:  r.Form.Get("comment"),
	})
	if row.Category == "" {
		row.Category = p.Category
	}
	if row.Date == "" {
		row.Date = s.today()
	}
	e, err := core.ParseRow(row, s.entries.Location())
	if err != nil {
		UnprocessableEntityError("Invalid entry: " + err.Error()).Write(w)
		return
	}

	id, err := s.entries.CreateEntry(ctx, e)
	if err != nil {
		s.events.LogError(ctx, "Failed to save entry", err, log.ComponentEntries, log.OpCreate,
			log.NewFields().WithEntry(0, e.Amount, e.Category))
		InternalServerError("Error saving entry").Write(w)
		return
	}
	s.events.LogEntryCreated(ctx, id, e.Amount, e.Category)

	if !isHTMX(r) {
		http.Redirect(w, r, p.Path(), http.StatusSeeOther)
		return
	}
	NewHTMXResponse().
		TriggerEntriesChanged(1, 0, 0).
		TriggerFormReset().
		TriggerSuccessNotification("Entry saved").
		BodyHTML(`<div class="success">Entry saved</div>`).
		Write(w)
}

func (s *Server) entryFromPath(w http.ResponseWriter, r *http.Request) (core.Entry, bool) {
	id, err := core.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		NotFoundError("Entry not found").Write(w)
		return core.Entry{}, false
	}
	e, err := s.entries.GetEntry(r.Context(), id)
	if isNotFound(err) {
		NotFoundError("Entry not found").Write(w)
		return core.Entry{}, false
	}
	if err != nil {
		s.events.LogError(r.Context(), "Failed to load entry", err, log.ComponentEntries, log.OpList,
			log.NewFields().WithEntry(id, 0, ""))
		InternalServerError("Failed to load entry").Write(w)
		return core.Entry{}, false
	}
	return e, true
}

func (s *Server) handleEntryDetail(w http.ResponseWriter, r *http.Request) {
	e, ok := s.entryFromPath(w, r)
	if !ok {
		return
	}
	s.render(w, r, http.StatusOK, "entry.html", newPageData(r, "Entry", entryView{Entry: e, Row: core.RowFromEntry(e)}))
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	e, ok := s.entryFromPath(w, r)
	if !ok {
		return
	}
	if err := s.entries.DeleteEntry(ctx, e.ID); err != nil {
		if isNotFound(err) {
			NotFoundError("Entry not found").Write(w)
			return
		}
		s.events.LogError(ctx, "Failed to delete entry", err, log.ComponentEntries, log.OpDelete,
			log.NewFields().WithEntry(e.ID, e.Amount, e.Category))
		InternalServerError("Error deleting entry").Write(w)
		return
	}
	s.logger.InfoContext(ctx, "Entry deleted", log.FieldEntryID, e.ID, log.FieldOperation, log.OpDelete)

	if !isHTMX(r) {
		http.Redirect(w, r, "/entries/", http.StatusSeeOther)
		return
	}
	NewHTMXResponse().
		TriggerEntriesChanged(0, 0, 1).
		Redirect("/entries/").
		Write(w)
}

// handleUpdates applies a serialized change set posted in the "updates"
// form field.
func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()
	if resp := ParseFormOrFail(w, r); resp != nil {
		resp.Write(w)
		return
	}
	req, err := updates.Parse(r.PostForm)
	if err == nil {
		err = s.entries.SubmitUpdates(ctx, req)
	}
	if err != nil {
		if updates.IsClientError(err) {
			s.logger.WarnContext(ctx, "Rejected entry updates", "error", err)
			BadRequestError(err.Error()).Write(w)
			return
		}
		s.events.LogError(ctx, "Failed to apply entry updates", err, log.ComponentEntries, log.OpUpdate,
			log.NewFields().WithChangeSet(len(req.Edits), len(req.Deletions)))
		InternalServerError("Failed to apply updates").Write(w)
		return
	}
	s.events.LogUpdatesApplied(ctx, len(req.Edits), len(req.Deletions))
	s.logger.DebugContext(ctx, "Updates handled", log.FieldDuration, time.Since(start).Milliseconds())

	if !isHTMX(r) {
		http.Redirect(w, r, "/entries/", http.StatusSeeOther)
		return
	}
	NewHTMXResponse().
		TriggerEntriesChanged(0, len(req.Edits), len(req.Deletions)).
		Redirect("/entries/").
		Write(w)
}
