package http

import (
	"bytes"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/csrf"

	"tracker/internal/charts"
	"tracker/internal/core"
	"tracker/internal/log"
)

var templateFuncs = template.FuncMap{
	"amount": core.FormatAmount,
	"day": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(core.DateLayout)
	},
	"join": strings.Join,
	"weekday": func(t time.Time) string {
		return t.Weekday().String()[:3]
	},
	// heat maps a day total onto one of five shading classes.
	"heat": charts.Level,
}

// pageData carries what every full page template needs.
type pageData struct {
	Title     string
	CSRFField template.HTML
	CSRFToken string
	Content   any
}

func newPageData(r *http.Request, title string, content any) pageData {
	return pageData{
		Title:     title,
		CSRFField: csrfField(r),
		CSRFToken: csrf.Token(r),
		Content:   content,
	}
}

// render executes a template into a buffer first so a failing template
// never leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.events.LogError(r.Context(), "Template execution failed", err, log.ComponentHTTP, log.OpRender,
			log.NewFields().WithPath(r.URL.Path).With("template", name))
		InternalServerError("Failed to render page").Write(w)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// renderFragment renders name into the body of an HTMX response.
func (s *Server) renderFragment(r *http.Request, b *HTMXResponseBuilder, name string, data any) *HTMXResponseBuilder {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.events.LogError(r.Context(), "Fragment execution failed", err, log.ComponentHTTP, log.OpRender,
			log.NewFields().WithPath(r.URL.Path).With("template", name))
		return InternalServerError("Failed to render fragment")
	}
	return b.BodyHTML(buf.String())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
