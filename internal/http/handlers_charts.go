package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"tracker/internal/charts"
	"tracker/internal/core"
	"tracker/internal/log"
)

type chartsView struct {
	// Window is "" for all time.
	Window string
	Views  charts.Views
	Weeks  [][]charts.HeatmapDay
	Max    float64
	Total  float64
}

// parseWindow reads an optional window from the path or the "window" query
// parameter.
func parseWindow(r *http.Request) (*core.Period, error) {
	raw := chi.URLParam(r, "window")
	if raw == "" {
		raw = strings.TrimSpace(r.URL.Query().Get("window"))
	}
	if raw == "" {
		return nil, nil
	}
	p, err := core.ParsePeriod(raw)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Server) loadViews(w http.ResponseWriter, r *http.Request) (*core.Period, charts.Views, bool) {
	window, err := parseWindow(r)
	if err != nil {
		if wantsJSON(r) || strings.HasPrefix(r.URL.Path, "/api/") {
			writeJSONError(w, http.StatusBadRequest, err.Error())
		} else {
			NotFoundError("Unknown time window").Write(w)
		}
		return nil, charts.Views{}, false
	}
	views, err := s.charts.Views(r.Context(), window)
	if err != nil {
		s.events.LogError(r.Context(), "Failed to build charts", err, log.ComponentCharts, log.OpRender,
			log.NewFields().WithPath(r.URL.Path))
		if strings.HasPrefix(r.URL.Path, "/api/") {
			writeJSONError(w, http.StatusInternalServerError, "failed to build charts")
		} else {
			InternalServerError("Failed to build charts").Write(w)
		}
		return nil, charts.Views{}, false
	}
	return window, views, true
}

func (s *Server) handleChartsPage(w http.ResponseWriter, r *http.Request) {
	window, views, ok := s.loadViews(w, r)
	if !ok {
		return
	}
	view := chartsView{
		Views: views,
		Weeks: views.Heatmap.Grid(),
		Max:   views.Heatmap.Max(),
	}
	if window != nil {
		view.Window = window.String()
	}
	for _, c := range views.Breakdown {
		view.Total += c.Amount
	}
	s.render(w, r, http.StatusOK, "charts.html", newPageData(r, "Charts", view))
}

// handleChartsAPI returns the series, breakdown and heat map as JSON for
// the chart scripts.
func (s *Server) handleChartsAPI(w http.ResponseWriter, r *http.Request) {
	_, views, ok := s.loadViews(w, r)
	if !ok {
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, views)
}
