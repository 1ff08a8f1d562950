package http

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", "error", err)
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ready"))
}

// handleMetrics exposes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	requests := s.tracer.Metrics()
	state := s.table.State()
	uptime := s.now().Sub(s.started)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metric := func(name, kind, help string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "counter", "Total HTTP requests", requests.TotalRequests)
	metric("http_server_errors_total", "counter", "HTTP responses with a 5xx status", requests.ServerFailures)
	metric("rate_limit_hits_total", "counter", "Requests rejected by the rate limiter", s.limiter.Hits())
	metric("active_rate_limit_clients", "gauge", "Currently tracked rate limit clients", s.limiter.ActiveClients())
	metric("suspicious_requests_total", "counter", "Requests rejected as scans", s.detector.SuspiciousCount())
	metric("table_pending_edits", "gauge", "Unsaved edits in the table session", len(state.Pending.Edits))
	metric("table_pending_deletions", "gauge", "Unsaved deletions in the table session", len(state.Pending.Deletions))
	metric("uptime_seconds", "gauge", "Application uptime in seconds", int64(uptime.Seconds()))
}
