// Package trace tags every request with an id and logs its start and end.
package trace

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"tracker/internal/log"
)

type contextKey struct{}

// Header carries the request id back to the client.
const Header = "X-Request-ID"

// Middleware handles request tracing and logging.
type Middleware struct {
	logger    *log.Logger
	events    *log.StructuredLogger
	extractIP func(*http.Request) string
	now       func() time.Time

	total    atomic.Int64
	failures atomic.Int64
}

// Metrics is a snapshot of the request counters.
type Metrics struct {
	TotalRequests  int64
	ServerFailures int64
}

// NewMiddleware creates the trace middleware
func NewMiddleware(logger *log.Logger, extractIP func(*http.Request) string) *Middleware {
	return &Middleware{
		logger:    logger,
		events:    log.NewStructuredLogger(logger),
		extractIP: extractIP,
		now:       time.Now,
	}
}

// Handler wraps next. An incoming X-Request-ID that parses as a UUID is
// reused, otherwise a fresh one is generated.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := m.now()

		requestID := r.Header.Get(Header)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = NewRequestID()
		}
		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		ctx := context.WithValue(r.Context(), contextKey{}, requestID)
		ctx = log.NewContext(ctx, m.logger.With(log.FieldRequestID, requestID))
		r = r.WithContext(ctx)

		w.Header().Set(Header, requestID)
		m.total.Add(1)
		m.events.LogHTTPStart(ctx, r, clientIP)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		if rw.statusCode >= 500 {
			m.failures.Add(1)
		}
		m.events.LogHTTPEnd(ctx, r, rw.statusCode, m.now().Sub(start).Milliseconds(), clientIP)
	})
}

// Metrics returns a snapshot of the request counters
func (m *Middleware) Metrics() Metrics {
	return Metrics{
		TotalRequests:  m.total.Load(),
		ServerFailures: m.failures.Load(),
	}
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// NewRequestID returns a random request id
func NewRequestID() string {
	return uuid.NewString()
}

// RequestID returns the id stored by Handler, or "".
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKey{}).(string); ok {
		return id
	}
	return ""
}
