package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"

	"tracker/internal/charts"
	"tracker/internal/core"
	"tracker/internal/ledger"
	"tracker/internal/log"
	"tracker/internal/middleware/ratelimit"
	"tracker/internal/middleware/security"
	"tracker/internal/middleware/trace"
	"tracker/internal/storage"
	"tracker/internal/updates"
	appweb "tracker/web"
)

// EntryAPI is what the handlers need from the entry service.
type EntryAPI interface {
	ledger.Submitter
	CreateEntry(ctx context.Context, e core.Entry) (int64, error)
	DeleteEntry(ctx context.Context, id int64) error
	SubmitUpdates(ctx context.Context, req updates.Request) error
	GetEntry(ctx context.Context, id int64) (core.Entry, error)
	ListEntries(ctx context.Context, f storage.EntryFilter) (storage.EntryPage, error)
	Categories(ctx context.Context) ([]storage.NameCount, error)
	Tags(ctx context.Context) ([]storage.NameCount, error)
	Location() *time.Location
}

// ChartAPI builds chart views for a window, nil meaning all time.
type ChartAPI interface {
	Views(ctx context.Context, window *core.Period) (charts.Views, error)
}

// Pinger reports whether a dependency is ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure NewServer.
type Options struct {
	Addr string
	// CSRFKey enables CSRF protection of form posts when set (32 bytes).
	CSRFKey        string
	Logger         *log.Logger
	RateLimit      ratelimit.Config
	TrustedProxies []string
	// Ready is checked by /readyz; nil means always ready.
	Ready Pinger
	Now   func() time.Time
}

// Server is the tracker HTTP server.
type Server struct {
	http.Server
	templates *template.Template
	entries   EntryAPI
	charts    ChartAPI
	table     *TableSession
	ready     Pinger

	logger   *log.Logger
	events   *log.StructuredLogger
	tracer   *trace.Middleware
	limiter  *ratelimit.Limiter
	detector *security.Detector
	now      func() time.Time
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer parses the embedded templates and configures routes, returning
// a ready-to-run http.Server.
func NewServer(opts Options, entries EntryAPI, chartsAPI ChartAPI) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger.WithComponent(log.ComponentHTTP)

	detector, err := security.NewDetector(opts.Logger, opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}
	t, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	s := &Server{
		templates: t,
		entries:   entries,
		charts:    chartsAPI,
		table:     NewTableSession(),
		ready:     opts.Ready,
		logger:    logger,
		events:    log.NewStructuredLogger(opts.Logger),
		tracer:    trace.NewMiddleware(opts.Logger, detector.ClientIP),
		limiter:   ratelimit.NewLimiter(opts.RateLimit),
		detector:  detector,
		now:       opts.Now,
		started:   opts.Now(),
	}
	s.limiter.Start()

	handler, err := s.routes(opts.CSRFKey)
	if err != nil {
		return nil, err
	}
	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func parseTemplates() (*template.Template, error) {
	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

func (s *Server) routes(csrfKey string) (http.Handler, error) {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.tracer.Handler)
	r.Use(s.detector.Middleware)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.limiter.Middleware(s.detector.ClientIP, s.onRateLimited, http.MethodPost))
	if csrfKey != "" {
		protect, err := s.csrfMiddleware(csrfKey)
		if err != nil {
			return nil, err
		}
		r.Use(protect)
	}

	static, err := fs.Sub(appweb.StaticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("mount static assets: %w", err)
	}
	r.Handle("/static/*", security.StaticCache(3600)(http.StripPrefix("/static/", http.FileServer(http.FS(static)))))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/entries/", http.StatusFound)
	})
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	for _, pattern := range []string{"/entries/", "/entries/{first}/", "/entries/{first}/{second}/"} {
		r.Get(pattern, s.handleListEntries)
		r.Post(pattern, s.handleCreateEntry)
	}
	r.Get("/entry/{id}/", s.handleEntryDetail)
	r.Post("/entry/{id}/delete", s.handleDeleteEntry)
	r.Post("/updates/", s.handleUpdates)

	r.Route("/table", func(r chi.Router) {
		r.Get("/state", s.handleTableState)
		r.Post("/edit", s.handleTableEdit)
		r.Post("/delete", s.handleTableDelete)
		r.Post("/undo", s.handleTableUndo)
		r.Post("/redo", s.handleTableRedo)
		r.Post("/clear", s.handleTableClear)
		r.Post("/save", s.handleTableSave)
	})

	r.Get("/charts/", s.handleChartsPage)
	r.Get("/charts/{window}/", s.handleChartsPage)
	r.Get("/api/charts", s.handleChartsAPI)

	return r, nil
}

func (s *Server) csrfMiddleware(key string) (func(http.Handler) http.Handler, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("csrf key must be 32 bytes, got %d", len(key))
	}
	protect := csrf.Protect([]byte(key),
		csrf.Path("/"),
		csrf.CookieName("tracker_csrf"),
		csrf.FieldName("csrf_token"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.logger.WarnContext(r.Context(), "CSRF validation failed",
				log.FieldPath, r.URL.Path,
				log.FieldMethod, r.Method,
				"reason", csrf.FailureReason(r).Error())
			ErrorResponse(http.StatusForbidden, "CSRF token invalid or missing").Write(w)
		})),
	)
	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS == nil {
				r = csrf.PlaintextHTTPRequest(r)
			}
			protected.ServeHTTP(w, r)
		})
	}, nil
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	s.logger.WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.").Write(w)
}

// Table exposes the editable table session.
func (s *Server) Table() *TableSession { return s.table }

// Shutdown stops background work and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// csrfField is the hidden input for forms, empty when CSRF is disabled.
func csrfField(r *http.Request) template.HTML {
	return csrf.TemplateField(r)
}

func isHTMX(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("HX-Request"), "true")
}
