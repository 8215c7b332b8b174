// ABOUTME: HTTP server struct with chi router, session store, and the collaborators shared by every session
// ABOUTME: Configures all JSON routes, metrics, and health checks, wiring handler methods via functional options

package editor

import (
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389-research/clusterdesigner/catalog"
	"github.com/2389-research/clusterdesigner/nodeconfig"
	"github.com/2389-research/clusterdesigner/persist"
	"github.com/2389-research/clusterdesigner/render"
)

// ServerOption configures optional Server behavior.
type ServerOption func(*Server)

// WithLogger sets the logger used for request logs and session events.
func WithLogger(logger *log.Logger) ServerOption {
	return func(s *Server) {
		s.svc.Logger = logger
	}
}

// WithBackend sets where designs are saved and loaded.
func WithBackend(b persist.Backend) ServerOption {
	return func(s *Server) {
		s.svc.Backend = b
	}
}

// WithExporter sets where exported node configurations go.
func WithExporter(e nodeconfig.Exporter) ServerOption {
	return func(s *Server) {
		s.svc.Exporter = e
	}
}

// WithCatalog sets the icon and class variant catalog.
func WithCatalog(c *catalog.Catalog) ServerOption {
	return func(s *Server) {
		s.svc.Catalog = c
	}
}

// WithDocumentOptions sets the header fields of exported documents.
func WithDocumentOptions(opts nodeconfig.Options) ServerOption {
	return func(s *Server) {
		s.svc.Document = opts
	}
}

// WithCanvasWidth sets the canvas width used to center auto-layout.
func WithCanvasWidth(width float64) ServerOption {
	return func(s *Server) {
		s.svc.CanvasWidth = width
	}
}

// WithPreview enables the SVG preview endpoint backed by the given cache.
func WithPreview(cache *render.RenderCache) ServerOption {
	return func(s *Server) {
		s.preview = cache
	}
}

// WithMetrics registers session metrics with reg and serves them at /metrics.
func WithMetrics(reg *prometheus.Registry) ServerOption {
	return func(s *Server) {
		s.registry = reg
	}
}

// Server holds the chi router, session store, and shared session services.
// The preview field is nil when previews are disabled; the registry field is
// nil when metrics are disabled.
type Server struct {
	router   chi.Router
	store    *Store
	svc      *Services
	preview  *render.RenderCache
	registry *prometheus.Registry
}

// NewServer creates a Server with all routes configured.
func NewServer(store *Store, opts ...ServerOption) *Server {
	s := &Server{
		store: store,
		svc:   &Services{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.svc.Catalog == nil {
		s.svc.Catalog = catalog.Default()
	}
	if s.registry != nil {
		s.svc.Metrics = NewMetrics(s.registry)
	}

	r := chi.NewRouter()
	r.Use(requestLogger(s.svc.logger()))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/catalog", s.handleCatalog)
	if s.registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	// Session lifecycle
	r.Get("/sessions", s.handleListSessions)
	r.Post("/sessions", s.handleCreateSession)
	r.Get("/sessions/{id}", s.handleGetSession)
	r.Delete("/sessions/{id}", s.handleDeleteSession)

	// Topology mutations
	r.Post("/sessions/{id}/nodes", s.handleAddNode)
	r.Delete("/sessions/{id}/nodes/{nodeId}", s.handleDeleteNode)
	r.Post("/sessions/{id}/nodes/{nodeId}/name", s.handleRenameNode)
	r.Post("/sessions/{id}/nodes/{nodeId}/variant", s.handleCycleVariant)
	r.Post("/sessions/{id}/nodes/{nodeId}/move", s.handleMoveNode)
	r.Post("/sessions/{id}/nodes/{nodeId}/disconnect", s.handleDisconnectNode)
	r.Post("/sessions/{id}/edges", s.handleAddEdge)

	// Canvas
	r.Post("/sessions/{id}/organize", s.handleOrganize)
	r.Post("/sessions/{id}/pan", s.handlePan)
	r.Post("/sessions/{id}/zoom", s.handleZoom)
	r.Get("/sessions/{id}/preview.svg", s.handlePreview)

	// Settings, checks, and collaborators
	r.Put("/sessions/{id}/settings", s.handleUpdateSettings)
	r.Get("/sessions/{id}/validate", s.handleValidate)
	r.Post("/sessions/{id}/save", s.handleSave)
	r.Post("/sessions/{id}/load", s.handleLoad)
	r.Post("/sessions/{id}/export", s.handleExport)

	s.router = r
	return s
}

// ServeHTTP implements the http.Handler interface, delegating to the chi router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Store returns the session store backing the server.
func (s *Server) Store() *Store {
	return s.store
}

// StartPreviewPurge drops expired previews on an interval and returns a stop
// function. It is a no-op when previews are disabled.
func (s *Server) StartPreviewPurge(interval time.Duration) func() {
	if s.preview == nil {
		return func() {}
	}
	logger := s.svc.logger()
	return every(interval, func() {
		if n := s.preview.PurgeExpired(); n > 0 {
			logger.Debug("purged previews", "count", n)
		}
	})
}
