// Package api exposes the document operations over HTTP. Handlers stay thin:
// they parse the request, call the service and map its typed failures onto
// the public status taxonomy.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kaizenhq/a3hub/pkg/audit"
	"github.com/kaizenhq/a3hub/pkg/auth"
	"github.com/kaizenhq/a3hub/pkg/documents"
	"github.com/kaizenhq/a3hub/pkg/httputil"
	"github.com/kaizenhq/a3hub/pkg/middleware"
	"github.com/kaizenhq/a3hub/pkg/observability"
	"github.com/kaizenhq/a3hub/pkg/ratelimit"
)

// DocumentService is the operation surface the handlers call into
type DocumentService interface {
	List(ctx context.Context, p *auth.Principal, filter documents.ListFilter) ([]*documents.Document, error)
	GetWithSections(ctx context.Context, p *auth.Principal, id int64) (*documents.DocumentWithSections, error)
	Create(ctx context.Context, p *auth.Principal, req documents.CreateRequest) (*documents.Document, error)
	Update(ctx context.Context, p *auth.Principal, id int64, req documents.UpdateRequest) (*documents.Document, error)
	Delete(ctx context.Context, p *auth.Principal, id int64) error
	Archive(ctx context.Context, p *auth.Principal, id int64) (*documents.Document, error)
	Unarchive(ctx context.Context, p *auth.Principal, id int64) (*documents.Document, error)
	UpdateSection(ctx context.Context, p *auth.Principal, id int64, number int, req documents.SectionUpdateRequest) (*documents.Section, error)
	Export(ctx context.Context, p *auth.Principal, id int64) (*documents.ExportResult, error)
}

// AuditSearcher reads committed audit entries
type AuditSearcher interface {
	Search(ctx context.Context, filter audit.SearchFilter) ([]*audit.Entry, error)
}

// ServerConfig wires the HTTP server's collaborators
type ServerConfig struct {
	Service  DocumentService
	AuditLog AuditSearcher
	Limiter  *ratelimit.Limiter
	Resolver middleware.PrincipalResolver
	Logger   *observability.Logger
	Metrics  *observability.Metrics
}

// Server is the HTTP front of the subsystem
type Server struct {
	router   *mux.Router
	service  DocumentService
	auditLog AuditSearcher
	limiter  *ratelimit.Limiter
	logger   *observability.Logger
}

// NewServer creates the server and registers its routes
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	s := &Server{
		router:   mux.NewRouter(),
		service:  cfg.Service,
		auditLog: cfg.AuditLog,
		limiter:  cfg.Limiter,
		logger:   cfg.Logger,
	}

	s.router.Use(mux.MiddlewareFunc(middleware.RequestID))
	s.router.Use(mux.MiddlewareFunc(middleware.Logging(cfg.Logger)))
	if cfg.Metrics != nil {
		s.router.Use(mux.MiddlewareFunc(observability.HTTPMetricsMiddleware(cfg.Metrics)))
	}

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(mux.MiddlewareFunc(middleware.NewAuthMiddleware(cfg.Resolver, cfg.Logger).Handler))

	api.HandleFunc("/documents", s.handleList).Methods(http.MethodGet)
	api.HandleFunc("/documents", s.handleCreate).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}", s.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/documents/{id}", s.handleUpdate).Methods(http.MethodPut)
	api.HandleFunc("/documents/{id}", s.handleDelete).Methods(http.MethodDelete)
	api.HandleFunc("/documents/{id}/archive", s.handleArchive).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/unarchive", s.handleUnarchive).Methods(http.MethodPost)
	api.HandleFunc("/documents/{id}/sections/{number}", s.handleUpdateSection).Methods(http.MethodPut)
	api.HandleFunc("/documents/{id}/export", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/audit", s.handleAuditSearch).Methods(http.MethodGet)

	return s, nil
}

// Handler returns the server's root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteSuccess(w, map[string]string{"status": "ok"})
}
