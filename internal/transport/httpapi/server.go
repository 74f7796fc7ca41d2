// Package httpapi serves the counting application over HTTP and reports the
// request lifecycle of every call to a lifecycle listener.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"handlescope/internal/errs"
	"handlescope/internal/lifecycle"
	"handlescope/internal/metrics"
	"handlescope/internal/ports"
	"handlescope/internal/usecase/counting"
)

// CountingService is the application surface the routes call into.
type CountingService interface {
	Count(ctx context.Context) (int64, error)
	Insert(ctx context.Context, size, failOn int) error
	InsertConcurrent(ctx context.Context, input counting.InsertConcurrentInput) error
	InsertPair(ctx context.Context, fail bool) (int64, error)
	Health(ctx context.Context) (string, error)
}

// ListenerFactory hands out one request listener per request, or nil when
// the request is not observed. Release drops whatever an unobserved request
// left registered under its scope.
type ListenerFactory interface {
	OnRequest(ev lifecycle.Event) lifecycle.RequestListener
	Release(ctx context.Context) error
}

type Server struct {
	mux      *chi.Mux
	svc      CountingService
	listener ListenerFactory
	metrics  *metrics.Metrics

	// "METHOD pattern" of routes that run as one unit of work.
	marked map[string]bool
}

var _ ListenerFactory = (*lifecycle.ApplicationListener)(nil)

func NewServer(svc CountingService, listener ListenerFactory, m *metrics.Metrics) (*Server, error) {
	if svc == nil {
		return nil, errs.Wrap(ports.ErrInvalidArgument, "counting service is required")
	}
	if listener == nil {
		return nil, errs.Wrap(ports.ErrInvalidArgument, "lifecycle listener is required")
	}

	s := &Server{
		mux:      chi.NewRouter(),
		svc:      svc,
		listener: listener,
		metrics:  m,
		marked:   make(map[string]bool),
	}

	s.mux.Use(middleware.RequestID)
	s.mux.Use(middleware.Recoverer)
	s.mux.Use(s.unitOfWork)

	s.route(http.MethodGet, "/count", false, s.handleCount)
	s.route(http.MethodPost, "/insert", false, s.handleInsert)
	s.route(http.MethodPost, "/insert/unitofwork", true, s.handleInsert)
	s.route(http.MethodPost, "/insert/multi/unitofwork", true, s.handleInsertConcurrent(false))
	s.route(http.MethodPost, "/insert/multi/unitofwork/factory", true, s.handleInsertConcurrent(true))
	s.route(http.MethodGet, "/health", false, s.handleHealth)
	s.route(http.MethodPost, "/atomic", true, s.handleAtomic)
	s.mux.Method(http.MethodGet, "/metrics", m.Handler())

	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// handlerFunc is a route body. A returned error is turned into the error
// response after the unit of work has been rolled back.
type handlerFunc func(w http.ResponseWriter, r *http.Request) error

func (s *Server) route(method, pattern string, unitOfWork bool, h handlerFunc) {
	if unitOfWork {
		s.marked[routeKey(method, pattern)] = true
	}
	s.mux.Method(method, pattern, adapt(h))
}

func (s *Server) isMarked(method, pattern string) bool {
	if pattern == "" {
		return false
	}
	return s.marked[routeKey(method, pattern)]
}

func routeKey(method, pattern string) string {
	return method + " " + pattern
}

type outcomeKey struct{}

// outcome carries the route's error back to the unit-of-work middleware.
type outcome struct {
	err error
}

func adapt(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := h(w, r)
		if err == nil {
			return
		}
		if out, ok := r.Context().Value(outcomeKey{}).(*outcome); ok {
			out.err = err
			return
		}
		writeError(r.Context(), w, err)
	}
}
