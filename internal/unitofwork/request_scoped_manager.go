package unitofwork

import (
	"context"
	"log/slog"
	"sync"

	"handlescope/internal/bootstrap/logging"
	"handlescope/internal/errs"
	"handlescope/internal/metrics"
	"handlescope/internal/ports"
	"handlescope/internal/scope"
)

// RequestScopedManager keeps one handle per scope key. Workers never see the
// handle of the scope that started them: a linked scope resolves under its own
// key like any other.
type RequestScopedManager struct {
	opener  ports.HandleOpener
	metrics *metrics.Metrics

	mu      sync.Mutex
	handles map[scope.Key]ports.Handle
}

func NewRequestScopedManager(opener ports.HandleOpener, opts ...Option) (*RequestScopedManager, error) {
	if err := validateOpener(opener); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &RequestScopedManager{
		opener:  opener,
		metrics: o.metrics,
		handles: make(map[scope.Key]ports.Handle),
	}, nil
}

func (m *RequestScopedManager) Name() string { return ManagerRequest }

func (m *RequestScopedManager) Get(ctx context.Context) (ports.Handle, error) {
	s, ok := scope.From(ctx)
	if !ok {
		return nil, errs.Wrap(ports.ErrNoScope, "request scoped get")
	}
	logCtx := managerCtx(ctx, ManagerRequest)

	if h, ok := m.lookup(s.Key); ok {
		logging.Debug(logCtx, "reusing scoped handle", slog.String("handle_id", h.ID()))
		return h, nil
	}

	// Open outside the lock; the same key is normally driven by one goroutine.
	h, err := openHandle(ctx, m.opener, m.metrics, ManagerRequest)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	existing, raced := m.handles[s.Key]
	if !raced {
		m.handles[s.Key] = h
	}
	m.mu.Unlock()

	if raced {
		if err := closeHandle(logCtx, h, m.metrics, ManagerRequest); err != nil {
			logging.Warn(logCtx, "close surplus handle failed", slog.Any("err", errs.Loggable(err)))
		}
		return existing, nil
	}

	m.metrics.HandleRegistered(ManagerRequest, 1)
	logging.Debug(logCtx, "opened scoped handle", slog.String("handle_id", h.ID()))
	return h, nil
}

func (m *RequestScopedManager) Clear(ctx context.Context) error {
	logCtx := managerCtx(ctx, ManagerRequest)

	s, ok := scope.From(ctx)
	if !ok {
		logging.Debug(logCtx, "no scope to clear")
		return nil
	}

	m.mu.Lock()
	h, ok := m.handles[s.Key]
	delete(m.handles, s.Key)
	m.mu.Unlock()

	if !ok {
		logging.Debug(logCtx, "no handle to clear")
		return nil
	}

	m.metrics.HandleRegistered(ManagerRequest, -1)
	return closeHandle(logCtx, h, m.metrics, ManagerRequest)
}

func (m *RequestScopedManager) NewWorkerFactory(context.Context, string) (ports.WorkerFactory, error) {
	return nil, errs.Wrap(ports.ErrUnsupported, "request scoped manager cannot share handles with workers")
}

// Len reports how many handles are registered.
func (m *RequestScopedManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}

func (m *RequestScopedManager) lookup(key scope.Key) (ports.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[key]
	return h, ok
}
