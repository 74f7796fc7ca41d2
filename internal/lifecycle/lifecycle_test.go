package lifecycle

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sync"
	"testing"

	"handlescope/internal/ports"
	"handlescope/internal/scope"
	"handlescope/internal/unitofwork"
)

type countingHandle struct {
	mu                         sync.Mutex
	begins, commits, rollbacks int
	closes                     int
	commitErr                  error
}

func (h *countingHandle) ID() string                         { return "h" }
func (h *countingHandle) InTransaction() bool                { return false }
func (h *countingHandle) IsolationLevel() sql.IsolationLevel { return sql.LevelDefault }

func (h *countingHandle) Begin(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.begins++
	return nil
}

func (h *countingHandle) Commit(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commits++
	return h.commitErr
}

func (h *countingHandle) Rollback(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rollbacks++
	return nil
}

func (h *countingHandle) Close(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	return nil
}

type singleOpener struct {
	handle *countingHandle
	opens  int
}

func (o *singleOpener) Open(context.Context) (ports.Handle, error) {
	o.opens++
	return o.handle, nil
}

func setup(t *testing.T, excluded ...string) (*ApplicationListener, *countingHandle, *unitofwork.RequestScopedManager) {
	t.Helper()

	h := &countingHandle{}
	m, err := unitofwork.NewRequestScopedManager(&singleOpener{handle: h})
	if err != nil {
		t.Fatalf("NewRequestScopedManager() error = %v", err)
	}
	l, err := NewApplicationListener(m, excluded, nil)
	if err != nil {
		t.Fatalf("NewApplicationListener() error = %v", err)
	}
	return l, h, m
}

func drive(t *testing.T, l RequestListener, ctx context.Context, base Event, types ...EventType) []error {
	t.Helper()
	var out []error
	for _, typ := range types {
		ev := base
		ev.Type = typ
		out = append(out, l.OnEvent(ctx, ev))
	}
	return out
}

func TestExcludedPathsGetNoListener(t *testing.T) {
	l, _, _ := setup(t, "/metrics", " ")
	if got := l.OnRequest(Event{Method: http.MethodPost, Path: "/admin/metrics/raw"}); got != nil {
		t.Fatalf("OnRequest() = %T for an excluded path", got)
	}
	if got := l.OnRequest(Event{Method: http.MethodPost, Path: "/insert"}); got == nil {
		t.Fatalf("OnRequest() = nil for a regular path")
	}
}

func TestGetNeverOpensTransaction(t *testing.T) {
	l, h, m := setup(t)
	ctx := scope.New(context.Background(), "get")
	base := Event{Method: http.MethodGet, Path: "/count", Pattern: "/count", UnitOfWork: true}

	rl := l.OnRequest(base)
	for _, err := range drive(t, rl, ctx, base, MethodStart, ResponseComposing, Exception, Finished) {
		if err != nil {
			t.Fatalf("OnEvent() error = %v", err)
		}
	}

	if h.begins+h.commits+h.rollbacks != 0 {
		t.Fatalf("begins/commits/rollbacks = %d/%d/%d, want none", h.begins, h.commits, h.rollbacks)
	}
	if h.closes != 1 || m.Len() != 0 {
		t.Fatalf("closes = %d, registered = %d, want 1 and 0", h.closes, m.Len())
	}
}

func TestMarkedPostCommits(t *testing.T) {
	l, h, m := setup(t)
	ctx := scope.New(context.Background(), "post")
	base := Event{Method: http.MethodPost, Path: "/insert/unitofwork", Pattern: "/insert/unitofwork", UnitOfWork: true}

	rl := l.OnRequest(base)
	for _, err := range drive(t, rl, ctx, base, MethodStart, ResponseComposing, Finished) {
		if err != nil {
			t.Fatalf("OnEvent() error = %v", err)
		}
	}
	if h.begins != 1 || h.commits != 1 || h.rollbacks != 0 || h.closes != 1 {
		t.Fatalf("begins/commits/rollbacks/closes = %d/%d/%d/%d", h.begins, h.commits, h.rollbacks, h.closes)
	}
	if m.Len() != 0 {
		t.Fatalf("handle still registered")
	}
}

func TestMarkedPostRollsBackOnException(t *testing.T) {
	l, h, m := setup(t)
	ctx := scope.New(context.Background(), "post")
	base := Event{Method: http.MethodPost, Path: "/atomic", Pattern: "/atomic", UnitOfWork: true}

	rl := l.OnRequest(base)
	for _, err := range drive(t, rl, ctx, base, MethodStart, Exception, Finished) {
		if err != nil {
			t.Fatalf("OnEvent() error = %v", err)
		}
	}
	if h.begins != 1 || h.commits != 0 || h.rollbacks != 1 {
		t.Fatalf("begins/commits/rollbacks = %d/%d/%d", h.begins, h.commits, h.rollbacks)
	}
	// Rollback terminates; the final terminate finds nothing left.
	if h.closes != 1 || m.Len() != 0 {
		t.Fatalf("closes = %d, registered = %d", h.closes, m.Len())
	}
}

func TestUnmarkedPostSkipsTransaction(t *testing.T) {
	l, h, _ := setup(t)
	ctx := scope.New(context.Background(), "post")
	base := Event{Method: http.MethodPost, Path: "/insert", Pattern: "/insert"}

	rl := l.OnRequest(base)
	drive(t, rl, ctx, base, MethodStart, Exception, Finished)
	if h.begins+h.commits+h.rollbacks != 0 || h.closes != 1 {
		t.Fatalf("begins/commits/rollbacks/closes = %d/%d/%d/%d", h.begins, h.commits, h.rollbacks, h.closes)
	}
}

func TestCommitFailureSurfaces(t *testing.T) {
	l, h, _ := setup(t)
	h.commitErr = errors.New("disk full")
	ctx := scope.New(context.Background(), "post")
	base := Event{Method: http.MethodPut, Path: "/x", Pattern: "/x", UnitOfWork: true}

	rl := l.OnRequest(base)
	errs := drive(t, rl, ctx, base, MethodStart, ResponseComposing, Finished)
	if !errors.Is(errs[1], h.commitErr) {
		t.Fatalf("ResponseComposing error = %v, want commit error", errs[1])
	}
	if h.rollbacks != 1 || h.closes != 1 {
		t.Fatalf("rollbacks = %d, closes = %d, want 1 each", h.rollbacks, h.closes)
	}
}

func TestNewApplicationListenerRequiresManager(t *testing.T) {
	if _, err := NewApplicationListener(nil, nil, nil); !errors.Is(err, ports.ErrInvalidArgument) {
		t.Fatalf("NewApplicationListener(nil) error = %v", err)
	}
}

func TestExcludedRequestReleasesHandle(t *testing.T) {
	l, h, m := setup(t, "/health")
	ctx := scope.New(context.Background(), "GET /health")

	if rl := l.OnRequest(Event{Method: http.MethodGet, Path: "/health"}); rl != nil {
		t.Fatalf("OnRequest(/health) = %T, want nil", rl)
	}
	// A data-access proxy called by the route opens the handle on demand.
	if _, err := m.Get(ctx); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("registered = %d, want 1", m.Len())
	}

	if err := l.Release(ctx); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if m.Len() != 0 || h.closes != 1 || h.begins != 0 {
		t.Fatalf("registered = %d, closes = %d, begins = %d", m.Len(), h.closes, h.begins)
	}
}
