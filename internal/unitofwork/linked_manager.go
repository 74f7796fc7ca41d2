package unitofwork

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"handlescope/internal/bootstrap/logging"
	"handlescope/internal/errs"
	"handlescope/internal/metrics"
	"handlescope/internal/ports"
	"handlescope/internal/scope"
)

// LinkedManager keeps one handle per conversation. An owner scope opens the
// handle under its own key; dependent scopes created by the manager's worker
// factory resolve to their conversation's handle and never open one.
//
// Clear blocks until every worker started for the conversation has returned,
// so the owner cannot close a handle that a worker is still using.
type LinkedManager struct {
	opener  ports.HandleOpener
	metrics *metrics.Metrics

	handles  sync.Map // scope.Key -> ports.Handle
	inflight sync.Map // scope.Key -> *barrier
}

// barrier tracks the workers of one conversation. Once closed it admits no
// new workers, so Add never races the Wait in Clear.
type barrier struct {
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func (b *barrier) enter() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	b.wg.Add(1)
	return true
}

func (b *barrier) closeAndWait() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.wg.Wait()
}

func NewLinkedManager(opener ports.HandleOpener, opts ...Option) (*LinkedManager, error) {
	if err := validateOpener(opener); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &LinkedManager{opener: opener, metrics: o.metrics}, nil
}

func (m *LinkedManager) Name() string { return ManagerLinked }

func (m *LinkedManager) Get(ctx context.Context) (ports.Handle, error) {
	s, ok := scope.From(ctx)
	if !ok {
		return nil, errs.Wrap(ports.ErrNoScope, "linked get")
	}
	logCtx := managerCtx(ctx, ManagerLinked)

	if s.Dependent() {
		v, ok := m.handles.Load(s.Conversation)
		if !ok {
			return nil, fmt.Errorf("%w: worker %q, conversation %q", ports.ErrNoOwnerHandle, s.Name, s.Conversation)
		}
		h := v.(ports.Handle)
		logging.Debug(logCtx, "reusing owner handle", slog.String("handle_id", h.ID()))
		return h, nil
	}

	if v, ok := m.handles.Load(s.Key); ok {
		return v.(ports.Handle), nil
	}

	h, err := openHandle(ctx, m.opener, m.metrics, ManagerLinked)
	if err != nil {
		return nil, err
	}
	if actual, loaded := m.handles.LoadOrStore(s.Key, h); loaded {
		if err := closeHandle(logCtx, h, m.metrics, ManagerLinked); err != nil {
			logging.Warn(logCtx, "close surplus handle failed", slog.Any("err", errs.Loggable(err)))
		}
		return actual.(ports.Handle), nil
	}

	m.metrics.HandleRegistered(ManagerLinked, 1)
	logging.Debug(logCtx, "owner opened handle", slog.String("handle_id", h.ID()))
	return h, nil
}

// Clear retires the handle owned by the calling scope. A dependent scope owns
// nothing, so Clear from a worker is a no-op.
func (m *LinkedManager) Clear(ctx context.Context) error {
	logCtx := managerCtx(ctx, ManagerLinked)

	s, ok := scope.From(ctx)
	if !ok {
		logging.Debug(logCtx, "no scope to clear")
		return nil
	}

	if v, ok := m.inflight.LoadAndDelete(s.Key); ok {
		logging.Debug(logCtx, "waiting for workers before clear")
		v.(*barrier).closeAndWait()
	}

	v, ok := m.handles.LoadAndDelete(s.Key)
	if !ok {
		logging.Debug(logCtx, "no handle to clear")
		return nil
	}

	m.metrics.HandleRegistered(ManagerLinked, -1)
	return closeHandle(logCtx, v.(ports.Handle), m.metrics, ManagerLinked)
}

// NewWorkerFactory returns a factory whose workers share the calling scope's
// handle. Called from a worker, the factory links to the same conversation.
// Once the owner starts clearing, Go no longer runs workers and Wait reports
// ports.ErrNoOwnerHandle for each refused one.
func (m *LinkedManager) NewWorkerFactory(ctx context.Context, identity string) (ports.WorkerFactory, error) {
	s, ok := scope.From(ctx)
	if !ok {
		return nil, errs.Wrap(ports.ErrNoScope, "linked worker factory")
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = "worker"
	}

	owner := s.Owner()
	v, _ := m.inflight.LoadOrStore(owner, &barrier{})

	return &workerFactory{
		ctx:      ctx,
		owner:    owner,
		identity: identity,
		inflight: v.(*barrier),
	}, nil
}

// Len reports how many conversations hold a handle.
func (m *LinkedManager) Len() int {
	n := 0
	m.handles.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

type workerFactory struct {
	ctx      context.Context
	owner    scope.Key
	identity string
	seq      atomic.Int64
	group    errgroup.Group
	inflight *barrier
}

func (f *workerFactory) Go(fn func(ctx context.Context) error) {
	n := f.seq.Add(1)
	name := fmt.Sprintf("[%s]-%s-%d", f.owner, f.identity, n)

	workerCtx := scope.Link(f.ctx, f.owner, name)
	workerCtx = logging.WithAttrs(workerCtx, slog.String("worker", name))

	if !f.inflight.enter() {
		f.group.Go(func() error {
			return fmt.Errorf("%w: worker %q started after conversation %q was cleared", ports.ErrNoOwnerHandle, name, f.owner)
		})
		return
	}
	f.group.Go(func() error {
		defer f.inflight.wg.Done()
		return fn(workerCtx)
	})
}

func (f *workerFactory) Wait() error {
	return f.group.Wait()
}
