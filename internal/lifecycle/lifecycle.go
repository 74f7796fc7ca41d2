// Package lifecycle turns request lifecycle events into transaction aspect
// calls.
//
// An event source reports, for each request, one MethodStart, then either
// ResponseComposing or Exception, and finally exactly one Finished.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"handlescope/internal/bootstrap/logging"
	"handlescope/internal/errs"
	"handlescope/internal/metrics"
	"handlescope/internal/ports"
	"handlescope/internal/unitofwork"
)

type EventType int

const (
	MethodStart EventType = iota + 1
	ResponseComposing
	Exception
	Finished
)

func (t EventType) String() string {
	switch t {
	case MethodStart:
		return "method_start"
	case ResponseComposing:
		return "response_composing"
	case Exception:
		return "exception"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// Event describes one lifecycle signal. Pattern is empty when no entry point
// matched; UnitOfWork reports whether the matched entry point is marked.
type Event struct {
	Type       EventType
	Method     string
	Path       string
	Pattern    string
	UnitOfWork bool
}

// RequestListener receives the events of one request.
type RequestListener interface {
	OnEvent(ctx context.Context, ev Event) error
}

// ApplicationListener creates a request listener per request.
type ApplicationListener struct {
	manager  ports.HandleManager
	metrics  *metrics.Metrics
	excluded []string
}

func NewApplicationListener(manager ports.HandleManager, excludedPaths []string, m *metrics.Metrics) (*ApplicationListener, error) {
	if manager == nil {
		return nil, errs.Wrap(ports.ErrInvalidArgument, "handle manager is required")
	}

	excluded := make([]string, 0, len(excludedPaths))
	for _, p := range excludedPaths {
		if p = strings.TrimSpace(p); p != "" {
			excluded = append(excluded, p)
		}
	}
	return &ApplicationListener{manager: manager, metrics: m, excluded: excluded}, nil
}

// OnRequest returns nil for excluded paths. GET requests get a listener that
// never opens a transaction.
func (l *ApplicationListener) OnRequest(ev Event) RequestListener {
	for _, p := range l.excluded {
		if strings.Contains(ev.Path, p) {
			return nil
		}
	}

	aspect := unitofwork.NewTransactionAspect(l.manager, l.metrics)
	if strings.EqualFold(ev.Method, http.MethodGet) {
		return &readOnlyListener{aspect: aspect}
	}
	return &transactionalListener{aspect: aspect}
}

// Release clears the handle an excluded request may have opened through a
// data-access proxy. Excluded requests get no listener, so nothing else
// terminates it.
func (l *ApplicationListener) Release(ctx context.Context) error {
	return l.manager.Clear(ctx)
}

// readOnlyListener only acquires and releases the handle.
type readOnlyListener struct {
	aspect *unitofwork.TransactionAspect
}

func (l *readOnlyListener) OnEvent(ctx context.Context, ev Event) error {
	trace(ctx, ev, "read_only")
	switch ev.Type {
	case MethodStart:
		return l.aspect.InitHandle(ctx)
	case Finished:
		return l.aspect.TerminateHandle(ctx)
	default:
		return nil
	}
}

// transactionalListener opens a transaction when the entry point is marked.
type transactionalListener struct {
	aspect *unitofwork.TransactionAspect
}

func (l *transactionalListener) OnEvent(ctx context.Context, ev Event) error {
	trace(ctx, ev, "transactional")
	switch ev.Type {
	case MethodStart:
		if err := l.aspect.InitHandle(ctx); err != nil {
			return err
		}
		if ev.UnitOfWork {
			return l.aspect.Begin(ctx)
		}
		return nil
	case ResponseComposing:
		if ev.UnitOfWork {
			return l.aspect.Commit(ctx)
		}
		return nil
	case Exception:
		if ev.UnitOfWork {
			return l.aspect.Rollback(ctx)
		}
		return nil
	case Finished:
		return l.aspect.TerminateHandle(ctx)
	default:
		return nil
	}
}

func trace(ctx context.Context, ev Event, listener string) {
	logging.Debug(ctx, "request event",
		slog.String("component", "lifecycle"),
		slog.String("listener", listener),
		slog.String("event", ev.Type.String()),
		slog.String("method", ev.Method),
		slog.String("pattern", ev.Pattern),
		slog.Bool("unit_of_work", ev.UnitOfWork),
	)
}
