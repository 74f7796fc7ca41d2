// Package unitofwork hands out database handles per unit of work and drives
// transaction boundaries against them.
//
// Three managers are provided:
//
//   - DefaultManager opens a new handle on every Get.
//   - RequestScopedManager keeps one handle per scope found in the context.
//   - LinkedManager keeps one handle per owner scope and lets workers started
//     through its WorkerFactory reuse it.
package unitofwork

import (
	"context"
	"errors"
	"log/slog"

	"handlescope/internal/bootstrap/logging"
	"handlescope/internal/errs"
	"handlescope/internal/metrics"
	"handlescope/internal/ports"
	"handlescope/internal/scope"
)

// Manager names, also accepted by NewManager.
const (
	ManagerDefault = "default"
	ManagerRequest = "request"
	ManagerLinked  = "linked"
)

type Option func(*options)

type options struct {
	metrics *metrics.Metrics
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// NewManager builds the manager registered under name.
func NewManager(name string, opener ports.HandleOpener, opts ...Option) (ports.HandleManager, error) {
	switch name {
	case ManagerDefault:
		return NewDefaultManager(opener, opts...)
	case ManagerRequest, "":
		return NewRequestScopedManager(opener, opts...)
	case ManagerLinked:
		return NewLinkedManager(opener, opts...)
	default:
		return nil, errs.Wrapf(ports.ErrInvalidArgument, "unknown handle manager %q", name)
	}
}

func validateOpener(opener ports.HandleOpener) error {
	if opener == nil {
		return errs.Wrap(ports.ErrInvalidArgument, "handle opener is required")
	}
	return nil
}

func managerCtx(ctx context.Context, manager string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return logging.WithAttrs(ctx,
		slog.String("component", "unitofwork.manager"),
		slog.String("manager", manager),
		scope.Attr(ctx),
	)
}

func openHandle(ctx context.Context, opener ports.HandleOpener, m *metrics.Metrics, manager string) (ports.Handle, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	h, err := opener.Open(ctx)
	if err != nil {
		return nil, errs.Wrap(err, "open handle")
	}
	m.HandleOpened(manager)
	return h, nil
}

func closeHandle(ctx context.Context, h ports.Handle, m *metrics.Metrics, manager string) error {
	err := h.Close(ctx)
	m.HandleClosed(manager)
	if err != nil {
		return errs.Wrapf(err, "close handle %s", h.ID())
	}
	logging.Debug(ctx, "closed handle", slog.String("handle_id", h.ID()))
	return nil
}
