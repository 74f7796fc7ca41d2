package unitofwork

import (
	"context"
	"log/slog"
	"strings"

	"handlescope/internal/bootstrap/logging"
	"handlescope/internal/errs"
	"handlescope/internal/ports"
	"handlescope/internal/scope"
)

// Binder attaches a data-access implementation to a live handle. Binding the
// same handle twice must be harmless.
type Binder[T any] func(ports.Handle) (T, error)

// Proxy resolves the current handle and binds T to it on every call. Nothing
// is cached, so each call observes the scope carried by its own context.
type Proxy[T any] struct {
	manager ports.HandleManager
	name    string
	bind    Binder[T]
}

func NewProxy[T any](manager ports.HandleManager, name string, bind Binder[T]) (*Proxy[T], error) {
	if manager == nil {
		return nil, errs.Wrap(ports.ErrInvalidArgument, "handle manager is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errs.Wrap(ports.ErrInvalidArgument, "proxy name is required")
	}
	if bind == nil {
		return nil, errs.Wrapf(ports.ErrInvalidArgument, "binder for %s is required", name)
	}
	return &Proxy[T]{manager: manager, name: name, bind: bind}, nil
}

// Resolve fetches the calling scope's handle and binds T to it.
func (p *Proxy[T]) Resolve(ctx context.Context) (T, error) {
	dao, _, err := p.resolve(ctx)
	return dao, err
}

func (p *Proxy[T]) resolve(ctx context.Context) (T, ports.Handle, error) {
	var zero T

	h, err := p.manager.Get(ctx)
	if err != nil {
		return zero, nil, errs.Wrapf(err, "%s: get handle", p.name)
	}
	dao, err := p.bind(h)
	if err != nil {
		return zero, nil, errs.Wrapf(err, "%s: bind handle %s", p.name, h.ID())
	}
	return dao, h, nil
}

// String answers locally and never touches the manager.
func (p *Proxy[T]) String() string {
	return "Proxy[" + p.name + "]"
}

func (p *Proxy[T]) Name() string { return p.name }

// Invoke resolves the delegate and runs call against it. The call's error is
// returned unchanged.
func Invoke[T any](ctx context.Context, p *Proxy[T], method string, call func(T) error) error {
	dao, h, err := p.resolve(ctx)
	if err != nil {
		return err
	}
	p.traceCall(ctx, method, h)
	return call(dao)
}

// Query is Invoke for calls that return a value.
func Query[T, R any](ctx context.Context, p *Proxy[T], method string, call func(T) (R, error)) (R, error) {
	dao, h, err := p.resolve(ctx)
	if err != nil {
		var zero R
		return zero, err
	}
	p.traceCall(ctx, method, h)
	return call(dao)
}

func (p *Proxy[T]) traceCall(ctx context.Context, method string, h ports.Handle) {
	logging.Debug(ctx, "proxy call",
		slog.String("component", "unitofwork.proxy"),
		slog.String("dao", p.name),
		slog.String("method", method),
		slog.String("handle_id", h.ID()),
		scope.Attr(ctx),
	)
}
