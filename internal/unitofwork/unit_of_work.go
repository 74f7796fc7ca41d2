package unitofwork

import (
	"context"
	"errors"

	"handlescope/internal/errs"
	"handlescope/internal/metrics"
	"handlescope/internal/ports"
	"handlescope/internal/scope"
)

// UnitOfWork implements ports.UnitOfWork on top of a handle manager, for
// callers that are not driven by the HTTP lifecycle.
type UnitOfWork struct {
	manager ports.HandleManager
	metrics *metrics.Metrics
}

func NewUnitOfWork(manager ports.HandleManager, m *metrics.Metrics) *UnitOfWork {
	return &UnitOfWork{manager: manager, metrics: m}
}

// WithTx runs fn inside one transaction. fn's ctx carries the scope the
// handle is registered under; data-access calls made with it share the
// transaction. A returned error or a panic rolls back, nil commits.
//
// When ctx already resolves to a handle in a transaction, fn joins it and the
// outer boundary decides the outcome. A linked worker never drives the
// transaction of the handle it borrows: fn runs with whatever state the owner
// left it in.
func (u *UnitOfWork) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if fn == nil {
		return errs.Wrap(ports.ErrInvalidArgument, "unit of work function is required")
	}

	if s, ok := scope.From(ctx); ok && s.Dependent() {
		return fn(ctx)
	}

	ctx, created := scope.Ensure(ctx, "unit-of-work")
	if !created {
		if h, err := u.manager.Get(ctx); err == nil && h.InTransaction() {
			return fn(ctx)
		}
	}

	aspect := NewTransactionAspect(u.manager, u.metrics)
	if err := aspect.InitHandle(ctx); err != nil {
		return err
	}
	if err := aspect.Begin(ctx); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			_ = aspect.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(ctx); err != nil {
		return errs.Join(err, aspect.Rollback(ctx))
	}

	if err := aspect.Commit(ctx); err != nil {
		return errs.Join(err, aspect.TerminateHandle(ctx))
	}
	return aspect.TerminateHandle(ctx)
}

// Read runs fn with a scoped handle and no transaction. Inside an existing
// scope fn simply runs; the handle belongs to the outer unit of work.
func (u *UnitOfWork) Read(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if fn == nil {
		return errs.Wrap(ports.ErrInvalidArgument, "unit of work function is required")
	}

	ctx, created := scope.Ensure(ctx, "read")
	if !created {
		return fn(ctx)
	}

	aspect := NewTransactionAspect(u.manager, u.metrics)
	if err := aspect.InitHandle(ctx); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = aspect.TerminateHandle(ctx)
			panic(r)
		}
	}()

	return errs.Join(fn(ctx), aspect.TerminateHandle(ctx))
}
