package unitofwork

import (
	"context"
	"log/slog"

	"handlescope/internal/bootstrap/logging"
	"handlescope/internal/errs"
	"handlescope/internal/metrics"
	"handlescope/internal/ports"
	"handlescope/internal/scope"
)

// TransactionAspect sequences transaction calls for one unit of work. It holds
// at most one handle, taken from the manager by InitHandle and released by
// TerminateHandle. An aspect is driven by a single goroutine.
type TransactionAspect struct {
	manager ports.HandleManager
	metrics *metrics.Metrics
	handle  ports.Handle
}

func NewTransactionAspect(manager ports.HandleManager, m *metrics.Metrics) *TransactionAspect {
	return &TransactionAspect{manager: manager, metrics: m}
}

// Handle returns the handle captured by InitHandle, or nil.
func (a *TransactionAspect) Handle() ports.Handle {
	return a.handle
}

func (a *TransactionAspect) InitHandle(ctx context.Context) error {
	h, err := a.manager.Get(ctx)
	if err != nil {
		return errs.Wrap(err, "init handle")
	}
	a.handle = h
	return nil
}

// Begin opens a transaction on the held handle. On failure the manager's handle
// is cleared and forgotten before the error is returned.
func (a *TransactionAspect) Begin(ctx context.Context) error {
	var err error
	if a.handle == nil {
		err = errs.Wrap(ports.ErrNoHandle, "begin transaction")
	} else if beginErr := a.handle.Begin(ctx); beginErr != nil {
		err = errs.Wrap(beginErr, "begin transaction")
	}

	if err != nil {
		a.metrics.Transaction(metrics.OutcomeBeginFailed)
		clearErr := a.manager.Clear(ctx)
		a.handle = nil
		return errs.Join(err, errs.Wrap(clearErr, "clear handle after failed begin"))
	}

	a.metrics.Transaction(metrics.OutcomeBegun)
	a.trace(ctx, "transaction begun")
	return nil
}

// Commit commits the held handle. A failed commit is rolled back once before
// the commit error is returned. Without a handle Commit does nothing.
func (a *TransactionAspect) Commit(ctx context.Context) error {
	h := a.handle
	if h == nil {
		logging.Debug(a.logCtx(ctx), "no handle during commit, it may already be closed")
		return nil
	}

	if err := h.Commit(ctx); err != nil {
		a.metrics.Transaction(metrics.OutcomeCommitFailed)
		rbErr := h.Rollback(ctx)
		if rbErr == nil {
			a.metrics.Transaction(metrics.OutcomeRolledBack)
		}
		return errs.Join(
			errs.Wrap(err, "commit transaction"),
			errs.Wrap(rbErr, "rollback after failed commit"),
		)
	}

	a.metrics.Transaction(metrics.OutcomeCommitted)
	a.trace(ctx, "transaction committed")
	return nil
}

// Rollback rolls the held handle back and always terminates it afterwards.
// Without a handle Rollback does nothing.
func (a *TransactionAspect) Rollback(ctx context.Context) (err error) {
	h := a.handle
	if h == nil {
		logging.Debug(a.logCtx(ctx), "no handle during rollback")
		return nil
	}

	defer func() {
		err = errs.Join(err, a.TerminateHandle(ctx))
	}()

	if rbErr := h.Rollback(ctx); rbErr != nil {
		return errs.Wrap(rbErr, "rollback transaction")
	}

	a.metrics.Transaction(metrics.OutcomeRolledBack)
	a.trace(ctx, "transaction rolled back")
	return nil
}

// TerminateHandle clears the scope's handle in the manager. The local
// reference is dropped even when Clear fails.
func (a *TransactionAspect) TerminateHandle(ctx context.Context) error {
	defer func() { a.handle = nil }()

	if err := a.manager.Clear(ctx); err != nil {
		return errs.Wrap(err, "terminate handle")
	}
	return nil
}

func (a *TransactionAspect) logCtx(ctx context.Context) context.Context {
	return logging.WithAttrs(ctx,
		slog.String("component", "unitofwork.aspect"),
		slog.String("manager", a.manager.Name()),
		scope.Attr(ctx),
	)
}

func (a *TransactionAspect) trace(ctx context.Context, msg string) {
	h := a.handle
	logging.Debug(a.logCtx(ctx), msg,
		slog.String("handle_id", h.ID()),
		slog.Bool("in_transaction", h.InTransaction()),
		slog.String("isolation", h.IsolationLevel().String()),
	)
}
