package ports

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// ErrInvalidArgument reports a setup-time configuration mistake.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnsupported is returned by managers that cannot share a handle
	// across goroutines.
	ErrUnsupported = errors.New("unsupported capability")
	// ErrNoScope means the context carries no unit-of-work scope.
	ErrNoScope = errors.New("no unit-of-work scope in context")
	// ErrNoOwnerHandle means a dependent worker asked for its conversation's
	// handle before the owner opened one, or after the owner cleared it.
	ErrNoOwnerHandle = errors.New("no owner handle registered for conversation")
	// ErrNoHandle means a transaction boundary was requested before a handle
	// was initialised for the unit of work.
	ErrNoHandle         = errors.New("no handle initialised")
	ErrHandleClosed     = errors.New("handle is closed")
	ErrNotInTransaction = errors.New("handle is not in a transaction")
	ErrInTransaction    = errors.New("handle is already in a transaction")
)

// Handle is a database session owned by the manager that opened it.
// Callers never close a handle themselves.
type Handle interface {
	ID() string
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Close(ctx context.Context) error
	InTransaction() bool
	IsolationLevel() sql.IsolationLevel
}

// HandleOpener opens fresh handles against the underlying database.
type HandleOpener interface {
	Open(ctx context.Context) (Handle, error)
}

// HandleManager supplies and retires handles for the scope found in ctx.
type HandleManager interface {
	// Get returns the current handle for the calling scope, opening one
	// when none exists yet.
	Get(ctx context.Context) (Handle, error)
	// Clear closes and forgets the calling scope's handle. It is a no-op
	// when nothing is registered.
	Clear(ctx context.Context) error
	// NewWorkerFactory returns a factory whose workers resolve Get to the
	// calling scope's handle. Managers that cannot share handles return
	// ErrUnsupported.
	NewWorkerFactory(ctx context.Context, identity string) (WorkerFactory, error)
	Name() string
}

// WorkerFactory starts goroutines bound to a parent conversation.
type WorkerFactory interface {
	Go(fn func(ctx context.Context) error)
	// Wait blocks until every started worker returns and reports the first
	// error.
	Wait() error
}
