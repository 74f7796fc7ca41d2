package ports

import "context"

// UnitOfWork defines a transaction boundary for callers outside the HTTP
// lifecycle.
//
// This is intentionally callback-style: returning an error causes rollback,
// returning nil causes commit. Data-access calls made inside fn with the
// provided ctx share one handle.
type UnitOfWork interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
