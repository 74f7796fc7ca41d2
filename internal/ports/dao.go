package ports

import "context"

// CountingDAO writes and counts rows of the counter table.
type CountingDAO interface {
	Insert(ctx context.Context, label string) error
	Count(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}

// AppDAO touches two tables so a failure between the writes is observable.
type AppDAO interface {
	Dual(ctx context.Context) (int64, error)
	CreatePrimary(ctx context.Context, id int64, val string) error
	CreateSecondary(ctx context.Context, id int64, val string) error
	CountPrimary(ctx context.Context) (int64, error)
	CountSecondary(ctx context.Context) (int64, error)
}
