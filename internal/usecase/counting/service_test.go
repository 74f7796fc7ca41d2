package counting

import (
	"context"
	"errors"
	"testing"

	"handlescope/internal/infrastructure/persistence/sqlite/dao"
	"handlescope/internal/infrastructure/persistence/sqlite/handle"
	"handlescope/internal/infrastructure/persistence/sqlite/sqlitetest"
	"handlescope/internal/ports"
	"handlescope/internal/scope"
	"handlescope/internal/unitofwork"
)

type fixture struct {
	service *Service
	manager ports.HandleManager
	uow     *unitofwork.UnitOfWork
}

func newFixture(t *testing.T, managerName string) fixture {
	t.Helper()

	opener, err := handle.NewOpener(sqlitetest.Open(t))
	if err != nil {
		t.Fatalf("NewOpener() error = %v", err)
	}
	manager, err := unitofwork.NewManager(managerName, opener)
	if err != nil {
		t.Fatalf("NewManager(%q) error = %v", managerName, err)
	}
	counting, err := dao.NewCountingProxy(manager)
	if err != nil {
		t.Fatalf("NewCountingProxy() error = %v", err)
	}
	app, err := dao.NewAppProxy(manager)
	if err != nil {
		t.Fatalf("NewAppProxy() error = %v", err)
	}
	return fixture{
		service: NewService(counting, app, manager),
		manager: manager,
		uow:     unitofwork.NewUnitOfWork(manager, nil),
	}
}

func (f fixture) count(t *testing.T) int64 {
	t.Helper()
	ctx := scope.New(context.Background(), "count")
	defer func() { _ = f.manager.Clear(ctx) }()

	n, err := f.service.Count(ctx)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	return n
}

func TestInsertWithoutTransactionKeepsPartialRows(t *testing.T) {
	f := newFixture(t, unitofwork.ManagerRequest)
	ctx := scope.New(context.Background(), "insert")
	defer func() { _ = f.manager.Clear(ctx) }()

	err := f.service.Insert(ctx, 10, 4)
	if !errors.Is(err, ErrInducedFailure) {
		t.Fatalf("Insert() error = %v", err)
	}
	if got := f.count(t); got != 3 {
		t.Fatalf("count = %d, want 3", got)
	}
}

func TestInsertInsideUnitOfWorkRollsBack(t *testing.T) {
	f := newFixture(t, unitofwork.ManagerRequest)

	err := f.uow.WithTx(context.Background(), func(ctx context.Context) error {
		return f.service.Insert(ctx, 10, 4)
	})
	if !errors.Is(err, ErrInducedFailure) {
		t.Fatalf("WithTx() error = %v", err)
	}
	if got := f.count(t); got != 0 {
		t.Fatalf("count = %d, want 0", got)
	}

	if err := f.uow.WithTx(context.Background(), func(ctx context.Context) error {
		return f.service.Insert(ctx, 4, NoFailure)
	}); err != nil {
		t.Fatalf("WithTx() error = %v", err)
	}
	if got := f.count(t); got != 4 {
		t.Fatalf("count = %d, want 4", got)
	}
}

func TestInsertRejectsNegativeSize(t *testing.T) {
	f := newFixture(t, unitofwork.ManagerRequest)
	if err := f.service.Insert(context.Background(), -1, NoFailure); !errors.Is(err, ports.ErrInvalidArgument) {
		t.Fatalf("Insert(-1) error = %v", err)
	}
}

func TestUnrelatedWorkersFailIndependently(t *testing.T) {
	f := newFixture(t, unitofwork.ManagerRequest)

	err := f.uow.WithTx(context.Background(), func(ctx context.Context) error {
		return f.service.InsertConcurrent(ctx, InsertConcurrentInput{
			Workers:  2,
			FailOnce: true,
			FailOn:   4,
			Size:     5,
		})
	})
	if !errors.Is(err, ErrInducedFailure) {
		t.Fatalf("InsertConcurrent() error = %v", err)
	}
	// One worker writes all 5 rows, the other 3 before failing. Neither
	// wrote through the caller's transaction, so the rollback undoes nothing.
	if got := f.count(t); got != 8 {
		t.Fatalf("count = %d, want 8", got)
	}
	if n := f.manager.(*unitofwork.RequestScopedManager).Len(); n != 0 {
		t.Fatalf("%d worker handles left registered", n)
	}
}

func TestLinkedWorkersShareTransaction(t *testing.T) {
	f := newFixture(t, unitofwork.ManagerLinked)

	err := f.uow.WithTx(context.Background(), func(ctx context.Context) error {
		return f.service.InsertConcurrent(ctx, InsertConcurrentInput{
			Workers:  3,
			FailOnce: true,
			FailOn:   4,
			Size:     5,
			Linked:   true,
		})
	})
	if !errors.Is(err, ErrInducedFailure) {
		t.Fatalf("InsertConcurrent() error = %v", err)
	}
	if got := f.count(t); got != 0 {
		t.Fatalf("count = %d, want 0", got)
	}

	err = f.uow.WithTx(context.Background(), func(ctx context.Context) error {
		return f.service.InsertConcurrent(ctx, InsertConcurrentInput{
			Workers: 3,
			FailOn:  4,
			Size:    5,
			Linked:  true,
		})
	})
	if err != nil {
		t.Fatalf("InsertConcurrent() error = %v", err)
	}
	// FailOn without FailOnce never fires.
	if got := f.count(t); got != 15 {
		t.Fatalf("count = %d, want 15", got)
	}
	if n := f.manager.(*unitofwork.LinkedManager).Len(); n != 0 {
		t.Fatalf("%d handles left registered", n)
	}
}

func TestLinkedWorkersNeedSharingManager(t *testing.T) {
	f := newFixture(t, unitofwork.ManagerRequest)
	ctx := scope.New(context.Background(), "linked")
	defer func() { _ = f.manager.Clear(ctx) }()

	err := f.service.InsertConcurrent(ctx, InsertConcurrentInput{Workers: 2, Size: 1, Linked: true})
	if !errors.Is(err, ports.ErrUnsupported) {
		t.Fatalf("InsertConcurrent() error = %v", err)
	}
}

func TestInsertConcurrentValidatesInput(t *testing.T) {
	f := newFixture(t, unitofwork.ManagerLinked)
	ctx := scope.New(context.Background(), "validate")

	if err := f.service.InsertConcurrent(ctx, InsertConcurrentInput{Size: 1}); !errors.Is(err, ports.ErrInvalidArgument) {
		t.Fatalf("zero workers error = %v", err)
	}
	if err := f.service.InsertConcurrent(ctx, InsertConcurrentInput{Workers: 1, Size: -2}); !errors.Is(err, ports.ErrInvalidArgument) {
		t.Fatalf("negative size error = %v", err)
	}
}

func TestInsertPairIsAtomicInsideUnitOfWork(t *testing.T) {
	f := newFixture(t, unitofwork.ManagerRequest)

	err := f.uow.WithTx(context.Background(), func(ctx context.Context) error {
		_, err := f.service.InsertPair(ctx, true)
		return err
	})
	if !errors.Is(err, ErrInducedFailure) {
		t.Fatalf("InsertPair(fail) error = %v", err)
	}

	var id int64
	err = f.uow.WithTx(context.Background(), func(ctx context.Context) error {
		var err error
		id, err = f.service.InsertPair(ctx, false)
		return err
	})
	if err != nil || id < 0 {
		t.Fatalf("InsertPair() = (%d, %v)", id, err)
	}

	ctx := scope.New(context.Background(), "check")
	defer func() { _ = f.manager.Clear(ctx) }()
	primary, _ := f.service.app.CountPrimary(ctx)
	secondary, _ := f.service.app.CountSecondary(ctx)
	if primary != 1 || secondary != 1 {
		t.Fatalf("primary = %d, secondary = %d, want 1 each", primary, secondary)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t, unitofwork.ManagerDefault)

	got, err := f.service.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if got != "OK -> 4" {
		t.Fatalf("Health() = %q", got)
	}
}
