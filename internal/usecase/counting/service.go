// Package counting holds the request-level operations of the counting
// application. They only talk to data-access proxies; transaction boundaries
// come from whoever drives the scope in ctx.
package counting

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"handlescope/internal/bootstrap/logging"
	"handlescope/internal/errs"
	"handlescope/internal/ports"
	"handlescope/internal/scope"
)

// ErrInducedFailure is the failure requested by callers through failOn or
// fail flags.
var ErrInducedFailure = errors.New("expected failure during insertion")

// NoFailure disables induced failures for Insert.
const NoFailure = -1

type Service struct {
	counting ports.CountingDAO
	app      ports.AppDAO
	manager  ports.HandleManager
}

func NewService(counting ports.CountingDAO, app ports.AppDAO, manager ports.HandleManager) *Service {
	return &Service{
		counting: counting,
		app:      app,
		manager:  manager,
	}
}

type InsertConcurrentInput struct {
	Workers int
	// FailOnce hands FailOn to exactly one worker; the others insert every row.
	FailOnce bool
	FailOn   int
	Size     int
	// Linked starts workers from the manager's worker factory so they share
	// the caller's handle. Otherwise every worker runs in its own scope.
	Linked bool
}

func (s *Service) Count(ctx context.Context) (int64, error) {
	if s.counting == nil {
		return 0, errors.New("counting dao is required")
	}
	return s.counting.Count(ctx)
}

// Insert writes labels "1".."size" in order and stops with ErrInducedFailure
// when it reaches failOn. Rows written before the failure stay unless the
// caller's transaction rolls back.
func (s *Service) Insert(ctx context.Context, size, failOn int) error {
	if s.counting == nil {
		return errors.New("counting dao is required")
	}
	if size < 0 {
		return errs.Wrapf(ports.ErrInvalidArgument, "size must not be negative, got %d", size)
	}
	for i := 1; i <= size; i++ {
		if i == failOn {
			logging.Debug(ctx, "inducing insert failure", slog.Int("at", i))
			return errs.Wrapf(ErrInducedFailure, "insert %d of %d", i, size)
		}
		if err := s.counting.Insert(ctx, strconv.Itoa(i)); err != nil {
			return err
		}
	}
	return nil
}

// InsertConcurrent runs Insert on input.Workers goroutines released together
// and reports the first worker error after all of them finish.
func (s *Service) InsertConcurrent(ctx context.Context, input InsertConcurrentInput) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if s.manager == nil {
		return errors.New("handle manager is required")
	}
	if input.Workers <= 0 {
		return errs.Wrapf(ports.ErrInvalidArgument, "workers must be positive, got %d", input.Workers)
	}
	if input.Size < 0 {
		return errs.Wrapf(ports.ErrInvalidArgument, "size must not be negative, got %d", input.Size)
	}

	var failPending atomic.Bool
	failPending.Store(input.FailOnce)
	failOnFor := func() int {
		if failPending.CompareAndSwap(true, false) {
			return input.FailOn
		}
		return NoFailure
	}

	start := make(chan struct{})

	if input.Linked {
		// Workers read the owner's handle, so the owner must hold one first.
		if _, err := s.manager.Get(ctx); err != nil {
			return err
		}
		factory, err := s.manager.NewWorkerFactory(ctx, "insert")
		if err != nil {
			return err
		}
		for i := 0; i < input.Workers; i++ {
			factory.Go(func(workerCtx context.Context) error {
				<-start
				return s.Insert(workerCtx, input.Size, failOnFor())
			})
		}
		close(start)
		return factory.Wait()
	}

	var group errgroup.Group
	for i := 0; i < input.Workers; i++ {
		workerCtx := scope.New(ctx, "insert-worker-"+strconv.Itoa(i+1))
		group.Go(func() (err error) {
			defer func() {
				err = errs.Join(err, s.manager.Clear(workerCtx))
			}()
			<-start
			return s.Insert(workerCtx, input.Size, failOnFor())
		})
	}
	close(start)
	return group.Wait()
}

// InsertPair writes one row to each table of the pair under a random id and
// fails between the two writes when fail is set.
func (s *Service) InsertPair(ctx context.Context, fail bool) (int64, error) {
	if s.app == nil {
		return 0, errors.New("app dao is required")
	}
	id := rand.Int64N(1 << 53)
	val := strconv.FormatInt(id, 10)
	if err := s.app.CreatePrimary(ctx, id, val); err != nil {
		return 0, err
	}
	if fail {
		return 0, errs.Wrapf(ErrInducedFailure, "pair %d", id)
	}
	if err := s.app.CreateSecondary(ctx, id, val); err != nil {
		return 0, err
	}
	return id, nil
}

// Health runs a trivial query through the app dao.
func (s *Service) Health(ctx context.Context) (string, error) {
	if s.app == nil {
		return "", errors.New("app dao is required")
	}
	n, err := s.app.Dual(ctx)
	if err != nil {
		return "", err
	}
	return "OK -> " + strconv.FormatInt(n, 10), nil
}
