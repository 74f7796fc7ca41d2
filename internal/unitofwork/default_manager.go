package unitofwork

import (
	"context"
	"log/slog"

	"handlescope/internal/bootstrap/logging"
	"handlescope/internal/errs"
	"handlescope/internal/metrics"
	"handlescope/internal/ports"
)

// DefaultManager opens a fresh handle for every Get and keeps nothing.
// Suited to single data-access calls and tests.
type DefaultManager struct {
	opener  ports.HandleOpener
	metrics *metrics.Metrics
}

func NewDefaultManager(opener ports.HandleOpener, opts ...Option) (*DefaultManager, error) {
	if err := validateOpener(opener); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &DefaultManager{opener: opener, metrics: o.metrics}, nil
}

func (m *DefaultManager) Name() string { return ManagerDefault }

func (m *DefaultManager) Get(ctx context.Context) (ports.Handle, error) {
	h, err := openHandle(ctx, m.opener, m.metrics, ManagerDefault)
	if err != nil {
		return nil, err
	}
	logging.Debug(managerCtx(ctx, ManagerDefault), "opened handle", slog.String("handle_id", h.ID()))
	return h, nil
}

func (m *DefaultManager) Clear(ctx context.Context) error {
	logging.Debug(managerCtx(ctx, ManagerDefault), "no handle to clear")
	return nil
}

func (m *DefaultManager) NewWorkerFactory(context.Context, string) (ports.WorkerFactory, error) {
	return nil, errs.Wrap(ports.ErrUnsupported, "default manager cannot share handles with workers")
}
