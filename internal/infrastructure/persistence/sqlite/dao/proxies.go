package dao

import (
	"context"

	"handlescope/internal/ports"
	"handlescope/internal/unitofwork"
)

const (
	CountingName = "CountingDAO"
	AppName      = "AppDAO"
)

var (
	CountingDescriptor = unitofwork.Descriptor{
		Name: CountingName,
		Methods: map[string]unitofwork.MethodKind{
			"Insert": unitofwork.MethodUpdate,
			"Count":  unitofwork.MethodQuery,
			"Clear":  unitofwork.MethodUpdate,
		},
	}
	AppDescriptor = unitofwork.Descriptor{
		Name: AppName,
		Methods: map[string]unitofwork.MethodKind{
			"Dual":            unitofwork.MethodQuery,
			"CreatePrimary":   unitofwork.MethodUpdate,
			"CreateSecondary": unitofwork.MethodUpdate,
			"CountPrimary":    unitofwork.MethodQuery,
			"CountSecondary":  unitofwork.MethodQuery,
		},
	}
)

// Register adds every data-access interface of this package to reg.
func Register(reg *unitofwork.Registry) error {
	if err := reg.Register(CountingDescriptor, func(m ports.HandleManager) (any, error) {
		return NewCountingProxy(m)
	}); err != nil {
		return err
	}
	return reg.Register(AppDescriptor, func(m ports.HandleManager) (any, error) {
		return NewAppProxy(m)
	})
}

func bindCounting(h ports.Handle) (ports.CountingDAO, error) {
	s, err := BindCounting(h)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func bindApp(h ports.Handle) (ports.AppDAO, error) {
	s, err := BindApp(h)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// CountingProxy resolves the caller's handle on every call.
type CountingProxy struct {
	proxy *unitofwork.Proxy[ports.CountingDAO]
}

var _ ports.CountingDAO = (*CountingProxy)(nil)

func NewCountingProxy(m ports.HandleManager) (*CountingProxy, error) {
	p, err := unitofwork.NewProxy(m, CountingName, bindCounting)
	if err != nil {
		return nil, err
	}
	return &CountingProxy{proxy: p}, nil
}

func (p *CountingProxy) String() string { return p.proxy.String() }

func (p *CountingProxy) Insert(ctx context.Context, label string) error {
	return unitofwork.Invoke(ctx, p.proxy, "Insert", func(d ports.CountingDAO) error {
		return d.Insert(ctx, label)
	})
}

func (p *CountingProxy) Count(ctx context.Context) (int64, error) {
	return unitofwork.Query(ctx, p.proxy, "Count", func(d ports.CountingDAO) (int64, error) {
		return d.Count(ctx)
	})
}

func (p *CountingProxy) Clear(ctx context.Context) error {
	return unitofwork.Invoke(ctx, p.proxy, "Clear", func(d ports.CountingDAO) error {
		return d.Clear(ctx)
	})
}

type AppProxy struct {
	proxy *unitofwork.Proxy[ports.AppDAO]
}

var _ ports.AppDAO = (*AppProxy)(nil)

func NewAppProxy(m ports.HandleManager) (*AppProxy, error) {
	p, err := unitofwork.NewProxy(m, AppName, bindApp)
	if err != nil {
		return nil, err
	}
	return &AppProxy{proxy: p}, nil
}

func (p *AppProxy) String() string { return p.proxy.String() }

func (p *AppProxy) Dual(ctx context.Context) (int64, error) {
	return unitofwork.Query(ctx, p.proxy, "Dual", func(d ports.AppDAO) (int64, error) {
		return d.Dual(ctx)
	})
}

func (p *AppProxy) CreatePrimary(ctx context.Context, id int64, val string) error {
	return unitofwork.Invoke(ctx, p.proxy, "CreatePrimary", func(d ports.AppDAO) error {
		return d.CreatePrimary(ctx, id, val)
	})
}

func (p *AppProxy) CreateSecondary(ctx context.Context, id int64, val string) error {
	return unitofwork.Invoke(ctx, p.proxy, "CreateSecondary", func(d ports.AppDAO) error {
		return d.CreateSecondary(ctx, id, val)
	})
}

func (p *AppProxy) CountPrimary(ctx context.Context) (int64, error) {
	return unitofwork.Query(ctx, p.proxy, "CountPrimary", func(d ports.AppDAO) (int64, error) {
		return d.CountPrimary(ctx)
	})
}

func (p *AppProxy) CountSecondary(ctx context.Context) (int64, error) {
	return unitofwork.Query(ctx, p.proxy, "CountSecondary", func(d ports.AppDAO) (int64, error) {
		return d.CountSecondary(ctx)
	})
}
