package unitofwork

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"handlescope/internal/bootstrap/logging"
	"handlescope/internal/errs"
	"handlescope/internal/ports"
)

// MethodKind classifies a data-access method.
type MethodKind int

const (
	MethodQuery MethodKind = iota + 1
	MethodUpdate
	MethodBatch
	MethodCall
)

func (k MethodKind) String() string {
	switch k {
	case MethodQuery:
		return "query"
	case MethodUpdate:
		return "update"
	case MethodBatch:
		return "batch"
	case MethodCall:
		return "call"
	default:
		return fmt.Sprintf("MethodKind(%d)", int(k))
	}
}

// Descriptor declares a data-access interface and its methods.
type Descriptor struct {
	Name    string
	Methods map[string]MethodKind
}

// Validate requires a name and at least one data-access method.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return errs.Wrap(ports.ErrInvalidArgument, "descriptor name is required")
	}
	found := false
	for method, kind := range d.Methods {
		if strings.TrimSpace(method) == "" {
			return errs.Wrapf(ports.ErrInvalidArgument, "%s declares an unnamed method", d.Name)
		}
		if kind >= MethodQuery && kind <= MethodCall {
			found = true
		}
	}
	if !found {
		return errs.Wrapf(ports.ErrInvalidArgument, "%s has no data-access method", d.Name)
	}
	return nil
}

// Factory builds the decorated instance of a registered interface.
type Factory func(manager ports.HandleManager) (any, error)

type registration struct {
	desc    Descriptor
	factory Factory
}

// Registry binds registered data-access interfaces to one handle manager.
type Registry struct {
	manager ports.HandleManager

	mu      sync.RWMutex
	entries map[string]registration
}

func NewRegistry(manager ports.HandleManager) (*Registry, error) {
	if manager == nil {
		return nil, errs.Wrap(ports.ErrInvalidArgument, "handle manager is required")
	}
	return &Registry{manager: manager, entries: make(map[string]registration)}, nil
}

// WithDefault builds a registry over a request scoped manager.
func WithDefault(opener ports.HandleOpener, opts ...Option) (*Registry, error) {
	m, err := NewRequestScopedManager(opener, opts...)
	if err != nil {
		return nil, err
	}
	return NewRegistry(m)
}

// WithLinked builds a registry over a linked manager.
func WithLinked(opener ports.HandleOpener, opts ...Option) (*Registry, error) {
	m, err := NewLinkedManager(opener, opts...)
	if err != nil {
		return nil, err
	}
	return NewRegistry(m)
}

func (r *Registry) Manager() ports.HandleManager {
	return r.manager
}

func (r *Registry) Register(desc Descriptor, factory Factory) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if factory == nil {
		return errs.Wrapf(ports.ErrInvalidArgument, "factory for %s is required", desc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[desc.Name]; ok {
		return errs.Wrapf(ports.ErrInvalidArgument, "%s is already registered", desc.Name)
	}
	r.entries[desc.Name] = registration{desc: desc, factory: factory}
	return nil
}

// Names lists registered interfaces in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Wrap builds the decorated instance registered under name.
func (r *Registry) Wrap(ctx context.Context, name string) (any, error) {
	r.mu.RLock()
	reg, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.Wrapf(ports.ErrInvalidArgument, "%s is not registered", name)
	}

	instance, err := reg.factory(r.manager)
	if err != nil {
		return nil, errs.Wrapf(err, "wrap %s", name)
	}
	logging.Info(
		logging.WithAttrs(ctx, slog.String("component", "unitofwork.registry")),
		"binding data-access interface",
		slog.String("dao", name),
		slog.String("manager", r.manager.Name()),
		slog.Int("methods", len(reg.desc.Methods)),
	)
	return instance, nil
}

// WrapAll builds every registered interface.
func (r *Registry) WrapAll(ctx context.Context) (map[string]any, error) {
	names := r.Names()
	out := make(map[string]any, len(names))
	for _, name := range names {
		instance, err := r.Wrap(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = instance
	}
	return out, nil
}

// Lookup wraps name and asserts the instance implements T.
func Lookup[T any](ctx context.Context, r *Registry, name string) (T, error) {
	var zero T

	instance, err := r.Wrap(ctx, name)
	if err != nil {
		return zero, err
	}
	typed, ok := instance.(T)
	if !ok {
		return zero, errs.Wrapf(ports.ErrInvalidArgument, "%s is %T, not the requested type", name, instance)
	}
	return typed, nil
}
