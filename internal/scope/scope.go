// Package scope carries the identity of a unit of work through
// context.Context.
//
// An owner scope stands for one unit of work (usually one request). A
// dependent scope belongs to a worker started on behalf of an owner; it keeps
// its own key but names the owner as its conversation, which lets a linked
// handle manager hand the worker the owner's handle.
package scope

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Key identifies a scope. Keys are random and never reused.
type Key string

type Scope struct {
	Key          Key
	Conversation Key
	Name         string
}

// Dependent reports whether the scope was started on behalf of an owner.
func (s Scope) Dependent() bool {
	return s.Conversation != ""
}

// Owner returns the key whose handle this scope resolves to.
func (s Scope) Owner() Key {
	if s.Dependent() {
		return s.Conversation
	}
	return s.Key
}

func (s Scope) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("key", string(s.Key))}
	if s.Dependent() {
		attrs = append(attrs, slog.String("conversation", string(s.Conversation)))
	}
	if s.Name != "" {
		attrs = append(attrs, slog.String("name", s.Name))
	}
	return slog.GroupValue(attrs...)
}

type ctxKey struct{}

func NewKey() Key {
	return Key(uuid.NewString())
}

// New returns a child context carrying a fresh owner scope. Any scope already
// present in ctx is shadowed.
func New(ctx context.Context, name string) context.Context {
	return With(ctx, Scope{Key: NewKey(), Name: name})
}

// Ensure returns ctx unchanged when it already carries a scope, otherwise a
// child with a fresh owner scope. The bool reports whether a scope was created.
func Ensure(ctx context.Context, name string) (context.Context, bool) {
	if _, ok := From(ctx); ok {
		return ctx, false
	}
	return New(ctx, name), true
}

// Link returns a child context carrying a dependent scope of conversation.
func Link(ctx context.Context, conversation Key, name string) context.Context {
	return With(ctx, Scope{Key: NewKey(), Conversation: conversation, Name: name})
}

func With(ctx context.Context, s Scope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, s)
}

func From(ctx context.Context) (Scope, bool) {
	if ctx == nil {
		return Scope{}, false
	}
	s, ok := ctx.Value(ctxKey{}).(Scope)
	return s, ok && s.Key != ""
}

// Attr renders the scope of ctx for structured logs.
func Attr(ctx context.Context) slog.Attr {
	s, ok := From(ctx)
	if !ok {
		return slog.String("scope", "none")
	}
	return slog.Any("scope", s)
}
