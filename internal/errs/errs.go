package errs

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// Wrap adds context and keeps the chain usable with errors.Is/As.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf is Wrap with a format string.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	args = append(args, err)
	return fmt.Errorf(format+": %w", args...)
}

// Join combines a primary failure with cleanup failures. The primary error
// stays first so callers matching on it keep working.
func Join(primary error, cleanup ...error) error {
	if primary == nil {
		return errors.Join(cleanup...)
	}

	all := make([]error, 0, len(cleanup)+1)
	all = append(all, primary)
	for _, err := range cleanup {
		if err != nil {
			all = append(all, err)
		}
	}
	if len(all) == 1 {
		return primary
	}
	return errors.Join(all...)
}

// WithStack captures a stack trace once, at the root cause.
func WithStack(err error) error {
	if err == nil {
		return nil
	}

	var se *StackError
	if errors.As(err, &se) {
		return err
	}

	return &StackError{
		err:   err,
		stack: debug.Stack(),
	}
}

// StackError wraps an error and stores a stack trace.
type StackError struct {
	err   error
	stack []byte
}

func (e *StackError) Error() string { return e.err.Error() }
func (e *StackError) Unwrap() error { return e.err }
func (e *StackError) Stack() []byte { return e.stack }

// StatusError attaches an HTTP status to an error chain.
type StatusError struct {
	err    error
	status int
}

func (e *StatusError) Error() string { return e.err.Error() }
func (e *StatusError) Unwrap() error { return e.err }
func (e *StatusError) Status() int   { return e.status }

// WithStatus marks err so the transport layer answers with status.
func WithStatus(err error, status int) error {
	if err == nil {
		return nil
	}
	return &StatusError{err: err, status: status}
}

// Status returns the first status found in the chain, or 500.
func Status(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.status
	}
	return http.StatusInternalServerError
}

type loggable struct{ err error }

// Loggable makes slog encode the error as structured fields.
// Usage: slog.Any("err", errs.Loggable(err))
func Loggable(err error) slog.LogValuer { return loggable{err: err} }

func (l loggable) LogValue() slog.Value {
	if l.err == nil {
		return slog.GroupValue()
	}

	attrs := []slog.Attr{
		slog.String("message", l.err.Error()),
		slog.Any("chain", ErrorChainStrings(l.err)),
	}

	var se *StackError
	if errors.As(l.err, &se) {
		attrs = append(attrs, slog.String("stack", string(se.Stack())))
	}

	return slog.GroupValue(attrs...)
}

// ErrorChainStrings returns the unwrap chain as strings (outer -> inner).
// Joined errors contribute each branch in order.
func ErrorChainStrings(err error) []string {
	if err == nil {
		return nil
	}

	out := make([]string, 0, 8)
	var walk func(e error)
	walk = func(e error) {
		for e != nil {
			out = append(out, e.Error())
			if joined, ok := e.(interface{ Unwrap() []error }); ok {
				for _, branch := range joined.Unwrap() {
					walk(branch)
				}
				return
			}
			e = errors.Unwrap(e)
		}
	}
	walk(err)
	return out
}
