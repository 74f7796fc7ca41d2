// Package handle adapts a gorm connection pool to ports.Handle.
//
// A Handle borrows a dedicated connection only while a transaction is open.
// Outside a transaction its sessions run on the shared pool in autocommit
// mode, so a handle that is never closed holds no connection.
package handle

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"handlescope/internal/errs"
	"handlescope/internal/ports"
)

type Handle struct {
	id        string
	root      *gorm.DB
	sqlDB     *sql.DB
	isolation sql.IsolationLevel

	mu      sync.Mutex
	tx      *sql.Tx
	session *gorm.DB
	closed  bool
}

var _ ports.Handle = (*Handle)(nil)

func (h *Handle) ID() string { return h.id }

func (h *Handle) IsolationLevel() sql.IsolationLevel { return h.isolation }

func (h *Handle) InTransaction() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tx != nil
}

// DB returns a gorm session bound to the open transaction, or to the pool
// when none is open.
func (h *Handle) DB(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, fmt.Errorf("%w: %s", ports.ErrHandleClosed, h.id)
	}
	if h.session != nil {
		return h.session.WithContext(ctx), nil
	}
	return h.root.WithContext(ctx), nil
}

func (h *Handle) Begin(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return fmt.Errorf("%w: %s", ports.ErrHandleClosed, h.id)
	}
	if h.tx != nil {
		return fmt.Errorf("%w: %s", ports.ErrInTransaction, h.id)
	}

	// The transaction ends on Commit or Rollback, not when ctx is done.
	tx, err := h.sqlDB.BeginTx(context.WithoutCancel(ctx), &sql.TxOptions{Isolation: h.isolation})
	if err != nil {
		return errs.Wrap(err, "begin sql transaction")
	}

	session := h.root.Session(&gorm.Session{Context: ctx, NewDB: true})
	session.Statement.ConnPool = tx

	h.tx = tx
	h.session = session
	return nil
}

func (h *Handle) Commit(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.tx == nil {
		return fmt.Errorf("%w: %s", ports.ErrNotInTransaction, h.id)
	}

	// database/sql finishes the transaction whether or not commit succeeds.
	tx := h.tx
	h.tx, h.session = nil, nil
	if err := tx.Commit(); err != nil {
		return errs.Wrap(err, "commit sql transaction")
	}
	return nil
}

// Rollback undoes the open transaction. Without one it does nothing.
func (h *Handle) Rollback(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rollbackLocked()
}

// Close rolls back a transaction left open and retires the handle. The pool
// stays open; it belongs to the Opener.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	return h.rollbackLocked()
}

func (h *Handle) rollbackLocked() error {
	if h.tx == nil {
		return nil
	}
	tx := h.tx
	h.tx, h.session = nil, nil
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return errs.Wrap(err, "rollback sql transaction")
	}
	return nil
}

// ParseIsolation maps configuration names such as "read_committed" or
// "serializable" to sql isolation levels. Empty means the driver default.
func ParseIsolation(name string) (sql.IsolationLevel, error) {
	normalized := strings.NewReplacer("-", " ", "_", " ").Replace(strings.ToLower(strings.TrimSpace(name)))
	switch normalized {
	case "", "default":
		return sql.LevelDefault, nil
	case "read uncommitted":
		return sql.LevelReadUncommitted, nil
	case "read committed":
		return sql.LevelReadCommitted, nil
	case "write committed":
		return sql.LevelWriteCommitted, nil
	case "repeatable read":
		return sql.LevelRepeatableRead, nil
	case "snapshot":
		return sql.LevelSnapshot, nil
	case "serializable":
		return sql.LevelSerializable, nil
	case "linearizable":
		return sql.LevelLinearizable, nil
	default:
		return sql.LevelDefault, errs.Wrapf(ports.ErrInvalidArgument, "unknown isolation level %q", name)
	}
}

type OpenerOption func(*Opener)

func WithIsolation(level sql.IsolationLevel) OpenerOption {
	return func(o *Opener) {
		o.isolation = level
	}
}

// Opener creates handles over one gorm pool.
type Opener struct {
	db        *gorm.DB
	sqlDB     *sql.DB
	isolation sql.IsolationLevel
}

var _ ports.HandleOpener = (*Opener)(nil)

func NewOpener(db *gorm.DB, opts ...OpenerOption) (*Opener, error) {
	if db == nil {
		return nil, errs.Wrap(ports.ErrInvalidArgument, "gorm db is required")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, errs.Wrap(err, "get sql db")
	}

	o := &Opener{db: db, sqlDB: sqlDB}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o, nil
}

func (o *Opener) Open(ctx context.Context) (ports.Handle, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}
	return &Handle{
		id:        uuid.NewString(),
		root:      o.db,
		sqlDB:     o.sqlDB,
		isolation: o.isolation,
	}, nil
}

// Session is implemented by handles that can serve gorm sessions.
type Session interface {
	DB(ctx context.Context) (*gorm.DB, error)
}

// DB returns the gorm session of h, which must come from an Opener.
func DB(ctx context.Context, h ports.Handle) (*gorm.DB, error) {
	s, ok := h.(Session)
	if !ok {
		return nil, errs.Wrapf(ports.ErrInvalidArgument, "handle %T cannot serve gorm sessions", h)
	}
	return s.DB(ctx)
}
