package unitofwork

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"handlescope/internal/ports"
)

type fakeHandle struct {
	id string

	mu          sync.Mutex
	inTx        bool
	closed      bool
	beginErr    error
	commitErr   error
	rollbackErr error
	closeErr    error
	begins      int
	commits     int
	rollbacks   int
	closes      int
}

func (h *fakeHandle) ID() string { return h.id }

func (h *fakeHandle) Begin(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.begins++
	if h.beginErr != nil {
		return h.beginErr
	}
	h.inTx = true
	return nil
}

func (h *fakeHandle) Commit(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commits++
	if h.commitErr != nil {
		return h.commitErr
	}
	h.inTx = false
	return nil
}

func (h *fakeHandle) Rollback(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rollbacks++
	h.inTx = false
	return h.rollbackErr
}

func (h *fakeHandle) Close(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closes++
	h.closed = true
	return h.closeErr
}

func (h *fakeHandle) InTransaction() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inTx
}

func (h *fakeHandle) IsolationLevel() sql.IsolationLevel { return sql.LevelDefault }

func (h *fakeHandle) counts() (begins, commits, rollbacks, closes int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.begins, h.commits, h.rollbacks, h.closes
}

type fakeOpener struct {
	mu      sync.Mutex
	opened  []*fakeHandle
	openErr error
}

func (o *fakeOpener) Open(context.Context) (ports.Handle, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.openErr != nil {
		return nil, o.openErr
	}
	h := &fakeHandle{id: fmt.Sprintf("h%d", len(o.opened)+1)}
	o.opened = append(o.opened, h)
	return h, nil
}

func (o *fakeOpener) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.opened)
}

func (o *fakeOpener) closed() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, h := range o.opened {
		if _, _, _, closes := h.counts(); closes > 0 {
			n++
		}
	}
	return n
}

// recordingManager hands out one fixed handle and counts calls.
type recordingManager struct {
	mu       sync.Mutex
	handle   ports.Handle
	getErr   error
	clearErr error
	gets     int
	clears   int
}

func (m *recordingManager) Name() string { return "recording" }

func (m *recordingManager) Get(context.Context) (ports.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.handle, nil
}

func (m *recordingManager) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clears++
	return m.clearErr
}

func (m *recordingManager) NewWorkerFactory(context.Context, string) (ports.WorkerFactory, error) {
	return nil, ports.ErrUnsupported
}

func (m *recordingManager) calls() (gets, clears int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets, m.clears
}
