package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"handlescope/internal/lifecycle"
	"handlescope/internal/scope"
	"handlescope/internal/usecase/counting"
)

type recordingListener struct {
	mu       sync.Mutex
	events   []lifecycle.Event
	failOn   lifecycle.EventType
	excluded bool
	releases int
}

func (l *recordingListener) OnRequest(lifecycle.Event) lifecycle.RequestListener {
	if l.excluded {
		return nil
	}
	return l
}

func (l *recordingListener) OnEvent(ctx context.Context, ev lifecycle.Event) error {
	if _, ok := scope.From(ctx); !ok {
		return errors.New("event without scope")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
	if ev.Type == l.failOn {
		return errors.New("commit refused")
	}
	return nil
}

func (l *recordingListener) Release(ctx context.Context) error {
	if _, ok := scope.From(ctx); !ok {
		return errors.New("release without scope")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.releases++
	return nil
}

func (l *recordingListener) types() []lifecycle.EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]lifecycle.EventType, 0, len(l.events))
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

type stubService struct {
	insertErr error
	panicMsg  string
}

func (s *stubService) Count(context.Context) (int64, error) { return 7, nil }

func (s *stubService) Insert(context.Context, int, int) error {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	return s.insertErr
}

func (s *stubService) InsertConcurrent(context.Context, counting.InsertConcurrentInput) error {
	return nil
}

func (s *stubService) InsertPair(context.Context, bool) (int64, error) { return 1, nil }
func (s *stubService) Health(context.Context) (string, error)          { return "OK -> 4", nil }

func newStubServer(t *testing.T, svc *stubService, l *recordingListener) http.Handler {
	t.Helper()
	srv, err := NewServer(svc, l, nil)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv.Handler()
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(method, target, strings.NewReader(body)))
	return resp
}

func equalTypes(got []lifecycle.EventType, want ...lifecycle.EventType) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestEventsForSuccessfulRequest(t *testing.T) {
	l := &recordingListener{}
	h := newStubServer(t, &stubService{}, l)

	resp := serve(h, http.MethodPost, "/insert/unitofwork", "3")
	if resp.Code != http.StatusNoContent {
		t.Fatalf("status = %d", resp.Code)
	}
	got := l.types()
	if !equalTypes(got, lifecycle.MethodStart, lifecycle.ResponseComposing, lifecycle.Finished) {
		t.Fatalf("events = %v", got)
	}
	ev := l.events[0]
	if ev.Pattern != "/insert/unitofwork" || !ev.UnitOfWork || ev.Method != http.MethodPost {
		t.Fatalf("event = %+v", ev)
	}
}

func TestUnmarkedRouteIsNotUnitOfWork(t *testing.T) {
	l := &recordingListener{}
	h := newStubServer(t, &stubService{}, l)

	_ = serve(h, http.MethodPost, "/insert", "3")
	if l.events[0].UnitOfWork {
		t.Fatalf("POST /insert reported as unit of work")
	}

	l.events = nil
	resp := serve(h, http.MethodPost, "/nowhere", "")
	if resp.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.Code)
	}
	if ev := l.events[0]; ev.Pattern != "" || ev.UnitOfWork {
		t.Fatalf("unmatched event = %+v", ev)
	}
}

func TestRouteErrorSignalsException(t *testing.T) {
	l := &recordingListener{}
	h := newStubServer(t, &stubService{insertErr: counting.ErrInducedFailure}, l)

	resp := serve(h, http.MethodPost, "/insert/unitofwork", "3")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.Code)
	}
	got := l.types()
	if !equalTypes(got, lifecycle.MethodStart, lifecycle.Exception, lifecycle.Finished) {
		t.Fatalf("events = %v", got)
	}
}

func TestCommitFailureAnswers500(t *testing.T) {
	l := &recordingListener{failOn: lifecycle.ResponseComposing}
	h := newStubServer(t, &stubService{}, l)

	resp := serve(h, http.MethodGet, "/count", "")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "commit refused") {
		t.Fatalf("body = %s", resp.Body.String())
	}
	// The route's own 200 body never reached the client.
	if strings.Contains(resp.Body.String(), "7") {
		t.Fatalf("route output leaked: %s", resp.Body.String())
	}
}

func TestStartFailureStillFinishes(t *testing.T) {
	l := &recordingListener{failOn: lifecycle.MethodStart}
	svc := &stubService{panicMsg: "must not run"}
	h := newStubServer(t, svc, l)

	resp := serve(h, http.MethodPost, "/insert/unitofwork", "3")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.Code)
	}
	if got := l.types(); !equalTypes(got, lifecycle.MethodStart, lifecycle.Finished) {
		t.Fatalf("events = %v", got)
	}
}

func TestPanicRollsBackAndRecovers(t *testing.T) {
	l := &recordingListener{}
	h := newStubServer(t, &stubService{panicMsg: "boom"}, l)

	resp := serve(h, http.MethodPost, "/insert/unitofwork", "3")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.Code)
	}
	if got := l.types(); !equalTypes(got, lifecycle.MethodStart, lifecycle.Exception, lifecycle.Finished) {
		t.Fatalf("events = %v", got)
	}
}

func TestExcludedRequestBypassesListener(t *testing.T) {
	l := &recordingListener{excluded: true}
	h := newStubServer(t, &stubService{insertErr: errors.New("nope")}, l)

	resp := serve(h, http.MethodPost, "/insert", "3")
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.Code)
	}
	if len(l.types()) != 0 {
		t.Fatalf("events recorded for excluded request")
	}
	if l.releases != 1 {
		t.Fatalf("releases = %d, want 1", l.releases)
	}
}

func TestNewServerValidates(t *testing.T) {
	if _, err := NewServer(nil, &recordingListener{}, nil); err == nil {
		t.Fatalf("NewServer(nil service) succeeded")
	}
	if _, err := NewServer(&stubService{}, nil, nil); err == nil {
		t.Fatalf("NewServer(nil listener) succeeded")
	}
}
