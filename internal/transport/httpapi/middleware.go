package httpapi

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"handlescope/internal/bootstrap/logging"
	"handlescope/internal/errs"
	"handlescope/internal/lifecycle"
	"handlescope/internal/scope"
)

// unitOfWork opens a scope per request and reports the request lifecycle to
// the listener: MethodStart before the route runs, then ResponseComposing or
// Exception, and Finished last. Route output is held back until
// ResponseComposing succeeds, so a failed commit still answers 500.
func (s *Server) unitOfWork(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pattern := s.mux.Find(chi.NewRouteContext(), r.Method, r.URL.Path)
		ev := lifecycle.Event{
			Method:     r.Method,
			Path:       r.URL.Path,
			Pattern:    pattern,
			UnitOfWork: s.isMarked(r.Method, pattern),
		}

		ctx := scope.New(r.Context(), r.Method+" "+r.URL.Path)
		ctx = logging.WithAttrs(ctx,
			slog.String("request_id", middleware.GetReqID(ctx)),
			scope.Attr(ctx),
		)

		rl := s.listener.OnRequest(ev)
		if rl == nil {
			defer func() {
				if err := s.listener.Release(ctx); err != nil {
					logging.Warn(ctx, "release request handle failed", slog.Any("err", errs.Loggable(err)))
				}
			}()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))
			s.metrics.HTTPRequest(r.Method, pattern, writtenStatus(ww))
			return
		}

		emit := func(typ lifecycle.EventType) error {
			ev.Type = typ
			return rl.OnEvent(ctx, ev)
		}

		status := http.StatusInternalServerError
		defer func() {
			s.metrics.HTTPRequest(r.Method, pattern, status)
		}()
		defer func() {
			if err := emit(lifecycle.Finished); err != nil {
				logging.Warn(ctx, "terminate request handle failed", slog.Any("err", errs.Loggable(err)))
			}
		}()

		if err := emit(lifecycle.MethodStart); err != nil {
			status = writeError(ctx, w, err)
			return
		}

		var body bytes.Buffer
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Discard()
		ww.Tee(&body)

		out := &outcome{}
		completed := false
		defer func() {
			if completed {
				return
			}
			// Panicking: roll back here, Recoverer answers the client.
			if err := emit(lifecycle.Exception); err != nil {
				logging.Warn(ctx, "rollback after panic failed", slog.Any("err", errs.Loggable(err)))
			}
		}()

		next.ServeHTTP(ww, r.WithContext(context.WithValue(ctx, outcomeKey{}, out)))
		completed = true

		if out.err != nil {
			err := errs.Join(out.err, emit(lifecycle.Exception))
			status = writeError(ctx, w, err)
			return
		}
		if err := emit(lifecycle.ResponseComposing); err != nil {
			logging.Error(ctx, "commit failed", slog.Any("err", errs.Loggable(err)))
			status = http.StatusInternalServerError
			writeJSON(w, status, errorResponse{Error: err.Error()})
			return
		}

		status = writtenStatus(ww)
		w.WriteHeader(status)
		if _, err := w.Write(body.Bytes()); err != nil {
			logging.Warn(ctx, "write response failed", slog.Any("err", errs.Loggable(err)))
		}
	})
}

func writtenStatus(ww middleware.WrapResponseWriter) int {
	if ww.Status() == 0 {
		return http.StatusOK
	}
	return ww.Status()
}
