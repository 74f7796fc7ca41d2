package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"handlescope/internal/errs"
	"handlescope/internal/ports"
	"handlescope/internal/usecase/counting"
)

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) error {
	n, err := s.svc.Count(r.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, n)
	return nil
}

// handleInsert reads the row count from the body and an optional failOn
// query parameter.
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) error {
	size, err := decodeSize(r)
	if err != nil {
		return err
	}
	failOn, err := queryInt(r, "failOn", counting.NoFailure)
	if err != nil {
		return err
	}
	if err := s.svc.Insert(r.Context(), size, failOn); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (s *Server) handleInsertConcurrent(linked bool) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) error {
		size, err := decodeSize(r)
		if err != nil {
			return err
		}
		workers, err := queryInt(r, "numThreads", 1)
		if err != nil {
			return err
		}
		failOn, err := queryInt(r, "failOn", counting.NoFailure)
		if err != nil {
			return err
		}
		failOnce, err := queryBool(r, "failOnce")
		if err != nil {
			return err
		}

		err = s.svc.InsertConcurrent(r.Context(), counting.InsertConcurrentInput{
			Workers:  workers,
			FailOnce: failOnce,
			FailOn:   failOn,
			Size:     size,
			Linked:   linked,
		})
		if err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) error {
	msg, err := s.svc.Health(r.Context())
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(msg))
	return nil
}

func (s *Server) handleAtomic(w http.ResponseWriter, r *http.Request) error {
	fail, err := queryBool(r, "fail")
	if err != nil {
		return err
	}
	if _, err := s.svc.InsertPair(r.Context(), fail); err != nil {
		return err
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func decodeSize(r *http.Request) (int, error) {
	var size int
	if err := json.NewDecoder(r.Body).Decode(&size); err != nil {
		return 0, errs.Wrapf(ports.ErrInvalidArgument, "body must be a row count: %v", err)
	}
	return size, nil
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errs.Wrapf(ports.ErrInvalidArgument, "query %s must be an integer, got %q", name, raw)
	}
	return v, nil
}

func queryBool(r *http.Request, name string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errs.Wrapf(ports.ErrInvalidArgument, "query %s must be a boolean, got %q", name, raw)
	}
	return v, nil
}
