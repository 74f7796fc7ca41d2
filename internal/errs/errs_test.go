package errs

import (
	"errors"
	"net/http"
	"testing"
)

func TestJoinKeepsPrimaryMatchable(t *testing.T) {
	primary := errors.New("commit failed")
	cleanup := errors.New("rollback failed")

	err := Join(primary, nil, cleanup)
	if !errors.Is(err, primary) {
		t.Fatalf("Join() lost primary error: %v", err)
	}
	if !errors.Is(err, cleanup) {
		t.Fatalf("Join() lost cleanup error: %v", err)
	}

	if got := Join(primary, nil); got != primary {
		t.Fatalf("Join(primary, nil) = %v, want primary unchanged", got)
	}
	if got := Join(nil, nil); got != nil {
		t.Fatalf("Join(nil, nil) = %v, want nil", got)
	}
}

func TestStatusDefaultsToInternalServerError(t *testing.T) {
	if got := Status(errors.New("boom")); got != http.StatusInternalServerError {
		t.Fatalf("Status() = %d, want 500", got)
	}

	err := Wrap(WithStatus(errors.New("bad input"), http.StatusBadRequest), "parse body")
	if got := Status(err); got != http.StatusBadRequest {
		t.Fatalf("Status(wrapped) = %d, want 400", got)
	}
}

func TestErrorChainStringsWalksJoinedBranches(t *testing.T) {
	err := Wrap(Join(errors.New("a"), errors.New("b")), "outer")

	chain := ErrorChainStrings(err)
	if len(chain) != 4 {
		t.Fatalf("ErrorChainStrings() = %v, want 4 entries", chain)
	}
	if chain[2] != "a" || chain[3] != "b" {
		t.Fatalf("ErrorChainStrings() branches = %v", chain[2:])
	}
}
