package driver

import (
	"errors"
	"testing"

	"github.com/achilleasa/go-atomtrace/preprocess"
	"github.com/achilleasa/go-atomtrace/traverse"
)

func TestWrapPreprocessErrorClassifiesEachSentinel(t *testing.T) {
	cases := []struct {
		err      error
		wantKind Kind
	}{
		{preprocess.ErrCapacityExceededAtoms, CapacityExceeded},
		{preprocess.ErrCapacityExceededReferences, CapacityExceeded},
		{preprocess.ErrEmptyWorld, EmptyWorld},
	}
	for _, c := range cases {
		got := wrapPreprocessError(c.err)
		if got.Kind != c.wantKind {
			t.Fatalf("wrapPreprocessError(%v).Kind = %v, want %v", c.err, got.Kind, c.wantKind)
		}
		if !errors.Is(got, c.err) {
			t.Fatalf("expected the wrapped error to satisfy errors.Is against %v", c.err)
		}
	}
}

func TestWrapPreprocessErrorResourceMatchesTheSpecificCap(t *testing.T) {
	if got := wrapPreprocessError(preprocess.ErrCapacityExceededAtoms); got.Resource != ResourceAtoms {
		t.Fatalf("expected ResourceAtoms, got %v", got.Resource)
	}
	if got := wrapPreprocessError(preprocess.ErrCapacityExceededReferences); got.Resource != ResourceReferences {
		t.Fatalf("expected ResourceReferences, got %v", got.Resource)
	}
}

func TestWrapBackendErrorClassifiesFaultErrorAsTraversalFault(t *testing.T) {
	faultErr := &traverse.FaultError{Code: traverse.FaultOuterPrimary}
	got := wrapBackendError(faultErr)
	if got.Kind != TraversalFault {
		t.Fatalf("expected Kind TraversalFault, got %v", got.Kind)
	}
	if got.Code != traverse.FaultOuterPrimary {
		t.Fatalf("expected Code FaultOuterPrimary, got %v", got.Code)
	}
}

func TestWrapBackendErrorClassifiesAnythingElseAsBackendError(t *testing.T) {
	got := wrapBackendError(errors.New("kernel dispatch failed"))
	if got.Kind != BackendError {
		t.Fatalf("expected Kind BackendError, got %v", got.Kind)
	}
}

func TestDriverErrorOnlyCapacityExceededCarriesAdvice(t *testing.T) {
	for _, k := range []Kind{EmptyWorld, BVHIncomplete, TraversalFault, BackendError} {
		e := &DriverError{Kind: k, Cause: errors.New("x")}
		if e.Advice() != "" {
			t.Fatalf("expected Kind %v to carry no advice, got %q", k, e.Advice())
		}
	}
	e := &DriverError{Kind: CapacityExceeded, Resource: ResourceReferences, Cause: errors.New("x")}
	if e.Advice() == "" {
		t.Fatalf("expected CapacityExceeded to carry advice")
	}
}

func TestDriverErrorUnwrapReturnsCause(t *testing.T) {
	cause := errors.New("underlying failure")
	e := &DriverError{Kind: BackendError, Cause: cause}
	if errors.Unwrap(e) != cause {
		t.Fatalf("expected Unwrap to return the cause")
	}
}

func TestKindStringIsStable(t *testing.T) {
	cases := map[Kind]string{
		CapacityExceeded: "capacity_exceeded",
		EmptyWorld:        "empty_world",
		BVHIncomplete:     "bvh_incomplete",
		TraversalFault:    "traversal_fault",
		BackendError:      "backend_error",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
