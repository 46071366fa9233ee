package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		name        string
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{name: "not found", code: codes.NotFound, notFound: true},
		{name: "already exists", code: codes.AlreadyExists, conflict: true},
		{name: "aborted", code: codes.Aborted, conflict: true},
		{name: "unavailable", code: codes.Unavailable, unavailable: true},
		{name: "permission denied", code: codes.PermissionDenied},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := WrapError("partners.get", status.Error(tc.code, "boom"))
			var repoErr *Error
			if !errors.As(err, &repoErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
				t.Fatalf("unexpected classification %+v", repoErr)
			}
		})
	}
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	if err := WrapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.DeadlineExceeded, "slow")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if WrapError("op", nil) != nil {
		t.Fatalf("expected nil passthrough")
	}
}

func TestNotFoundAndConflictHelpers(t *testing.T) {
	var repoErr *Error
	if err := NotFound("evaluations.latest", "no evaluations"); !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found error, got %v", err)
	}
	if err := Conflict("accounts.transition", "stale status"); !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if got := NotFound("partners.get", "missing").Error(); got != "partners.get: missing" {
		t.Fatalf("unexpected message %q", got)
	}
}
