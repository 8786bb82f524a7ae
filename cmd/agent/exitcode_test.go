package main

import (
	"context"
	"errors"
	"testing"

	"github.com/codeagent/runtime/internal/result"
)

func TestExitCodeForNil(t *testing.T) {
	if got := exitCodeFor(nil); got != exitSuccess {
		t.Fatalf("exitCodeFor(nil) = %d, want %d", got, exitSuccess)
	}
}

func TestExitCodeForContextErrors(t *testing.T) {
	if got := exitCodeFor(context.DeadlineExceeded); got != exitTimeout {
		t.Fatalf("DeadlineExceeded: got %d, want %d", got, exitTimeout)
	}
	if got := exitCodeFor(context.Canceled); got != exitTimeout {
		t.Fatalf("Canceled: got %d, want %d", got, exitTimeout)
	}
}

func TestExitCodeForResultCategories(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", result.New(result.CategoryValidation, result.CodeValidation, "bad input"), exitValidation},
		{"configuration", result.New(result.CategoryConfiguration, result.CodeValidation, "missing key"), exitConfiguration},
		{"operation timeout code", result.New(result.CategorySystem, result.CodeOperationTimeout, "timed out"), exitTimeout},
		{"cancelled code", result.New(result.CategorySystem, result.CodeCancelled, "cancelled"), exitTimeout},
		{"rate limit blocked", result.New(result.CategorySystem, result.CodeRateLimitBlocked, "blocked"), exitSecurityBlock},
		{"input blocked", result.New(result.CategorySystem, result.CodeInputBlocked, "blocked"), exitSecurityBlock},
		{"unauthorized", result.New(result.CategorySystem, result.CodeUnauthorized, "nope"), exitSecurityBlock},
		{"unknown code", result.New(result.CategorySystem, "SOMETHING_ELSE", "oops"), exitOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCodeFor(tc.err); got != tc.want {
				t.Fatalf("exitCodeFor(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestExitCodeForPlainError(t *testing.T) {
	if got := exitCodeFor(errors.New("boom")); got != exitOther {
		t.Fatalf("plain error: got %d, want %d", got, exitOther)
	}
}
