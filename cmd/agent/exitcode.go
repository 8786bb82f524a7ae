package main

import (
	"context"
	"errors"

	"github.com/codeagent/runtime/internal/result"
)

// Exit codes per spec.md §6.
const (
	exitSuccess       = 0
	exitOther         = 1
	exitValidation    = 2
	exitConfiguration = 3
	exitTimeout       = 4
	exitSecurityBlock = 5
)

// exitCodeFor maps a returned error onto spec.md §6's exit code table.
// A plain context.DeadlineExceeded/Canceled (never wrapped into a
// *result.Error, e.g. a CLI-level timeout) is treated the same as the
// dispatcher's own CANCELLED/OPERATION_TIMEOUT codes.
func exitCodeFor(err error) int {
	if err == nil {
		return exitSuccess
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return exitTimeout
	}
	rerr, ok := result.As(err)
	if !ok {
		return exitOther
	}
	switch rerr.Category {
	case result.CategoryValidation:
		return exitValidation
	case result.CategoryConfiguration:
		return exitConfiguration
	}
	switch rerr.Code {
	case result.CodeOperationTimeout, result.CodeCancelled:
		return exitTimeout
	case result.CodeRateLimitBlocked, result.CodeRateLimitExceed, result.CodeInputBlocked, result.CodeOutputBlocked, result.CodeUnauthorized:
		return exitSecurityBlock
	default:
		return exitOther
	}
}
