package main

import (
	"errors"
	"fmt"
	"os"

	"ytup/internal/auth"
	"ytup/internal/retry"
	"ytup/internal/youtube"
)

// Exit codes, stable for scripting.
const (
	exitOK = iota
	exitGeneric
	exitAuth
	exitRetriesExhausted
	exitRejected
	exitLocalIO
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to its exit code by class: credential problems,
// spent retry budgets, service rejections, and local file errors each get
// their own code so wrapping scripts can branch on the outcome.
func exitCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidGrant),
		errors.Is(err, auth.ErrNoGrant),
		errors.Is(err, auth.ErrInteractiveDisallowed),
		errors.Is(err, auth.ErrFlowCanceled),
		errors.Is(err, youtube.ErrUnauthorized),
		errors.Is(err, youtube.ErrNotLoggedIn):
		return exitAuth

	case retry.IsExhausted(err):
		return exitRetriesExhausted

	case errors.Is(err, youtube.ErrBadRequest),
		errors.Is(err, youtube.ErrForbidden),
		errors.Is(err, youtube.ErrNotFound),
		errors.Is(err, youtube.ErrConflict):
		return exitRejected

	case errors.Is(err, os.ErrNotExist), errors.Is(err, os.ErrPermission):
		return exitLocalIO

	default:
		return exitGeneric
	}
}
