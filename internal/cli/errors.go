// Package cli provides shared configuration and utilities for the scriptrel CLI.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/pthm/scriptrel"
)

// Exit codes. Each failure class of a run gets its own code so wrappers
// can tell a bad config from a broken script.
const (
	ExitSuccess    = 0
	ExitGeneral    = 1
	ExitConfig     = 2
	ExitFormat     = 3
	ExitDBConnect  = 4
	ExitQuery      = 5
	ExitExecution  = 6
	ExitFilesystem = 7
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitWithError prints the error and exits with the appropriate code.
func ExitWithError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(ExitCode(err))
}

// ExitCode returns the exit code for err: the code of an *ExitError, or the
// code of the first failure class found in the chain.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch {
	case scriptrel.IsConfigurationErr(err):
		return ExitConfig
	case scriptrel.IsConnectionErr(err):
		return ExitDBConnect
	case scriptrel.IsQueryErr(err):
		return ExitQuery
	case scriptrel.IsExecutionErr(err):
		return ExitExecution
	case scriptrel.IsFormatErr(err):
		return ExitFormat
	case scriptrel.IsFilesystemErr(err):
		return ExitFilesystem
	}
	return ExitGeneral
}

// Classify wraps err in an ExitError carrying its exit code.
// Returns nil for a nil error.
func Classify(msg string, err error) error {
	if err == nil {
		return nil
	}
	return &ExitError{Code: ExitCode(err), Message: msg, Err: err}
}

// ConfigError creates an ExitError with ExitConfig code.
func ConfigError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitConfig, Message: msg, Err: err}
}

// DBConnectError creates an ExitError with ExitDBConnect code.
func DBConnectError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitDBConnect, Message: msg, Err: err}
}

// GeneralError creates an ExitError with ExitGeneral code.
func GeneralError(msg string, err error) *ExitError {
	return &ExitError{Code: ExitGeneral, Message: msg, Err: err}
}
