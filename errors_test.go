package scriptrel_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pthm/scriptrel"
)

func TestErrorHelpers(t *testing.T) {
	helpers := []struct {
		name     string
		sentinel error
		is       func(error) bool
	}{
		{"IsConfigurationErr", scriptrel.ErrConfiguration, scriptrel.IsConfigurationErr},
		{"IsConnectionErr", scriptrel.ErrConnection, scriptrel.IsConnectionErr},
		{"IsQueryErr", scriptrel.ErrQuery, scriptrel.IsQueryErr},
		{"IsExecutionErr", scriptrel.ErrExecution, scriptrel.IsExecutionErr},
		{"IsFormatErr", scriptrel.ErrFormat, scriptrel.IsFormatErr},
		{"IsFilesystemErr", scriptrel.ErrFilesystem, scriptrel.IsFilesystemErr},
	}

	for _, h := range helpers {
		t.Run(h.name, func(t *testing.T) {
			err := fmt.Errorf("Gestor/TEST: %w", h.sentinel)
			if !h.is(err) {
				t.Errorf("%s should return true for wrapped sentinel", h.name)
			}
			if h.is(errors.New("other error")) {
				t.Errorf("%s should return false for other errors", h.name)
			}
			if h.is(nil) {
				t.Errorf("%s should return false for nil", h.name)
			}
		})
	}
}

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		err     error
		wantMsg string
	}{
		{scriptrel.ErrConfiguration, "scriptrel: invalid configuration"},
		{scriptrel.ErrConnection, "scriptrel: database connection failed"},
		{scriptrel.ErrQuery, "scriptrel: control query failed"},
		{scriptrel.ErrExecution, "scriptrel: script execution failed"},
		{scriptrel.ErrFormat, "scriptrel: malformed script name"},
		{scriptrel.ErrFilesystem, "scriptrel: filesystem operation failed"},
	}

	for _, tt := range tests {
		if tt.err.Error() != tt.wantMsg {
			t.Errorf("error message = %q, want %q", tt.err.Error(), tt.wantMsg)
		}
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	all := []error{
		scriptrel.ErrConfiguration,
		scriptrel.ErrConnection,
		scriptrel.ErrQuery,
		scriptrel.ErrExecution,
		scriptrel.ErrFormat,
		scriptrel.ErrFilesystem,
	}
	for i, a := range all {
		for j, b := range all {
			if i != j && errors.Is(a, b) {
				t.Errorf("%v should not match %v", a, b)
			}
		}
	}
}
