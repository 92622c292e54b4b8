package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pthm/scriptrel"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain", errors.New("boom"), ExitGeneral},
		{"config", fmt.Errorf("load: %w", scriptrel.ErrConfiguration), ExitConfig},
		{"format", fmt.Errorf("name: %w", scriptrel.ErrFormat), ExitFormat},
		{"connection", fmt.Errorf("dial: %w", scriptrel.ErrConnection), ExitDBConnect},
		{"query", fmt.Errorf("control: %w", scriptrel.ErrQuery), ExitQuery},
		{"execution", fmt.Errorf("0006.0.GJO.sql: %w", scriptrel.ErrExecution), ExitExecution},
		{"filesystem", fmt.Errorf("backup: %w", scriptrel.ErrFilesystem), ExitFilesystem},
		{"explicit", &ExitError{Code: 42, Message: "x"}, 42},
		{"joined uses class precedence", errors.Join(
			fmt.Errorf("gestor: %w", scriptrel.ErrExecution),
			fmt.Errorf("supervisor: %w", scriptrel.ErrConnection),
		), ExitDBConnect},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify("release", nil))

	err := Classify("release failed", fmt.Errorf("x: %w", scriptrel.ErrQuery))
	var exitErr *ExitError
	assert.ErrorAs(t, err, &exitErr)
	assert.Equal(t, ExitQuery, exitErr.Code)
	assert.Contains(t, err.Error(), "release failed: x: ")
	assert.True(t, scriptrel.IsQueryErr(err))
}

func TestExitError_NoCause(t *testing.T) {
	err := ConfigError("author.initials is required", nil)
	assert.Equal(t, "author.initials is required", err.Error())
	assert.Equal(t, ExitConfig, err.Code)
}
