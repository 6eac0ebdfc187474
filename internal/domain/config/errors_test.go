package config

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserError_Error(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      *UserError
		expected string
	}{
		{
			name:     "simple message",
			err:      &UserError{Code: ErrCodeConfigNotFound, Message: "config file not found"},
			expected: "config file not found",
		},
		{
			name: "message with context",
			err: &UserError{
				Code:    ErrCodeConfigNotFound,
				Message: "config file not found",
				Context: "blockforge.yaml",
			},
			expected: "config file not found (at blockforge.yaml)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestUserError_Format(t *testing.T) {
	t.Parallel()

	err := NewConfigParseError("blockforge.toml", "TOML", errors.New("expected '='"))
	formatted := err.Format()

	assert.Contains(t, formatted, "[CONFIG_PARSE] failed to parse TOML configuration")
	assert.Contains(t, formatted, "Location: blockforge.toml")
	assert.Contains(t, formatted, "Suggestion: Check the TOML syntax")
	assert.Contains(t, formatted, "Cause: expected '='")
}

func TestUserError_IsAndUnwrap(t *testing.T) {
	t.Parallel()

	underlying := errors.New("boom")
	err := &UserError{Code: ErrCodeConfigParse, Underlying: underlying}

	assert.ErrorIs(t, err, underlying)
	assert.ErrorIs(t, err, &UserError{Code: ErrCodeConfigParse})
	assert.NotErrorIs(t, err, &UserError{Code: ErrCodeConfigNotFound})

	wrapped := fmt.Errorf("load: %w", err)
	assert.True(t, IsUserError(wrapped, ErrCodeConfigParse))
	assert.False(t, IsUserError(wrapped, ErrCodeEnvFile))
	require.NotNil(t, GetUserError(wrapped))
	assert.Nil(t, GetUserError(underlying))
}

func TestErrorList(t *testing.T) {
	t.Parallel()

	list := NewErrorList()
	assert.NoError(t, list.AsError())
	assert.Empty(t, list.Error())

	list.AddValidation("outputDir", "must not be empty", "set outputDir")
	assert.Equal(t, "outputDir: must not be empty (at outputDir)", list.Error())

	list.Add(nil)
	list.Add(NewUnsupportedFormatError("x.json"))
	assert.Equal(t, 2, list.Len())
	assert.Contains(t, list.Error(), "2 errors occurred")
	assert.Contains(t, list.Format(), "--- Error 2 ---")
	assert.ErrorIs(t, list.AsError(), &UserError{Code: ErrCodeUnsupported})
	assert.Len(t, list.Errors(), 2)
}

func TestNewYAMLParseError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     string
		message string
		context string
	}{
		{
			name:    "indentation",
			err:     "yaml: line 4: did not find expected key",
			message: "missing required field or incorrect indentation",
			context: "blockforge.yaml (line 4)",
		},
		{
			name:    "list for map",
			err:     "yaml: unmarshal errors: cannot unmarshal !!seq into map",
			message: "expected an object but found a list",
			context: "blockforge.yaml",
		},
		{
			name:    "unknown",
			err:     "something odd",
			message: "invalid YAML syntax",
			context: "blockforge.yaml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := NewYAMLParseError("blockforge.yaml", errors.New(tt.err))
			assert.Equal(t, tt.message, err.Message)
			assert.Equal(t, tt.context, err.Context)
			assert.Equal(t, ErrCodeConfigParse, err.Code)
		})
	}
}
