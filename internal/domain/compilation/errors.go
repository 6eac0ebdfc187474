package compilation

import (
	"fmt"
	"strings"
)

// Error codes for compilation failures.
const (
	ErrCodeAnalysisFailed = "ANALYSIS_FAILED"
	ErrCodeCompileFailed  = "COMPILE_FAILED"
	ErrCodeOptimizeFailed = "OPTIMIZE_FAILED"
	ErrCodeConfiguration  = "CONFIGURATION"
)

// Sentinels for errors.Is checks by code.
var (
	ErrAnalysis      = &Error{Code: ErrCodeAnalysisFailed}
	ErrCompilation   = &Error{Code: ErrCodeCompileFailed}
	ErrOptimization  = &Error{Code: ErrCodeOptimizeFailed}
	ErrConfiguration = &Error{Code: ErrCodeConfiguration}
)

// Error is a compilation failure with an actionable suggestion.
type Error struct {
	Code       string // Error code for categorization
	Message    string // User-friendly error message
	Output     string // Output artifact the compilation was producing
	Block      string // Block that failed, if any
	Suggestion string // Actionable suggestion to fix the error
	Underlying error  // Wrapped error for error chain
}

// Error returns the formatted error message.
func (e *Error) Error() string {
	var parts []string
	if e.Output != "" {
		parts = append(parts, e.Output)
	}
	if e.Block != "" {
		parts = append(parts, fmt.Sprintf("block %q", e.Block))
	}
	msg := e.Message
	if e.Underlying != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Underlying)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("%s: %s", strings.Join(parts, ", "), msg)
	}
	return msg
}

// Unwrap returns the underlying error for error chain support.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is supports errors.Is() for comparing error codes.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Format returns a fully formatted error with all details.
func (e *Error) Format() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Output != "" {
		fmt.Fprintf(&b, "\n  Output: %s", e.Output)
	}
	if e.Block != "" {
		fmt.Fprintf(&b, "\n  Block: %s", e.Block)
	}
	if e.Suggestion != "" {
		fmt.Fprintf(&b, "\n  Suggestion: %s", e.Suggestion)
	}
	if e.Underlying != nil {
		fmt.Fprintf(&b, "\n  Cause: %s", e.Underlying.Error())
	}
	return b.String()
}

// NewAnalysisError creates an error for a failed analysis pass.
func NewAnalysisError(output string, err error) *Error {
	return &Error{
		Code:       ErrCodeAnalysisFailed,
		Message:    "analysis failed",
		Output:     output,
		Suggestion: "Check that every imported block file exists and parses, and that templates only use declared block classes.",
		Underlying: err,
	}
}

// NewCompileError creates an error for a block that failed to compile.
func NewCompileError(output, block string, err error) *Error {
	return &Error{
		Code:       ErrCodeCompileFailed,
		Message:    "block failed to compile",
		Output:     output,
		Block:      block,
		Suggestion: "Fix the block's stylesheet; no output is written until every block compiles.",
		Underlying: err,
	}
}

// NewOptimizeError creates an error for a rejected optimizer input.
func NewOptimizeError(output string, err error) *Error {
	return &Error{
		Code:       ErrCodeOptimizeFailed,
		Message:    "optimization failed",
		Output:     output,
		Suggestion: "Try disabling individual optimization passes to find the one that fails.",
		Underlying: err,
	}
}

// NewConfigurationError creates an error for host integration misuse.
func NewConfigurationError(output, message string) *Error {
	return &Error{
		Code:       ErrCodeConfiguration,
		Message:    message,
		Output:     output,
		Suggestion: "Retrieve the pending compilation once per module, after the build has started.",
	}
}
