// Package exit carries the message, stream and process status a command
// terminates with.
package exit

import (
	"fmt"
	"io"
	"os"
)

// Exit codes.
const (
	CodeOK         = 0
	CodeError      = 1
	CodeLoadErrors = 2
)

// Result holds the output destination and exit code for program termination.
type Result struct {
	Output   io.Writer
	ExitCode int
	Message  string
}

// Print writes the result message to the configured output destination.
func (r *Result) Print() {
	fmt.Fprint(r.Output, r.Message)
}

// Success creates a successful exit result that outputs to stdout with exit code 0.
func Success(message string) *Result {
	return &Result{
		Output:   os.Stdout,
		ExitCode: CodeOK,
		Message:  message,
	}
}

// Error creates an error exit result that outputs to stderr with exit code 1.
func Error(message string) *Result {
	return &Result{
		Output:   os.Stderr,
		ExitCode: CodeError,
		Message:  message,
	}
}

// Errorf creates an error exit result with formatted message.
func Errorf(format string, a ...any) *Result {
	return Error(fmt.Sprintf(format, a...))
}

// LoadErrors reports a form that loaded with errors. The model was still
// usable, so the message lists what went wrong without aborting output.
func LoadErrors(errs []string) *Result {
	var message string
	for _, err := range errs {
		message += "load error: " + err + "\n"
	}
	return &Result{
		Output:   os.Stderr,
		ExitCode: CodeLoadErrors,
		Message:  message,
	}
}
