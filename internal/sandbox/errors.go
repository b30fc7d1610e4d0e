package sandbox

import "fmt"

// ErrorKind classifies an EvalError.
type ErrorKind int

const (
	// Thrown covers parse errors, evaluation diagnostics, panics and calls
	// to functions outside the allow-list.
	Thrown ErrorKind = iota
	// Timeout means the evaluation exceeded its deadline.
	Timeout
	// Canceled means the caller's context ended first; the result belongs
	// to an abandoned batch.
	Canceled
)

func (k ErrorKind) String() string {
	switch k {
	case Thrown:
		return "Thrown"
	case Timeout:
		return "Timeout"
	case Canceled:
		return "Canceled"
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// EvalError is a node-local evaluation failure.
type EvalError struct {
	Kind    ErrorKind
	Message string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func thrown(format string, args ...any) *EvalError {
	return &EvalError{Kind: Thrown, Message: fmt.Sprintf(format, args...)}
}
