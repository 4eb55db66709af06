package tasks

import "fmt"

// ErrorKind classifies a typed store error so callers (and the control
// plane's HTTP mapping) can branch without string matching.
type ErrorKind string

const (
	ErrKindCycle            ErrorKind = "DEPENDENCY_CYCLE"
	ErrKindInvalidPhase     ErrorKind = "INVALID_PHASE"
	ErrKindInvalidPriority  ErrorKind = "INVALID_PRIORITY"
	ErrKindInvalidTier      ErrorKind = "INVALID_TIER"
	ErrKindInvalidStatus    ErrorKind = "INVALID_STATUS"
	ErrKindUnknownDependency ErrorKind = "UNKNOWN_DEPENDENCY"
	ErrKindNotFound         ErrorKind = "TASK_NOT_FOUND"
	ErrKindAlreadyCompleted ErrorKind = "ALREADY_COMPLETED"
	ErrKindCorruptStore     ErrorKind = "CORRUPT_STORE"
	ErrKindLocked           ErrorKind = "STORE_LOCKED"
)

// Error is a typed store error carrying a Kind for programmatic branching.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("tasks: %s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	te, ok := err.(*Error)
	return ok && te.Kind == kind
}
