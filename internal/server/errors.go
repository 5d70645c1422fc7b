package server

import "fmt"

// ErrorKind classifies a query failure. The harness asserts on message text
// only; kinds exist for logging and for the wire surface.
type ErrorKind string

const (
	// KindParse marks statements the engine could not parse.
	KindParse ErrorKind = "parse_error"
	// KindSemantic marks references to objects that do not exist.
	KindSemantic ErrorKind = "semantic_error"
	// KindRuntime marks failures during execution.
	KindRuntime ErrorKind = "runtime_error"
	// KindSession marks invalid or expired session tokens.
	KindSession ErrorKind = "session_error"
)

// QueryError is the structured failure the query surface reports. Message
// is the exact human-readable text tests assert against.
type QueryError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *QueryError) Error() string {
	return e.Message
}

func parseError(format string, args ...any) *QueryError {
	return &QueryError{Kind: KindParse, Message: fmt.Sprintf(format, args...)}
}

func semanticError(format string, args ...any) *QueryError {
	return &QueryError{Kind: KindSemantic, Message: fmt.Sprintf(format, args...)}
}

func runtimeError(format string, args ...any) *QueryError {
	return &QueryError{Kind: KindRuntime, Message: fmt.Sprintf(format, args...)}
}

// errSessionNotValid is the exact message reported for unknown or expired
// session tokens.
func sessionError() *QueryError {
	return &QueryError{Kind: KindSession, Message: "Session not valid."}
}
