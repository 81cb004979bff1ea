package loading

import (
	"errors"
	"time"
)

// ErrorKind categorizes why a quest file could not be loaded
type ErrorKind string

const (
	KindRead         ErrorKind = "read"
	KindDecode       ErrorKind = "decode"
	KindCompile      ErrorKind = "compile"
	KindRuntime      ErrorKind = "runtime"
	KindTimeout      ErrorKind = "timeout"
	KindEntryPoint   ErrorKind = "entry_point"
	KindInvalidQuest ErrorKind = "invalid_quest"
)

// LoadError describes a quest file that could not be turned into a quest.
type LoadError struct {
	Kind      ErrorKind
	Format    string
	Path      string
	Message   string
	Cause     error
	Timestamp time.Time
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.Path != "" {
		msg = e.Path + ": " + msg
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// NewLoadError creates a new LoadError with the given parameters
func NewLoadError(kind ErrorKind, format, path, message string, cause error) *LoadError {
	return &LoadError{
		Kind:      kind,
		Format:    format,
		Path:      path,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// AsLoadError converts err into a LoadError, wrapping it as a runtime
// failure when it is not one already.
func AsLoadError(err error, format, path string) *LoadError {
	var le *LoadError
	if errors.As(err, &le) {
		if le.Path == "" {
			le.Path = path
		}
		if le.Format == "" {
			le.Format = format
		}
		return le
	}
	return NewLoadError(KindRuntime, format, path, "quest could not be loaded", err)
}

// KindOf returns the kind of a LoadError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}
