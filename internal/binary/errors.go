package binary

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNotInitialized is returned by Execute before Initialize succeeds.
	ErrNotInitialized = errors.New("ast-grep binary manager is not initialized: call Initialize first")
	// ErrTimeout marks executions that were killed on timeout.
	ErrTimeout = errors.New("execution timed out")
	// ErrNotFound marks executions whose binary is missing or not executable.
	ErrNotFound = errors.New("executable not found")
	// ErrNonZeroExit marks executions that ran but exited unsuccessfully.
	ErrNonZeroExit = errors.New("process exited with non-zero status")
	// ErrOutputLimit marks executions whose output exceeded the buffer cap.
	ErrOutputLimit = errors.New("process output exceeded buffer limit")
	// ErrVersionMismatch marks candidates older than the required version.
	ErrVersionMismatch = errors.New("version lower than required")
)

// ExecKind classifies an execution failure.
type ExecKind string

const (
	ExecTimeout     ExecKind = "timeout"
	ExecNotFound    ExecKind = "not-found"
	ExecNonZeroExit ExecKind = "non-zero-exit"
	ExecOutputLimit ExecKind = "output-limit"
	ExecFailed      ExecKind = "failed"
)

// ExecError describes a failed execution.
type ExecError struct {
	Kind     ExecKind
	Path     string
	Args     []string
	ExitCode int
	Timeout  time.Duration
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ExecError) Error() string {
	switch e.Kind {
	case ExecTimeout:
		return fmt.Sprintf("%s timed out after %s", e.Path, e.Timeout)
	case ExecNotFound:
		return fmt.Sprintf("%s is not executable (was it removed after initialization?): %v", e.Path, e.Err)
	case ExecNonZeroExit:
		msg := fmt.Sprintf("%s exited with code %d", e.Path, e.ExitCode)
		if s := strings.TrimSpace(e.Stderr); s != "" {
			msg += "\nstderr: " + s
		}
		if s := strings.TrimSpace(e.Stdout); s != "" {
			msg += "\nstdout: " + s
		}
		return msg
	case ExecOutputLimit:
		return fmt.Sprintf("%s produced more than %d bytes of output", e.Path, MaxOutputBytes)
	default:
		return fmt.Sprintf("run %s: %v", e.Path, e.Err)
	}
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel that corresponds to the error kind.
func (e *ExecError) Is(target error) bool {
	switch e.Kind {
	case ExecTimeout:
		return target == ErrTimeout
	case ExecNotFound:
		return target == ErrNotFound
	case ExecNonZeroExit:
		return target == ErrNonZeroExit
	case ExecOutputLimit:
		return target == ErrOutputLimit
	}
	return false
}

// VersionMismatchError reports a candidate older than the required minimum.
type VersionMismatchError struct {
	Path     string
	Found    string
	Required string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("%s reports version %s, but %s or newer is required", e.Path, e.Found, e.Required)
}

func (e *VersionMismatchError) Unwrap() error {
	return ErrVersionMismatch
}

// DownloadError is returned after every download attempt failed.
type DownloadError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// ExtractionError is returned when no extraction strategy produced the
// executable.
type ExtractionError struct {
	Archive  string
	Failures []error
}

func (e *ExtractionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "extract %s: all extraction strategies failed", e.Archive)
	for _, f := range e.Failures {
		b.WriteString("\n  - ")
		b.WriteString(f.Error())
	}
	return b.String()
}

func (e *ExtractionError) Unwrap() []error {
	return e.Failures
}

// StrategyFailure records why one resolution strategy or candidate failed.
type StrategyFailure struct {
	Strategy Strategy
	Detail   string
	Err      error
}

// ResolutionError is returned when no strategy produced a usable binary.
type ResolutionError struct {
	Failures    []StrategyFailure
	Remediation []string
}

func (e *ResolutionError) Error() string {
	var b strings.Builder
	b.WriteString("could not find a usable ast-grep binary")
	if len(e.Failures) > 0 {
		b.WriteString("; tried:")
		for _, f := range e.Failures {
			fmt.Fprintf(&b, "\n  - %s", f.Strategy)
			if f.Detail != "" {
				fmt.Fprintf(&b, " (%s)", f.Detail)
			}
			fmt.Fprintf(&b, ": %v", f.Err)
		}
	}
	if len(e.Remediation) > 0 {
		b.WriteString("\nto fix this, either:")
		for _, r := range e.Remediation {
			b.WriteString("\n  * ")
			b.WriteString(r)
		}
	}
	return b.String()
}

func (e *ResolutionError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
