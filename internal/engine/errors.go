package engine

import (
	"errors"
	"fmt"
)

// ErrPermission is the sentinel every PermissionError unwraps to.
var ErrPermission = errors.New("permission denied")

// ErrBootstrapUnsupported means the dialect cannot create a database over a connection.
var ErrBootstrapUnsupported = errors.New("database creation not supported by dialect")

// ExecutionError reports the statement that halted a merge. Earlier statements stay applied.
type ExecutionError struct {
	Command string
	Action  string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: failed to execute %q: %v", e.Action, e.Command, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// PermissionError is returned instead of ExecutionError when the server refused a
// statement for lack of privileges.
type PermissionError struct {
	Command string
	Action  string
	Err     error
}

func (e *PermissionError) Error() string {
	if e.Action == "" {
		return fmt.Sprintf("insufficient privileges to execute %q: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s: insufficient privileges to execute %q: %v", e.Action, e.Command, e.Err)
}

func (e *PermissionError) Unwrap() []error {
	return []error{ErrPermission, e.Err}
}

// BootstrapError means the target database could not be created or never became reachable.
type BootstrapError struct {
	Database string
	Attempts int
	Err      error
}

func (e *BootstrapError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("database %q not reachable after %d attempts: %v", e.Database, e.Attempts, e.Err)
	}
	return fmt.Sprintf("failed to create database %q: %v", e.Database, e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}
