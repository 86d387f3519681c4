package model

import (
	"fmt"
	"time"
)

// ScriptTask is one named external unit of work executed as a child process.
type ScriptTask struct {
	Name        string
	Path        string
	Interpreter string        // optional, e.g. node; empty runs Path directly
	Timeout     time.Duration // zero means no timeout
}

// Argv returns the program and arguments used to start the task.
func (t ScriptTask) Argv() (string, []string) {
	if t.Interpreter == "" {
		return t.Path, nil
	}
	return t.Interpreter, []string{t.Path}
}

func (t ScriptTask) String() string {
	return t.Name
}

// RunResult is the outcome of a single ScriptTask execution.
type RunResult struct {
	Task     ScriptTask
	ExitCode int
	Started  time.Time
	Stopped  time.Time
	Err      error
}

func (r RunResult) Success() bool {
	return r.Err == nil && r.ExitCode == 0
}

func (r RunResult) Duration() time.Duration {
	if r.Started.IsZero() || r.Stopped.IsZero() {
		return 0
	}
	return r.Stopped.Sub(r.Started)
}

// ScriptError is returned for a non-zero exit code as well as for a failure
// to start the process at all. ExitCode is -1 when there is no exit code to
// report (spawn failure, signal, timeout).
type ScriptError struct {
	Task     string
	ExitCode int
	Err      error
}

func (e *ScriptError) Error() string {
	if e.Err != nil && e.ExitCode < 0 {
		return fmt.Sprintf("script %s failed: %v", e.Task, e.Err)
	}
	return fmt.Sprintf("script %s failed (exit code: %d)", e.Task, e.ExitCode)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

func (e *ScriptError) Is(target error) bool {
	return target == ErrScriptFailed
}
