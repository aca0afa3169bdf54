package core

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when a package, version or manifest does not exist.
var ErrNotFound = errors.New("not found")

// ErrIndeterminate is returned when a registry lookup could not reach a verdict.
var ErrIndeterminate = errors.New("registry check indeterminate")

// NotFoundError wraps ErrNotFound with additional context.
type NotFoundError struct {
	Name    string
	Version string
}

func (e *NotFoundError) Error() string {
	if e.Version != "" {
		return fmt.Sprintf("npm: package %s version %s not found", e.Name, e.Version)
	}
	return fmt.Sprintf("npm: package %s not found", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// CommandError describes a failed external command invocation.
type CommandError struct {
	Command  string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s: exit %d", e.Command, strings.Join(e.Args, " "), e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + firstLine(s)
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
