package native

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSuchProcess means the target does not exist anymore.
	ErrNoSuchProcess = errors.New("no such process")
	// ErrProcessNotStopped means the target exists but is not in a
	// ptrace-stop, so its registers can not be accessed.
	ErrProcessNotStopped = errors.New("process not stopped")
	// ErrPermissionDenied means the caller is not allowed to trace or
	// modify the target.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidRegister means the kernel refused a register access.
	ErrInvalidRegister = errors.New("invalid register")
	// ErrIO is any other failure of a ptrace request.
	ErrIO = errors.New("ptrace i/o error")

	// ErrUnsupportedPlatform is returned by Launch and Attach on anything
	// but linux/amd64.
	ErrUnsupportedPlatform = errors.New("hardware breakpoints are only supported on linux/amd64")
)

// PtraceError is returned by every failed ptrace request. It matches one
// of the sentinel errors of this package with errors.Is and unwraps to the
// errno returned by the kernel.
type PtraceError struct {
	Op   string
	Pid  int
	Kind error
	Err  error
}

func (e *PtraceError) Error() string {
	return fmt.Sprintf("%s %d: %v (%v)", e.Op, e.Pid, e.Kind, e.Err)
}

func (e *PtraceError) Is(target error) bool {
	return target == e.Kind
}

func (e *PtraceError) Unwrap() error {
	return e.Err
}

// ErrProcessExited indicates that the process has exited and contains both
// process id and exit status.
type ErrProcessExited struct {
	Pid    int
	Status int
}

func (pe ErrProcessExited) Error() string {
	return fmt.Sprintf("Process %d has exited with status %d", pe.Pid, pe.Status)
}

func (pe ErrProcessExited) Is(target error) bool {
	return target == ErrNoSuchProcess
}
