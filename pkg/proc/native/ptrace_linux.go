//go:build linux && amd64

package native

import (
	"syscall"
	"unsafe"

	sys "golang.org/x/sys/unix"
)

// debugRegUserOffset is offsetof(struct user, u_debugreg), see
// arch/x86/kernel/ptrace.c
const debugRegUserOffset = 848

func debugRegOffset(n int) uintptr {
	return uintptr(debugRegUserOffset + n*int(unsafe.Sizeof(uint64(0))))
}

// ptraceAttach executes the sys.PtraceAttach call.
func ptraceAttach(pid int) error {
	return sys.PtraceAttach(pid)
}

// ptraceDetach calls ptrace(PTRACE_DETACH).
func ptraceDetach(tid, sig int) error {
	_, _, err := sys.Syscall6(sys.SYS_PTRACE, sys.PTRACE_DETACH, uintptr(tid), 1, uintptr(sig), 0, 0)
	if err != syscall.Errno(0) {
		return err
	}
	return nil
}

// ptraceCont executes ptrace PTRACE_CONT
func ptraceCont(tid, sig int) error {
	return sys.PtraceCont(tid, sig)
}

// ptraceSingleStep executes ptrace PTRACE_SINGLESTEP
func ptraceSingleStep(pid, sig int) error {
	_, _, e1 := sys.Syscall6(sys.SYS_PTRACE, uintptr(sys.PTRACE_SINGLESTEP), uintptr(pid), uintptr(0), uintptr(sig), 0, 0)
	if e1 != 0 {
		return e1
	}
	return nil
}

// ptracePeekUser reads the n-th debug register from the user area.
func ptracePeekUser(tid, n int) (uint64, error) {
	var val uint64
	_, _, err := sys.Syscall6(sys.SYS_PTRACE, sys.PTRACE_PEEKUSR, uintptr(tid), debugRegOffset(n), uintptr(unsafe.Pointer(&val)), 0, 0)
	if err != syscall.Errno(0) {
		return 0, err
	}
	return val, nil
}

// ptracePokeUser writes the n-th debug register in the user area.
func ptracePokeUser(tid, n int, val uint64) error {
	_, _, err := sys.Syscall6(sys.SYS_PTRACE, sys.PTRACE_POKEUSR, uintptr(tid), debugRegOffset(n), uintptr(val), 0, 0)
	if err != syscall.Errno(0) {
		return err
	}
	return nil
}

// convertPtraceErr classifies the errno returned by a ptrace request.
// The kernel returns ESRCH both for a missing process and for a process
// that is not in a ptrace-stop, kill(pid, 0) tells them apart.
func convertPtraceErr(op string, pid int, err error) error {
	if err == nil {
		return nil
	}
	kind := ErrIO
	switch err {
	case sys.ESRCH:
		kind = ErrProcessNotStopped
		if sys.Kill(pid, 0) == sys.ESRCH {
			kind = ErrNoSuchProcess
		}
	case sys.EPERM, sys.EACCES:
		kind = ErrPermissionDenied
	case sys.EIO, sys.EINVAL:
		kind = ErrInvalidRegister
	}
	return &PtraceError{Op: op, Pid: pid, Kind: kind, Err: err}
}
