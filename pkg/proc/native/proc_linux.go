//go:build linux && amd64

package native

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"syscall"

	isatty "github.com/mattn/go-isatty"
	sys "golang.org/x/sys/unix"

	"github.com/go-delve/hwbreak/pkg/hwbreak"
	"github.com/go-delve/hwbreak/pkg/logflags"
)

// Process represents a single process stopped under ptrace.
//
// All ptrace requests are executed on one goroutine locked to its OS
// thread, the kernel only accepts requests from the thread that attached.
type Process struct {
	pid int

	ptraceChan     chan func()
	ptraceDoneChan chan interface{}

	childProcess bool // this process was launched, not attached to
	stopped      bool
	exited       bool

	// signal received while continuing that must be delivered to the
	// target on the next resume.
	pendingSignal int

	log logflags.Logger
}

// newProcess returns an initialized Process struct. Before returning,
// it will also launch a goroutine in order to handle ptrace(2)
// functions. For more information, see the documentation on
// `handlePtraceFuncs`.
func newProcess(pid int) *Process {
	dbp := &Process{
		pid:            pid,
		ptraceChan:     make(chan func()),
		ptraceDoneChan: make(chan interface{}),
		log:            logflags.PtraceLogger(),
	}
	go dbp.handlePtraceFuncs()
	return dbp
}

func (dbp *Process) handlePtraceFuncs() {
	// We must ensure here that we are running on the same thread during
	// while invoking the ptrace(2) syscall. This is due to the fact that ptrace(2) expects
	// all commands after PTRACE_ATTACH to come from the same thread.
	runtime.LockOSThread()

	for fn := range dbp.ptraceChan {
		fn()
		dbp.ptraceDoneChan <- nil
	}
	runtime.UnlockOSThread()
}

func (dbp *Process) execPtraceFunc(fn func()) {
	dbp.ptraceChan <- fn
	<-dbp.ptraceDoneChan
}

// Launch starts cmd[0] with arguments cmd[1:] stopped at its first
// instruction after execve. wd is the working directory of the program.
func Launch(cmd []string, wd string) (*Process, error) {
	if len(cmd) == 0 {
		return nil, fmt.Errorf("no program to launch")
	}
	var (
		process *exec.Cmd
		err     error
	)

	foreground := isatty.IsTerminal(os.Stdin.Fd())

	dbp := newProcess(0)
	dbp.execPtraceFunc(func() {
		process = exec.Command(cmd[0])
		process.Args = cmd
		process.Stdin = os.Stdin
		process.Stdout = os.Stdout
		process.Stderr = os.Stderr
		process.SysProcAttr = &syscall.SysProcAttr{
			Ptrace:     true,
			Setpgid:    true,
			Foreground: foreground,
		}
		if wd != "" {
			process.Dir = wd
		}
		err = process.Start()
	})
	if err != nil {
		dbp.postExit()
		return nil, err
	}
	dbp.pid = process.Process.Pid
	dbp.childProcess = true
	state, err := dbp.wait()
	if err != nil {
		_ = dbp.Detach(true)
		return nil, fmt.Errorf("waiting for target execve failed: %s", err)
	}
	if state.Exited {
		return nil, ErrProcessExited{Pid: dbp.pid, Status: state.ExitStatus}
	}
	dbp.log.Debugf("launched %q as pid %d", cmd[0], dbp.pid)
	return dbp, nil
}

// Attach to an existing process with the given PID.
func Attach(pid int) (*Process, error) {
	dbp := newProcess(pid)

	var err error
	dbp.execPtraceFunc(func() { err = ptraceAttach(dbp.pid) })
	if err != nil {
		dbp.postExit()
		return nil, convertPtraceErr("attach", pid, err)
	}
	state, err := dbp.wait()
	if err != nil {
		_ = dbp.Detach(false)
		return nil, err
	}
	if state.Exited {
		return nil, ErrProcessExited{Pid: pid, Status: state.ExitStatus}
	}
	dbp.log.Debugf("attached to pid %d", pid)
	return dbp, nil
}

// Pid returns the process ID.
func (dbp *Process) Pid() int {
	return dbp.pid
}

// Exited reports whether the process has exited or was detached.
func (dbp *Process) Exited() bool {
	return dbp.exited
}

// Detach from the process being debugged, optionally killing it.
func (dbp *Process) Detach(kill bool) error {
	if dbp.exited {
		return nil
	}
	var err error
	dbp.execPtraceFunc(func() {
		if kill {
			err = sys.Kill(dbp.pid, sys.SIGKILL)
			if err == nil {
				var s sys.WaitStatus
				_, err = sys.Wait4(dbp.pid, &s, sys.WALL, nil)
			}
			return
		}
		err = ptraceDetach(dbp.pid, dbp.pendingSignal)
	})
	dbp.postExit()
	if err != nil {
		return convertPtraceErr("detach", dbp.pid, err)
	}
	dbp.log.Debugf("detached from pid %d (launched=%v kill=%v)", dbp.pid, dbp.childProcess, kill)
	return nil
}

func (dbp *Process) postExit() {
	dbp.exited = true
	dbp.stopped = false
	close(dbp.ptraceChan)
	close(dbp.ptraceDoneChan)
}

const (
	dr6HitMask     = 0xf
	dr6SingleStep  = 1 << 14
	dr6StatusClear = dr6HitMask | dr6SingleStep
)

// Continue resumes the process and waits until it is stopped by SIGTRAP
// or exits. Other signals are passed on to the process.
func (dbp *Process) Continue() (*StopState, error) {
	return dbp.resume(false)
}

// Step executes a single instruction with PTRACE_SINGLESTEP.
func (dbp *Process) Step() (*StopState, error) {
	return dbp.resume(true)
}

func (dbp *Process) resume(step bool) (*StopState, error) {
	if dbp.exited {
		return nil, ErrProcessExited{Pid: dbp.pid}
	}
	for {
		sig := dbp.pendingSignal
		dbp.pendingSignal = 0
		var err error
		dbp.execPtraceFunc(func() {
			if step {
				err = ptraceSingleStep(dbp.pid, sig)
			} else {
				err = ptraceCont(dbp.pid, sig)
			}
		})
		if err != nil {
			return nil, convertPtraceErr("resume", dbp.pid, err)
		}
		dbp.stopped = false
		state, err := dbp.wait()
		if err != nil || state.Exited || state.Signal == sys.SIGTRAP {
			return state, err
		}
		dbp.log.Debugf("pid %d received %v, passing it on", dbp.pid, state.Signal)
		dbp.pendingSignal = int(state.Signal)
	}
}

func (dbp *Process) wait() (*StopState, error) {
	var s sys.WaitStatus
	_, err := sys.Wait4(dbp.pid, &s, sys.WALL, nil)
	if err != nil {
		return nil, convertPtraceErr("wait", dbp.pid, err)
	}
	state := &StopState{Pid: dbp.pid}
	switch {
	case s.Exited() || s.Signaled():
		state.Exited = true
		state.ExitStatus = s.ExitStatus()
		if s.Signaled() {
			state.Signal = syscall.Signal(s.Signal())
		}
		dbp.postExit()
		return state, nil
	case s.Stopped():
		dbp.stopped = true
		state.Signal = syscall.Signal(s.StopSignal())
	default:
		return nil, fmt.Errorf("unexpected wait status %#x for pid %d", uint32(s), dbp.pid)
	}

	regs, err := dbp.registers()
	if err != nil {
		return nil, err
	}
	state.PC = regs.PC()

	if state.Signal == sys.SIGTRAP {
		if err := dbp.readDebugStatus(state); err != nil {
			return nil, err
		}
	}
	return state, nil
}

// readDebugStatus reports the hit breakpoint and resets the condition
// bits of DR6, clearing them is the debugger's responsibility.
func (dbp *Process) readDebugStatus(state *StopState) error {
	dr6, err := dbp.ReadDebugRegister(hwbreak.DR6)
	if err != nil {
		return err
	}
	for _, slot := range hwbreak.Slots {
		if dr6&(1<<slot) != 0 {
			state.HWBreakpoint = true
			state.Slot = slot
			break
		}
	}
	state.SingleStep = dr6&dr6SingleStep != 0
	if dr6&dr6StatusClear == 0 {
		return nil
	}
	return dbp.WriteDebugRegister(hwbreak.DR6, dr6&^dr6StatusClear)
}

func (dbp *Process) checkStopped(op string) error {
	if dbp.exited {
		return &PtraceError{Op: op, Pid: dbp.pid, Kind: ErrNoSuchProcess, Err: sys.ESRCH}
	}
	if !dbp.stopped {
		return &PtraceError{Op: op, Pid: dbp.pid, Kind: ErrProcessNotStopped, Err: sys.ESRCH}
	}
	return nil
}
