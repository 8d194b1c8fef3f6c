package native

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/go-delve/hwbreak/pkg/hwbreak"
	"github.com/go-delve/hwbreak/pkg/logflags"
)

// launchTrue starts /bin/true stopped after execve. The test is skipped if
// the environment does not allow ptrace.
func launchTrue(t *testing.T) *Process {
	t.Helper()
	path, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true not found")
	}
	p, err := Launch([]string{path}, "")
	if err != nil {
		t.Skipf("could not launch traced process: %v", err)
	}
	t.Cleanup(func() { p.Detach(true) })
	return p
}

func currentPC(t *testing.T, p *Process) uint64 {
	t.Helper()
	regs, err := p.registers()
	if err != nil {
		t.Fatal(err)
	}
	return regs.PC()
}

func TestSetClearBreakpointRegisters(t *testing.T) {
	p := launchTrue(t)
	tr := hwbreak.New(p)
	pc := currentPC(t, p)

	if err := tr.SetBreakpoint(hwbreak.Slot2, pc); err != nil {
		t.Fatal(err)
	}
	dr2, err := p.ReadDebugRegister(hwbreak.DR2)
	if err != nil {
		t.Fatal(err)
	}
	if dr2 != pc {
		t.Fatalf("DR2 = %#x, expected %#x", dr2, pc)
	}
	// Linux rebuilds DR7 from the registered breakpoints, the reserved
	// bit is not reported back.
	dr7, err := p.ReadDebugRegister(hwbreak.DR7)
	if err != nil {
		t.Fatal(err)
	}
	if dr7&0x55 != hwbreak.Slot2.EnableMask() {
		t.Fatalf("DR7 = %#x, expected only slot2 enabled", dr7)
	}

	if err := tr.ClearBreakpoint(hwbreak.Slot2); err != nil {
		t.Fatal(err)
	}
	dr2, _ = p.ReadDebugRegister(hwbreak.DR2)
	dr7, _ = p.ReadDebugRegister(hwbreak.DR7)
	if dr2 != 0 || dr7&0x55 != 0 {
		t.Fatalf("after clear DR2 = %#x DR7 = %#x", dr2, dr7)
	}
}

func TestHardwareBreakpointHit(t *testing.T) {
	p := launchTrue(t)
	tr := hwbreak.New(p)
	pc := currentPC(t, p)

	if err := tr.SetBreakpoint(hwbreak.Slot1, pc); err != nil {
		t.Fatal(err)
	}
	state, err := p.Continue()
	if err != nil {
		t.Fatal(err)
	}
	if !state.HWBreakpoint || state.Slot != hwbreak.Slot1 || state.PC != pc {
		t.Fatalf("unexpected stop: %v", state)
	}

	if err := tr.ClearBreakpoint(hwbreak.Slot1); err != nil {
		t.Fatal(err)
	}
	if err := tr.SetDebugFlag(hwbreak.Resume, true); err != nil {
		t.Fatal(err)
	}
	state, err = p.Continue()
	if err != nil {
		t.Fatal(err)
	}
	if !state.Exited || state.ExitStatus != 0 {
		t.Fatalf("expected clean exit, got %v", state)
	}
}

func TestTrapFlagSingleStep(t *testing.T) {
	p := launchTrue(t)
	tr := hwbreak.New(p)
	pc := currentPC(t, p)

	if err := tr.SetDebugFlag(hwbreak.Trap, true); err != nil {
		t.Fatal(err)
	}
	regs, err := p.Registers()
	if err != nil {
		t.Fatal(err)
	}
	if regs.Flags()&hwbreak.Trap.Mask() == 0 {
		t.Fatalf("trap flag not set, flags = %#x", regs.Flags())
	}

	state, err := p.Continue()
	if err != nil {
		t.Fatal(err)
	}
	if state.Exited || state.Signal != syscall.SIGTRAP {
		t.Fatalf("unexpected stop: %v", state)
	}
	if state.PC == pc {
		t.Fatalf("pc did not move after single step")
	}

	if err := tr.SetDebugFlag(hwbreak.Trap, false); err != nil {
		t.Fatal(err)
	}
	regs, _ = p.Registers()
	if regs.Flags()&hwbreak.Trap.Mask() != 0 {
		t.Fatalf("trap flag still set, flags = %#x", regs.Flags())
	}
}

func TestStepInstruction(t *testing.T) {
	p := launchTrue(t)
	pc := currentPC(t, p)
	state, err := p.Step()
	if err != nil {
		t.Fatal(err)
	}
	if state.Exited || state.PC == pc {
		t.Fatalf("unexpected stop: %v", state)
	}
}

func TestErrorsAfterExit(t *testing.T) {
	p := launchTrue(t)
	if err := p.Detach(true); err != nil {
		t.Fatal(err)
	}
	tr := hwbreak.New(p)
	err := tr.SetBreakpoint(hwbreak.Slot0, 0x401000)
	if !errors.Is(err, ErrNoSuchProcess) {
		t.Fatalf("expected ErrNoSuchProcess, got %v", err)
	}
	if err := tr.SetDebugFlag(hwbreak.Trap, true); !errors.Is(err, ErrNoSuchProcess) {
		t.Fatalf("expected ErrNoSuchProcess, got %v", err)
	}
	if _, err := p.Continue(); !errors.Is(err, ErrNoSuchProcess) {
		t.Fatalf("expected ErrNoSuchProcess, got %v", err)
	}
}

func TestAttachMissingProcess(t *testing.T) {
	_, err := Attach(1 << 30)
	if !errors.Is(err, ErrNoSuchProcess) {
		t.Fatalf("expected ErrNoSuchProcess, got %v", err)
	}
	var perr *PtraceError
	if !errors.As(err, &perr) || perr.Err != syscall.ESRCH {
		t.Fatalf("expected ESRCH, got %#v", err)
	}
}

// recordingLogger writes every message to buf regardless of level.
type recordingLogger struct{ buf *bytes.Buffer }

func (l *recordingLogger) WithField(key string, value interface{}) logflags.Logger { return l }
func (l *recordingLogger) WithFields(fields logflags.Fields) logflags.Logger       { return l }
func (l *recordingLogger) WithError(err error) logflags.Logger                     { return l }

func (l *recordingLogger) Debugf(format string, args ...interface{}) {
	fmt.Fprintf(l.buf, format+"\n", args...)
}
func (l *recordingLogger) Infof(format string, args ...interface{}) {
	fmt.Fprintf(l.buf, format+"\n", args...)
}
func (l *recordingLogger) Warnf(format string, args ...interface{}) {
	fmt.Fprintf(l.buf, format+"\n", args...)
}
func (l *recordingLogger) Errorf(format string, args ...interface{}) {
	fmt.Fprintf(l.buf, format+"\n", args...)
}

func (l *recordingLogger) Debug(args ...interface{}) { fmt.Fprintln(l.buf, args...) }
func (l *recordingLogger) Info(args ...interface{})  { fmt.Fprintln(l.buf, args...) }
func (l *recordingLogger) Warn(args ...interface{})  { fmt.Fprintln(l.buf, args...) }
func (l *recordingLogger) Error(args ...interface{}) { fmt.Fprintln(l.buf, args...) }

func TestWriteDebugRegisterLogging(t *testing.T) {
	var buf bytes.Buffer
	logflags.SetLoggerFactory(func(level logrus.Level, fields logflags.Fields, out io.Writer) logflags.Logger {
		return &recordingLogger{&buf}
	})
	defer logflags.SetLoggerFactory(nil)
	if err := logflags.Setup(true, "ptrace", ""); err != nil {
		t.Fatal(err)
	}

	p := launchTrue(t)
	if err := p.WriteDebugRegister(hwbreak.DR0, 0x1000); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "DR0=0x1000") {
		t.Fatalf("debug register write not logged:\n%s", buf.String())
	}
}
