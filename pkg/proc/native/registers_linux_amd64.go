package native

import (
	"fmt"

	sys "golang.org/x/sys/unix"

	"github.com/go-delve/hwbreak/pkg/hwbreak"
	"github.com/go-delve/hwbreak/pkg/logflags"
)

// AMD64Registers is the general purpose register set of a stopped thread,
// as returned by PTRACE_GETREGS.
type AMD64Registers struct {
	Regs *sys.PtraceRegs
}

// Flags returns RFLAGS.
func (r *AMD64Registers) Flags() uint64 {
	return r.Regs.Eflags
}

// SetFlags changes RFLAGS in the snapshot, SetRegisters must be called for
// the change to reach the target.
func (r *AMD64Registers) SetFlags(flags uint64) {
	r.Regs.Eflags = flags
}

// PC returns the value of RIP register.
func (r *AMD64Registers) PC() uint64 {
	return r.Regs.Rip
}

// SP returns the value of RSP register.
func (r *AMD64Registers) SP() uint64 {
	return r.Regs.Rsp
}

func (dbp *Process) registers() (*AMD64Registers, error) {
	if err := dbp.checkStopped("getregs"); err != nil {
		return nil, err
	}
	var (
		regs sys.PtraceRegs
		err  error
	)
	dbp.execPtraceFunc(func() { err = sys.PtraceGetRegs(dbp.pid, &regs) })
	if err != nil {
		return nil, convertPtraceErr("getregs", dbp.pid, err)
	}
	return &AMD64Registers{Regs: &regs}, nil
}

// Registers returns a snapshot of the general purpose registers.
func (dbp *Process) Registers() (hwbreak.RegisterSnapshot, error) {
	return dbp.registers()
}

// SetRegisters writes back a snapshot obtained from Registers.
func (dbp *Process) SetRegisters(snapshot hwbreak.RegisterSnapshot) error {
	r, ok := snapshot.(*AMD64Registers)
	if !ok {
		return fmt.Errorf("unsupported register snapshot %T", snapshot)
	}
	if err := dbp.checkStopped("setregs"); err != nil {
		return err
	}
	var err error
	dbp.execPtraceFunc(func() { err = sys.PtraceSetRegs(dbp.pid, r.Regs) })
	return convertPtraceErr("setregs", dbp.pid, err)
}

// ReadDebugRegister returns the value of a debug register.
func (dbp *Process) ReadDebugRegister(reg hwbreak.DebugRegister) (uint64, error) {
	if err := dbp.checkStopped("peekuser"); err != nil {
		return 0, err
	}
	var (
		val uint64
		err error
	)
	dbp.execPtraceFunc(func() { val, err = ptracePeekUser(dbp.pid, int(reg)) })
	if err != nil {
		return 0, convertPtraceErr("peekuser", dbp.pid, err)
	}
	return val, nil
}

// WriteDebugRegister sets a debug register. Linux refuses DR4 and DR5.
func (dbp *Process) WriteDebugRegister(reg hwbreak.DebugRegister, value uint64) error {
	if err := dbp.checkStopped("pokeuser"); err != nil {
		return err
	}
	var err error
	dbp.execPtraceFunc(func() { err = ptracePokeUser(dbp.pid, int(reg), value) })
	if err != nil {
		return convertPtraceErr("pokeuser", dbp.pid, err)
	}
	if logflags.Ptrace() {
		dbp.log.Debugf("pid %d %v=%#x", dbp.pid, reg, value)
	}
	return nil
}

// ReadMemory reads len(data) bytes of target memory starting at addr.
func (dbp *Process) ReadMemory(data []byte, addr uint64) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	if err := dbp.checkStopped("peekdata"); err != nil {
		return 0, err
	}
	var (
		n   int
		err error
	)
	dbp.execPtraceFunc(func() { n, err = sys.PtracePeekData(dbp.pid, uintptr(addr), data) })
	if err != nil {
		return n, convertPtraceErr("peekdata", dbp.pid, err)
	}
	return n, nil
}

var _ hwbreak.ProcessControl = (*Process)(nil)
