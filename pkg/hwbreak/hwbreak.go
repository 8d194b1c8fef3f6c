package hwbreak

import (
	"github.com/go-delve/hwbreak/pkg/logflags"
)

// RegisterSnapshot is a copy of the general purpose registers of a stopped
// thread. Only the flags word is of interest here.
type RegisterSnapshot interface {
	Flags() uint64
	SetFlags(uint64)
}

// ProcessControl is the set of ptrace primitives hardware breakpoints are
// built on. Every method is expected to be called while the target is
// stopped.
type ProcessControl interface {
	WriteDebugRegister(reg DebugRegister, value uint64) error
	Registers() (RegisterSnapshot, error)
	SetRegisters(regs RegisterSnapshot) error
}

// HardwareDebug is implemented only by *Tracee.
type HardwareDebug interface {
	SetBreakpoint(slot BreakpointSlot, addr uint64) error
	ClearBreakpoint(slot BreakpointSlot) error
	SetDebugFlag(flag DebugFlag, set bool) error

	sealed()
}

// Tracee is a traced process on which hardware breakpoints can be set.
//
// DR7 is always overwritten as a whole: setting a breakpoint disables every
// other slot and clearing any slot disables all of them. At most one slot
// is enabled at any time.
//
// A Tracee does no locking, callers must serialize access to a process.
type Tracee struct {
	pc  ProcessControl
	log logflags.Logger
}

var _ HardwareDebug = (*Tracee)(nil)

// New returns a Tracee that accesses registers through pc.
func New(pc ProcessControl) *Tracee {
	return &Tracee{pc: pc, log: logflags.HWBreakLogger()}
}

func (t *Tracee) sealed() {}

// SetBreakpoint sets an execution breakpoint at addr using slot. The
// address register is written before DR7 so that the enable bit is never
// set without its address.
func (t *Tracee) SetBreakpoint(slot BreakpointSlot, addr uint64) error {
	if !slot.Valid() {
		return ErrInvalidSlot
	}
	if err := t.pc.WriteDebugRegister(slot.Register(), addr); err != nil {
		return err
	}
	dr7 := ArmedDR7(slot)
	if err := t.pc.WriteDebugRegister(DR7, dr7); err != nil {
		return err
	}
	if logflags.HWBreak() {
		t.log.Debugf("set %v at %#x, DR7=%#x", slot, addr, dr7)
	}
	return nil
}

// ClearBreakpoint zeroes the address register of slot and resets DR7 to
// DR7Reserved, disabling all slots.
func (t *Tracee) ClearBreakpoint(slot BreakpointSlot) error {
	if !slot.Valid() {
		return ErrInvalidSlot
	}
	if err := t.pc.WriteDebugRegister(slot.Register(), 0); err != nil {
		return err
	}
	if err := t.pc.WriteDebugRegister(DR7, DR7Reserved); err != nil {
		return err
	}
	if logflags.HWBreak() {
		t.log.Debugf("cleared %v, DR7=%#x", slot, DR7Reserved)
	}
	return nil
}

// SetDebugFlag sets or clears flag in the flags register of the target.
// The whole register set is read and written back.
func (t *Tracee) SetDebugFlag(flag DebugFlag, set bool) error {
	if flag.Mask() == 0 {
		return ErrInvalidFlag
	}
	regs, err := t.pc.Registers()
	if err != nil {
		return err
	}
	old := regs.Flags()
	regs.SetFlags(ApplyFlag(old, flag, set))
	if err := t.pc.SetRegisters(regs); err != nil {
		return err
	}
	if logflags.HWBreak() {
		t.log.Debugf("%v=%v, flags %#x -> %#x", flag, set, old, regs.Flags())
	}
	return nil
}
