package native

import (
	"fmt"
	"syscall"

	"github.com/go-delve/hwbreak/pkg/hwbreak"
)

// StopState describes why the process stopped.
type StopState struct {
	Pid        int
	Exited     bool
	ExitStatus int
	Signal     syscall.Signal

	// HWBreakpoint is set when DR6 reports that the breakpoint in Slot
	// was hit.
	HWBreakpoint bool
	Slot         hwbreak.BreakpointSlot
	// SingleStep is set when DR6 reports a single step trap (BS).
	SingleStep bool
	PC         uint64
}

func (s *StopState) String() string {
	switch {
	case s.Exited:
		return fmt.Sprintf("process %d exited with status %d", s.Pid, s.ExitStatus)
	case s.HWBreakpoint:
		return fmt.Sprintf("hardware breakpoint %v hit at %#x", s.Slot, s.PC)
	case s.SingleStep:
		return fmt.Sprintf("single step at %#x", s.PC)
	}
	return fmt.Sprintf("stopped by %v at %#x", s.Signal, s.PC)
}
