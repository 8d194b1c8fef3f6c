package cmds

import (
	"errors"
	"fmt"
	"io"

	"github.com/go-delve/hwbreak/pkg/disasm"
	"github.com/go-delve/hwbreak/pkg/hwbreak"
	"github.com/go-delve/hwbreak/pkg/logflags"
	"github.com/go-delve/hwbreak/pkg/proc/native"
)

// target is the subset of *native.Process used by a session.
type target interface {
	hwbreak.ProcessControl
	disasm.MemoryReader
	Pid() int
	Continue() (*native.StopState, error)
	Detach(kill bool) error
}

type sessionConfig struct {
	slot    hwbreak.BreakpointSlot
	addr    uint64
	hasBP   bool
	hits    int
	steps   int
	flavour disasm.Flavour
	color   bool
}

type session struct {
	p    target
	tr   *hwbreak.Tracee
	conf sessionConfig
	out  io.Writer
	log  logflags.Logger
}

func newSession(p target, conf sessionConfig, out io.Writer) *session {
	return &session{
		p:    p,
		tr:   hwbreak.New(p),
		conf: conf,
		out:  out,
		log:  logflags.HWBreakLogger(),
	}
}

const (
	colorHit   = "\x1b[1;31m"
	colorStep  = "\x1b[36m"
	colorReset = "\x1b[0m"
)

func (s *session) printf(color, format string, args ...interface{}) {
	if s.conf.color {
		fmt.Fprint(s.out, color)
		defer fmt.Fprint(s.out, colorReset)
	}
	fmt.Fprintf(s.out, format, args...)
}

func (s *session) printInstruction(pc uint64) {
	inst, err := disasm.DecodeAt(s.p, pc)
	if err != nil && inst == nil {
		fmt.Fprintf(s.out, "\t%#x: <unreadable: %v>\n", pc, err)
		return
	}
	fmt.Fprintf(s.out, "\t%s\n", inst.Format(s.conf.flavour))
}

// run arms the configured breakpoint, then resumes the target reporting
// every hit until the target exits or the hit limit is reached. It returns
// true if the target exited.
func (s *session) run() (exited bool, err error) {
	if s.conf.hasBP {
		if err := s.tr.SetBreakpoint(s.conf.slot, s.conf.addr); err != nil {
			return false, err
		}
		fmt.Fprintf(s.out, "Hardware breakpoint %v set at %#x\n", s.conf.slot, s.conf.addr)
	}

	nhits := 0
	for {
		state, err := s.p.Continue()
		if err != nil {
			return false, err
		}
		if state.Exited {
			fmt.Fprintf(s.out, "Process %d has exited with status %d\n", state.Pid, state.ExitStatus)
			return true, nil
		}
		if !state.HWBreakpoint {
			s.log.Debugf("ignoring stop: %v", state)
			continue
		}

		nhits++
		s.printf(colorHit, "> hit %d: %v\n", nhits, state)
		s.printInstruction(state.PC)

		exited, err := s.step()
		if err != nil || exited {
			return exited, err
		}

		if s.conf.hits > 0 && nhits >= s.conf.hits {
			if err := s.tr.ClearBreakpoint(s.conf.slot); err != nil {
				return false, err
			}
			return false, nil
		}
		// step off the breakpoint without triggering it again
		if err := s.tr.SetDebugFlag(hwbreak.Resume, true); err != nil {
			return false, err
		}
	}
}

// step single steps conf.steps instructions using the trap flag.
func (s *session) step() (exited bool, err error) {
	if s.conf.steps <= 0 {
		return false, nil
	}
	if err := s.tr.SetDebugFlag(hwbreak.Resume, true); err != nil {
		return false, err
	}
	if err := s.tr.SetDebugFlag(hwbreak.Trap, true); err != nil {
		return false, err
	}
	for i := 0; i < s.conf.steps; i++ {
		state, err := s.p.Continue()
		if err != nil {
			return false, err
		}
		if state.Exited {
			fmt.Fprintf(s.out, "Process %d has exited with status %d\n", state.Pid, state.ExitStatus)
			return true, nil
		}
		s.printf(colorStep, "  step %d\n", i+1)
		s.printInstruction(state.PC)
	}
	return false, s.tr.SetDebugFlag(hwbreak.Trap, false)
}

// detach clears the breakpoint and detaches from the target, optionally
// killing it. Linux keeps the debug registers of a thread after
// PTRACE_DETACH, an armed slot would deliver SIGTRAP to the untraced process.
func (s *session) detach(kill bool) error {
	var err error
	if s.conf.hasBP && !kill {
		err = s.tr.ClearBreakpoint(s.conf.slot)
		if errors.Is(err, native.ErrNoSuchProcess) {
			err = nil
		}
	}
	if derr := s.p.Detach(kill); err == nil {
		err = derr
	}
	return err
}
