package hwbreak

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// DR7Reserved is the value of DR7 with no breakpoint enabled. Bit 8 (LE,
// local exact breakpoint enable) is always written as set.
const DR7Reserved uint64 = 0x100

var (
	// ErrInvalidSlot is returned for a BreakpointSlot outside Slot0..Slot3.
	ErrInvalidSlot = errors.New("invalid hardware breakpoint slot")
	// ErrInvalidFlag is returned for a DebugFlag other than Trap or Resume.
	ErrInvalidFlag = errors.New("invalid debug flag")
)

// DebugRegister identifies one of the x86 debug registers, numbered as in
// the u_debugreg array of struct user. DR4 and DR5 are aliases that Linux
// refuses to access, DR6 is the status register.
type DebugRegister uint8

const (
	DR0 DebugRegister = 0
	DR1 DebugRegister = 1
	DR2 DebugRegister = 2
	DR3 DebugRegister = 3
	DR6 DebugRegister = 6
	DR7 DebugRegister = 7
)

func (dr DebugRegister) String() string {
	return "DR" + strconv.Itoa(int(dr))
}

// BreakpointSlot is one of the four hardware breakpoint address registers.
type BreakpointSlot uint8

const (
	Slot0 BreakpointSlot = iota
	Slot1
	Slot2
	Slot3
)

// Slots lists every slot in register order.
var Slots = [...]BreakpointSlot{Slot0, Slot1, Slot2, Slot3}

// Valid reports whether slot is one of Slot0..Slot3.
func (slot BreakpointSlot) Valid() bool {
	return slot <= Slot3
}

func (slot BreakpointSlot) String() string {
	if !slot.Valid() {
		return fmt.Sprintf("BreakpointSlot(%d)", uint8(slot))
	}
	return "slot" + strconv.Itoa(int(slot))
}

// Register returns the address register backing slot.
func (slot BreakpointSlot) Register() DebugRegister {
	switch slot {
	case Slot0:
		return DR0
	case Slot1:
		return DR1
	case Slot2:
		return DR2
	case Slot3:
		return DR3
	}
	panic(fmt.Sprintf("hwbreak: %v has no address register", slot))
}

// EnableMask returns the local enable bit of slot in DR7.
func (slot BreakpointSlot) EnableMask() uint64 {
	switch slot {
	case Slot0:
		return 1 << 0
	case Slot1:
		return 1 << 2
	case Slot2:
		return 1 << 4
	case Slot3:
		return 1 << 6
	}
	return 0
}

// ArmedDR7 returns the DR7 value that enables slot and nothing else.
func ArmedDR7(slot BreakpointSlot) uint64 {
	return DR7Reserved | slot.EnableMask()
}

// ParseSlot parses "2", "slot2" or "dr2".
func ParseSlot(s string) (BreakpointSlot, error) {
	t := strings.ToLower(strings.TrimSpace(s))
	t = strings.TrimPrefix(strings.TrimPrefix(t, "slot"), "dr")
	n, err := strconv.ParseUint(t, 10, 8)
	if err != nil || !BreakpointSlot(n).Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSlot, s)
	}
	return BreakpointSlot(n), nil
}

// DebugFlag is a bit of the flags register that controls debug exceptions.
type DebugFlag uint8

const (
	// Trap (TF) raises a debug exception after every instruction.
	Trap DebugFlag = iota
	// Resume (RF) suppresses instruction breakpoints for one instruction.
	Resume
)

func (flag DebugFlag) String() string {
	switch flag {
	case Trap:
		return "trap"
	case Resume:
		return "resume"
	}
	return fmt.Sprintf("DebugFlag(%d)", uint8(flag))
}

// Mask returns the bit of flag in RFLAGS, or 0 for an unknown flag.
func (flag DebugFlag) Mask() uint64 {
	switch flag {
	case Trap:
		return 0x100
	case Resume:
		return 0x10000
	}
	return 0
}

// ApplyFlag returns flags with the bit of flag cleared, then set again if
// set is true. All other bits are returned unchanged.
func ApplyFlag(flags uint64, flag DebugFlag, set bool) uint64 {
	mask := flag.Mask()
	flags &^= mask
	if set {
		flags |= mask
	}
	return flags
}

// ParseFlag parses "trap"/"tf" or "resume"/"rf".
func ParseFlag(s string) (DebugFlag, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trap", "tf":
		return Trap, nil
	case "resume", "rf":
		return Resume, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidFlag, s)
}
