// Package hwbreak implements execution breakpoints and single stepping on
// a traced x86-64 process using the CPU debug registers (DR0-DR3, DR7) and
// the TF/RF bits of RFLAGS, described in the Intel 64 and IA-32
// Architectures Software Developer's Manual, Vol. 3B, section 17.2.
//
// The package does not talk to the kernel itself, register access goes
// through a ProcessControl, see pkg/proc/native for the ptrace backend.
package hwbreak
