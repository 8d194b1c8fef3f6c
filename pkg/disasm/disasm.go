// Package disasm decodes x86-64 instructions read from a stopped process.
package disasm

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// MaxInstructionLength is the longest valid x86 instruction.
const MaxInstructionLength = 15

// Flavour is the assembly syntax used to print instructions.
type Flavour int

const (
	IntelFlavour Flavour = iota
	GNUFlavour
	GoFlavour
)

// ParseFlavour parses "intel", "gnu" or "go".
func ParseFlavour(s string) (Flavour, error) {
	switch strings.ToLower(s) {
	case "", "intel":
		return IntelFlavour, nil
	case "gnu", "att":
		return GNUFlavour, nil
	case "go":
		return GoFlavour, nil
	}
	return IntelFlavour, fmt.Errorf("unknown disassembly flavour %q", s)
}

// MemoryReader reads memory of the target process.
type MemoryReader interface {
	ReadMemory(data []byte, addr uint64) (int, error)
}

// Instruction is a decoded instruction at PC.
type Instruction struct {
	PC    uint64
	Bytes []byte
	inst  *x86asm.Inst
}

// Decode decodes the instruction starting at mem[0:], located at pc in
// the target. PC-relative operands are converted to absolute addresses.
func Decode(mem []byte, pc uint64) (*Instruction, error) {
	inst, err := x86asm.Decode(mem, 64)
	if err != nil {
		n := 1
		if len(mem) == 0 {
			n = 0
		}
		return &Instruction{PC: pc, Bytes: mem[:n]}, err
	}
	patchPCRel(pc, &inst)
	return &Instruction{PC: pc, Bytes: mem[:inst.Len], inst: &inst}, nil
}

// DecodeAt reads and decodes the instruction at pc.
func DecodeAt(mem MemoryReader, pc uint64) (*Instruction, error) {
	buf := make([]byte, MaxInstructionLength)
	n, err := mem.ReadMemory(buf, pc)
	if n == 0 && err != nil {
		return nil, err
	}
	return Decode(buf[:n], pc)
}

// converts PC relative arguments to absolute addresses
func patchPCRel(pc uint64, inst *x86asm.Inst) {
	for i := range inst.Args {
		rel, isrel := inst.Args[i].(x86asm.Rel)
		if isrel {
			inst.Args[i] = x86asm.Imm(int64(pc) + int64(rel) + int64(inst.Len))
		}
	}
}

func noSymbol(uint64) (string, uint64) {
	return "", 0
}

// Text returns the instruction in the given syntax, "?" if it could not be
// decoded.
func (i *Instruction) Text(flavour Flavour) string {
	if i.inst == nil {
		return "?"
	}
	switch flavour {
	case GNUFlavour:
		return x86asm.GNUSyntax(*i.inst, i.PC, noSymbol)
	case GoFlavour:
		return x86asm.GoSyntax(*i.inst, i.PC, noSymbol)
	default:
		return x86asm.IntelSyntax(*i.inst, i.PC, noSymbol)
	}
}

// Format returns "pc: bytes  text".
func (i *Instruction) Format(flavour Flavour) string {
	return fmt.Sprintf("%#x: %-30s %s", i.PC, hex.EncodeToString(i.Bytes), i.Text(flavour))
}
