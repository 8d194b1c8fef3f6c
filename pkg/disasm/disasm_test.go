package disasm

import (
	"errors"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	for _, tc := range []struct {
		mem  []byte
		len  int
		text string
	}{
		{[]byte{0x55, 0x48, 0x89, 0xe5}, 1, "push rbp"},
		{[]byte{0x90}, 1, "nop"},
		{[]byte{0xc3, 0xcc, 0xcc}, 1, "ret"},
	} {
		inst, err := Decode(tc.mem, 0x401000)
		if err != nil {
			t.Fatalf("%x: %v", tc.mem, err)
		}
		if len(inst.Bytes) != tc.len {
			t.Errorf("%x: length %d, expected %d", tc.mem, len(inst.Bytes), tc.len)
		}
		if got := inst.Text(IntelFlavour); got != tc.text {
			t.Errorf("%x: %q, expected %q", tc.mem, got, tc.text)
		}
	}
}

func TestDecodePCRelative(t *testing.T) {
	// jmp +0 at 0x1000 jumps to the next instruction
	inst, err := Decode([]byte{0xe9, 0x00, 0x00, 0x00, 0x00}, 0x1000)
	if err != nil {
		t.Fatal(err)
	}
	if text := inst.Text(IntelFlavour); !strings.Contains(text, "0x1005") {
		t.Fatalf("relative target not patched: %q", text)
	}
}

func TestDecodeInvalid(t *testing.T) {
	inst, err := Decode([]byte{0x0f, 0xff}, 0x1000)
	if err == nil {
		t.Fatalf("expected decoding error")
	}
	if inst.Text(GNUFlavour) != "?" {
		t.Fatalf("undecoded instruction printed as %q", inst.Text(GNUFlavour))
	}
}

type fakeMemory struct {
	base uint64
	mem  []byte
	err  error
}

func (m *fakeMemory) ReadMemory(data []byte, addr uint64) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	return copy(data, m.mem[addr-m.base:]), nil
}

func TestDecodeAt(t *testing.T) {
	mem := &fakeMemory{base: 0x400000, mem: []byte{0x90, 0x90, 0x55, 0xc3}}
	inst, err := DecodeAt(mem, 0x400002)
	if err != nil {
		t.Fatal(err)
	}
	if got := inst.Format(IntelFlavour); !strings.HasPrefix(got, "0x400002: 55") || !strings.HasSuffix(got, "push rbp") {
		t.Fatalf("unexpected format %q", got)
	}

	mem.err = errors.New("input/output error")
	if _, err := DecodeAt(mem, 0x400000); err != mem.err {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestParseFlavour(t *testing.T) {
	for in, want := range map[string]Flavour{"": IntelFlavour, "Intel": IntelFlavour, "gnu": GNUFlavour, "att": GNUFlavour, "go": GoFlavour} {
		got, err := ParseFlavour(in)
		if err != nil || got != want {
			t.Errorf("ParseFlavour(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFlavour("masm"); err == nil {
		t.Errorf("expected error")
	}
}
