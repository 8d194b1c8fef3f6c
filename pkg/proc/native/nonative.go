//go:build !linux || !amd64

package native

import (
	"github.com/go-delve/hwbreak/pkg/hwbreak"
)

// Process is not available on this platform.
type Process struct {
	pid int
}

// Launch returns ErrUnsupportedPlatform.
func Launch(cmd []string, wd string) (*Process, error) {
	return nil, ErrUnsupportedPlatform
}

// Attach returns ErrUnsupportedPlatform.
func Attach(pid int) (*Process, error) {
	return nil, ErrUnsupportedPlatform
}

func (dbp *Process) Pid() int               { return dbp.pid }
func (dbp *Process) Exited() bool           { return true }
func (dbp *Process) Detach(kill bool) error { return ErrUnsupportedPlatform }

func (dbp *Process) Continue() (*StopState, error) { return nil, ErrUnsupportedPlatform }
func (dbp *Process) Step() (*StopState, error)     { return nil, ErrUnsupportedPlatform }

func (dbp *Process) Registers() (hwbreak.RegisterSnapshot, error) {
	return nil, ErrUnsupportedPlatform
}

func (dbp *Process) SetRegisters(hwbreak.RegisterSnapshot) error {
	return ErrUnsupportedPlatform
}

func (dbp *Process) ReadDebugRegister(reg hwbreak.DebugRegister) (uint64, error) {
	return 0, ErrUnsupportedPlatform
}

func (dbp *Process) WriteDebugRegister(reg hwbreak.DebugRegister, value uint64) error {
	return ErrUnsupportedPlatform
}

func (dbp *Process) ReadMemory(data []byte, addr uint64) (int, error) {
	return 0, ErrUnsupportedPlatform
}
