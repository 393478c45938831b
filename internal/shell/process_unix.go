//go:build !windows

package shell

import (
	"os"
	"syscall"
)

// LineTerminator ends every line written to the interpreter.
const LineTerminator = "\n"

// Own process group so Kill reaches the commands the shell started.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

// processTree is the interpreter's process group.
type processTree struct{}

func attachTree(*os.Process) (processTree, error) {
	return processTree{}, nil
}

func (processTree) kill(proc *os.Process) error {
	if pgid, err := syscall.Getpgid(proc.Pid); err == nil {
		return syscall.Kill(-pgid, syscall.SIGKILL)
	}
	return proc.Kill()
}

func (processTree) release() {}
