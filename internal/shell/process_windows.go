//go:build windows

package shell

import (
	"fmt"
	"os"
	"sync"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// LineTerminator ends every line written to the interpreter.
const LineTerminator = "\r\n"

const createNoWindow = 0x08000000

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: createNoWindow,
	}
}

// processTree is a job object holding the interpreter and every process it
// starts. Closing the last handle kills them all, so nothing outlives the
// interpreter or keeps its output pipes open.
type processTree struct {
	job  windows.Handle
	once *sync.Once
}

func attachTree(proc *os.Process) (processTree, error) {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return processTree{}, fmt.Errorf("create job object: %w", err)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		_ = windows.CloseHandle(job)
		return processTree{}, fmt.Errorf("configure job object: %w", err)
	}

	h, err := windows.OpenProcess(windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE, false, uint32(proc.Pid))
	if err != nil {
		_ = windows.CloseHandle(job)
		return processTree{}, fmt.Errorf("open process %d: %w", proc.Pid, err)
	}
	defer windows.CloseHandle(h)

	if err := windows.AssignProcessToJobObject(job, h); err != nil {
		_ = windows.CloseHandle(job)
		return processTree{}, fmt.Errorf("assign process %d to job: %w", proc.Pid, err)
	}
	return processTree{job: job, once: new(sync.Once)}, nil
}

func (t processTree) kill(proc *os.Process) error {
	if t.job == 0 {
		return proc.Kill()
	}
	if err := windows.TerminateJobObject(t.job, 1); err != nil {
		return proc.Kill()
	}
	return nil
}

// release closes the job, which kills whatever the interpreter left behind.
func (t processTree) release() {
	if t.job == 0 {
		return
	}
	t.once.Do(func() {
		_ = windows.CloseHandle(t.job)
	})
}
