// Package platform detects the host OS and knows which command interpreter
// to launch on it.
package platform

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform represents the detected platform
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWSL1    Platform = "wsl1"
	PlatformWSL2    Platform = "wsl2"
	PlatformWindows Platform = "windows"
	PlatformUnknown Platform = "unknown"
)

var (
	detectOnce sync.Once
	detected   Platform
)

// Detect returns the current platform. The result is cached.
func Detect() Platform {
	detectOnce.Do(func() {
		detected = detect(runtime.GOOS, os.Getenv("WSL_DISTRO_NAME"), readProcVersion())
	})
	return detected
}

func readProcVersion() string {
	data, err := os.ReadFile("/proc/version")
	if err != nil {
		return ""
	}
	return string(data)
}

// detect is the pure part of Detect.
func detect(goos, wslDistro, procVersion string) Platform {
	switch goos {
	case "darwin":
		return PlatformMacOS
	case "windows":
		return PlatformWindows
	case "linux":
		isWSL := wslDistro != "" || strings.Contains(strings.ToLower(procVersion), "microsoft")
		if !isWSL {
			return PlatformLinux
		}
		// WSL2 kernels say "microsoft-standard"; WSL1 says "Microsoft".
		if strings.Contains(procVersion, "microsoft-standard") {
			return PlatformWSL2
		}
		if strings.Contains(procVersion, "Microsoft") {
			return PlatformWSL1
		}
		if _, err := os.Stat("/run/WSL"); err == nil {
			return PlatformWSL2
		}
		return PlatformWSL1
	default:
		return PlatformUnknown
	}
}

// IsWSL returns true if running in any WSL environment
func IsWSL() bool {
	p := Detect()
	return p == PlatformWSL1 || p == PlatformWSL2
}

// String returns a human-readable platform name
func (p Platform) String() string {
	switch p {
	case PlatformMacOS:
		return "macOS"
	case PlatformLinux:
		return "Linux"
	case PlatformWSL1:
		return "WSL1"
	case PlatformWSL2:
		return "WSL2"
	case PlatformWindows:
		return "Windows"
	default:
		return "Unknown"
	}
}

// Interpreter is a command line for the default command interpreter.
type Interpreter struct {
	Command string
	Args    []string
	Env     []string
}

// DefaultInterpreter returns the host's default command interpreter.
//
// On Windows that is %COMSPEC% (cmd.exe), whose prompt is "<cwd>>" on
// stdout. Elsewhere an interactive POSIX shell is started with its prompt
// set to the same "<cwd>>" form so one prompt detector serves both. bash
// is preferred because it expands $PWD in PS1 on every prompt; rc files are
// skipped since they usually override PS1.
func DefaultInterpreter() Interpreter {
	if Detect() == PlatformWindows {
		comspec := os.Getenv("COMSPEC")
		if comspec == "" {
			comspec = "cmd.exe"
		}
		return Interpreter{Command: comspec}
	}

	// PS2 matches PS1 so an open quote or heredoc still reads as a prompt
	// and the closing line can be submitted.
	env := []string{"PS1=$PWD>", "PS2=$PWD>", "TERM=dumb"}
	if bash, err := exec.LookPath("bash"); err == nil {
		return Interpreter{Command: bash, Args: []string{"--norc", "--noprofile", "-i"}, Env: env}
	}
	return Interpreter{Command: "/bin/sh", Args: []string{"-i"}, Env: env}
}

// DefaultRoot is the starting directory used when no directory was saved.
func DefaultRoot() string {
	if Detect() == PlatformWindows {
		if drive := os.Getenv("SystemDrive"); drive != "" {
			return drive + `\`
		}
		return `C:\`
	}
	return "/"
}

// CheckFsnotifySupport returns a warning when path lives on a filesystem
// where fsnotify events are unreliable (9p, NFS, CIFS, SSHFS), or "".
func CheckFsnotifySupport(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	mounts, err := os.ReadFile("/proc/mounts")
	if err != nil {
		return ""
	}
	return fsnotifyWarning(mountType(string(mounts), absPath))
}

// mountType finds the filesystem type of the longest mount point
// containing path in /proc/mounts content.
func mountType(mounts, path string) string {
	var bestMount, bestType string
	for _, line := range strings.Split(mounts, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		if strings.HasPrefix(path, fields[1]) && len(fields[1]) > len(bestMount) {
			bestMount, bestType = fields[1], fields[2]
		}
	}
	return bestType
}

func fsnotifyWarning(fsType string) string {
	switch {
	case fsType == "9p":
		return "Config on 9p mount (WSL2 Windows filesystem): live reload disabled."
	case fsType == "nfs" || fsType == "nfs4":
		return "Config on NFS mount: live reload may be unreliable."
	case fsType == "cifs" || fsType == "smbfs":
		return "Config on CIFS/SMB mount: live reload may be unreliable."
	case strings.HasPrefix(fsType, "fuse.sshfs"):
		return "Config on SSHFS mount: live reload disabled."
	}
	return ""
}
