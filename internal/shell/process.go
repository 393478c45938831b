package shell

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"golang.org/x/text/encoding"
)

// Options describes how to launch the interpreter.
type Options struct {
	Command  string
	Args     []string
	Env      []string // appended to the host environment
	Dir      string
	Encoding encoding.Encoding // nil = UTF-8
}

// Interpreter is a running command interpreter with its three standard
// streams attached to pipes.
type Interpreter interface {
	Stdout() io.Reader
	Stderr() io.Reader
	WriteLine(text string) error
	// Wait returns once the interpreter process has exited, whether or not
	// its output streams have ended.
	Wait() error
	Kill() error
	// CloseOutput closes the read ends of stdout and stderr, ending any
	// read blocked on a stream a surviving child still holds open.
	CloseOutput() error
	Pid() int
}

// Process is the Interpreter backed by os/exec.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader
	enc    encoding.Encoding
	tree   processTree

	// read ends; owned here so Wait does not close them under the pumps
	outR, errR *os.File
	closeOnce  sync.Once

	writeMu sync.Mutex
}

// Start launches the interpreter without a console window, its stdin,
// stdout and stderr all redirected to pipes.
func Start(opts Options) (*Process, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("no interpreter command configured")
	}

	cmd := exec.Command(opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = os.Environ()
	if opts.Dir != "" {
		// An inherited PWD would name the host's directory, not Dir.
		cmd.Env = append(cmd.Env, "PWD="+opts.Dir)
	}
	cmd.Env = append(cmd.Env, opts.Env...)
	cmd.SysProcAttr = sysProcAttr()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	outR, outW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		stdin.Close()
		closeAll(outR, outW)
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW

	err = cmd.Start()
	// The child has its own copies of the write ends now.
	closeAll(outW, errW)
	if err != nil {
		stdin.Close()
		closeAll(outR, errR)
		return nil, fmt.Errorf("start %s: %w", opts.Command, err)
	}

	tree, err := attachTree(cmd.Process)
	if err != nil {
		shellLog.Warn("process_tree_attach_failed",
			slog.Int("pid", cmd.Process.Pid),
			slog.String("error", err.Error()))
	}

	shellLog.Info("interpreter_started",
		slog.String("command", opts.Command),
		slog.Any("args", opts.Args),
		slog.String("dir", opts.Dir),
		slog.Int("pid", cmd.Process.Pid))

	return &Process{
		cmd:    cmd,
		stdin:  stdin,
		stdout: decodeReader(outR, opts.Encoding),
		stderr: decodeReader(errR, opts.Encoding),
		enc:    opts.Encoding,
		tree:   tree,
		outR:   outR,
		errR:   errR,
	}, nil
}

func (p *Process) Stdout() io.Reader { return p.stdout }
func (p *Process) Stderr() io.Reader { return p.stderr }
func (p *Process) Pid() int          { return p.cmd.Process.Pid }

// WriteLine sends text followed by the platform line terminator.
func (p *Process) WriteLine(text string) error {
	line := encodeString(text+LineTerminator, p.enc)

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	if _, err := io.WriteString(p.stdin, line); err != nil {
		return fmt.Errorf("write stdin: %w", err)
	}
	return nil
}

// Wait waits for the interpreter process to exit. The output streams stay
// open: children the interpreter left running may still write to them.
func (p *Process) Wait() error {
	err := p.cmd.Wait()
	_ = p.stdin.Close()
	p.tree.release()
	return err
}

// Kill terminates the interpreter and whatever it started.
func (p *Process) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.tree.kill(p.cmd.Process)
}

// CloseOutput closes the read ends of both output pipes. Safe to call more
// than once.
func (p *Process) CloseOutput() error {
	var err error
	p.closeOnce.Do(func() {
		err = errors.Join(p.outR.Close(), p.errR.Close())
	})
	return err
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
