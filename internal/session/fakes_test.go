package session

import (
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/asheshgoplani/shell-deck/internal/shell"
)

// fakeInterp is an in-memory interpreter: the test plays its output
// through pipes and inspects what was written to its stdin.
type fakeInterp struct {
	stdoutR, stderrR *io.PipeReader
	stdoutW, stderrW *io.PipeWriter

	mu       sync.Mutex
	stdin    strings.Builder
	writeErr error

	exited    chan struct{}
	exitOnce  sync.Once
	closeOnce sync.Once
	waitErr   error
	outClosed bool
}

func newFakeInterp() *fakeInterp {
	f := &fakeInterp{exited: make(chan struct{})}
	f.stdoutR, f.stdoutW = io.Pipe()
	f.stderrR, f.stderrW = io.Pipe()
	return f
}

func (f *fakeInterp) Stdout() io.Reader { return f.stdoutR }
func (f *fakeInterp) Stderr() io.Reader { return f.stderrR }
func (f *fakeInterp) Pid() int          { return 4242 }

func (f *fakeInterp) WriteLine(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.stdin.WriteString(text + shell.LineTerminator)
	return nil
}

func (f *fakeInterp) Wait() error {
	<-f.exited
	return f.waitErr
}

func (f *fakeInterp) Kill() error {
	f.exit()
	return nil
}

func (f *fakeInterp) CloseOutput() error {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.outClosed = true
		f.mu.Unlock()
		f.stdoutR.Close()
		f.stderrR.Close()
	})
	return nil
}

// exit ends the interpreter and its output streams.
func (f *fakeInterp) exit() {
	f.stdoutW.Close()
	f.stderrW.Close()
	f.exitKeepingOutput()
}

// exitKeepingOutput ends the interpreter while its output streams stay
// open, as when a background child inherited them.
func (f *fakeInterp) exitKeepingOutput() {
	f.exitOnce.Do(func() { close(f.exited) })
}

func (f *fakeInterp) outputClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outClosed
}

func (f *fakeInterp) out(s string) { _, _ = f.stdoutW.Write([]byte(s)) }
func (f *fakeInterp) err(s string) { _, _ = f.stderrW.Write([]byte(s)) }

func (f *fakeInterp) written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stdin.String()
}

type memCommand struct {
	sessionID, text, dir string
	finished             bool
	hasErrors            bool
}

// memStore is an in-memory Store.
type memStore struct {
	mu       sync.Mutex
	dir      string
	loadErr  error
	sessions map[string]int // id -> exit code, -99 while running
	commands []*memCommand
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]int)}
}

func (s *memStore) CurrentDirectory() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir, s.loadErr
}

func (s *memStore) SetCurrentDirectory(dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dir = dir
	return nil
}

func (s *memStore) BeginSession(id, shellCmd, dir string, pid int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = -99
	return nil
}

func (s *memStore) EndSession(id, dir string, exitCode int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return errors.New("unknown session")
	}
	s.sessions[id] = exitCode
	return nil
}

func (s *memStore) RecordCommand(sessionID, text, dir string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commands = append(s.commands, &memCommand{sessionID: sessionID, text: text, dir: dir})
	return int64(len(s.commands)), nil
}

func (s *memStore) FinishCommand(id int64, at time.Time, hasErrors bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.commands[id-1]
	c.finished = true
	c.hasErrors = hasErrors
	return nil
}

func (s *memStore) snapshot() (string, map[string]int, []memCommand) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sessions := make(map[string]int, len(s.sessions))
	for k, v := range s.sessions {
		sessions[k] = v
	}
	cmds := make([]memCommand, len(s.commands))
	for i, c := range s.commands {
		cmds[i] = *c
	}
	return s.dir, sessions, cmds
}
