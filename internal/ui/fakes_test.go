package ui

import (
	"sync"

	"github.com/asheshgoplani/shell-deck/internal/session"
)

// fakeController accepts input while idle and records what was submitted.
type fakeController struct {
	mu        sync.Mutex
	busy      bool
	update    session.Update
	submitted []string
	shortcuts []session.Shortcut
	refreshes int
	done      chan struct{}
}

func newFakeController() *fakeController {
	return &fakeController{
		update: session.Update{State: session.StateIdle, WorkingDir: "/tmp"},
		done:   make(chan struct{}),
	}
}

func (f *fakeController) Submit(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy || f.update.State == session.StateExited {
		return false
	}
	f.submitted = append(f.submitted, text)
	return true
}

func (f *fakeController) SubmitInput(line string) bool {
	return f.Submit(session.ResolveAlias(f.Shortcuts(), line))
}

func (f *fakeController) Refresh() session.Update {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.update
}

func (f *fakeController) Shortcuts() []session.Shortcut {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shortcuts
}

func (f *fakeController) Done() <-chan struct{} {
	return f.done
}

func (f *fakeController) setUpdate(u session.Update) {
	f.mu.Lock()
	f.update = u
	f.busy = u.Running
	f.mu.Unlock()
}

func (f *fakeController) setShortcuts(s []session.Shortcut) {
	f.mu.Lock()
	f.shortcuts = s
	f.mu.Unlock()
}

func (f *fakeController) submissions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.submitted...)
}
