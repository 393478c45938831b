package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/shell-deck/internal/session"
)

// scriptedController answers every command with one output line and a new
// prompt, the way an interpreter at "/tmp>" would.
type scriptedController struct {
	mu        sync.Mutex
	output    strings.Builder
	busy      bool
	prompted  bool // a prompt is waiting for the next Refresh
	submitted []string
	closed    bool

	refresh  chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

func newScriptedController() *scriptedController {
	c := &scriptedController{
		refresh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	c.output.WriteString("/tmp>")
	c.schedule()
	return c
}

func (c *scriptedController) schedule() {
	select {
	case c.refresh <- struct{}{}:
	default:
	}
}

func (c *scriptedController) SubmitInput(line string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy || c.closed {
		return false
	}
	c.busy = true
	c.submitted = append(c.submitted, line)
	c.output.WriteString("out:" + line + "\n/tmp>")
	c.prompted = true
	c.schedule()
	return true
}

func (c *scriptedController) Refresh() session.Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prompted {
		c.busy = false
		c.prompted = false
	}
	text := c.output.String()
	return session.Update{Text: text, Total: utf8.RuneCountInString(text), Running: c.busy}
}

func (c *scriptedController) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.closed:
		return session.StateExited
	case c.busy:
		return session.StateBusy
	default:
		return session.StateIdle
	}
}

func (c *scriptedController) Done() <-chan struct{} {
	return c.done
}

func (c *scriptedController) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.doneOnce.Do(func() { close(c.done) })
	return nil
}

func runPlainAsync(t *testing.T, ctx context.Context, c *scriptedController, in io.Reader, out io.Writer) <-chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- runPlain(ctx, c, c.refresh, in, out) }()
	return errCh
}

func TestRunPlainSubmitsLinesInOrder(t *testing.T) {
	c := newScriptedController()
	var out bytes.Buffer

	errCh := runPlainAsync(t, context.Background(), c, strings.NewReader("echo a\necho b\n"), &out)
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runPlain did not return")
	}

	assert.Equal(t, []string{"echo a", "echo b"}, c.submitted)
	assert.True(t, c.closed, "session closed after the last command finished")
	assert.Equal(t, "/tmp>out:echo a\n/tmp>out:echo b\n/tmp>", out.String())
}

func TestRunPlainReturnsWhenInterpreterExits(t *testing.T) {
	c := newScriptedController()
	var out bytes.Buffer
	in, inW := io.Pipe()
	defer inW.Close()

	errCh := runPlainAsync(t, context.Background(), c, in, &out)

	c.mu.Lock()
	c.output.WriteString("bye\n")
	c.mu.Unlock()
	c.doneOnce.Do(func() { close(c.done) })

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runPlain did not return")
	}
	assert.Equal(t, "/tmp>bye\n", out.String())
}

func TestRunPlainContextCancel(t *testing.T) {
	c := newScriptedController()
	in, inW := io.Pipe()
	defer inW.Close()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := runPlainAsync(t, ctx, c, in, io.Discard)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runPlain did not return")
	}
	assert.True(t, c.closed)
}

func TestPlainPrinterPrintsOnlyNewOutput(t *testing.T) {
	var out bytes.Buffer
	p := &plainPrinter{out: &out}

	p.print(session.Update{Text: "héllo", Total: 5})
	p.print(session.Update{Text: "héllo", Total: 5})
	p.print(session.Update{Text: "héllo wörld", Total: 11})
	assert.Equal(t, "héllo wörld", out.String())

	// The render window moved on by more than it holds.
	out.Reset()
	p.print(session.Update{Text: "wxyz", Total: 30})
	assert.Equal(t, "wxyz", out.String())
	assert.Equal(t, 30, p.printed)
}
