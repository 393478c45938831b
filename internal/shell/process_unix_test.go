//go:build !windows

package shell

import (
	"io"
	"os/exec"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func requireSh(t *testing.T) string {
	t.Helper()
	path, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return path
}

func TestProcessRoundTrip(t *testing.T) {
	sh := requireSh(t)
	dir := t.TempDir()

	// A tiny REPL printing a "$PWD>" prompt on stdout after each line.
	script := `printf '%s>' "$PWD"; while IFS= read -r line; do eval "$line"; printf '%s>' "$PWD"; done`
	p, err := Start(Options{Command: sh, Args: []string{"-c", script}, Dir: dir})
	require.NoError(t, err)
	assert.Positive(t, p.Pid())

	var out, errOut strings.Builder
	var g errgroup.Group
	g.Go(func() error { _, err := io.Copy(&out, p.Stdout()); return err })
	g.Go(func() error { _, err := io.Copy(&errOut, p.Stderr()); return err })

	require.NoError(t, p.WriteLine("echo hello"))
	require.NoError(t, p.WriteLine("echo oops 1>&2"))
	require.NoError(t, p.WriteLine("exit 0"))

	require.NoError(t, g.Wait())
	require.NoError(t, p.Wait())

	assert.Equal(t, dir+">hello\n"+dir+">"+dir+">", out.String())
	assert.Equal(t, "oops\n", errOut.String())
}

func TestProcessKill(t *testing.T) {
	sh := requireSh(t)
	p, err := Start(Options{Command: sh, Args: []string{"-c", "sleep 30"}})
	require.NoError(t, err)

	var g errgroup.Group
	g.Go(func() error { _, err := io.Copy(io.Discard, p.Stdout()); return err })
	g.Go(func() error { _, err := io.Copy(io.Discard, p.Stderr()); return err })

	require.NoError(t, p.Kill())
	require.NoError(t, g.Wait())
	assert.Error(t, p.Wait(), "killed process reports a non-zero exit")
}

func TestWaitDoesNotWaitForInheritedOutput(t *testing.T) {
	sh := requireSh(t)
	p, err := Start(Options{Command: sh, Args: []string{"-c", "sleep 5 & exit 0"}})
	require.NoError(t, err)
	pgid := p.Pid()
	t.Cleanup(func() { _ = syscall.Kill(-pgid, syscall.SIGKILL) })

	waited := make(chan error, 1)
	go func() { waited <- p.Wait() }()
	select {
	case err := <-waited:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Wait blocked on output held by a background child")
	}

	pumped := make(chan error, 1)
	go func() { pumped <- NewPump(Stdout, p.Stdout(), func(Chunk) {}, 0).Run() }()

	require.NoError(t, p.CloseOutput())
	select {
	case err := <-pumped:
		assert.NoError(t, err, "closed stream ends the pump cleanly")
	case <-time.After(3 * time.Second):
		t.Fatal("pump still blocked after CloseOutput")
	}
	assert.NoError(t, p.CloseOutput(), "second close is a no-op")
}

func TestStartFailsForMissingCommand(t *testing.T) {
	_, err := Start(Options{Command: "/definitely/not/a/shell"})
	require.Error(t, err)

	_, err = Start(Options{})
	require.Error(t, err)
}
