// Package clipboard copies interpreter output to the system clipboard.
package clipboard

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/asheshgoplani/shell-deck/internal/platform"
)

// ErrEmpty is returned when there is nothing to copy.
var ErrEmpty = errors.New("no content to copy")

// CopyResult contains metadata about a successful clipboard copy operation.
type CopyResult struct {
	Method    string // pbcopy, clip.exe, wl-copy, xclip, xsel or osc52
	ByteSize  int
	LineCount int
}

// Clipboard picks a copy method for a platform. The zero value is not
// usable; see New.
type Clipboard struct {
	Platform platform.Platform
	// OSC52 allows the terminal escape sequence as a fallback.
	OSC52 bool

	getenv   func(string) string
	lookPath func(string) (string, error)
	run      func(name string, args []string, text string) error
	tty      func(seq string) error
}

// New returns a Clipboard for the running host.
func New(osc52 bool) *Clipboard {
	return &Clipboard{
		Platform: platform.Detect(),
		OSC52:    osc52,
		getenv:   os.Getenv,
		lookPath: exec.LookPath,
		run:      runClipCmd,
		tty:      writeTTY,
	}
}

// Copy copies text using a native clipboard command, falling back to
// OSC 52 when allowed.
func (c *Clipboard) Copy(text string) (*CopyResult, error) {
	if text == "" {
		return nil, ErrEmpty
	}
	result := &CopyResult{ByteSize: len(text), LineCount: countLines(text)}

	method, err := c.copyNative(text)
	if err == nil {
		result.Method = method
		return result, nil
	}

	if c.OSC52 {
		encoded := base64.StdEncoding.EncodeToString([]byte(text))
		if err := c.tty(generateOSC52(encoded, c.getenv("TMUX") != "")); err != nil {
			return nil, fmt.Errorf("OSC 52 clipboard failed: %w", err)
		}
		result.Method = "osc52"
		return result, nil
	}
	return nil, fmt.Errorf("no clipboard method available: %w", err)
}

func (c *Clipboard) copyNative(text string) (string, error) {
	switch c.Platform {
	case platform.PlatformMacOS:
		return "pbcopy", c.run("pbcopy", nil, text)

	case platform.PlatformWindows, platform.PlatformWSL1, platform.PlatformWSL2:
		return "clip.exe", c.run("clip.exe", nil, text)

	case platform.PlatformLinux:
		// Wayland takes priority over X11
		if c.getenv("WAYLAND_DISPLAY") != "" {
			if path, err := c.lookPath("wl-copy"); err == nil {
				return "wl-copy", c.run(path, nil, text)
			}
		}
		if path, err := c.lookPath("xclip"); err == nil {
			return "xclip", c.run(path, []string{"-selection", "clipboard"}, text)
		}
		if path, err := c.lookPath("xsel"); err == nil {
			return "xsel", c.run(path, []string{"--clipboard", "--input"}, text)
		}
		return "", fmt.Errorf("install wl-copy, xclip or xsel")

	default:
		return "", fmt.Errorf("unsupported platform: %s", c.Platform)
	}
}

// runClipCmd executes a clipboard command, piping text to its stdin.
func runClipCmd(name string, args []string, text string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdin = strings.NewReader(text)
	return cmd.Run()
}

// writeTTY writes to the controlling terminal, bypassing the TUI's stdout.
func writeTTY(seq string) error {
	tty, err := os.OpenFile("/dev/tty", os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("cannot open /dev/tty: %w", err)
	}
	defer tty.Close()

	_, err = tty.WriteString(seq)
	return err
}

// generateOSC52 builds the OSC 52 escape sequence, wrapped in a DCS
// passthrough inside tmux.
func generateOSC52(base64Content string, inTmux bool) string {
	osc := "\x1b]52;c;" + base64Content + "\x07"
	if inTmux {
		return "\x1bPtmux;\x1b" + osc + "\x1b\\"
	}
	return osc
}

// countLines counts lines; a trailing newline does not add one.
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}
