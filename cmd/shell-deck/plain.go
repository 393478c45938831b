package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/asheshgoplani/shell-deck/internal/session"
)

// maxLineBytes bounds one line read from stdin in plain mode.
const maxLineBytes = 1024 * 1024

// lineController is what plain mode needs from session.Controller.
type lineController interface {
	SubmitInput(line string) bool
	Refresh() session.Update
	State() session.State
	Done() <-chan struct{}
	Close() error
}

// plainPrinter writes only the output that arrived since its last print.
type plainPrinter struct {
	out     io.Writer
	printed int // runes written so far
}

func (p *plainPrinter) print(u session.Update) {
	n := u.Total - p.printed
	if n <= 0 {
		return
	}
	text := []rune(u.Text)
	if n > len(text) {
		// Output scrolled past the render window between two refreshes.
		n = len(text)
	}
	fmt.Fprint(p.out, string(text[len(text)-n:]))
	p.printed = u.Total
}

// runPlain drives the session without a UI: interpreter output is copied to
// out and lines from in are submitted one at a time, each once the
// interpreter is back at its prompt. At the end of in the session is closed
// as soon as the last command has finished.
func runPlain(ctx context.Context, ctrl lineController, refresh <-chan struct{}, in io.Reader, out io.Writer) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)

	go func() {
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-stop:
				return
			}
		}
		readErr <- sc.Err()
		close(lines)
	}()

	p := &plainPrinter{out: out}
	var queue []string
	eof := false
	for {
		select {
		case <-ctx.Done():
			_ = ctrl.Close()
			p.print(ctrl.Refresh())
			return nil
		case <-ctrl.Done():
			p.print(ctrl.Refresh())
			return nil
		case <-refresh:
			p.print(ctrl.Refresh())
		case line, ok := <-lines:
			if !ok {
				lines = nil
				eof = true
				if err := <-readErr; err != nil {
					mainLog.Warn("stdin_read_failed", slog.String("error", err.Error()))
				}
				break
			}
			queue = append(queue, line)
		}

		for len(queue) > 0 && ctrl.SubmitInput(queue[0]) {
			queue = queue[1:]
		}
		if eof && len(queue) == 0 && ctrl.State() == session.StateIdle {
			if err := ctrl.Close(); err != nil {
				return fmt.Errorf("close session: %w", err)
			}
			p.print(ctrl.Refresh())
			return nil
		}
	}
}
