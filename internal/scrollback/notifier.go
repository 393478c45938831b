package scrollback

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/asheshgoplani/shell-deck/internal/logging"
)

// Notifier appends output to a Buffer and keeps at most one UI refresh
// pending. The pending flag is guarded by the buffer's own mutex: an append
// either lands before the refresh takes its snapshot or sees the flag cleared
// and schedules the next refresh.
type Notifier struct {
	buf      *Buffer
	schedule func()

	// guarded by buf.mu
	pending   bool
	scheduled int64
	coalesced int64
}

// NewNotifier wires buf to schedule. schedule must hand the refresh to the
// render goroutine and return without waiting for it.
func NewNotifier(buf *Buffer, schedule func()) *Notifier {
	return &Notifier{buf: buf, schedule: schedule}
}

// Buffer returns the buffer behind the notifier.
func (n *Notifier) Buffer() *Buffer {
	return n.buf
}

// Append adds text and schedules a refresh unless one is already pending.
// It reports whether this call scheduled the refresh.
func (n *Notifier) Append(text string) bool {
	if text == "" {
		return false
	}

	n.buf.mu.Lock()
	n.buf.appendLocked(text)
	first := !n.pending
	if first {
		n.pending = true
		n.scheduled++
	} else {
		n.coalesced++
	}
	n.buf.mu.Unlock()

	if first {
		n.schedule()
	} else {
		logging.Aggregate(logging.CompScrollback, "refresh_coalesced")
	}
	return first
}

// Write implements io.Writer on top of Append.
func (n *Notifier) Write(p []byte) (int, error) {
	n.Append(string(p))
	return len(p), nil
}

// Refresh takes the snapshot for a redraw and clears the pending flag in the
// same critical section. Call it from the render goroutine.
func (n *Notifier) Refresh() string {
	n.buf.mu.Lock()
	defer n.buf.mu.Unlock()
	n.pending = false
	return n.buf.tailLocked()
}

// RefreshMark is Refresh plus the number of runes appended so far, taken
// in the same critical section.
func (n *Notifier) RefreshMark() (string, int) {
	n.buf.mu.Lock()
	defer n.buf.mu.Unlock()
	n.pending = false
	return n.buf.tailLocked(), n.buf.total
}

// Pending reports whether a refresh is scheduled and not yet run.
func (n *Notifier) Pending() bool {
	n.buf.mu.Lock()
	defer n.buf.mu.Unlock()
	return n.pending
}

// Stats returns how many refreshes were scheduled and how many appends were
// folded into an already pending one.
func (n *Notifier) Stats() (scheduled, coalesced int64) {
	n.buf.mu.Lock()
	defer n.buf.mu.Unlock()
	return n.scheduled, n.coalesced
}

// Throttled wraps schedule so that refreshes are handed over no faster than
// limiter allows. The wait happens on its own goroutine; since the notifier
// never has more than one refresh pending there is at most one such
// goroutine at a time. A nil limiter returns schedule unchanged.
func Throttled(ctx context.Context, limiter *rate.Limiter, schedule func()) func() {
	if limiter == nil {
		return schedule
	}
	return func() {
		go func() {
			if err := limiter.Wait(ctx); err != nil {
				logging.ForComponent(logging.CompScrollback).Debug("refresh_throttle_aborted",
					slog.String("error", err.Error()))
				return
			}
			schedule()
		}()
	}
}
