package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// outputMsg tells Home that new interpreter output is waiting.
type outputMsg struct{}

// Refresher hands output refreshes from the pump goroutines to the
// bubbletea goroutine. Schedule never blocks: the channel holds one signal
// and a second signal while one is queued carries no extra information.
type Refresher struct {
	ch chan struct{}
}

// NewRefresher creates a Refresher.
func NewRefresher() *Refresher {
	return &Refresher{ch: make(chan struct{}, 1)}
}

// Schedule queues a refresh. Safe for concurrent use.
func (r *Refresher) Schedule() {
	select {
	case r.ch <- struct{}{}:
	default:
	}
}

// Pending reports whether a refresh is queued and not yet picked up.
func (r *Refresher) Pending() bool {
	return len(r.ch) > 0
}

// C delivers one value per queued refresh, for frontends that are not
// bubbletea programs.
func (r *Refresher) C() <-chan struct{} {
	return r.ch
}

// listenForOutput waits for the next scheduled refresh.
func listenForOutput(r *Refresher) tea.Cmd {
	return func() tea.Msg {
		if r == nil {
			return nil
		}
		<-r.ch
		return outputMsg{}
	}
}
