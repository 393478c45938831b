// Package scrollback holds the interpreter's output for one session and
// decides when the UI needs to redraw it.
package scrollback

import (
	"io"
	"sync"
	"unicode/utf8"
)

const (
	// DefaultLimit is the number of runes exposed by Snapshot.
	DefaultLimit = 128 * 1024

	// DefaultRetainBytes is how much raw output is kept behind the view.
	DefaultRetainBytes = 4 * 1024 * 1024
)

// Buffer is an append-only text store whose exported view is the last
// Limit runes of everything appended. Appends and snapshots may race freely.
//
// The store is trimmed from the front once it exceeds its retention size,
// but never below what the view needs, so trimming is invisible to Snapshot.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	limit  int
	retain int // 0 = unbounded
	total  int // runes ever appended
}

// NewBuffer creates a buffer whose Snapshot returns at most limit runes.
func NewBuffer(limit int) *Buffer {
	return NewBufferWithRetention(limit, DefaultRetainBytes)
}

// NewBufferWithRetention is NewBuffer with an explicit store size in bytes.
// retainBytes <= 0 keeps everything for the life of the buffer.
func NewBufferWithRetention(limit, retainBytes int) *Buffer {
	if limit < 0 {
		limit = 0
	}
	if retainBytes > 0 {
		// Trimming keeps half the store; that half must still cover the view.
		if floor := 2 * limit * utf8.UTFMax; retainBytes < floor {
			retainBytes = floor
		}
	}
	return &Buffer{limit: limit, retain: retainBytes}
}

// Limit returns the view size in runes.
func (b *Buffer) Limit() int {
	return b.limit
}

// Append adds text to the end of the buffer.
func (b *Buffer) Append(text string) {
	if text == "" {
		return
	}
	b.mu.Lock()
	b.appendLocked(text)
	b.mu.Unlock()
}

// Write implements io.Writer so a Buffer can sit behind io.Copy or a
// MultiWriter. It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Append(string(p))
	return len(p), nil
}

// Snapshot returns the trailing Limit runes appended so far.
func (b *Buffer) Snapshot() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tailLocked()
}

// Len returns the number of runes ever appended, including trimmed ones.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// WriteTo writes everything still retained (not only the view) to w.
func (b *Buffer) WriteTo(w io.Writer) (int64, error) {
	b.mu.Lock()
	data := append([]byte(nil), b.data...)
	b.mu.Unlock()

	n, err := w.Write(data)
	return int64(n), err
}

func (b *Buffer) appendLocked(text string) {
	b.data = append(b.data, text...)
	b.total += utf8.RuneCountInString(text)

	if b.retain > 0 && len(b.data) > b.retain {
		cut := len(b.data) - b.retain/2
		for cut < len(b.data) && !utf8.RuneStart(b.data[cut]) {
			cut++
		}
		b.data = append(b.data[:0], b.data[cut:]...)
	}
}

// tailLocked walks back from the end, so its cost is bounded by the view
// size and not by how much output the session produced.
func (b *Buffer) tailLocked() string {
	if b.limit == 0 {
		return ""
	}
	i := len(b.data)
	for n := 0; i > 0 && n < b.limit; n++ {
		_, size := utf8.DecodeLastRune(b.data[:i])
		i -= size
	}
	return string(b.data[i:])
}
