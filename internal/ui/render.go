package ui

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/shell-deck/internal/session"
)

const tabWidth = 8

// sanitizeOutput makes raw interpreter output safe to draw: CRLF becomes LF,
// lone CRs are dropped, tabs expand to the next stop and other control
// characters (ESC included) are removed. Escape sequences are not
// interpreted, so their printable tail stays visible.
func sanitizeOutput(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	col := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == '\n':
			b.WriteByte('\n')
			col = 0
		case r == '\t':
			n := tabWidth - col%tabWidth
			b.WriteString(strings.Repeat(" ", n))
			col += n
		case r == '\r', unicode.IsControl(r):
		case r == utf8.RuneError && size == 1:
			b.WriteRune(utf8.RuneError)
			col++
		default:
			b.WriteRune(r)
			col += runewidth.RuneWidth(r)
		}
	}
	return b.String()
}

// wrapLines hard-wraps every line to width display cells.
func wrapLines(text string, width int) string {
	if width <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if runewidth.StringWidth(line) <= width {
			out = append(out, line)
			continue
		}
		var cur strings.Builder
		w := 0
		for _, r := range line {
			rw := runewidth.RuneWidth(r)
			if w+rw > width && w > 0 {
				out = append(out, cur.String())
				cur.Reset()
				w = 0
			}
			cur.WriteRune(r)
			w += rw
		}
		out = append(out, cur.String())
	}
	return strings.Join(out, "\n")
}

// buttonSegment is one shortcut button before styling.
type buttonSegment struct {
	key   string
	label string
}

func (s buttonSegment) width() int {
	return runewidth.StringWidth(s.key) + 1 + runewidth.StringWidth(s.label)
}

// layoutButtons fits as many shortcut buttons into width cells as possible.
// The last one that does not fit gets its label truncated.
func layoutButtons(shortcuts []session.Shortcut, width int) []buttonSegment {
	const sep = 3 // " │ "
	var segs []buttonSegment
	used := 0
	for i, s := range shortcuts {
		if i >= session.MaxShortcuts {
			break
		}
		seg := buttonSegment{key: fmt.Sprintf("F%d", i+1), label: s.DisplayLabel()}
		need := seg.width()
		if len(segs) > 0 {
			need += sep
		}
		if used+need > width {
			room := width - used - (need - runewidth.StringWidth(seg.label))
			if room >= 2 {
				seg.label = runewidth.Truncate(seg.label, room, "…")
				segs = append(segs, seg)
			}
			break
		}
		segs = append(segs, seg)
		used += need
	}
	return segs
}

func renderButtonBar(shortcuts []session.Shortcut, width int) string {
	segs := layoutButtons(shortcuts, width)
	if len(segs) == 0 {
		return ""
	}
	themeMu.RLock()
	defer themeMu.RUnlock()
	parts := make([]string, 0, len(segs))
	for _, s := range segs {
		parts = append(parts, MenuKeyStyle.Render(s.key)+" "+MenuDescStyle.Render(s.label))
	}
	return strings.Join(parts, MenuSeparatorStyle.Render(" │ "))
}

// truncateLeft keeps the right end of s within width cells, which is the
// informative part of a long path.
func truncateLeft(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	rs := []rune(s)
	w := 1 // leading ellipsis
	i := len(rs)
	for i > 0 {
		rw := runewidth.RuneWidth(rs[i-1])
		if w+rw > width {
			break
		}
		w += rw
		i--
	}
	return "…" + string(rs[i:])
}
