package ui

import (
	"strings"
	"testing"

	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"

	"github.com/asheshgoplani/shell-deck/internal/session"
)

func TestSanitizeOutput(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"crlf", "a\r\nb\r\n", "a\nb\n"},
		{"lone cr", "50%\r100%", "50%100%"},
		{"tab stops", "a\tb\n\tc", "a       b\n        c"},
		{"escape dropped", "\x1b[31mred\x1b[0m", "[31mred[0m"},
		{"bell and backspace", "ding\a\b!", "ding!"},
		{"unicode kept", "C:\\Users\\José>", "C:\\Users\\José>"},
		{"invalid utf8", "a\xffb", "a\uFFFDb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeOutput(tt.in))
		})
	}
}

func TestWrapLines(t *testing.T) {
	assert.Equal(t, "abc\ndef\ng", wrapLines("abcdefg", 3))
	assert.Equal(t, "ab\n\ncd", wrapLines("ab\n\ncd", 3))
	assert.Equal(t, "unchanged", wrapLines("unchanged", 0))

	// Wide runes take two cells and never split.
	wrapped := wrapLines("日本語テキスト", 5)
	for _, line := range strings.Split(wrapped, "\n") {
		assert.LessOrEqual(t, runewidth.StringWidth(line), 5)
	}
	assert.Equal(t, "日本語テキスト", strings.ReplaceAll(wrapped, "\n", ""))
}

func TestLayoutButtons(t *testing.T) {
	shortcuts := []session.Shortcut{
		{Label: "List", Command: "ls"},
		{Command: "git status"},
		{Label: "A very long label indeed", Command: "x"},
	}

	segs := layoutButtons(shortcuts, 200)
	assert.Len(t, segs, 3)
	assert.Equal(t, "F1", segs[0].key)
	assert.Equal(t, "git status", segs[1].label, "falls back to command text")

	// "F1 List" (7) + " │ " (3) + "F2 git status" (13) = 23
	segs = layoutButtons(shortcuts, 23)
	assert.Len(t, segs, 2)

	segs = layoutButtons(shortcuts, 35)
	assert.Len(t, segs, 3)
	assert.True(t, strings.HasSuffix(segs[2].label, "…"))
	total := 0
	for i, s := range segs {
		if i > 0 {
			total += 3
		}
		total += s.width()
	}
	assert.LessOrEqual(t, total, 35)

	assert.Empty(t, layoutButtons(nil, 80))
}

func TestLayoutButtonsCapsAtTwelve(t *testing.T) {
	var shortcuts []session.Shortcut
	for i := 0; i < 20; i++ {
		shortcuts = append(shortcuts, session.Shortcut{Label: "x", Command: "x"})
	}
	segs := layoutButtons(shortcuts, 1000)
	assert.Len(t, segs, session.MaxShortcuts)
	assert.Equal(t, "F12", segs[11].key)
}

func TestTruncateLeft(t *testing.T) {
	assert.Equal(t, "/short", truncateLeft("/short", 20))
	assert.Equal(t, "…/c/d", truncateLeft("/a/b/c/d", 5))
	assert.Equal(t, "", truncateLeft("/a", 0))
}

func TestRefresherScheduleNeverBlocks(t *testing.T) {
	r := NewRefresher()
	assert.False(t, r.Pending())
	for i := 0; i < 100; i++ {
		r.Schedule()
	}
	assert.True(t, r.Pending())

	assert.Equal(t, outputMsg{}, listenForOutput(r)())
	assert.False(t, r.Pending())
}

func TestStatusIndicator(t *testing.T) {
	tests := []struct {
		u    session.Update
		want string
	}{
		{session.Update{State: session.StateNotStarted}, "STARTING"},
		{session.Update{State: session.StateIdle}, "IDLE"},
		{session.Update{State: session.StateBusy, Running: true}, "RUNNING"},
		{session.Update{State: session.StateIdle, HasErrors: true}, "ERRORS"},
		{session.Update{State: session.StateExited, HasErrors: true}, "EXITED"},
	}
	for _, tt := range tests {
		assert.Contains(t, StatusIndicator(tt.u), tt.want)
	}
}

func TestInitTheme(t *testing.T) {
	defer InitTheme("dark")

	InitTheme("light")
	assert.Equal(t, ThemeLight, GetCurrentTheme())
	assert.Equal(t, lightColors.Accent, ColorAccent)

	InitTheme("bogus")
	assert.Equal(t, ThemeDark, GetCurrentTheme())
	assert.Equal(t, darkColors.Accent, ColorAccent)
	assert.NotEmpty(t, string(ColorBg))
}

func TestThemeName(t *testing.T) {
	assert.Equal(t, "dark", themeName(true))
	assert.Equal(t, "light", themeName(false))
}
