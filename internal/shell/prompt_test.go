package shell

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDirs answers Stat for a fixed set of directories, so Windows-style
// paths can be tested on any host.
type fakeDirs map[string]bool

func (f fakeDirs) stat(name string) (os.FileInfo, error) {
	if f[name] {
		return dirInfo(name), nil
	}
	return nil, fs.ErrNotExist
}

type dirInfo string

func (d dirInfo) Name() string       { return filepath.Base(string(d)) }
func (d dirInfo) Size() int64        { return 0 }
func (d dirInfo) Mode() fs.FileMode  { return fs.ModeDir | 0o755 }
func (d dirInfo) ModTime() time.Time { return time.Time{} }
func (d dirInfo) IsDir() bool        { return true }
func (d dirInfo) Sys() any           { return nil }

func TestDetectWindowsPrompt(t *testing.T) {
	d := &PromptDetector{Terminator: ">", Stat: fakeDirs{`C:\Users\x`: true}.stat}

	dir, ok := d.Detect("C:\\Users\\x>dir\nfile.txt\nC:\\Users\\x>")
	require.True(t, ok)
	assert.Equal(t, `C:\Users\x`, dir)

	_, ok = d.Detect("C:\\Users\\x>dir\nfile.txt\nC:\\Users\\nobody>")
	assert.False(t, ok, "nonexistent directory must not count as a prompt")
}

func TestDetectConsecutivePrompts(t *testing.T) {
	d := &PromptDetector{Terminator: ">", Stat: fakeDirs{"/home/me": true, "/tmp": true}.stat}

	dir, ok := d.Detect("/home/me>/tmp>")
	require.True(t, ok, "cd prints nothing, so the next prompt shares the line")
	assert.Equal(t, "/tmp", dir)

	dir, ok = d.Detect("hi\n/home/me>/home/me>/home/me>")
	require.True(t, ok, "continuation prompts")
	assert.Equal(t, "/home/me", dir)

	_, ok = d.Detect("out>/tmp>")
	assert.False(t, ok, "text before the last prompt must itself be prompts")

	_, ok = d.Detect("/home/me>/nowhere>")
	assert.False(t, ok)

	_, ok = d.Detect(">>/tmp>")
	assert.False(t, ok)
}

func TestDetectRealDirectory(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "plain.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{"prompt only", dir + ">", dir, true},
		{"after output", "ls\nplain.txt\n" + dir + ">", dir, true},
		{"crlf output", "out\r\n" + dir + ">", dir, true},
		{"prompt mid buffer", dir + ">\nstill running", "", false},
		{"trailing newline", dir + ">\n", "", false},
		{"typed after prompt", dir + ">echo", "", false},
		{"file not dir", file + ">", "", false},
		{"missing path", filepath.Join(dir, "missing") + ">", "", false},
		{"bare terminator", "\n>", "", false},
		{"empty", "", "", false},
		{"html-ish output", "<b>bold</b>", "", false},
	}
	d := &PromptDetector{Terminator: ">"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := d.Detect(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectPromptDefault(t *testing.T) {
	dir := t.TempDir()
	got, ok := DetectPrompt("banner\n" + dir + ">")
	require.True(t, ok)
	assert.Equal(t, dir, got)
}

func TestDetectCustomTerminator(t *testing.T) {
	dir := t.TempDir()
	d, err := NewPromptDetector("$ ", "")
	require.NoError(t, err)

	got, ok := d.Detect("x\n" + dir + "$ ")
	require.True(t, ok)
	assert.Equal(t, dir, got)

	_, ok = d.Detect(dir + ">")
	assert.False(t, ok)
}

func TestDetectCustomPattern(t *testing.T) {
	dir := t.TempDir()
	d, err := NewPromptDetector("", `^user@host:(.+)\$ $`)
	require.NoError(t, err)

	got, ok := d.Detect("output\nuser@host:" + dir + "$ ")
	require.True(t, ok)
	assert.Equal(t, dir, got)

	_, ok = d.Detect("user@host:" + dir + "$ \nmore")
	assert.False(t, ok)
}

func TestNewPromptDetectorRejectsBadPattern(t *testing.T) {
	_, err := NewPromptDetector(">", "(")
	require.Error(t, err)

	_, err = NewPromptDetector(">", "no-group")
	require.Error(t, err)

	d, err := NewPromptDetector("", "")
	require.NoError(t, err)
	assert.Equal(t, DefaultTerminator, d.Terminator)
}

func TestDetectLargeInput(t *testing.T) {
	dir := t.TempDir()
	big := strings.Repeat("line of output that is not a prompt>\n", 200_000)

	start := time.Now()
	got, ok := DetectPrompt(big + dir + ">")
	require.True(t, ok)
	assert.Equal(t, dir, got)

	_, ok = DetectPrompt(big)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestIsPromptOnly(t *testing.T) {
	dir := t.TempDir()
	d := &PromptDetector{Terminator: ">"}

	assert.True(t, d.IsPromptOnly(dir+">"))
	assert.True(t, d.IsPromptOnly("\n"+dir+">"))
	assert.False(t, d.IsPromptOnly("error: boom\n"+dir+">"))
	assert.False(t, d.IsPromptOnly("error: boom\n"))
	assert.False(t, d.IsPromptOnly(""))
}

func TestLastLine(t *testing.T) {
	assert.Equal(t, "c", LastLine("a\nb\nc"))
	assert.Equal(t, "c", LastLine("a\r\nc\r"))
	assert.Equal(t, "", LastLine("a\n"))
	assert.Equal(t, "solo", LastLine("solo"))
}

func TestStatErrorIsNoMatch(t *testing.T) {
	d := &PromptDetector{Stat: func(string) (os.FileInfo, error) { return nil, errors.New("denied") }}
	_, ok := d.Detect("/root>")
	assert.False(t, ok)
}
