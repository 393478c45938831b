package shell

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// DefaultTerminator ends the prompt of cmd.exe and of the POSIX shells
// started with PS1='$PWD>'.
const DefaultTerminator = ">"

// PromptDetector decides from output text whether the interpreter is back
// at its prompt. There is no structured ready signal from the interpreter,
// so this is a heuristic: the text must end with a line that is a path
// followed by the terminator, and the path must be an existing directory.
//
// Known misses: multi-line prompts and prompts whose text is not the
// working directory. Pattern covers the latter for users who configure it.
type PromptDetector struct {
	// Terminator is the prompt suffix (default ">").
	Terminator string

	// Pattern, when set, replaces the path+terminator rule. It is matched
	// against the last line only and its first capture group is the
	// directory. The existence check still applies.
	Pattern *regexp.Regexp

	// Stat is used for the existence check (os.Stat when nil).
	Stat func(name string) (os.FileInfo, error)
}

// NewPromptDetector builds a detector from configuration values. pattern may
// be empty; when set it must compile and contain a capture group.
func NewPromptDetector(terminator, pattern string) (*PromptDetector, error) {
	d := &PromptDetector{Terminator: terminator}
	if d.Terminator == "" {
		d.Terminator = DefaultTerminator
	}
	if pattern != "" {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("prompt pattern: %w", err)
		}
		if re.NumSubexp() < 1 {
			return nil, fmt.Errorf("prompt pattern %q: needs a capture group for the directory", pattern)
		}
		d.Pattern = re
	}
	return d, nil
}

var defaultDetector = &PromptDetector{Terminator: DefaultTerminator}

// DetectPrompt runs the default detector (">" terminator, os.Stat).
func DetectPrompt(text string) (string, bool) {
	return defaultDetector.Detect(text)
}

// Detect returns the working directory shown by the prompt on the last line
// of text. Only the final line is examined, found by scanning back from the
// end, so the cost does not grow with the size of text.
func (d *PromptDetector) Detect(text string) (string, bool) {
	line := LastLine(text)
	if line == "" {
		return "", false
	}

	var dir string
	if d.Pattern != nil {
		m := d.Pattern.FindStringSubmatch(line)
		if m == nil || m[1] == "" {
			return "", false
		}
		dir = m[1]
	} else {
		term := d.Terminator
		if term == "" {
			term = DefaultTerminator
		}
		return d.matchPrompts(line, term)
	}

	if !d.isDir(dir) {
		return "", false
	}
	return dir, true
}

// matchPrompts matches line as "<dir><term>". A shell that does not echo
// its input prints the next prompt right after the previous one when a
// command writes nothing, so a line made of several prompts in a row
// matches with the directory of the last one.
func (d *PromptDetector) matchPrompts(line, term string) (string, bool) {
	if !strings.HasSuffix(line, term) {
		return "", false
	}
	body := line[:len(line)-len(term)]
	if body == "" {
		return "", false
	}
	if d.isDir(body) {
		return body, true
	}
	for i := 0; ; {
		j := strings.Index(body[i:], term)
		if j < 0 {
			return "", false
		}
		cut := i + j + len(term)
		if dir := body[cut:]; dir != "" && d.isDir(dir) {
			if _, ok := d.matchPrompts(body[:cut], term); ok {
				return dir, true
			}
		}
		i = cut
	}
}

// IsPromptOnly reports whether chunk carries nothing but a prompt line
// (optionally preceded by line breaks). POSIX shells print their prompt on
// stderr, which must not be mistaken for command errors.
func (d *PromptDetector) IsPromptOnly(chunk string) bool {
	trimmed := strings.TrimLeft(chunk, "\r\n")
	if trimmed == "" || strings.ContainsAny(trimmed, "\r\n") {
		return false
	}
	_, ok := d.Detect(trimmed)
	return ok
}

func (d *PromptDetector) isDir(path string) bool {
	stat := d.Stat
	if stat == nil {
		stat = os.Stat
	}
	info, err := stat(path)
	return err == nil && info.IsDir()
}

// LastLine returns the text after the final '\n', without a trailing '\r'.
func LastLine(text string) string {
	if i := strings.LastIndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	}
	return strings.TrimSuffix(text, "\r")
}
