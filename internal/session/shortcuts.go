package session

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// MaxShortcuts is how many shortcuts get a function key (F1..F12).
const MaxShortcuts = 12

// Shortcut is a command button. Typing its alias on the command line and
// pressing Enter submits Command instead.
type Shortcut struct {
	Label   string `toml:"label"`
	Alias   string `toml:"alias"`
	Command string `toml:"command"`
}

// DisplayLabel returns Label, falling back to the command text.
func (s Shortcut) DisplayLabel() string {
	if s.Label != "" {
		return s.Label
	}
	return s.Command
}

func normalizeShortcuts(in []Shortcut) []Shortcut {
	out := make([]Shortcut, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s.Command) == "" {
			continue
		}
		s.Alias = strings.ToLower(strings.TrimSpace(s.Alias))
		out = append(out, s)
		if len(out) == MaxShortcuts {
			break
		}
	}
	return out
}

// ResolveAlias returns the command for input when input equals a shortcut
// alias (case-insensitive), otherwise input unchanged.
func ResolveAlias(shortcuts []Shortcut, input string) string {
	key := strings.ToLower(input)
	if key == "" {
		return input
	}
	for _, s := range shortcuts {
		if s.Alias != "" && strings.ToLower(s.Alias) == key {
			return s.Command
		}
	}
	return input
}

// shortcutSource implements fuzzy.Source over aliases and labels
type shortcutSource []Shortcut

func (s shortcutSource) String(i int) string {
	return s[i].Alias + " " + s[i].Label
}

func (s shortcutSource) Len() int {
	return len(s)
}

// FuzzyFindShortcuts returns shortcuts whose alias or label matches query,
// best match first.
func FuzzyFindShortcuts(shortcuts []Shortcut, query string) []Shortcut {
	if query == "" {
		return shortcuts
	}
	matches := fuzzy.FindFrom(query, shortcutSource(shortcuts))
	results := make([]Shortcut, 0, len(matches))
	for _, m := range matches {
		results = append(results, shortcuts[m.Index])
	}
	return results
}

// FuzzyFindHistory ranks previously used command lines against query.
func FuzzyFindHistory(history []string, query string) []string {
	if query == "" {
		return history
	}
	matches := fuzzy.Find(query, history)
	results := make([]string, 0, len(matches))
	for _, m := range matches {
		results = append(results, m.Str)
	}
	return results
}
