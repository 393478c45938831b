package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/asheshgoplani/shell-deck/internal/session"
	"github.com/asheshgoplani/shell-deck/internal/statedb"
)

const historyColDir = 30

type historyJSON struct {
	ID         int64      `json:"id"`
	SessionID  string     `json:"session_id"`
	Command    string     `json:"command"`
	Dir        string     `json:"dir"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	HasErrors  bool       `json:"has_errors"`
}

func handleHistory(profile string, args []string) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("n", 20, "Number of commands to show (0 = all)")
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	onlyErrors := fs.Bool("errors", false, "Only commands that wrote to stderr")

	fs.Usage = func() {
		fmt.Println("Usage: shell-deck history [options]")
		fmt.Println()
		fmt.Println("Show recently submitted commands, newest first.")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}

	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput)

	storage, err := session.NewStorageWithProfile(profile)
	if err != nil {
		out.Error(fmt.Sprintf("failed to open storage: %v", err), ErrCodeStorage)
		os.Exit(1)
	}
	defer storage.Close()

	rows, err := storage.History(*limit)
	if err != nil {
		out.Error(fmt.Sprintf("failed to load history: %v", err), ErrCodeStorage)
		os.Exit(1)
	}
	if *onlyErrors {
		rows = filterErrors(rows)
	}

	if *jsonOutput {
		items := make([]historyJSON, 0, len(rows))
		for _, r := range rows {
			items = append(items, toHistoryJSON(r))
		}
		out.Print("", items)
		return
	}

	if len(rows) == 0 {
		fmt.Printf("No history in profile '%s'.\n", storage.Profile())
		return
	}
	fmt.Print(formatHistory(rows))
}

func filterErrors(rows []*statedb.CommandRow) []*statedb.CommandRow {
	out := rows[:0]
	for _, r := range rows {
		if r.HasErrors {
			out = append(out, r)
		}
	}
	return out
}

func toHistoryJSON(r *statedb.CommandRow) historyJSON {
	item := historyJSON{
		ID:        r.ID,
		SessionID: r.SessionID,
		Command:   r.Text,
		Dir:       r.Dir,
		StartedAt: r.StartedAt,
		HasErrors: r.HasErrors,
	}
	if r.Finished() {
		f := r.FinishedAt
		item.FinishedAt = &f
	}
	return item
}

// formatHistory renders rows as a table: start time, status, directory,
// command.
func formatHistory(rows []*statedb.CommandRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%-19s  %s  %-*s  %s\n", "STARTED", " ", historyColDir, "DIRECTORY", "COMMAND")
	for _, r := range rows {
		dir := runewidth.Truncate(r.Dir, historyColDir, "…")
		dir = runewidth.FillRight(dir, historyColDir)
		fmt.Fprintf(&b, "%s  %s  %s  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			historyStatus(r), dir, r.Text)
	}
	return b.String()
}

func historyStatus(r *statedb.CommandRow) string {
	switch {
	case r.HasErrors:
		return errorSymbol
	case !r.Finished():
		return bulletSymbol
	default:
		return successSymbol
	}
}

func handleCwd(profile string, args []string) {
	fs := flag.NewFlagSet("cwd", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Println("Usage: shell-deck cwd [--json]")
		fmt.Println()
		fmt.Println("Print the working directory the next session starts in.")
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	out := NewCLIOutput(*jsonOutput)
	storage, err := session.NewStorageWithProfile(profile)
	if err != nil {
		out.Error(fmt.Sprintf("failed to open storage: %v", err), ErrCodeStorage)
		os.Exit(1)
	}
	defer storage.Close()

	dir, err := storage.CurrentDirectory()
	if err != nil {
		out.Error(fmt.Sprintf("failed to read working directory: %v", err), ErrCodeStorage)
		os.Exit(1)
	}
	if dir == "" {
		out.Error("no working directory saved yet", ErrCodeNotFound)
		os.Exit(1)
	}
	out.Print(dir+"\n", map[string]interface{}{
		"profile": storage.Profile(),
		"dir":     dir,
	})
}
