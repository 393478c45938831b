package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asheshgoplani/shell-deck/internal/statedb"
)

func sampleRows() []*statedb.CommandRow {
	start := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)
	return []*statedb.CommandRow{
		{ID: 3, SessionID: "s1", Text: "make test", Dir: "/src/app", StartedAt: start},
		{ID: 2, SessionID: "s1", Text: "type nope.txt", Dir: `C:\Users\me`, StartedAt: start, FinishedAt: start.Add(time.Second), HasErrors: true},
		{ID: 1, SessionID: "s1", Text: "dir", Dir: "/" + strings.Repeat("deep/", 10), StartedAt: start, FinishedAt: start.Add(time.Second)},
	}
}

func TestFormatHistory(t *testing.T) {
	out := formatHistory(sampleRows())
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 4)

	assert.Contains(t, lines[0], "DIRECTORY")
	assert.Contains(t, lines[1], "2026-03-01 09:30:00")
	assert.Contains(t, lines[1], bulletSymbol+"  /src/app")
	assert.True(t, strings.HasSuffix(lines[1], "make test"))
	assert.Contains(t, lines[2], errorSymbol)
	assert.Contains(t, lines[3], successSymbol)
	assert.Contains(t, lines[3], "…", "long directories are truncated")
}

func TestFilterErrors(t *testing.T) {
	rows := filterErrors(sampleRows())
	require.Len(t, rows, 1)
	assert.Equal(t, "type nope.txt", rows[0].Text)
}

func TestToHistoryJSON(t *testing.T) {
	rows := sampleRows()

	running := toHistoryJSON(rows[0])
	assert.Nil(t, running.FinishedAt)
	assert.Equal(t, "make test", running.Command)

	failed := toHistoryJSON(rows[1])
	require.NotNil(t, failed.FinishedAt)
	assert.True(t, failed.HasErrors)
	assert.Equal(t, rows[1].FinishedAt, *failed.FinishedAt)
}
