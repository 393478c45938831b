package logging

import (
	"bufio"
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// readRecords parses every JSON line of the debug log in dir.
func readRecords(t *testing.T, dir string) []map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)

	var records []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var r map[string]any
		if json.Unmarshal(sc.Bytes(), &r) == nil {
			records = append(records, r)
		}
	}
	return records
}

func findMsg(records []map[string]any, msg string) map[string]any {
	for _, r := range records {
		if r["msg"] == msg {
			return r
		}
	}
	return nil
}

func TestInitWritesJSONLines(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	Init(Config{Debug: true, LogDir: dir})
	defer Shutdown()

	Logger().Info("session_started", "shell", "/bin/sh")

	rec := findMsg(readRecords(t, dir), "session_started")
	require.NotNil(t, rec)
	assert.Equal(t, "/bin/sh", rec["shell"])
}

func TestInitWithoutDebugDiscards(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	Init(Config{LogDir: dir})
	defer Shutdown()

	Logger().Info("nowhere")

	_, err := os.Stat(filepath.Join(dir, LogFileName))
	assert.True(t, os.IsNotExist(err), "no log file expected without debug")
}

func TestForComponentBeforeInit(t *testing.T) {
	Shutdown()
	// Created before Init, like the package-level loggers in the repo.
	log := ForComponent(CompShell)

	dir := t.TempDir()
	Init(Config{Debug: true, LogDir: dir})
	defer Shutdown()

	log.Info("pump_eof", "origin", "stdout")

	rec := findMsg(readRecords(t, dir), "pump_eof")
	require.NotNil(t, rec, "component logger created before Init must still write")
	assert.Equal(t, CompShell, rec["component"])
	assert.Equal(t, "stdout", rec["origin"])
}

func TestLevelFiltering(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	Init(Config{Debug: true, LogDir: dir, Level: "warn"})
	defer Shutdown()

	Logger().Info("filtered")
	Logger().Warn("kept")

	records := readRecords(t, dir)
	assert.Nil(t, findMsg(records, "filtered"))
	assert.NotNil(t, findMsg(records, "kept"))
}

func TestTextFormat(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	Init(Config{Debug: true, LogDir: dir, Format: "text"})
	defer Shutdown()

	Logger().Info("text_format")

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), "msg=text_format")
}

func TestDumpRingBuffer(t *testing.T) {
	Shutdown()
	dir := t.TempDir()
	Init(Config{Debug: true, LogDir: dir, RingBufferSize: 4096})
	defer Shutdown()

	Logger().Info("ring_message")

	dump := filepath.Join(dir, "crash-dump.jsonl")
	require.NoError(t, DumpRingBuffer(dump))

	data, err := os.ReadFile(dump)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ring_message")
}

func TestDebugInitOpensNoListener(t *testing.T) {
	const addr = "127.0.0.1:6060"
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		t.Skipf("%s already in use", addr)
	}
	require.NoError(t, ln.Close())

	Shutdown()
	Init(Config{Debug: true, LogDir: t.TempDir()})
	defer Shutdown()

	ln, err = net.Listen("tcp", addr)
	require.NoError(t, err, "debug logging must not serve anything")
	require.NoError(t, ln.Close())
}
