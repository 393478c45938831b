package statedb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SchemaVersion tracks the current database schema version.
// Bump this when adding migrations.
const SchemaVersion = 1

// KeyCurrentDirectory is the metadata key holding the interpreter's last
// working directory.
const KeyCurrentDirectory = "CurrentDirectory"

// StateDB wraps a SQLite database holding settings and command history.
// Thread-safe for concurrent use from multiple goroutines within one process.
// Multiple OS processes can safely read/write via WAL mode + busy timeout.
type StateDB struct {
	db  *sql.DB
	pid int
}

// SessionRow is one interpreter run.
type SessionRow struct {
	ID        string
	Shell     string
	StartDir  string
	Pid       int
	StartedAt time.Time
	EndedAt   time.Time // zero while running
	EndDir    string
	ExitCode  int
}

// CommandRow is one submitted command line.
type CommandRow struct {
	ID         int64
	SessionID  string
	Text       string
	Dir        string
	StartedAt  time.Time
	FinishedAt time.Time // zero while outstanding
	HasErrors  bool
}

// Finished reports whether the interpreter returned to its prompt after the command.
func (c *CommandRow) Finished() bool {
	return !c.FinishedAt.IsZero()
}

// Open creates or opens a SQLite database at dbPath with WAL mode and busy timeout.
func Open(dbPath string) (*StateDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("statedb: mkdir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("statedb: open: %w", err)
	}

	// WAL mode: allows concurrent readers while writing
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: wal mode: %w", err)
	}

	// Busy timeout: wait up to 5s if another process holds a lock
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("statedb: foreign keys: %w", err)
	}

	return &StateDB{db: db, pid: os.Getpid()}, nil
}

// Close checkpoints WAL and closes the database.
func (s *StateDB) Close() error {
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// DB returns the underlying sql.DB for advanced use cases (e.g., testing).
func (s *StateDB) DB() *sql.DB {
	return s.db
}

// Migrate creates tables if they don't exist and runs any pending migrations.
func (s *StateDB) Migrate() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("statedb: begin migrate: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS metadata (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("statedb: create metadata: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			shell      TEXT NOT NULL,
			start_dir  TEXT NOT NULL DEFAULT '',
			pid        INTEGER NOT NULL DEFAULT 0,
			started_at INTEGER NOT NULL,
			ended_at   INTEGER NOT NULL DEFAULT 0,
			end_dir    TEXT NOT NULL DEFAULT '',
			exit_code  INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return fmt.Errorf("statedb: create sessions: %w", err)
	}

	if _, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS commands (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id  TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			text        TEXT NOT NULL,
			dir         TEXT NOT NULL DEFAULT '',
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL DEFAULT 0,
			has_errors  INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return fmt.Errorf("statedb: create commands: %w", err)
	}

	if _, err := tx.Exec(
		"CREATE INDEX IF NOT EXISTS idx_commands_started ON commands(started_at)",
	); err != nil {
		return fmt.Errorf("statedb: create commands index: %w", err)
	}

	if _, err := tx.Exec(`
		INSERT OR REPLACE INTO metadata (key, value) VALUES ('schema_version', ?)
	`, fmt.Sprintf("%d", SchemaVersion)); err != nil {
		return fmt.Errorf("statedb: set schema version: %w", err)
	}

	return tx.Commit()
}

// --- Sessions ---

// BeginSession records the start of an interpreter run.
func (s *StateDB) BeginSession(row *SessionRow) error {
	pid := row.Pid
	if pid == 0 {
		pid = s.pid
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sessions (id, shell, start_dir, pid, started_at)
		VALUES (?, ?, ?, ?, ?)
	`, row.ID, row.Shell, row.StartDir, pid, row.StartedAt.UnixNano())
	return err
}

// EndSession stamps the end of a run with its final directory and exit code.
func (s *StateDB) EndSession(id, endDir string, exitCode int) error {
	_, err := s.db.Exec(
		"UPDATE sessions SET ended_at = ?, end_dir = ?, exit_code = ? WHERE id = ?",
		time.Now().UnixNano(), endDir, exitCode, id,
	)
	return err
}

// LoadSession returns one session, or nil if it does not exist.
func (s *StateDB) LoadSession(id string) (*SessionRow, error) {
	r := &SessionRow{}
	var started, ended int64
	err := s.db.QueryRow(`
		SELECT id, shell, start_dir, pid, started_at, ended_at, end_dir, exit_code
		FROM sessions WHERE id = ?
	`, id).Scan(&r.ID, &r.Shell, &r.StartDir, &r.Pid, &started, &ended, &r.EndDir, &r.ExitCode)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, started)
	if ended > 0 {
		r.EndedAt = time.Unix(0, ended)
	}
	return r, nil
}

// --- Commands ---

// InsertCommand records a submitted line and returns its row ID.
func (s *StateDB) InsertCommand(sessionID, text, dir string, startedAt time.Time) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO commands (session_id, text, dir, started_at) VALUES (?, ?, ?, ?)",
		sessionID, text, dir, startedAt.UnixNano(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FinishCommand marks a command as completed.
func (s *StateDB) FinishCommand(id int64, finishedAt time.Time, hasErrors bool) error {
	_, err := s.db.Exec(
		"UPDATE commands SET finished_at = ?, has_errors = ? WHERE id = ?",
		finishedAt.UnixNano(), boolToInt(hasErrors), id,
	)
	return err
}

// RecentCommands returns up to limit commands, newest first. limit <= 0
// returns all of them.
func (s *StateDB) RecentCommands(limit int) ([]*CommandRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT id, session_id, text, dir, started_at, finished_at, has_errors
		FROM commands ORDER BY started_at DESC, id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*CommandRow
	for rows.Next() {
		r := &CommandRow{}
		var started, finished int64
		var hasErrors int
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Text, &r.Dir, &started, &finished, &hasErrors); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(0, started)
		if finished > 0 {
			r.FinishedAt = time.Unix(0, finished)
		}
		r.HasErrors = hasErrors != 0
		result = append(result, r)
	}
	return result, rows.Err()
}

// DistinctCommandTexts returns unique command lines, most recently used
// first. Used for history completion.
func (s *StateDB) DistinctCommandTexts(limit int) ([]string, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT text FROM commands GROUP BY text ORDER BY MAX(started_at) DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		result = append(result, text)
	}
	return result, rows.Err()
}

// PruneCommands keeps only the newest keep commands.
func (s *StateDB) PruneCommands(keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := s.db.Exec(`
		DELETE FROM commands WHERE id NOT IN (
			SELECT id FROM commands ORDER BY started_at DESC, id DESC LIMIT ?
		)
	`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// --- Metadata ---

// SetMeta sets a key-value pair in the metadata table.
func (s *StateDB) SetMeta(key, value string) error {
	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta gets a value from the metadata table. Returns "" if not found.
func (s *StateDB) GetMeta(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
