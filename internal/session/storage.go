package session

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/asheshgoplani/shell-deck/internal/logging"
	"github.com/asheshgoplani/shell-deck/internal/statedb"
)

var storageLog = logging.ForComponent(logging.CompStorage)

// Store persists what outlives one interpreter run: the working directory
// setting and the command history. Failures are never fatal to a session.
type Store interface {
	CurrentDirectory() (string, error)
	SetCurrentDirectory(dir string) error
	BeginSession(id, shellCmd, dir string, pid int) error
	EndSession(id, dir string, exitCode int) error
	RecordCommand(sessionID, text, dir string, at time.Time) (int64, error)
	FinishCommand(id int64, at time.Time, hasErrors bool) error
}

// Storage is the Store backed by SQLite.
type Storage struct {
	db      *statedb.StateDB
	dbPath  string
	profile string
}

// NewStorageWithProfile opens the state database of a profile.
// If profile is empty, uses the effective profile (from env var or default).
func NewStorageWithProfile(profile string) (*Storage, error) {
	effectiveProfile := GetEffectiveProfile(profile)

	dbPath, err := GetDBPathForProfile(effectiveProfile)
	if err != nil {
		return nil, err
	}
	s, err := OpenStorage(dbPath)
	if err != nil {
		return nil, err
	}
	s.profile = effectiveProfile
	return s, nil
}

// OpenStorage opens (creating if needed) the state database at dbPath.
func OpenStorage(dbPath string) (*Storage, error) {
	// Ensure directory exists with secure permissions (0700 = owner only)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := statedb.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}
	return &Storage{db: db, dbPath: dbPath, profile: DefaultProfile}, nil
}

// Profile returns the profile name this storage is using
func (s *Storage) Profile() string {
	return s.profile
}

// Path returns the database path this storage is using
func (s *Storage) Path() string {
	return s.dbPath
}

// GetDB returns the underlying StateDB for direct access
func (s *Storage) GetDB() *statedb.StateDB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// CurrentDirectory returns the persisted working directory, "" if unset.
func (s *Storage) CurrentDirectory() (string, error) {
	return s.db.GetMeta(statedb.KeyCurrentDirectory)
}

// SetCurrentDirectory persists the working directory. Empty values are ignored.
func (s *Storage) SetCurrentDirectory(dir string) error {
	if dir == "" {
		return nil
	}
	if err := s.db.SetMeta(statedb.KeyCurrentDirectory, dir); err != nil {
		return fmt.Errorf("save current directory: %w", err)
	}
	storageLog.Debug("current_directory_saved", slog.String("dir", dir))
	return nil
}

func (s *Storage) BeginSession(id, shellCmd, dir string, pid int) error {
	return s.db.BeginSession(&statedb.SessionRow{
		ID:        id,
		Shell:     shellCmd,
		StartDir:  dir,
		Pid:       pid,
		StartedAt: time.Now(),
	})
}

func (s *Storage) EndSession(id, dir string, exitCode int) error {
	return s.db.EndSession(id, dir, exitCode)
}

func (s *Storage) RecordCommand(sessionID, text, dir string, at time.Time) (int64, error) {
	return s.db.InsertCommand(sessionID, text, dir, at)
}

func (s *Storage) FinishCommand(id int64, at time.Time, hasErrors bool) error {
	return s.db.FinishCommand(id, at, hasErrors)
}

// History returns up to n recent commands, newest first.
func (s *Storage) History(n int) ([]*statedb.CommandRow, error) {
	return s.db.RecentCommands(n)
}

// HistoryTexts returns distinct command lines, most recent first.
func (s *Storage) HistoryTexts(n int) ([]string, error) {
	return s.db.DistinctCommandTexts(n)
}

// PruneHistory keeps the newest keep commands.
func (s *Storage) PruneHistory(keep int) error {
	n, err := s.db.PruneCommands(keep)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	if n > 0 {
		storageLog.Debug("history_pruned", slog.Int64("removed", n))
	}
	return nil
}
