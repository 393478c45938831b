package session

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	dark "github.com/thiagokokada/dark-mode-go"

	"github.com/asheshgoplani/shell-deck/internal/logging"
	"github.com/asheshgoplani/shell-deck/internal/platform"
	"github.com/asheshgoplani/shell-deck/internal/scrollback"
	"github.com/asheshgoplani/shell-deck/internal/shell"
)

// UserConfigFileName is the TOML config file for user preferences
const UserConfigFileName = "config.toml"

// UserConfig represents user-facing configuration in TOML format
type UserConfig struct {
	// Theme sets the color scheme: "dark" (default), "light", or "system"
	Theme string `toml:"theme"`

	// Shell selects the command interpreter and how it is launched
	Shell ShellSettings `toml:"shell"`

	// Prompt controls how the interpreter's prompt is recognised
	Prompt PromptSettings `toml:"prompt"`

	// Scrollback sizes the output buffer
	Scrollback ScrollbackSettings `toml:"scrollback"`

	// UI tunes the terminal frontend
	UI UISettings `toml:"ui"`

	// History controls the command history kept in state.db
	History HistorySettings `toml:"history"`

	// Logs configures debug logging
	Logs LogSettings `toml:"logs"`

	// Shortcuts are the command buttons and their typed aliases
	Shortcuts []Shortcut `toml:"shortcuts"`
}

// ShellSettings defines which interpreter to launch
type ShellSettings struct {
	// Command is the interpreter executable. Empty picks the platform
	// default (cmd.exe on Windows, bash or /bin/sh elsewhere).
	Command string `toml:"command"`

	// Args are passed to Command. Ignored when Command is empty.
	Args []string `toml:"args"`

	// Env entries ("KEY=value") are added to the inherited environment
	Env []string `toml:"env"`

	// Encoding is the interpreter's output charset, e.g. "cp437" or
	// "windows-1252". Empty means UTF-8.
	Encoding string `toml:"encoding"`

	// StartDir overrides the persisted CurrentDirectory when set
	StartDir string `toml:"start_dir"`
}

// PromptSettings defines prompt detection
type PromptSettings struct {
	// Terminator is the character sequence ending the prompt (default ">")
	Terminator string `toml:"terminator"`

	// Pattern is an optional RE2 expression matched against the last output
	// line; its first capture group is the working directory
	Pattern string `toml:"pattern"`
}

// ScrollbackSettings sizes the scrollback buffer
type ScrollbackSettings struct {
	// Limit is how many trailing characters are rendered (default 131072)
	Limit int `toml:"limit"`

	// RetainMB caps the raw output kept in memory (default 4, -1 = unbounded)
	RetainMB int `toml:"retain_mb"`
}

// UISettings defines terminal UI behaviour
type UISettings struct {
	// MaxRefreshHz caps output redraws per second (default 30, 0 = unlimited)
	MaxRefreshHz *int `toml:"max_refresh_hz"`

	// ShowButtons renders the shortcut button bar (default true)
	ShowButtons *bool `toml:"show_buttons"`
}

// GetMaxRefreshHz returns the redraw cap, defaulting to 30
func (u *UISettings) GetMaxRefreshHz() int {
	if u.MaxRefreshHz == nil {
		return 30
	}
	if *u.MaxRefreshHz < 0 {
		return 0
	}
	return *u.MaxRefreshHz
}

// GetShowButtons returns whether the button bar is shown, defaulting to true
func (u *UISettings) GetShowButtons() bool {
	if u.ShowButtons == nil {
		return true
	}
	return *u.ShowButtons
}

// HistorySettings defines command history retention
type HistorySettings struct {
	// Enabled records submitted commands (default true)
	Enabled *bool `toml:"enabled"`

	// MaxEntries is how many commands are kept (default 5000)
	MaxEntries int `toml:"max_entries"`
}

// GetEnabled returns whether history is recorded, defaulting to true
func (h *HistorySettings) GetEnabled() bool {
	if h.Enabled == nil {
		return true
	}
	return *h.Enabled
}

// LogSettings defines debug log configuration
type LogSettings struct {
	// DebugLevel sets the minimum log level: "debug", "info", "warn", "error"
	// Default: "info"
	DebugLevel string `toml:"debug_level"`

	// DebugFormat sets the log format: "json" (default) or "text"
	DebugFormat string `toml:"debug_format"`

	// DebugMaxMB is the max size in MB for debug.log before rotation
	// Default: 10
	DebugMaxMB int `toml:"debug_max_mb"`

	// DebugBackups is the number of rotated debug.log files to keep
	// Default: 5
	DebugBackups int `toml:"debug_backups"`

	// DebugRetentionDays is the number of days to keep rotated debug logs
	// Default: 10
	DebugRetentionDays int `toml:"debug_retention_days"`

	// DebugCompress enables gzip compression for rotated debug logs
	DebugCompress bool `toml:"debug_compress"`

	// RingBufferMB is the in-memory ring buffer size in MB for crash dumps
	// Default: 10
	RingBufferMB int `toml:"ring_buffer_mb"`

	// AggregateIntervalS is the event aggregation flush interval in seconds
	// Default: 30
	AggregateIntervalS int `toml:"aggregate_interval_secs"`
}

// Default user config
var defaultUserConfig = UserConfig{}

// Cache for user config (loaded once per session)
var (
	userConfigCache   *UserConfig
	userConfigCacheMu sync.RWMutex
)

// GetUserConfigPath returns the path to the user config file
func GetUserConfigPath() (string, error) {
	dir, err := GetShellDeckDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, UserConfigFileName), nil
}

// LoadUserConfig loads the user configuration from TOML file
// Returns cached config after first load
func LoadUserConfig() (*UserConfig, error) {
	userConfigCacheMu.RLock()
	if userConfigCache != nil {
		defer userConfigCacheMu.RUnlock()
		return userConfigCache, nil
	}
	userConfigCacheMu.RUnlock()

	userConfigCacheMu.Lock()
	defer userConfigCacheMu.Unlock()

	// Double-check after acquiring write lock
	if userConfigCache != nil {
		return userConfigCache, nil
	}

	configPath, err := GetUserConfigPath()
	if err != nil {
		userConfigCache = &defaultUserConfig
		return userConfigCache, nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		userConfigCache = &defaultUserConfig
		return userConfigCache, nil
	}

	config, err := decodeUserConfig(configPath)
	if err != nil {
		// Still cache default to prevent repeated parse attempts
		userConfigCache = &defaultUserConfig
		return userConfigCache, err
	}

	userConfigCache = config
	return userConfigCache, nil
}

func decodeUserConfig(path string) (*UserConfig, error) {
	var config UserConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("config.toml parse error: %w", err)
	}
	return &config, nil
}

// ReloadUserConfig forces a reload of the user config
func ReloadUserConfig() (*UserConfig, error) {
	userConfigCacheMu.Lock()
	userConfigCache = nil
	userConfigCacheMu.Unlock()
	return LoadUserConfig()
}

// SaveUserConfig writes the config to config.toml using atomic write pattern
// This clears the cache so next LoadUserConfig() reads fresh values
func SaveUserConfig(config *UserConfig) error {
	configPath, err := GetUserConfigPath()
	if err != nil {
		return fmt.Errorf("failed to get config path: %w", err)
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# shell-deck configuration\n\n")
	if err := toml.NewEncoder(&buf).Encode(config); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// Write to a temp file, fsync, then rename over the original.
	tmpPath := configPath + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := syncConfigFile(tmpPath); err != nil {
		configLog.Warn("config_fsync_failed", slog.String("error", err.Error()))
	}
	if err := os.Rename(tmpPath, configPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize config save: %w", err)
	}

	ClearUserConfigCache()
	return nil
}

// syncConfigFile calls fsync on a file to ensure data is written to disk
func syncConfigFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// ClearUserConfigCache clears the cached user config, allowing tests to reset state
// This does NOT reload - the next LoadUserConfig() call will read fresh from disk
func ClearUserConfigCache() {
	userConfigCacheMu.Lock()
	userConfigCache = nil
	userConfigCacheMu.Unlock()
}

var configLog = logging.ForComponent(logging.CompConfig)

// GetTheme returns the current theme, defaulting to "dark"
func GetTheme() string {
	config, err := LoadUserConfig()
	if err != nil || config == nil {
		return "dark"
	}
	switch config.Theme {
	case "dark", "light", "system":
		return config.Theme
	default:
		return "dark"
	}
}

// ResolveTheme resolves the configured theme to "dark" or "light".
// If theme is "system", detects the OS dark mode setting.
// Falls back to "dark" on detection failure.
func ResolveTheme() string {
	theme := GetTheme()
	if theme != "system" {
		return theme
	}
	isDark, err := dark.IsDarkMode()
	if err != nil {
		return "dark"
	}
	if isDark {
		return "dark"
	}
	return "light"
}

// GetLogSettings returns debug log settings with defaults applied
func GetLogSettings() LogSettings {
	config, err := LoadUserConfig()
	if err != nil || config == nil {
		config = &defaultUserConfig
	}
	settings := config.Logs
	if settings.DebugLevel == "" {
		settings.DebugLevel = "info"
	}
	if settings.DebugMaxMB <= 0 {
		settings.DebugMaxMB = 10
	}
	if settings.DebugBackups <= 0 {
		settings.DebugBackups = 5
	}
	if settings.DebugRetentionDays <= 0 {
		settings.DebugRetentionDays = 10
	}
	if settings.RingBufferMB <= 0 {
		settings.RingBufferMB = 10
	}
	if settings.AggregateIntervalS <= 0 {
		settings.AggregateIntervalS = 30
	}
	return settings
}

// LoggingConfig turns log settings into a logging.Config rooted at logDir.
func (s LogSettings) LoggingConfig(logDir string, debug bool) logging.Config {
	return logging.Config{
		LogDir:                logDir,
		Level:                 s.DebugLevel,
		Format:                s.DebugFormat,
		MaxSizeMB:             s.DebugMaxMB,
		MaxBackups:            s.DebugBackups,
		MaxAgeDays:            s.DebugRetentionDays,
		Compress:              s.DebugCompress,
		RingBufferSize:        s.RingBufferMB * 1024 * 1024,
		AggregateIntervalSecs: s.AggregateIntervalS,
		Debug:                 debug,
	}
}

// GetShellSettings returns interpreter settings with platform defaults applied
func GetShellSettings() ShellSettings {
	config, err := LoadUserConfig()
	if err != nil || config == nil {
		config = &defaultUserConfig
	}
	return config.Shell.withDefaults()
}

func (s ShellSettings) withDefaults() ShellSettings {
	if s.Command != "" {
		return s
	}
	def := platform.DefaultInterpreter()
	s.Command = def.Command
	s.Args = def.Args
	// User entries go last so they win over the defaults.
	s.Env = append(append([]string{}, def.Env...), s.Env...)
	return s
}

// Options builds launch options for dir. An unknown encoding is an error.
func (s ShellSettings) Options(dir string) (shell.Options, error) {
	enc, err := shell.LookupEncoding(s.Encoding)
	if err != nil {
		return shell.Options{}, err
	}
	return shell.Options{
		Command:  s.Command,
		Args:     s.Args,
		Env:      s.Env,
		Dir:      expandTilde(dir),
		Encoding: enc,
	}, nil
}

// GetPromptDetector builds the prompt detector from config. An invalid
// pattern is logged and the default detector used instead.
func GetPromptDetector() *shell.PromptDetector {
	config, err := LoadUserConfig()
	if err != nil || config == nil {
		config = &defaultUserConfig
	}
	d, err := shell.NewPromptDetector(config.Prompt.Terminator, config.Prompt.Pattern)
	if err != nil {
		configLog.Warn("prompt_pattern_invalid", slog.String("error", err.Error()))
		d, _ = shell.NewPromptDetector(config.Prompt.Terminator, "")
	}
	return d
}

// GetScrollbackSettings returns buffer sizes with defaults applied
func GetScrollbackSettings() ScrollbackSettings {
	config, err := LoadUserConfig()
	if err != nil || config == nil {
		config = &defaultUserConfig
	}
	settings := config.Scrollback
	if settings.Limit <= 0 {
		settings.Limit = scrollback.DefaultLimit
	}
	if settings.RetainMB == 0 {
		settings.RetainMB = scrollback.DefaultRetainBytes / (1024 * 1024)
	}
	return settings
}

// RetainBytes converts RetainMB to bytes; unbounded is 0.
func (s ScrollbackSettings) RetainBytes() int {
	if s.RetainMB < 0 {
		return 0
	}
	return s.RetainMB * 1024 * 1024
}

// GetUISettings returns UI settings
func GetUISettings() UISettings {
	config, err := LoadUserConfig()
	if err != nil || config == nil {
		return UISettings{}
	}
	return config.UI
}

// GetHistorySettings returns history settings with defaults applied
func GetHistorySettings() HistorySettings {
	config, err := LoadUserConfig()
	if err != nil || config == nil {
		config = &defaultUserConfig
	}
	settings := config.History
	if settings.MaxEntries <= 0 {
		settings.MaxEntries = 5000
	}
	return settings
}

// GetShortcuts returns the configured shortcuts, skipping entries without a
// command and capping the list at MaxShortcuts.
func GetShortcuts() []Shortcut {
	config, err := LoadUserConfig()
	if err != nil || config == nil {
		return nil
	}
	return normalizeShortcuts(config.Shortcuts)
}

// expandTilde expands a leading ~ to the user's home directory
func expandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}

// CreateExampleConfig creates an example config file if none exists
func CreateExampleConfig() error {
	configPath, err := GetUserConfigPath()
	if err != nil {
		return err
	}

	// Don't overwrite existing config
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(configPath, []byte(exampleConfig()), 0o600)
}

func exampleConfig() string {
	interp := platform.DefaultInterpreter()
	return fmt.Sprintf(`# shell-deck configuration
# Changes to [[shortcuts]] apply while shell-deck is running; everything
# else is read at startup.

# Color scheme: "dark", "light" or "system"
# theme = "dark"

[shell]
# Interpreter to launch. Leave empty for the platform default
# (detected here: %s).
# command = ""
# args = []
# env = ["LANG=C.UTF-8"]
# Output charset of the interpreter, e.g. "cp437", "cp850", "windows-1252".
# encoding = ""
# Always start in this directory instead of the last one used.
# start_dir = "~"

[prompt]
# The prompt is "<working directory><terminator>" on its own last line.
# terminator = ">"
# Or match a custom prompt; the first group must be the directory.
# pattern = '^\[\w+@\w+ (.+)\]\$ ?$'

[scrollback]
# limit = 131072   # characters shown
# retain_mb = 4    # raw output kept in memory, -1 = unbounded

[ui]
# max_refresh_hz = 30
# show_buttons = true

[history]
# enabled = true
# max_entries = 5000

[logs]
# Only used when SHELLDECK_DEBUG is set.
# debug_level = "info"
# debug_format = "json"

# Command buttons. Typing an alias and pressing Enter runs the command.
# [[shortcuts]]
# label = "List"
# alias = "l"
# command = "%s"
`, interp.Command, listCommand())
}

func listCommand() string {
	if platform.Detect() == platform.PlatformWindows {
		return "dir"
	}
	return "ls -la"
}
