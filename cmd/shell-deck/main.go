package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"github.com/asheshgoplani/shell-deck/internal/logging"
	"github.com/asheshgoplani/shell-deck/internal/scrollback"
	"github.com/asheshgoplani/shell-deck/internal/session"
	"github.com/asheshgoplani/shell-deck/internal/ui"
)

const Version = "0.3.0"

// historySeed is how many distinct lines the command line history starts with.
const historySeed = 500

var mainLog = logging.ForComponent(logging.CompSession)

func init() {
	initColorProfile()
}

// initColorProfile configures lipgloss color profile based on terminal capabilities.
// Prefers TrueColor for best visuals, falls back to ANSI256 for compatibility.
func initColorProfile() {
	// SHELLDECK_COLOR: truecolor, 256, 16, none
	if profile, ok := colorProfileOverride(os.Getenv("SHELLDECK_COLOR")); ok {
		lipgloss.SetColorProfile(profile)
		return
	}

	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	termName := os.Getenv("TERM")
	for _, t := range []string{"xterm-256color", "screen-256color", "tmux-256color", "xterm-direct", "alacritty", "kitty", "wezterm"} {
		if strings.Contains(termName, t) {
			lipgloss.SetColorProfile(termenv.TrueColor)
			return
		}
	}

	if os.Getenv("WT_SESSION") != "" || // Windows Terminal
		os.Getenv("ITERM_SESSION_ID") != "" ||
		os.Getenv("TERMINAL_EMULATOR") != "" || // JetBrains terminals
		os.Getenv("KONSOLE_VERSION") != "" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}

	lipgloss.SetColorProfile(termenv.ANSI256)
}

func colorProfileOverride(value string) (termenv.Profile, bool) {
	switch strings.ToLower(value) {
	case "truecolor", "true", "24bit":
		return termenv.TrueColor, true
	case "256", "ansi256":
		return termenv.ANSI256, true
	case "16", "ansi", "basic":
		return termenv.ANSI, true
	case "none", "off", "ascii":
		return termenv.Ascii, true
	}
	return termenv.Ascii, false
}

func main() {
	// Extract global -p/--profile flag before subcommand dispatch
	profile, args := extractProfileFlag(os.Args[1:])

	if len(args) > 0 {
		switch args[0] {
		case "version", "--version", "-v":
			fmt.Printf("Shell Deck v%s\n", Version)
			return
		case "help", "--help", "-h":
			printHelp()
			return
		case "config":
			handleConfig(args[1:])
			return
		case "history":
			handleHistory(profile, args[1:])
			return
		case "cwd":
			handleCwd(profile, args[1:])
			return
		case "profiles":
			handleProfiles(args[1:])
			return
		default:
			fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
			printHelp()
			os.Exit(1)
		}
	}

	os.Exit(run(profile))
}

// run launches the interpreter and drives it from the TUI, or from plain
// line mode when stdin or stdout is not a terminal. It returns the process
// exit status.
func run(profile string) int {
	baseDir, err := session.GetShellDeckDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	stopLogging := setupLogging(baseDir)
	defer stopLogging()

	var store session.Store
	storage, err := session.NewStorageWithProfile(profile)
	if err != nil {
		// History and the saved directory are a convenience; run without them.
		mainLog.Warn("storage_open_failed", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "Warning: history and working directory will not be saved: %v\n", err)
	} else {
		store = storage
		defer storage.Close()
	}

	hist := session.GetHistorySettings()
	if storage != nil && hist.GetEnabled() {
		if err := storage.PruneHistory(hist.MaxEntries); err != nil {
			mainLog.Warn("history_prune_failed", slog.String("error", err.Error()))
		}
	}

	shellSettings := session.GetShellSettings()
	opts, err := shellSettings.Options(shellSettings.StartDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, cancel := signal.NotifyContext(context.Background(), shutdownSignals()...)
	defer cancel()

	uiSettings := session.GetUISettings()
	refresher := ui.NewRefresher()
	schedule := refresher.Schedule
	if hz := uiSettings.GetMaxRefreshHz(); hz > 0 {
		schedule = scrollback.Throttled(ctx, rate.NewLimiter(rate.Limit(hz), 1), refresher.Schedule)
	}

	sb := session.GetScrollbackSettings()
	ctrl := session.NewController(session.ControllerConfig{
		Shell:           opts,
		Detector:        session.GetPromptDetector(),
		ScrollbackLimit: sb.Limit,
		RetainBytes:     sb.RetainBytes(),
		Schedule:        schedule,
		Shortcuts:       session.GetShortcuts(),
		RecordHistory:   hist.GetEnabled(),
	}, store, nil)

	if err := ctrl.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	if !interactive {
		if err := runPlain(ctx, ctrl, refresher.C(), os.Stdin, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return finish(ctrl)
	}

	var history []string
	if storage != nil && hist.GetEnabled() {
		history, err = storage.HistoryTexts(historySeed)
		if err != nil {
			mainLog.Warn("history_load_failed", slog.String("error", err.Error()))
		}
	}
	if err := runTUI(ctx, ctrl, refresher, ui.Options{
		History:          history,
		HistoryLimit:     hist.MaxEntries,
		ShowButtons:      uiSettings.GetShowButtons(),
		WatchSystemTheme: session.GetTheme() == "system",
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		_ = ctrl.Close()
		return 1
	}
	return finish(ctrl)
}

func runTUI(ctx context.Context, ctrl *session.Controller, refresher *ui.Refresher, opts ui.Options) error {
	ui.InitTheme(session.ResolveTheme())

	home := ui.NewHome(ctrl, refresher, opts)
	defer home.Close()

	p := tea.NewProgram(
		home,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	// Shortcut edits apply without a restart.
	watcher, err := session.NewConfigWatcher("", func(cfg *session.UserConfig) {
		ctrl.SetShortcuts(cfg.Shortcuts)
		p.Send(ui.ConfigReloadedMsg{
			Theme:       session.ResolveTheme(),
			ShowButtons: cfg.UI.GetShowButtons(),
		})
	})
	if err != nil {
		mainLog.Warn("config_watcher_failed", slog.String("error", err.Error()))
	} else {
		watcher.Start()
		defer watcher.Stop()
	}

	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	return nil
}

// finish ends a session the user left and reports how the interpreter
// ended. An interpreter that exited by itself passes its exit code on.
func finish(ctrl *session.Controller) int {
	if ctrl.State() != session.StateExited {
		if err := ctrl.Close(); err != nil {
			mainLog.Warn("session_close_failed", slog.String("error", err.Error()))
		}
		return 0
	}
	err := ctrl.ExitErr()
	if err == nil || ctrl.Closed() {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		fmt.Fprintf(os.Stderr, "interpreter exited with code %d\n", exitErr.ExitCode())
		return exitErr.ExitCode()
	}
	fmt.Fprintf(os.Stderr, "interpreter ended: %v\n", err)
	return 1
}

// setupLogging writes structured logs to <baseDir>/debug.log when
// SHELLDECK_DEBUG is set, and discards them otherwise so the TUI is never
// drawn over. The returned func flushes and closes the log.
func setupLogging(baseDir string) func() {
	debugMode := os.Getenv("SHELLDECK_DEBUG") != ""
	logging.Init(session.GetLogSettings().LoggingConfig(baseDir, debugMode))

	// Route stdlib log output from dependencies into the same file.
	log.SetFlags(0)
	log.SetOutput(logging.NewBridgeWriter(logging.CompSession))

	if debugMode {
		mainLog.Info("shell_deck_started",
			slog.String("version", Version),
			slog.Int("pid", os.Getpid()))
	}

	stopDump := watchDumpSignal(baseDir)
	return func() {
		stopDump()
		logging.Shutdown()
	}
}

// dumpRingBuffer writes the in-memory log tail for post-mortem debugging.
func dumpRingBuffer(baseDir string) {
	dumpPath := filepath.Join(baseDir, fmt.Sprintf("crash-dump-%d.jsonl", time.Now().Unix()))
	if err := logging.DumpRingBuffer(dumpPath); err != nil {
		mainLog.Error("crash_dump_failed", slog.String("error", err.Error()))
		return
	}
	mainLog.Info("crash_dump_written", slog.String("path", dumpPath))
}

// extractProfileFlag extracts -p or --profile from args, returning the profile and remaining args
func extractProfileFlag(args []string) (string, []string) {
	var profile string
	var remaining []string

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if strings.HasPrefix(arg, "-p=") {
			profile = strings.TrimPrefix(arg, "-p=")
			continue
		}
		if strings.HasPrefix(arg, "--profile=") {
			profile = strings.TrimPrefix(arg, "--profile=")
			continue
		}

		if arg == "-p" || arg == "--profile" {
			if i+1 < len(args) {
				profile = args[i+1]
				i++
				continue
			}
		}

		remaining = append(remaining, arg)
	}

	return profile, remaining
}

func printHelp() {
	fmt.Printf("Shell Deck v%s\n", Version)
	fmt.Println("A scrollback, shortcut and history front end for your command interpreter")
	fmt.Println()
	fmt.Println("Usage: shell-deck [-p profile] [command]")
	fmt.Println()
	fmt.Println("Global Options:")
	fmt.Println("  -p, --profile <name>   Use specific profile (default: 'default')")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  (none)           Start the interpreter in the TUI (line mode when piped)")
	fmt.Println("  history          Show recent commands")
	fmt.Println("  cwd              Print the saved working directory")
	fmt.Println("  config           Manage config.toml (init, path, show)")
	fmt.Println("  profiles         List profiles")
	fmt.Println("  version          Show version")
	fmt.Println("  help             Show this help")
	fmt.Println()
	fmt.Println("Keys:")
	fmt.Println("  enter            Run the command line (ignored while a command runs)")
	fmt.Println("  up/down          Browse history")
	fmt.Println("  tab              Complete from shortcut aliases and history")
	fmt.Println("  F1..F12          Run a shortcut")
	fmt.Println("  pgup/pgdn        Scroll output")
	fmt.Println("  ctrl+c           Quit (ends the interpreter)")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  SHELLDECK_PROFILE   Default profile")
	fmt.Println("  SHELLDECK_DEBUG     Write debug logs to ~/.shell-deck/debug.log")
	fmt.Println("  SHELLDECK_COLOR     truecolor, 256, 16 or none")
}
