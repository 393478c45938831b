package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/asheshgoplani/shell-deck/internal/session"
)

func handleConfig(args []string) {
	if len(args) == 0 {
		printConfigUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "init":
		fs := flag.NewFlagSet("config init", flag.ExitOnError)
		jsonOutput := fs.Bool("json", false, "Output as JSON")
		_ = fs.Parse(normalizeArgs(fs, args[1:]))

		out := NewCLIOutput(*jsonOutput)
		if err := initConfig(out); err != nil {
			out.Error(err.Error(), ErrCodeStorage)
			os.Exit(1)
		}
	case "path":
		path, err := session.GetUserConfigPath()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(path)
	case "show":
		if _, err := session.LoadUserConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (showing defaults)\n", err)
		}
		if err := writeEffectiveConfig(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown config command %q\n", args[0])
		printConfigUsage()
		os.Exit(1)
	}
}

// initConfig writes the example config unless one exists already.
func initConfig(out *CLIOutput) error {
	path, err := session.GetUserConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil {
		out.Print(fmt.Sprintf("Config already exists: %s\n", path), map[string]interface{}{
			"path":    path,
			"created": false,
		})
		return nil
	}
	if err := session.CreateExampleConfig(); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	out.Success("Wrote "+path, map[string]interface{}{
		"path":    path,
		"created": true,
	})
	return nil
}

func printConfigUsage() {
	fmt.Println("Usage: shell-deck config <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  init    Write an example config.toml if none exists (--json)")
	fmt.Println("  path    Print the config file location")
	fmt.Println("  show    Print the effective configuration, defaults applied")
}

// effectiveConfig is the loaded configuration with every default filled in.
func effectiveConfig() *session.UserConfig {
	uiSettings := session.GetUISettings()
	hz := uiSettings.GetMaxRefreshHz()
	buttons := uiSettings.GetShowButtons()

	hist := session.GetHistorySettings()
	enabled := hist.GetEnabled()
	hist.Enabled = &enabled

	cfg := &session.UserConfig{
		Theme:      session.GetTheme(),
		Shell:      session.GetShellSettings(),
		Scrollback: session.GetScrollbackSettings(),
		UI:         session.UISettings{MaxRefreshHz: &hz, ShowButtons: &buttons},
		History:    hist,
		Logs:       session.GetLogSettings(),
		Shortcuts:  session.GetShortcuts(),
	}
	if loaded, err := session.LoadUserConfig(); err == nil && loaded != nil {
		cfg.Prompt = loaded.Prompt
	}
	if cfg.Prompt.Terminator == "" && cfg.Prompt.Pattern == "" {
		cfg.Prompt.Terminator = session.GetPromptDetector().Terminator
	}
	return cfg
}

func writeEffectiveConfig(w io.Writer) error {
	return toml.NewEncoder(w).Encode(effectiveConfig())
}

func handleProfiles(args []string) {
	jsonMode := false
	for _, arg := range args {
		if arg == "--json" {
			jsonMode = true
		}
	}
	out := NewCLIOutput(jsonMode)

	profiles, err := session.ListProfiles()
	if err != nil {
		out.Error(fmt.Sprintf("failed to list profiles: %v", err), ErrCodeStorage)
		os.Exit(1)
	}
	current := session.GetEffectiveProfile("")

	human := ""
	for _, p := range profiles {
		marker := " "
		if p == current {
			marker = "*"
		}
		human += fmt.Sprintf("%s %s\n", marker, p)
	}
	if human == "" {
		human = "No profiles found.\n"
	}
	out.Print(human, map[string]interface{}{
		"current":  current,
		"profiles": profiles,
	})
}
