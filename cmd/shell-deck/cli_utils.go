package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
)

// normalizeArgs reorders args so flags come before positional arguments.
// Go's flag package stops parsing at the first non-flag argument, so
// "history 20 --json" would otherwise ignore --json.
func normalizeArgs(fs *flag.FlagSet, args []string) []string {
	boolFlags := make(map[string]bool)
	fs.VisitAll(func(f *flag.Flag) {
		if bf, ok := f.Value.(interface{ IsBoolFlag() bool }); ok && bf.IsBoolFlag() {
			boolFlags[f.Name] = true
		}
	})

	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]

		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}

		if strings.HasPrefix(arg, "-") && arg != "-" {
			flags = append(flags, arg)

			name := strings.TrimLeft(arg, "-")
			if strings.Contains(name, "=") {
				continue
			}

			// If it's not a bool flag, the next arg is its value
			if !boolFlags[name] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, arg)
		}
	}
	return append(flags, positional...)
}

// CLIOutput prints command results as text, or as JSON with --json.
type CLIOutput struct {
	jsonMode bool
	stdout   io.Writer
	stderr   io.Writer
}

// NewCLIOutput writes to the process's stdout and stderr.
func NewCLIOutput(jsonMode bool) *CLIOutput {
	return &CLIOutput{jsonMode: jsonMode, stdout: os.Stdout, stderr: os.Stderr}
}

// Success reports a completed action.
func (c *CLIOutput) Success(message string, data interface{}) {
	if c.jsonMode {
		c.printJSON(data)
		return
	}
	fmt.Fprintf(c.stdout, "%s %s\n", successSymbol, message)
}

// Error reports a failure; in JSON mode on stdout so scripts get one
// document either way.
func (c *CLIOutput) Error(message string, code string) {
	if c.jsonMode {
		c.printJSON(map[string]interface{}{
			"success": false,
			"error":   message,
			"code":    code,
		})
		return
	}
	fmt.Fprintf(c.stderr, "Error: %s\n", message)
}

// Print writes humanOutput as is, or jsonData in JSON mode.
func (c *CLIOutput) Print(humanOutput string, jsonData interface{}) {
	if c.jsonMode {
		c.printJSON(jsonData)
		return
	}
	fmt.Fprint(c.stdout, humanOutput)
}

func (c *CLIOutput) printJSON(data interface{}) {
	output, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		fmt.Fprintf(c.stderr, "Error: failed to format JSON: %v\n", err)
		return
	}
	fmt.Fprintln(c.stdout, string(output))
}

// History status markers
const (
	successSymbol = "✓"
	errorSymbol   = "✕"
	bulletSymbol  = "•"
)

// Error codes for JSON output
const (
	ErrCodeNotFound = "NOT_FOUND"
	ErrCodeStorage  = "STORAGE_ERROR"
)
