package ui

import (
	"fmt"
	"os"
	"testing"

	"github.com/asheshgoplani/shell-deck/internal/session"
)

func TestMain(m *testing.M) {
	home, err := os.MkdirTemp("", "shell-deck-ui-test-home-")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Setenv("HOME", home)
	os.Setenv("USERPROFILE", home)
	os.Setenv(session.ProfileEnvVar, "_test")

	code := m.Run()

	os.RemoveAll(home)
	os.Exit(code)
}
