package session

import (
	"fmt"
	"os"
	"testing"
)

func TestMain(m *testing.M) {
	// Point HOME at a scratch directory so no test can touch the real
	// ~/.shell-deck state or config.
	home, err := os.MkdirTemp("", "shell-deck-test-home-")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Setenv("HOME", home)
	os.Setenv("USERPROFILE", home)
	os.Setenv(ProfileEnvVar, "_test")

	code := m.Run()

	os.RemoveAll(home)
	os.Exit(code)
}
