package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	// DefaultProfile is the name of the default profile
	DefaultProfile = "default"

	// ProfilesDirName is the directory containing all profiles
	ProfilesDirName = "profiles"

	// StateDBFileName is the per-profile settings and history database
	StateDBFileName = "state.db"

	// ProfileEnvVar selects a profile when no -p flag is given
	ProfileEnvVar = "SHELLDECK_PROFILE"
)

// GetShellDeckDir returns the base shell-deck directory (~/.shell-deck)
func GetShellDeckDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".shell-deck"), nil
}

// GetProfilesDir returns the path to the profiles directory
func GetProfilesDir() (string, error) {
	dir, err := GetShellDeckDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ProfilesDirName), nil
}

// GetProfileDir returns the path to a specific profile's directory.
// The default profile lives directly in ~/.shell-deck.
func GetProfileDir(profile string) (string, error) {
	if profile == "" || profile == DefaultProfile {
		return GetShellDeckDir()
	}

	// Sanitize profile name (prevent path traversal)
	profile = filepath.Base(profile)
	if profile == "." || profile == ".." || profile == string(filepath.Separator) {
		return "", fmt.Errorf("invalid profile name: %s", profile)
	}

	profilesDir, err := GetProfilesDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(profilesDir, profile), nil
}

// GetDBPathForProfile returns the path to the state.db file for a specific profile.
func GetDBPathForProfile(profile string) (string, error) {
	profileDir, err := GetProfileDir(profile)
	if err != nil {
		return "", err
	}
	return filepath.Join(profileDir, StateDBFileName), nil
}

// ListProfiles returns the names of all profiles that have a database,
// the default one first.
func ListProfiles() ([]string, error) {
	profiles := []string{DefaultProfile}

	profilesDir, err := GetProfilesDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(profilesDir)
	if os.IsNotExist(err) {
		return profiles, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles directory: %w", err)
	}

	var named []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(profilesDir, entry.Name(), StateDBFileName)); err == nil {
			named = append(named, entry.Name())
		}
	}
	sort.Strings(named)
	return append(profiles, named...), nil
}

// GetEffectiveProfile returns the profile to use, considering:
// 1. Explicitly provided profile (from -p flag)
// 2. Environment variable SHELLDECK_PROFILE
// 3. Fallback to "default"
func GetEffectiveProfile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if envProfile := os.Getenv(ProfileEnvVar); envProfile != "" {
		return envProfile
	}
	return DefaultProfile
}
