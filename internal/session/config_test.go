package session

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetProfileDir(t *testing.T) {
	base, err := GetShellDeckDir()
	require.NoError(t, err)

	dir, err := GetProfileDir("")
	require.NoError(t, err)
	assert.Equal(t, base, dir)

	dir, err = GetProfileDir(DefaultProfile)
	require.NoError(t, err)
	assert.Equal(t, base, dir)

	dir, err = GetProfileDir("work")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, ProfilesDirName, "work"), dir)

	dir, err = GetProfileDir("../../etc")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, ProfilesDirName, "etc"), dir, "traversal is flattened")

	_, err = GetProfileDir("..")
	assert.Error(t, err)
}

func TestGetEffectiveProfile(t *testing.T) {
	assert.Equal(t, "cli", GetEffectiveProfile("cli"))

	t.Setenv(ProfileEnvVar, "env")
	assert.Equal(t, "env", GetEffectiveProfile(""))

	t.Setenv(ProfileEnvVar, "")
	assert.Equal(t, DefaultProfile, GetEffectiveProfile(""))
}

func TestListProfilesIgnoresDirsWithoutDB(t *testing.T) {
	profilesDir, err := GetProfilesDir()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(profilesDir, "empty"), 0o700))

	profiles, err := ListProfiles()
	require.NoError(t, err)
	assert.NotContains(t, profiles, "empty")
}
