package secrets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromFileTakesPrecedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("  file-token \n"), 0o600))
	t.Setenv("RADAR_TEST_TOKEN", "env-token")

	got, err := Load(Source{Name: "radar token", File: path, Env: "RADAR_TEST_TOKEN", Value: "inline"})
	require.NoError(t, err)
	assert.Equal(t, "file-token", got)
}

func TestLoadEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token")
	require.NoError(t, os.WriteFile(path, []byte("   "), 0o600))

	_, err := Load(Source{Name: "radar token", File: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is empty")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(Source{File: filepath.Join(t.TempDir(), "absent")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading secret")
}

func TestLoadFromEnvThenValue(t *testing.T) {
	t.Setenv("RADAR_TEST_TOKEN", " env-token ")

	got, err := Load(Source{Env: "RADAR_TEST_TOKEN", Value: "inline"})
	require.NoError(t, err)
	assert.Equal(t, "env-token", got)

	got, err = Load(Source{Env: "RADAR_TEST_UNSET", Value: " inline "})
	require.NoError(t, err)
	assert.Equal(t, "inline", got)
}

func TestLoadNotConfigured(t *testing.T) {
	_, err := Load(Source{Name: "gemini api key"})
	require.EqualError(t, err, "gemini api key is not configured")

	got, err := Load(Source{Name: "radar token", Optional: true})
	require.NoError(t, err)
	assert.Empty(t, got)
}
