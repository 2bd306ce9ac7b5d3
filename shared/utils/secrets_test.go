package utils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withSecretsDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	prev := SecretsDir
	SecretsDir = dir
	t.Cleanup(func() { SecretsDir = prev })
	return dir
}

func TestReadSecret(t *testing.T) {
	dir := withSecretsDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "db_password"), []byte("  s3cret\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty"), []byte("\n"), 0o600))

	secret, err := ReadSecret("db_password")
	require.NoError(t, err)
	assert.Equal(t, "s3cret", secret)

	_, err = ReadSecret("empty")
	assert.Error(t, err)

	_, err = ReadSecret("missing")
	assert.Error(t, err)
}

func TestReadSecretOrEnv_FallsBackToEnv(t *testing.T) {
	withSecretsDir(t)
	t.Setenv("KCS_TEST_SECRET", "from-env")

	secret, err := ReadSecretOrEnv("missing", "KCS_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "from-env", secret)

	assert.Equal(t, "", OptionalSecret("missing", "KCS_TEST_UNSET"))
}
