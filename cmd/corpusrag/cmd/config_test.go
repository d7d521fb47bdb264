package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/corpusrag/internal/config"
)

func TestConfigInit_WritesDefaults(t *testing.T) {
	// Given: an empty workspace
	setupWorkspace(t)

	// When: running config init
	out, err := execute(t, "config", "init")

	// Then: corpusrag.yaml holds loadable defaults
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote corpusrag.yaml")
	cfg, err := config.Load(config.LoadOptions{SkipUserConfig: true})
	require.NoError(t, err)
	assert.Equal(t, config.NewConfig().Retriever, cfg.Retriever)
	assert.Equal(t, config.NewConfig().Chunking, cfg.Chunking)
}

func TestConfigInit_RefusesToOverwrite(t *testing.T) {
	// Given: an existing project config
	setupWorkspace(t)
	writeFile(t, "corpusrag.yaml", "retriever:\n  k: 9\n")

	// When: running config init without --force
	_, err := execute(t, "config", "init")

	// Then: it fails and the file is unchanged
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	data, err := os.ReadFile("corpusrag.yaml")
	require.NoError(t, err)
	assert.Equal(t, "retriever:\n  k: 9\n", string(data))
}

func TestConfigInit_ForceBacksUpThenRestore(t *testing.T) {
	// Given: an existing project config
	setupWorkspace(t)
	writeFile(t, "corpusrag.yaml", "retriever:\n  k: 9\n")

	// When: overwriting with --force
	out, err := execute(t, "config", "init", "--force")

	// Then: the old file is kept as a backup
	require.NoError(t, err)
	assert.Contains(t, out, "Backed up corpusrag.yaml")
	backups, err := config.ListBackups("corpusrag.yaml")
	require.NoError(t, err)
	require.Len(t, backups, 1)

	// When: restoring
	out, err = execute(t, "config", "restore")

	// Then: the original content is back
	require.NoError(t, err)
	assert.Contains(t, out, "Restored corpusrag.yaml")
	data, err := os.ReadFile("corpusrag.yaml")
	require.NoError(t, err)
	assert.Equal(t, "retriever:\n  k: 9\n", string(data))
}

func TestConfigInit_User(t *testing.T) {
	// Given: a workspace with its own XDG config home
	dir := setupWorkspace(t)

	// When: writing the user config
	_, err := execute(t, "config", "init", "--user")

	// Then: it lands under XDG_CONFIG_HOME
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "xdg", "corpusrag", "config.yaml"))
	assert.NoFileExists(t, "corpusrag.yaml")
}

func TestConfigRestore_NoBackups(t *testing.T) {
	setupWorkspace(t)

	_, err := execute(t, "config", "restore")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no backups")
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	// Given: an API key and a Sentry DSN in the environment
	setupWorkspace(t)
	t.Setenv(config.EnvPrefix+"_EMBEDDINGS_API_KEY", "sk-secret")
	t.Setenv(config.EnvPrefix+"_SENTRY_DSN", "https://key@sentry.example.com/1")

	// When: showing the effective config
	out, err := execute(t, "config", "show", "--provider", "static")

	// Then: neither secret is printed
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-secret")
	assert.NotContains(t, out, "key@sentry")
	assert.Contains(t, out, redacted)
}

func TestConfigPath_PrintsLocations(t *testing.T) {
	dir := setupWorkspace(t)

	out, err := execute(t, "config", "path")

	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "xdg", "corpusrag", "config.yaml"))
	assert.Contains(t, out, "corpusrag.yaml (not found)")
}
