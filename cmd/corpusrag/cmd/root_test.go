package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
	"github.com/Aman-CERP/corpusrag/pkg/version"
)

// setupWorkspace moves the test into an empty directory with its own user
// config home, so no real config or log directory is touched.
func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	return dir
}

// writeFile creates path (relative to the working directory) with content.
func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_VersionFlag(t *testing.T) {
	// Given: a root command
	setupWorkspace(t)

	// When: asking for --version
	out, err := execute(t, "--version")

	// Then: the template prints name and version
	require.NoError(t, err)
	assert.Equal(t, "corpusrag version "+version.GetInfo().Version+"\n", out)
}

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	cmd := NewRootCmd()

	names := make([]string, 0, len(cmd.Commands()))
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}

	for _, want := range []string{"index", "search", "tui", "serve", "watch", "config", "doctor", "version"} {
		assert.Contains(t, names, want)
	}
}

func TestRootCmd_FlagsOverrideConfig(t *testing.T) {
	// Given: a project config with its own root and persist dir
	setupWorkspace(t)
	writeFile(t, "corpusrag.yaml", "corpus:\n  root: from-file\nindex:\n  persist_dir: file-store\n")

	// When: flags name other values
	out, err := execute(t, "config", "show",
		"--root", "from-flag",
		"--persist-dir", "flag-store",
		"--url", "https://example.com/a",
		"--url", "https://example.com/b",
		"--provider", "static")

	// Then: the effective config carries the flag values
	require.NoError(t, err)
	assert.Contains(t, out, "root: from-flag")
	assert.Contains(t, out, "persist_dir: flag-store")
	assert.Contains(t, out, "- https://example.com/a")
	assert.Contains(t, out, "- https://example.com/b")
	assert.Contains(t, out, "provider: static")
	assert.NotContains(t, out, "from-file")
}

func TestRootCmd_InvalidFlagValueIsConfigError(t *testing.T) {
	// Given: an unknown embedding provider on the command line
	setupWorkspace(t)

	// When: running a command that loads config
	_, err := execute(t, "config", "show", "--provider", "word2vec")

	// Then: validation rejects it with a config error
	require.Error(t, err)
	assert.Equal(t, crerrors.ErrCodeConfigInvalid, crerrors.GetCode(err))
}

func TestRootCmd_ExplicitConfigMustExist(t *testing.T) {
	setupWorkspace(t)

	_, err := execute(t, "config", "show", "--config", "missing.yaml")

	require.Error(t, err)
	assert.Equal(t, crerrors.ErrCodeConfigNotFound, crerrors.GetCode(err))
}

func TestRootCmd_SkipConfigCommandsIgnoreBrokenConfig(t *testing.T) {
	// Given: a project config that does not parse
	setupWorkspace(t)
	writeFile(t, "corpusrag.yaml", "corpus: [not, a, map]\n")

	// When: running version, which never loads config
	out, err := execute(t, "version", "--short")

	// Then: it still works
	require.NoError(t, err)
	assert.Equal(t, version.GetInfo().Version+"\n", out)
}

func TestRootCmd_WritesLogFile(t *testing.T) {
	// Given: a workspace and the default log path
	dir := setupWorkspace(t)

	// When: running a command that sets up logging with --debug
	_, err := execute(t, "config", "show", "--debug")

	// Then: the JSON log file exists under ./logs
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "logs", "corpusrag.log"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"command started"`)
}
