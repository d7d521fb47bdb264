package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/corpusrag/internal/chunk"
	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
)

// unsetEnv clears key for the test and restores it afterwards.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration sources
	cfg := NewConfig()

	// Then: the defaults are in place and valid
	assert.Equal(t, "data", cfg.Corpus.Root)
	assert.Empty(t, cfg.Corpus.URLs)
	assert.Equal(t, []string{".csv"}, cfg.Loaders.MergeExtensions)
	assert.Equal(t, chunk.DefaultChunkSize, cfg.Chunking.Size)
	assert.Equal(t, chunk.DefaultChunkOverlap, cfg.Chunking.Overlap)
	assert.Equal(t, "\n", cfg.Chunking.Separator)
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
	assert.Equal(t, "vectorstore", cfg.Index.PersistDir)
	assert.Equal(t, 4, cfg.Retriever.K)
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFiles_ReturnsDefaults(t *testing.T) {
	// Given: an empty project directory
	dir := t.TempDir()

	// When: loading
	cfg, err := Load(LoadOptions{Dir: dir, SkipUserConfig: true})

	// Then: defaults are returned
	require.NoError(t, err)
	assert.Equal(t, NewConfig().Corpus, cfg.Corpus)
	assert.Equal(t, NewConfig().Retriever, cfg.Retriever)
}

func TestLoad_ProjectYAMLOverlaysDefaults(t *testing.T) {
	// Given: a project config that sets a few keys
	dir := t.TempDir()
	writeConfig(t, dir, "corpusrag.yaml", `
corpus:
  root: docs
  urls:
    - https://example.com/a
chunking:
  size: 500
  overlap: 50
embeddings:
  provider: static
watch:
  debounce: 5s
`)

	// When: loading
	cfg, err := Load(LoadOptions{Dir: dir, SkipUserConfig: true})

	// Then: the set keys change and the rest keep their defaults
	require.NoError(t, err)
	assert.Equal(t, "docs", cfg.Corpus.Root)
	assert.Equal(t, []string{"https://example.com/a"}, cfg.Corpus.URLs)
	assert.Equal(t, 500, cfg.Chunking.Size)
	assert.Equal(t, 50, cfg.Chunking.Overlap)
	assert.Equal(t, "\n", cfg.Chunking.Separator)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
	assert.Equal(t, 5*time.Second, cfg.Watch.Debounce)
	assert.Equal(t, 4, cfg.Retriever.K)
}

func TestLoad_YMLExtensionIsFound(t *testing.T) {
	// Given: only corpusrag.yml exists
	dir := t.TempDir()
	writeConfig(t, dir, "corpusrag.yml", "retriever:\n  k: 9\n")

	// When: loading
	cfg, err := Load(LoadOptions{Dir: dir, SkipUserConfig: true})

	// Then: it is applied
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Retriever.K)
}

func TestLoad_EmptyYAMLIsAllowed(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "corpusrag.yaml", "")

	cfg, err := Load(LoadOptions{Dir: dir, SkipUserConfig: true})

	require.NoError(t, err)
	assert.Equal(t, "data", cfg.Corpus.Root)
}

func TestLoad_UnknownKeyIsError(t *testing.T) {
	// Given: a config with a misspelled key
	dir := t.TempDir()
	writeConfig(t, dir, "corpusrag.yaml", "chunking:\n  chunk_size: 100\n")

	// When: loading
	_, err := Load(LoadOptions{Dir: dir, SkipUserConfig: true})

	// Then: the typo is reported as a config error
	require.Error(t, err)
	assert.Equal(t, crerrors.ErrCodeConfigInvalid, crerrors.GetCode(err))
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	// Given: an explicit config path that does not exist
	dir := t.TempDir()

	// When: loading
	_, err := Load(LoadOptions{Dir: dir, File: filepath.Join(dir, "nope.yaml"), SkipUserConfig: true})

	// Then: the error says the file was not found
	require.Error(t, err)
	assert.Equal(t, crerrors.ErrCodeConfigNotFound, crerrors.GetCode(err))
}

func TestLoad_ExplicitFileReplacesProjectLookup(t *testing.T) {
	// Given: both a project config and an explicit file
	dir := t.TempDir()
	writeConfig(t, dir, "corpusrag.yaml", "retriever:\n  k: 2\n")
	explicit := writeConfig(t, dir, "other.yaml", "retriever:\n  k: 7\n")

	// When: loading with the explicit file
	cfg, err := Load(LoadOptions{Dir: dir, File: explicit, SkipUserConfig: true})

	// Then: only the explicit file is applied
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Retriever.K)
}

func TestLoad_UserConfigBelowProjectConfig(t *testing.T) {
	// Given: a user config and a project config setting overlapping keys
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	require.NoError(t, os.MkdirAll(filepath.Join(xdg, "corpusrag"), 0o755))
	writeConfig(t, filepath.Join(xdg, "corpusrag"), "config.yaml",
		"retriever:\n  k: 3\nembeddings:\n  model: user-model\n")

	dir := t.TempDir()
	writeConfig(t, dir, "corpusrag.yaml", "retriever:\n  k: 6\n")

	// When: loading
	cfg, err := Load(LoadOptions{Dir: dir})

	// Then: project wins where both set a key, user config fills the rest
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Retriever.K)
	assert.Equal(t, "user-model", cfg.Embeddings.Model)
}

func TestUserConfigPath_UsesXDG(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	assert.Equal(t, filepath.Join("/tmp/xdg", "corpusrag", "config.yaml"), UserConfigPath())
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	// Given: a yaml value and env overrides for several sections
	dir := t.TempDir()
	writeConfig(t, dir, "corpusrag.yaml", "retriever:\n  k: 2\nchunking:\n  size: 300\n")
	t.Setenv("CORPUSRAG_RETRIEVER_K", "11")
	t.Setenv("CORPUSRAG_CHUNKING_SIZE", "800")
	t.Setenv("CORPUSRAG_CORPUS_URLS", "https://a.example,https://b.example")
	t.Setenv("CORPUSRAG_EMBEDDINGS_PROVIDER", "ollama")
	t.Setenv("CORPUSRAG_INDEX_PERSIST_DIR", "store")
	t.Setenv("CORPUSRAG_WATCH_DEBOUNCE", "750ms")

	// When: loading
	cfg, err := Load(LoadOptions{Dir: dir, SkipUserConfig: true})

	// Then: env wins over yaml
	require.NoError(t, err)
	assert.Equal(t, 11, cfg.Retriever.K)
	assert.Equal(t, 800, cfg.Chunking.Size)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Corpus.URLs)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "store", cfg.Index.PersistDir)
	assert.Equal(t, 750*time.Millisecond, cfg.Watch.Debounce)
}

func TestLoad_UnprefixedEnvIgnored(t *testing.T) {
	// Given: a bare variable sharing a field name
	t.Setenv("ROOT", "elsewhere")
	t.Setenv("K", "99")

	// When: loading
	cfg, err := Load(LoadOptions{Dir: t.TempDir(), SkipUserConfig: true})

	// Then: only prefixed variables are honoured
	require.NoError(t, err)
	assert.Equal(t, "data", cfg.Corpus.Root)
	assert.Equal(t, 4, cfg.Retriever.K)
}

func TestLoad_InvalidEnvValue(t *testing.T) {
	t.Setenv("CORPUSRAG_RETRIEVER_K", "many")

	_, err := Load(LoadOptions{Dir: t.TempDir(), SkipUserConfig: true})

	require.Error(t, err)
	assert.Equal(t, crerrors.ErrCodeConfigInvalid, crerrors.GetCode(err))
}

func TestLoad_DotEnvFillsUnsetVariables(t *testing.T) {
	// Given: a .env file and no matching environment variable
	dir := t.TempDir()
	unsetEnv(t, "CORPUSRAG_RETRIEVER_K")
	writeConfig(t, dir, ".env", "CORPUSRAG_RETRIEVER_K=5\n")

	// When: loading
	cfg, err := Load(LoadOptions{Dir: dir, SkipUserConfig: true})

	// Then: the .env value applies
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Retriever.K)
}

func TestLoad_DotEnvDoesNotOverrideEnvironment(t *testing.T) {
	// Given: the same variable in the environment and in .env
	dir := t.TempDir()
	t.Setenv("CORPUSRAG_RETRIEVER_K", "8")
	writeConfig(t, dir, ".env", "CORPUSRAG_RETRIEVER_K=5\n")

	// When: loading
	cfg, err := Load(LoadOptions{Dir: dir, SkipUserConfig: true})

	// Then: the environment wins
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Retriever.K)
}

func TestLoad_ExplicitEnvFile(t *testing.T) {
	dir := t.TempDir()
	unsetEnv(t, "CORPUSRAG_CORPUS_ROOT")
	envFile := writeConfig(t, t.TempDir(), "custom.env", "CORPUSRAG_CORPUS_ROOT=from-env-file\n")

	cfg, err := Load(LoadOptions{Dir: dir, EnvFile: envFile, SkipUserConfig: true})

	require.NoError(t, err)
	assert.Equal(t, "from-env-file", cfg.Corpus.Root)
}

func TestLoad_InvalidResultIsRejected(t *testing.T) {
	// Given: yaml producing an invalid splitter
	dir := t.TempDir()
	writeConfig(t, dir, "corpusrag.yaml", "chunking:\n  size: 100\n  overlap: 100\n")

	// When: loading
	_, err := Load(LoadOptions{Dir: dir, SkipUserConfig: true})

	// Then: validation fails with a suggestion
	require.Error(t, err)
	assert.Equal(t, crerrors.ErrCodeConfigInvalid, crerrors.GetCode(err))
	assert.Contains(t, crerrors.Format(err), "chunking")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty root", func(c *Config) { c.Corpus.Root = " " }, "corpus.root"},
		{"non-http url", func(c *Config) { c.Corpus.URLs = []string{"ftp://x"} }, "corpus.urls"},
		{"relative url", func(c *Config) { c.Corpus.URLs = []string{"example.com"} }, "corpus.urls"},
		{"negative max size", func(c *Config) { c.Corpus.MaxFileSize = -1 }, "corpus.max_file_size"},
		{"ignore file path", func(c *Config) { c.Corpus.IgnoreFile = "sub/.corpusignore" }, "corpus.ignore_file"},
		{"extension without dot", func(c *Config) { c.Loaders.Extensions = []string{"txt"} }, "loaders"},
		{"negative web timeout", func(c *Config) { c.Web.Timeout = -time.Second }, "web.timeout"},
		{"zero chunk size", func(c *Config) { c.Chunking.Size = 0 }, "chunking"},
		{"overlap too large", func(c *Config) { c.Chunking.Overlap = c.Chunking.Size }, "chunking"},
		{"negative overlap", func(c *Config) { c.Chunking.Overlap = -1 }, "chunking"},
		{"empty separator", func(c *Config) { c.Chunking.Separator = "" }, "chunking.separator"},
		{"unknown provider", func(c *Config) { c.Embeddings.Provider = "mlx" }, "embeddings.provider"},
		{"batch too large", func(c *Config) { c.Embeddings.BatchSize = 4096 }, "embeddings.batch_size"},
		{"negative dimensions", func(c *Config) { c.Embeddings.Dimensions = -8 }, "embeddings.dimensions"},
		{"empty persist dir", func(c *Config) { c.Index.PersistDir = "" }, "index.persist_dir"},
		{"zero k", func(c *Config) { c.Retriever.K = 0 }, "retriever.k"},
		{"negative cache", func(c *Config) { c.Retriever.CacheSize = -1 }, "retriever.cache_size"},
		{"negative debounce", func(c *Config) { c.Watch.Debounce = -time.Second }, "watch"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: defaults with one bad field
			cfg := NewConfig()
			tt.mutate(cfg)

			// When: validating
			err := cfg.Validate()

			// Then: a config error names the field
			require.Error(t, err)
			assert.Equal(t, crerrors.ErrCodeConfigInvalid, crerrors.GetCode(err))
			var ce *crerrors.Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Details["field"])
		})
	}
}

func TestValidate_AcceptsValidVariants(t *testing.T) {
	cfg := NewConfig()
	cfg.Corpus.URLs = []string{"http://example.com", "https://example.com/page"}
	cfg.Loaders.Extensions = []string{".txt", ".md"}
	cfg.Embeddings.Provider = "static"
	cfg.Chunking.Overlap = 0
	cfg.Logging.Level = "WARN"

	assert.NoError(t, cfg.Validate())
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	// Given: a customised config written to disk
	cfg := NewConfig()
	cfg.Corpus.Root = "knowledge"
	cfg.Corpus.URLs = []string{"https://example.com"}
	cfg.Chunking.Size = 640
	cfg.Embeddings.Provider = "static"
	cfg.Watch.PollInterval = 3 * time.Second
	path := filepath.Join(t.TempDir(), "nested", "corpusrag.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	// When: loading it back
	loaded, err := Load(LoadOptions{Dir: t.TempDir(), File: path, SkipUserConfig: true})

	// Then: the values survive
	require.NoError(t, err)
	assert.Equal(t, cfg.Corpus.Root, loaded.Corpus.Root)
	assert.Equal(t, cfg.Corpus.URLs, loaded.Corpus.URLs)
	assert.Equal(t, cfg.Chunking, loaded.Chunking)
	assert.Equal(t, cfg.Embeddings.Provider, loaded.Embeddings.Provider)
	assert.Equal(t, cfg.Watch, loaded.Watch)
	assert.Equal(t, cfg.Logging.Level, loaded.Logging.Level)
}

func TestWriteYAML_QuotesSeparator(t *testing.T) {
	// Given: the default newline separator and a multi-line one
	for _, sep := range []string{"\n", "\n\n", " "} {
		cfg := NewConfig()
		cfg.Chunking.Separator = sep
		path := filepath.Join(t.TempDir(), "corpusrag.yaml")

		// When: writing and reading the file back
		require.NoError(t, cfg.WriteYAML(path))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		loaded, err := Load(LoadOptions{Dir: t.TempDir(), File: path, SkipUserConfig: true})

		// Then: the separator is a quoted scalar and survives unchanged
		require.NoError(t, err)
		assert.Contains(t, string(data), "separator: "+strconv.Quote(sep))
		assert.Equal(t, sep, loaded.Chunking.Separator)
	}
}
