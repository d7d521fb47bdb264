// Package config loads corpusrag settings.
//
// Sources, in increasing precedence:
//  1. Built-in defaults (NewConfig)
//  2. User config ($XDG_CONFIG_HOME/corpusrag/config.yaml or ~/.config/corpusrag/config.yaml)
//  3. Project config (corpusrag.yaml or corpusrag.yml, or an explicit file)
//  4. A .env file, which only fills variables not already in the environment
//  5. CORPUSRAG_* environment variables
//
// Command-line flags are applied on top by the CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/corpusrag/internal/chunk"
	"github.com/Aman-CERP/corpusrag/internal/embed"
	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
	"github.com/Aman-CERP/corpusrag/internal/logging"
	"github.com/Aman-CERP/corpusrag/internal/telemetry"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CORPUSRAG"

// Project config file names, tried in order.
var projectFiles = []string{"corpusrag.yaml", "corpusrag.yml"}

// Config is the complete corpusrag configuration.
type Config struct {
	Corpus     CorpusConfig     `yaml:"corpus"`
	Loaders    LoadersConfig    `yaml:"loaders"`
	Web        WebConfig        `yaml:"web"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Index      IndexConfig      `yaml:"index"`
	Retriever  RetrieverConfig  `yaml:"retriever"`
	Normalize  NormalizeConfig  `yaml:"normalize"`
	Watch      WatchConfig      `yaml:"watch"`
	Logging    logging.Config   `yaml:"logging"`
	Sentry     telemetry.Config `yaml:"sentry"`
}

// CorpusConfig names what gets indexed.
type CorpusConfig struct {
	Root string   `yaml:"root" split_words:"true"`
	URLs []string `yaml:"urls" envconfig:"URLS"`
	// MaxFileSize skips larger files, in bytes (0 = no limit).
	MaxFileSize int64 `yaml:"max_file_size" split_words:"true"`
	// Exclude holds gitignore-style patterns relative to Root.
	Exclude []string `yaml:"exclude" split_words:"true"`
	// IgnoreFile names a file in Root with more exclude patterns ("" = none).
	IgnoreFile string `yaml:"ignore_file" split_words:"true"`
}

// LoadersConfig selects the loaders in use.
type LoadersConfig struct {
	// Extensions limits loading to these extensions (empty = all built-in).
	Extensions []string `yaml:"extensions" split_words:"true"`
	// MergeExtensions lists tabular formats merged into one document per file.
	MergeExtensions []string `yaml:"merge_extensions" split_words:"true"`
}

// WebConfig configures page fetching.
type WebConfig struct {
	UserAgent string        `yaml:"user_agent" split_words:"true"`
	Timeout   time.Duration `yaml:"timeout" split_words:"true"`
	MaxBytes  int64         `yaml:"max_bytes" split_words:"true"`
}

// ChunkingConfig configures the character splitter.
type ChunkingConfig struct {
	Size      int    `yaml:"size" split_words:"true"`
	Overlap   int    `yaml:"overlap" split_words:"true"`
	Separator string `yaml:"separator" split_words:"true"`
}

// MarshalYAML writes the separator double-quoted. yaml.v3 emits "\n" as a
// block scalar that reads back as "".
func (c ChunkingConfig) MarshalYAML() (any, error) {
	return struct {
		Size      int          `yaml:"size"`
		Overlap   int          `yaml:"overlap"`
		Separator quotedString `yaml:"separator"`
	}{c.Size, c.Overlap, quotedString(c.Separator)}, nil
}

type quotedString string

func (s quotedString) MarshalYAML() (any, error) {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Style: yaml.DoubleQuotedStyle, Value: string(s)}, nil
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider is openai, ollama or static.
	Provider string `yaml:"provider" split_words:"true"`
	Model    string `yaml:"model" split_words:"true"`
	BaseURL  string `yaml:"base_url" split_words:"true"`
	// APIKey falls back to OPENAI_API_KEY.
	APIKey     string        `yaml:"api_key" split_words:"true"`
	Dimensions int           `yaml:"dimensions" split_words:"true"`
	BatchSize  int           `yaml:"batch_size" split_words:"true"`
	Timeout    time.Duration `yaml:"timeout" split_words:"true"`
}

// IndexConfig locates the persisted index.
type IndexConfig struct {
	PersistDir string `yaml:"persist_dir" split_words:"true"`
}

// RetrieverConfig configures searches.
type RetrieverConfig struct {
	K         int `yaml:"k" split_words:"true"`
	CacheSize int `yaml:"cache_size" split_words:"true"`
}

// NormalizeConfig controls the cp932 sanitisation.
type NormalizeConfig struct {
	// Force sanitises on every OS, not only Windows.
	Force bool `yaml:"force" split_words:"true"`
}

// WatchConfig configures the rebuild-on-change watcher.
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce" split_words:"true"`
	// PollInterval > 0 uses polling instead of filesystem events.
	PollInterval time.Duration `yaml:"poll_interval" split_words:"true"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Corpus: CorpusConfig{
			Root:       "data",
			Exclude:    []string{"**/.git", "**/node_modules"},
			IgnoreFile: ".corpusignore",
		},
		Loaders: LoadersConfig{
			MergeExtensions: []string{".csv"},
		},
		Web: WebConfig{
			Timeout:  30 * time.Second,
			MaxBytes: 20 << 20,
		},
		Chunking: ChunkingConfig{
			Size:      chunk.DefaultChunkSize,
			Overlap:   chunk.DefaultChunkOverlap,
			Separator: chunk.DefaultSeparator,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  string(embed.ProviderOpenAI),
			BatchSize: embed.DefaultBatchSize,
			Timeout:   2 * time.Minute,
		},
		Index: IndexConfig{
			PersistDir: "vectorstore",
		},
		Retriever: RetrieverConfig{
			K:         4,
			CacheSize: 256,
		},
		Watch: WatchConfig{
			Debounce: 2 * time.Second,
		},
		Logging: logging.DefaultConfig(),
	}
}

// LoadOptions selects the files Load reads.
type LoadOptions struct {
	// Dir is searched for a project config file (default ".").
	Dir string
	// File is an explicit config file; it must exist.
	File string
	// EnvFile is a dotenv file (default Dir/.env); a missing file is ignored.
	EnvFile string
	// SkipUserConfig ignores the per-user config file.
	SkipUserConfig bool
}

// Load builds a Config from defaults, config files and the environment, then
// validates it.
func Load(opts LoadOptions) (*Config, error) {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	cfg := NewConfig()

	if !opts.SkipUserConfig {
		if path := UserConfigPath(); fileExists(path) {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
		}
	}

	switch {
	case opts.File != "":
		if !fileExists(opts.File) {
			return nil, crerrors.New(crerrors.ErrCodeConfigNotFound, "config file not found", nil).
				WithDetail("file", opts.File)
		}
		if err := cfg.loadYAML(opts.File); err != nil {
			return nil, err
		}
	default:
		if path := FindProjectConfig(opts.Dir); path != "" {
			if err := cfg.loadYAML(path); err != nil {
				return nil, err
			}
		}
	}

	envFile := opts.EnvFile
	if envFile == "" {
		envFile = filepath.Join(opts.Dir, ".env")
	}
	if err := loadDotEnv(envFile); err != nil {
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, crerrors.ConfigError("invalid environment override", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FindProjectConfig returns the first project config file in dir, or "".
func FindProjectConfig(dir string) string {
	for _, name := range projectFiles {
		if path := filepath.Join(dir, name); fileExists(path) {
			return path
		}
	}
	return ""
}

// UserConfigPath returns the per-user config file path, following the XDG
// base directory convention.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "corpusrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "corpusrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "corpusrag", "config.yaml")
}

// loadYAML overlays the keys present in path onto c. Unknown keys are errors.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return crerrors.ConfigError("read config file", err).WithDetail("file", path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return crerrors.ConfigError("parse config file", err).WithDetail("file", path)
	}
	return nil
}

func loadDotEnv(path string) error {
	if !fileExists(path) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return crerrors.ConfigError("read env file", err).WithDetail("file", path)
	}
	return nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Corpus.Root) == "" {
		return invalid("corpus.root", "must not be empty")
	}
	for _, raw := range c.Corpus.URLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("corpus.urls", fmt.Sprintf("%q is not an http(s) URL", raw))
		}
	}
	if c.Corpus.MaxFileSize < 0 {
		return invalid("corpus.max_file_size", "must be non-negative")
	}
	if strings.ContainsAny(c.Corpus.IgnoreFile, `/\`) {
		return invalid("corpus.ignore_file", "must be a file name in corpus.root, not a path")
	}

	for _, ext := range slices.Concat(c.Loaders.Extensions, c.Loaders.MergeExtensions) {
		if !strings.HasPrefix(ext, ".") || len(ext) < 2 {
			return invalid("loaders", fmt.Sprintf("extension %q must start with a dot", ext))
		}
	}

	if c.Web.Timeout < 0 {
		return invalid("web.timeout", "must be non-negative")
	}

	if c.Chunking.Separator == "" {
		return invalid("chunking.separator", "must not be empty")
	}
	splitter := chunk.Splitter{
		ChunkSize:    c.Chunking.Size,
		ChunkOverlap: c.Chunking.Overlap,
		Separator:    c.Chunking.Separator,
	}
	if err := splitter.Validate(); err != nil {
		return crerrors.ConfigError("invalid chunking settings", err).
			WithDetail("field", "chunking").
			WithSuggestion("chunking.size must be positive and chunking.overlap in [0, size)")
	}

	if _, err := embed.ParseProvider(c.Embeddings.Provider); err != nil {
		return invalid("embeddings.provider", err.Error())
	}
	if c.Embeddings.BatchSize < 0 || c.Embeddings.BatchSize > embed.MaxBatchSize {
		return invalid("embeddings.batch_size", fmt.Sprintf("must be between 0 and %d", embed.MaxBatchSize))
	}
	if c.Embeddings.Dimensions < 0 {
		return invalid("embeddings.dimensions", "must be non-negative")
	}

	if strings.TrimSpace(c.Index.PersistDir) == "" {
		return invalid("index.persist_dir", "must not be empty")
	}
	if c.Retriever.K <= 0 {
		return invalid("retriever.k", "must be positive")
	}
	if c.Retriever.CacheSize < 0 {
		return invalid("retriever.cache_size", "must be non-negative")
	}
	if c.Watch.Debounce < 0 || c.Watch.PollInterval < 0 {
		return invalid("watch", "durations must be non-negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return invalid("logging.level", fmt.Sprintf("must be debug, info, warn or error, got %q", c.Logging.Level))
	}
	return nil
}

func invalid(field, msg string) *crerrors.Error {
	return crerrors.ConfigError(field+" "+msg, nil).WithDetail("field", field)
}

// WriteYAML writes c to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
