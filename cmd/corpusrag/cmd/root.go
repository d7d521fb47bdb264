// Package cmd provides the CLI commands for corpusrag.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/corpusrag/internal/config"
	crerrors "github.com/Aman-CERP/corpusrag/internal/errors"
	"github.com/Aman-CERP/corpusrag/internal/logging"
	"github.com/Aman-CERP/corpusrag/internal/profiling"
	"github.com/Aman-CERP/corpusrag/internal/telemetry"
	"github.com/Aman-CERP/corpusrag/pkg/version"
)

// Command annotations read by the root hooks.
const (
	// annotationSkipConfig marks commands that run without loading config.
	annotationSkipConfig = "corpusrag/skip-config"
	// annotationStdio marks commands whose stdout carries a protocol or a
	// full-screen UI, so logs must stay off stderr.
	annotationStdio = "corpusrag/stdio"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configFile string
	envFile    string
	debug      bool
	root       string
	urls       []string
	persistDir string
	provider   string
	profile    profiling.Options
}

// app is the state the root hooks prepare for subcommands.
type app struct {
	opts    globalOptions
	cfg     *config.Config
	logger  *slog.Logger
	cleanup []func()
}

// NewRootCmd creates the root command for the corpusrag CLI.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{logger: logging.Discard()}

	cmd := &cobra.Command{
		Use:   "corpusrag",
		Short: "Build and search a vector index over local documents and web pages",
		Long: `corpusrag ingests a directory of documents (txt, md, csv, pdf, docx, html)
and a list of web pages, splits them into overlapping chunks, embeds them and
persists a vector index. The index can be queried from the command line, an
interactive terminal UI, or an MCP client.

Every 'index' run is a full rebuild that replaces the previous index.`,
		Version:       version.GetInfo().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("corpusrag version {{.Version}}\n")

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.opts.configFile, "config", "c", "", "Config file (default: ./corpusrag.yaml)")
	flags.StringVar(&a.opts.envFile, "env-file", "", "Dotenv file (default: ./.env)")
	flags.BoolVar(&a.opts.debug, "debug", false, "Enable debug logging")
	flags.StringVar(&a.opts.root, "root", "", "Corpus directory (overrides corpus.root)")
	flags.StringArrayVar(&a.opts.urls, "url", nil, "Web page to index (repeatable, overrides corpus.urls)")
	flags.StringVar(&a.opts.persistDir, "persist-dir", "", "Index directory (overrides index.persist_dir)")
	flags.StringVar(&a.opts.provider, "provider", "", "Embedding provider: openai, ollama or static")
	flags.StringVar(&a.opts.profile.CPU, "profile-cpu", "", "Write a CPU profile to this file")
	flags.StringVar(&a.opts.profile.Heap, "profile-mem", "", "Write a heap profile to this file on exit")
	flags.StringVar(&a.opts.profile.Trace, "profile-trace", "", "Write an execution trace to this file")
	_ = flags.MarkHidden("profile-trace")

	cmd.PersistentPreRunE = a.setup
	cmd.PersistentPostRunE = a.teardown

	cmd.AddCommand(newIndexCmd(a))
	cmd.AddCommand(newSearchCmd(a))
	cmd.AddCommand(newTUICmd(a))
	cmd.AddCommand(newServeCmd(a))
	cmd.AddCommand(newWatchCmd(a))
	cmd.AddCommand(newConfigCmd(a))
	cmd.AddCommand(newDoctorCmd(a))
	cmd.AddCommand(newVersionCmd())

	return cmd, a
}

// setup loads configuration, applies flag overrides and starts logging and
// error reporting.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if cmd.Annotations[annotationSkipConfig] != "" {
		return nil
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := cfg.Logging
	if a.opts.debug {
		logCfg.Level = "debug"
	}
	if cmd.Annotations[annotationStdio] != "" {
		logCfg = logging.ForStdio(logCfg)
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	a.logger = logger
	a.cleanup = append(a.cleanup, cleanup)
	slog.SetDefault(logger)

	a.cleanup = append(a.cleanup, telemetry.Init(cfg.Sentry, logger))

	if a.opts.profile.Enabled() {
		session, err := profiling.Start(a.opts.profile, logger)
		if err != nil {
			return err
		}
		a.cleanup = append(a.cleanup, func() {
			if err := session.Stop(); err != nil {
				logger.Warn("failed to write profiles", slog.String("error", err.Error()))
			}
		})
	}

	logger.Debug("command started",
		slog.String("command", cmd.CommandPath()),
		slog.String("version", version.GetInfo().Version),
		slog.String("corpus_root", cfg.Corpus.Root),
		slog.String("persist_dir", cfg.Index.PersistDir))
	return nil
}

// loadConfig reads config files and the environment, then applies flags.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{
		File:    a.opts.configFile,
		EnvFile: a.opts.envFile,
	})
	if err != nil {
		return nil, err
	}

	if a.opts.root != "" {
		cfg.Corpus.Root = a.opts.root
	}
	if len(a.opts.urls) > 0 {
		cfg.Corpus.URLs = a.opts.urls
	}
	if a.opts.persistDir != "" {
		cfg.Index.PersistDir = a.opts.persistDir
	}
	if a.opts.provider != "" {
		cfg.Embeddings.Provider = a.opts.provider
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// teardown runs cleanups in reverse order. It is safe to call twice.
func (a *app) teardown(_ *cobra.Command, _ []string) error {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
	a.cleanup = nil
	return nil
}

// Execute runs the root command and prints any error in the structured
// error format.
func Execute() error {
	cmd, a := newRootCmd()
	err := cmd.Execute()
	// Cobra skips post-run hooks when a command fails.
	_ = a.teardown(cmd, nil)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), crerrors.Format(err))
	}
	return err
}
