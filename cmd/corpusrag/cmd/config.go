package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/corpusrag/internal/config"
	"github.com/Aman-CERP/corpusrag/internal/output"
)

// projectConfigFile is the file config init writes without --user.
const projectConfigFile = "corpusrag.yaml"

// redacted replaces secrets in config show output.
const redacted = "********"

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Manage corpusrag configuration files.

Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config (~/.config/corpusrag/config.yaml)
  3. Project config (./corpusrag.yaml, or --config)
  4. .env file (only fills unset variables)
  5. Environment variables (CORPUSRAG_*)
  6. Command-line flags`,
		Example: `  # Write the defaults to ./corpusrag.yaml
  corpusrag config init

  # Show the effective configuration
  corpusrag config show

  # Undo the last config init --force
  corpusrag config restore`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd(a))
	cmd.AddCommand(newConfigPathCmd())
	cmd.AddCommand(newConfigRestoreCmd())

	return cmd
}

// configTarget is the file init and restore operate on.
func configTarget(user bool) string {
	if user {
		return config.UserConfigPath()
	}
	return projectConfigFile
}

func newConfigInitCmd() *cobra.Command {
	var force, user bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Long: `Write the built-in defaults to ./corpusrag.yaml, or to the user config
file with --user. An existing file is kept unless --force is given, in which
case it is backed up first.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationSkipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, configTarget(user), force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file (a backup is kept)")
	cmd.Flags().BoolVar(&user, "user", false, "Write the user config instead of the project config")

	return cmd
}

func runConfigInit(cmd *cobra.Command, path string, force bool) error {
	out := output.New(cmd.OutOrStdout())

	if _, err := os.Stat(path); err == nil {
		if !force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		backup, err := config.BackupFile(path)
		if err != nil {
			return err
		}
		out.Successf("Backed up %s to %s", path, backup)
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("check %s: %w", path, err)
	}

	if err := config.NewConfig().WriteYAML(path); err != nil {
		return err
	}
	out.Successf("Wrote %s", path)
	return nil
}

func newConfigShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long:  `Print the configuration after merging every source and flag. Secrets are masked.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := *a.cfg
			if cfg.Embeddings.APIKey != "" {
				cfg.Embeddings.APIKey = redacted
			}
			if cfg.Sentry.DSN != "" {
				cfg.Sentry.DSN = redacted
			}
			data, err := yaml.Marshal(&cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "path",
		Short:       "Print the config file locations",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationSkipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			project := config.FindProjectConfig(".")
			if project == "" {
				project = projectConfigFile + " (not found)"
			} else if abs, err := filepath.Abs(project); err == nil {
				project = abs
			}
			_, _ = fmt.Fprintf(out, "user:    %s\n", config.UserConfigPath())
			_, err := fmt.Fprintf(out, "project: %s\n", project)
			return err
		},
	}
}

func newConfigRestoreCmd() *cobra.Command {
	var user bool

	cmd := &cobra.Command{
		Use:         "restore",
		Short:       "Restore the newest config backup",
		Long:        `Replace the config file with its newest backup. The current file is backed up first.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationSkipConfig: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := configTarget(user)
			backups, err := config.ListBackups(path)
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				return fmt.Errorf("no backups of %s", path)
			}
			if err := config.RestoreBackup(backups[0], path); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Restored %s from %s", path, backups[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&user, "user", false, "Restore the user config instead of the project config")

	return cmd
}
