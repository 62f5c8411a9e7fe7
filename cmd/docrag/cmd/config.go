package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/docrag/configs"
	"github.com/Aman-CERP/docrag/internal/config"
	"github.com/Aman-CERP/docrag/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration files",
		Long: `Manage docrag configuration.

Configuration precedence (lowest to highest):
  1. Hardcoded defaults
  2. User config (~/.config/docrag/config.yaml)
  3. Project config (.docrag.yaml)
  4. Environment variables (DOCRAG_*)`,
		Example: `  # Create .docrag.yaml in the current project
  docrag config init

  # Create the user config instead
  docrag config init --global

  # Show effective configuration
  docrag config show --json`,
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigPathCmd())

	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var force, global bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file from the template",
		Long: `Create .docrag.yaml in the project directory, or the user config with
--global. An existing file is left alone unless --force is given, in which
case it is backed up first.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigInit(cmd, force, global)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file (a backup is kept)")
	cmd.Flags().BoolVar(&global, "global", false, "Write the user config instead of the project config")

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show effective configuration",
		Long:  `Show the configuration after merging defaults, user config, project config and environment.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runConfigShow(cmd, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print configuration file paths",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			project, err := filepath.Abs(filepath.Join(projectDir, config.ProjectConfigName))
			if err != nil {
				return err
			}
			out.KeyValue([][2]string{
				{"project", project},
				{"user", config.GetUserConfigPath()},
			})
			return nil
		},
	}
}

func runConfigInit(cmd *cobra.Command, force, global bool) error {
	out := output.New(cmd.OutOrStdout())

	path := filepath.Join(projectDir, config.ProjectConfigName)
	template := configs.ProjectConfigTemplate
	if global {
		path = config.GetUserConfigPath()
		template = configs.UserConfigTemplate
	}

	if fileExists(path) {
		if !force {
			out.Warningf("Configuration already exists: %s", path)
			out.Status("💡", "Use --force to overwrite (a backup is kept)")
			return nil
		}
		backupPath, err := config.Backup(path)
		if err != nil {
			return fmt.Errorf("failed to backup config: %w", err)
		}
		out.Statusf("💾", "Backup: %s", backupPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(template), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	out.Success("Created configuration")
	out.Statusf("📁", "Location: %s", path)
	if !global {
		out.Newline()
		out.Status("📋", "Next steps:")
		out.Status("", "  1. Declare your corpora under 'corpora:'")
		out.Status("", "  2. Run 'docrag build' to embed them")
	}
	return nil
}

func runConfigShow(cmd *cobra.Command, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := output.New(cmd.OutOrStdout())
	if jsonOutput {
		return out.JSON(cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	out.Text(string(data))
	return nil
}
