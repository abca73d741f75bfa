package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/manav03panchal/cmdstack/internal/config"
	"github.com/manav03panchal/cmdstack/internal/output"
)

// configCmd shows the effective configuration.
var configCmd = &cobra.Command{
	Use:     "config",
	Aliases: []string{"cfg", "settings"},
	Short:   "Show the effective configuration",
	Long: `Show the configuration after applying defaults, the configuration file
and CMDSTACK_* environment variables.

Environment variables:
  CMDSTACK_ENGINE_HISTORY_LIMIT     history size (0 for unlimited)
  CMDSTACK_ENGINE_SHUTDOWN_TIMEOUT  worker drain timeout (e.g. 5s)
  CMDSTACK_STORAGE_PATH             workspace database directory
  CMDSTACK_STORAGE_IN_MEMORY        keep the workspace in memory
  CMDSTACK_LOG_LEVEL                debug, info, warn, error
  CMDSTACK_LOG_JSON                 JSON log lines on stderr
  CMDSTACK_SCRIPT_DIR               directory of *.lua commands
  CMDSTACK_SCRIPT_TIMEOUT           time limit of one script run
  CMDSTACK_OUTPUT_FORMAT            cli, json, plain
  CMDSTACK_OUTPUT_COLOR             auto, always, never

Examples:
  cmdstack config
  cmdstack config path
  cmdstack config --format json`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), configPath())
	},
}

func init() {
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func configPath() string {
	if flagConfig != "" {
		return flagConfig
	}
	return config.DefaultPath()
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}

	f := output.NewFormatter()
	f.Writer = cmd.OutOrStdout()
	if cmd.Flags().Changed("format") {
		if f.Format, err = output.ParseFormat(flagFormat); err != nil {
			return err
		}
	}
	if f.IsJSON() {
		return f.JSON(cfg)
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(cfg)
}
