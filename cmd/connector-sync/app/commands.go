// Package app provides the commands of the connector-sync binary.
package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/stacklok/connector-sync/internal/config"
	"github.com/stacklok/connector-sync/pkg/versions"
)

// NewRootCmd creates the root command with every subcommand attached.
// A new tree is built on each call so tests can execute it repeatedly.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "connector-sync",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Bidirectional sync between local records and external endpoints",
		Long: `connector-sync keeps local records and the records of external API endpoints
in step, detecting changes on both sides, holding conflicts for manual review
and keeping a version history of every processed change.`,
		Run: func(cmd *cobra.Command, _ []string) {
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	rootCmd.PersistentFlags().String("config", "", "Path to configuration file (YAML format)")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		slog.Error("Error binding config flag", "error", err)
	}
	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newConflictsCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// loadConfig loads the file named by --config or CONNECTOR_SYNC_CONFIG
func loadConfig() (*config.Config, error) {
	path := viper.GetString("config")
	if path == "" {
		return nil, fmt.Errorf("a configuration file is required: set --config or %s_CONFIG", config.EnvPrefix)
	}
	cfg, err := config.LoadConfig(config.WithConfigPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}
			return printVersion(cmd.OutOrStdout(), format)
		},
	}
	versionCmd.Flags().String("format", "", "Output format (json)")
	return versionCmd
}

func printVersion(w io.Writer, format string) error {
	info := versions.GetVersionInfo()
	if format == "json" {
		return writeJSON(w, info)
	}
	_, err := fmt.Fprintf(w, "connector-sync %s (commit %s, built %s, %s, %s)\n",
		info.Version, info.Commit, info.BuildDate, info.GoVersion, info.Platform)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
