package app

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stacklok/connector-sync/database"
	"github.com/stacklok/connector-sync/internal/config"
)

func newMigrateCmd() *cobra.Command {
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tool",
		Long:  `Database migration tool for managing schema versions. Use with 'up' or 'down' subcommands.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Usage()
		},
	}
	migrateCmd.PersistentFlags().BoolP("yes", "y", false, "Answer yes to all questions")

	migrateUpCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending database migrations",
		Long: `Apply all pending database migrations to bring the schema up to date.
The database connection parameters are read from the config file.`,
		RunE: runMigrateUp,
	}

	migrateDownCmd := &cobra.Command{
		Use:   "down",
		Short: "Revert database migrations",
		Long: `Revert database migrations.
WARNING: reverting the initial migration drops every record, session,
version and conflict.

Examples:
  # Revert the latest migration
  connector-sync migrate down --config config.yaml --num-steps 1 --yes

  # Revert everything
  connector-sync migrate down --config config.yaml --yes`,
		RunE: runMigrateDown,
	}
	migrateDownCmd.Flags().UintP("num-steps", "n", 0, "Number of steps to revert (0 = all)")

	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	return migrateCmd
}

// migrationTarget returns the connection string of the configured database
func migrationTarget() (*config.DatabaseConfig, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	if cfg.Database == nil {
		return nil, "", fmt.Errorf("database configuration is required")
	}
	connString, err := cfg.Database.GetConnectionString()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get connection string: %w", err)
	}
	return cfg.Database, connString, nil
}

// confirm asks on out and reads the answer from in unless --yes was given
func confirm(cmd *cobra.Command, question string) (bool, error) {
	yes, err := cmd.Flags().GetBool("yes")
	if err != nil {
		return false, err
	}
	if yes {
		return true, nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && f == os.Stdin && !term.IsTerminal(int(f.Fd())) {
		return false, fmt.Errorf("stdin is not a terminal: pass --yes to confirm")
	}
	return ask(in, cmd.OutOrStdout(), question)
}

func ask(in io.Reader, out io.Writer, question string) (bool, error) {
	if _, err := fmt.Fprintf(out, "%s Continue? (yes/no): ", question); err != nil {
		return false, err
	}
	answer, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read user input: %w", err)
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "yes" || answer == "y", nil
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	db, connString, err := migrationTarget()
	if err != nil {
		return err
	}

	ok, err := confirm(cmd, fmt.Sprintf("About to apply migrations to %s@%s/%s.", db.User, db.Host, db.Database))
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("Migration cancelled by user")
		return nil
	}

	slog.Info("Applying database migrations")
	if err := database.MigrateUp(connString); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	db, connString, err := migrationTarget()
	if err != nil {
		return err
	}

	numSteps, err := cmd.Flags().GetUint("num-steps")
	if err != nil {
		return err
	}

	what := "all migrations"
	if numSteps > 0 {
		what = fmt.Sprintf("%d migration(s)", numSteps)
	}
	ok, err := confirm(cmd, fmt.Sprintf("About to revert %s on %s@%s/%s.", what, db.User, db.Host, db.Database))
	if err != nil {
		return err
	}
	if !ok {
		slog.Info("Migration cancelled by user")
		return nil
	}

	if err := database.MigrateDown(connString, int(numSteps)); err != nil {
		return fmt.Errorf("failed to revert migrations: %w", err)
	}
	return nil
}
