package app

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	syncapp "github.com/stacklok/connector-sync/internal/app"
	"github.com/stacklok/connector-sync/internal/connector"
	"github.com/stacklok/connector-sync/internal/sync"
)

func newSyncCmd() *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync ORG_UNIT CONNECTOR",
		Short: "Run one sync session in the foreground",
		Long: `Run one sync session for a connector and print its result as JSON.

The command exits with an error when the session fails, is stopped, or
completes with collected errors. Interrupting the command stops the session
after the operations already in flight.`,
		Args: cobra.ExactArgs(2),
		RunE: runSync,
	}
	syncCmd.Flags().String("direction", "",
		"Override the connector direction (local_to_remote, remote_to_local, bidirectional)")
	return syncCmd
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	direction, err := cmd.Flags().GetString("direction")
	if err != nil {
		return err
	}
	if direction != "" && !connector.Direction(direction).Valid() {
		return fmt.Errorf("unknown direction '%s'", direction)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := syncapp.NewSyncApp(ctx, syncapp.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer app.Close()

	result, err := app.RunSession(ctx, sync.Request{
		OrgUnit:       args[0],
		ConnectorName: args[1],
		Direction:     connector.Direction(direction),
	})
	if result != nil {
		if writeErr := writeJSON(cmd.OutOrStdout(), result); writeErr != nil {
			return writeErr
		}
	}
	if err != nil {
		return err
	}
	if !result.Success {
		return errors.New(unsuccessfulMessage(result))
	}
	return nil
}

func unsuccessfulMessage(result *sync.Result) string {
	return fmt.Sprintf("sync session %s finished with status %s (%d failed, %d errors)",
		result.SessionID, result.Status, result.OperationsFailed, len(result.Errors))
}
