package app

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/stacklok/connector-sync/internal/app/storage"
	"github.com/stacklok/connector-sync/internal/sync"
)

const defaultListLimit = 50

// openJournal opens only the journal backend, without the record store
// or the connector registry.
func openJournal(ctx context.Context) (sync.Journal, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	factory, err := storage.NewStorageFactory(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open storage: %w", err)
	}
	journal, err := factory.CreateJournal(ctx)
	if err != nil {
		factory.Cleanup()
		return nil, nil, fmt.Errorf("failed to open journal: %w", err)
	}
	return journal, factory.Cleanup, nil
}

func addListFlags(cmd *cobra.Command) {
	cmd.Flags().String("org-unit", "", "Only show entries of this org unit")
	cmd.Flags().Int("limit", defaultListLimit, "Maximum number of entries (0 = all)")
	cmd.Flags().String("format", "table", "Output format (table, json)")
}

func newSessionsCmd() *cobra.Command {
	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recent sync sessions",
		RunE:  runSessions,
	}
	addListFlags(sessionsCmd)
	sessionsCmd.Flags().String("connector", "", "Only show sessions of this connector")
	return sessionsCmd
}

func runSessions(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	orgUnit, _ := flags.GetString("org-unit")
	connectorName, _ := flags.GetString("connector")
	limit, _ := flags.GetInt("limit")
	format, _ := flags.GetString("format")

	journal, closeFn, err := openJournal(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	sessions, err := journal.ListSessions(cmd.Context(), sync.SessionFilter{
		OrgUnit:   orgUnit,
		Connector: connectorName,
		Limit:     limit,
	})
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if format == "json" {
		return writeJSON(cmd.OutOrStdout(), sessions)
	}
	return renderSessions(cmd.OutOrStdout(), sessions)
}

func newConflictsCmd() *cobra.Command {
	conflictsCmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List conflicts held for manual resolution",
		RunE:  runConflicts,
	}
	addListFlags(conflictsCmd)
	conflictsCmd.Flags().String("collection", "", "Only show conflicts of this collection")
	conflictsCmd.Flags().String("record-id", "", "Only show conflicts of this record")
	conflictsCmd.Flags().String("session-id", "", "Only show conflicts detected by this session")
	return conflictsCmd
}

func runConflicts(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	filter := sync.ConflictFilter{}
	filter.OrgUnit, _ = flags.GetString("org-unit")
	filter.Collection, _ = flags.GetString("collection")
	filter.RecordID, _ = flags.GetString("record-id")
	filter.SessionID, _ = flags.GetString("session-id")
	filter.Limit, _ = flags.GetInt("limit")
	format, _ := flags.GetString("format")

	journal, closeFn, err := openJournal(cmd.Context())
	if err != nil {
		return err
	}
	defer closeFn()

	conflicts, err := journal.ListConflicts(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("failed to list conflicts: %w", err)
	}

	if format == "json" {
		return writeJSON(cmd.OutOrStdout(), conflicts)
	}
	return renderConflicts(cmd.OutOrStdout(), conflicts)
}

func renderSessions(w io.Writer, sessions []*sync.Session) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Org unit", "Connector", "Direction", "Status", "Processed", "Conflicts", "Failed", "Started")
	for _, s := range sessions {
		if err := table.Append(
			s.ID,
			s.OrgUnit,
			s.ConnectorID,
			string(s.Direction),
			string(s.Phase),
			strconv.Itoa(s.OperationsProcessed),
			strconv.Itoa(s.ConflictsDetected),
			strconv.Itoa(s.OperationsFailed),
			s.StartedAt.Format(time.RFC3339),
		); err != nil {
			return err
		}
	}
	return table.Render()
}

func renderConflicts(w io.Writer, conflicts []*sync.Conflict) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Org unit", "Collection", "Record", "Kind", "Origin", "Source time", "Target time", "Detected")
	for _, c := range conflicts {
		if err := table.Append(
			c.ID,
			c.OrgUnit,
			c.Collection,
			c.RecordID,
			string(c.Kind),
			string(c.Origin),
			c.SourceTimestamp.Format(time.RFC3339),
			c.TargetTimestamp.Format(time.RFC3339),
			c.DetectedAt.Format(time.RFC3339),
		); err != nil {
			return err
		}
	}
	return table.Render()
}
