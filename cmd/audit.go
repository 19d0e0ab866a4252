package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit <ticket-id>",
	Short: "Print the audit trail of a ticket, newest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runAudit,
}

func runAudit(cmd *cobra.Command, args []string) error {
	if _, err := uuid.Parse(args[0]); err != nil {
		return fmt.Errorf("invalid ticket id %q", args[0])
	}
	cfg, logger, err := bootstrap()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	store, pg, err := openPostgresStore(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer pg.Close()

	ticket, err := store.Tickets().GetByID(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	logs, err := store.AuditLogs().ListByTicket(cmd.Context(), ticket.ID)
	if err != nil {
		return err
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetTitle("%s  status=%s  category=%s", ticket.ID, ticket.Status, ticket.Category)
	tw.AppendHeader(table.Row{"When", "Action", "Success", "Actor", "Details"})
	for _, entry := range logs {
		actor := "system"
		if entry.UserID != nil {
			actor = *entry.UserID
		}
		details, _ := json.Marshal(entry.ActionDetails)
		if entry.ErrorMessage != nil {
			details = append(details, []byte(" error="+*entry.ErrorMessage)...)
		}
		tw.AppendRow(table.Row{entry.CreatedAt.Format(time.RFC3339), entry.ActionType, entry.Success, actor, string(details)})
	}
	tw.Render()
	return nil
}
