package cmd

import (
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/spec-kit/triage-portal/internal/domain"
	"github.com/spec-kit/triage-portal/internal/repository"
	"github.com/spec-kit/triage-portal/internal/service"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "List staff eligible for the escalation token and whether they are online",
	RunE:  runRoster,
}

func runRoster(cmd *cobra.Command, _ []string) error {
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

	staff, err := store.Users().List(cmd.Context(), repository.UserFilter{
		Roles: []domain.UserRole{domain.RoleAdmin, domain.RoleSuperAdmin},
	})
	if err != nil {
		return err
	}

	now := time.Now()
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Role", "Online", "Last Login"})
	for _, user := range staff {
		lastLogin := "never"
		if user.LastLoginAt != nil {
			lastLogin = user.LastLoginAt.Format(time.RFC3339)
		}
		online := service.IsOnline(user, now, cfg.Triage.PresenceWindow)
		tw.AppendRow(table.Row{user.ID, user.Name, user.Role, online, lastLogin})
	}
	tw.Render()
	return nil
}
