package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/triage-portal/internal/config"
	"github.com/spec-kit/triage-portal/internal/observability"
	"github.com/spec-kit/triage-portal/internal/persistence"
	"github.com/spec-kit/triage-portal/internal/repository"
)

var rootCmd = &cobra.Command{
	Use:          "triage",
	Short:        "IT support triage portal: classify, automate or escalate requests",
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(rosterCmd)
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: %w", err)
	}
	return cfg, logger, nil
}

// openPostgresStore is used by the maintenance commands, which have nothing to
// inspect without a database.
func openPostgresStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, *persistence.Postgres, error) {
	if cfg.Postgres.DSN == "" {
		return nil, nil, fmt.Errorf("POSTGRES_DSN is required for this command")
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pg.Store(), pg, nil
}
