package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xraph/referral/store/postgres"
)

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the store schema and indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := c.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			s, err := openStore(ctx, cfg.Store)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer s.Close()

			if err := s.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}

			attrs := []any{"driver", cfg.Store.Driver}
			if pg, ok := s.(*postgres.Store); ok {
				if version, dirty, err := pg.SchemaVersion(); err == nil {
					attrs = append(attrs, "schema_version", version, "dirty", dirty)
				}
			}
			logger.Info("store migrated", attrs...)
			return nil
		},
	}
}
