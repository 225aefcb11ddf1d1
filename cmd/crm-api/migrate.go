package main

import (
	"fmt"

	"github.com/jemiko1/crm-platform-sub005/common/database"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap(cmd.Context(), bootstrapOptions{requireDB: true})
			if err != nil {
				return err
			}
			defer rt.close()

			migrations, err := database.Migrations()
			if err != nil {
				return fmt.Errorf("failed to load migrations: %w", err)
			}
			applied, err := database.Migrate(cmd.Context(), rt.db, migrations, rt.logger)
			if err != nil {
				return err
			}
			rt.logger.Info("migrations complete", zap.Int("applied", applied), zap.Int("known", len(migrations)))
			return nil
		},
	}
}
