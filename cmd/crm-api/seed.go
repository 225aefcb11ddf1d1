package main

import (
	"github.com/jemiko1/crm-platform-sub005/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newSeedCmd() *cobra.Command {
	var req service.SeedRequest
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the permission catalog, default roles, positions, lists and the tenant admin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap(cmd.Context(), bootstrapOptions{requireDB: true, redis: true})
			if err != nil {
				return err
			}
			defer rt.close()

			flags := cmd.Flags()
			if !flags.Changed("tenant-id") {
				req.TenantID = rt.cfg.SystemTenantID
			}
			if !flags.Changed("tenant-name") {
				req.TenantName = rt.cfg.Seed.TenantName
			}
			if !flags.Changed("admin-email") {
				req.AdminEmail = rt.cfg.Seed.AdminEmail
			}
			if !flags.Changed("admin-password") {
				req.AdminPassword = rt.cfg.Seed.AdminPassword
			}

			services := service.NewServices(rt.repos, service.Options{Cache: rt.kv}, rt.logger)
			res, err := services.Seed.Seed(cmd.Context(), req)
			if err != nil {
				return err
			}
			// a running API may hold permission sets from before the seed
			if err := services.Roles.InvalidateAllPermissions(cmd.Context()); err != nil {
				rt.logger.Warn("failed to invalidate permission cache", zap.Error(err))
			}

			fields := []zap.Field{
				zap.String("tenant_id", req.TenantID),
				zap.Int("permissions", res.Permissions),
				zap.Int("roles_created", res.RolesCreated),
				zap.Int("positions_created", res.PositionsAdded),
				zap.Int("list_items_created", res.ListItemsAdded),
				zap.Bool("admin_created", res.AdminCreated),
			}
			if res.Workflow != nil {
				fields = append(fields, zap.Any("workflow", res.Workflow))
			}
			rt.logger.Info("seed complete", fields...)
			return nil
		},
	}
	cmd.Flags().StringVar(&req.TenantID, "tenant-id", "", "tenant to seed (default SYSTEM_TENANT_ID)")
	cmd.Flags().StringVar(&req.TenantName, "tenant-name", "", "tenant display name (default SEED_TENANT_NAME)")
	cmd.Flags().StringVar(&req.AdminEmail, "admin-email", "", "admin login (default SEED_ADMIN_EMAIL)")
	cmd.Flags().StringVar(&req.AdminPassword, "admin-password", "", "admin password, only used when the admin is created")
	return cmd
}
