package cmd

import (
	"fmt"

	"github.com/nexushost/portal/internal/app"
	"github.com/nexushost/portal/internal/config"
	"github.com/nexushost/portal/internal/db"
	"github.com/spf13/cobra"
)

var migrateStatus bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		dsn := config.Load().Database.DSN()
		if migrateStatus {
			version, err := db.MigrationStatus(dsn)
			if err != nil {
				return err
			}
			fmt.Printf("schema version: %d\n", version)
			return nil
		}
		if err := db.RunMigrations(dsn); err != nil {
			return err
		}
		logger().Info().Msg("migrations applied")
		return nil
	},
}

var syncServersCmd = &cobra.Command{
	Use:   "sync-servers",
	Short: "Refresh server status and usage from the panel",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			return printJSON(a.Services.Servers.SyncStatuses(cmd.Context()))
		})
	},
}

var syncOrdersCmd = &cobra.Command{
	Use:   "sync-orders",
	Short: "Refresh open orders from the billing provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			res, err := a.Services.Orders.SyncBilling(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(res)
		})
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot-metrics",
	Short: "Record current server, user, order and revenue totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			counts, err := a.Services.Admin.Snapshot(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(counts)
		})
	},
}

var bootstrapAuthID string

var bootstrapAdminCmd = &cobra.Command{
	Use:   "bootstrap-admin <email>",
	Short: "Promote a user to admin, creating the profile if --auth-id is given",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			p, err := a.Services.Admin.BootstrapAdmin(cmd.Context(), args[0], bootstrapAuthID)
			if err != nil {
				return err
			}
			return printJSON(p)
		})
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "print the applied schema version and exit")
	bootstrapAdminCmd.Flags().StringVar(&bootstrapAuthID, "auth-id", "", "auth user id to create the profile with")
}
