// Package cmd holds the portalctl operator commands.
package cmd

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/nexushost/portal/internal/app"
	"github.com/nexushost/portal/internal/config"
	"github.com/nexushost/portal/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "portalctl",
	Short:         "Operate the hosting portal",
	Long:          `Operator tasks for the hosting portal: schema migrations, panel and billing syncs, metric snapshots and admin bootstrap.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command named on the command line until it finishes or
// the process is interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger().Error().Err(err).Msg("command failed")
		return err
	}
	return nil
}

func init() {
	rootCmd.AddCommand(migrateCmd, syncServersCmd, syncOrdersCmd, snapshotCmd, bootstrapAdminCmd)
}

// withApp runs fn against a fully wired portal.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg := config.Load()
	log := logging.NewLogger(cfg)
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func logger() *zerolog.Logger {
	log := logging.NewLogger(config.Load())
	return &log
}
