// Command prefsyncd serves the preference API: saved search filters and
// favorite persons/companies, persisted to SurrealDB with a device-local
// SQLite mirror for offline operation.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/orgbook/prefsync/pkg/prefsync"
)

// Version is overwritten at build time using -ldflags.
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string

	cmd := &cobra.Command{
		Use:           "prefsyncd",
		Short:         "Preference persistence and sync daemon",
		Long:          "prefsyncd serves saved search filters and favorites, writing to the remote preference store with a local mirror fallback.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.Version = Version
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to YAML config file")

	cmd.AddCommand(
		newServeCmd(&cfgPath),
		newReconcileCmd(&cfgPath),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), Version)
			},
		},
	)
	return cmd
}

func newServeCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the preference HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			cfg, err := prefsync.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := prefsync.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			return app.Run(ctx)
		},
	}
}

func newReconcileCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass and exit",
		Long:  "Pushes records saved while offline to the remote preference store for the configured owner, then prints the report as JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLogger()
			cfg, err := prefsync.LoadConfig(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Owner == "" {
				return fmt.Errorf("reconcile needs an owner: set owner in the config file or PREFSYNC_OWNER")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := prefsync.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			rep, err := app.Service().Reconcile(ctx)
			if err != nil {
				return err
			}
			return json.NewEncoder(cmd.OutOrStdout()).Encode(rep)
		},
	}
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}
