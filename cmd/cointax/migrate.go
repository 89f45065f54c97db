package main

import (
	"fmt"

	"github.com/Veraticus/cointax/internal/cli"
	"github.com/Veraticus/cointax/internal/config"
	"github.com/Veraticus/cointax/internal/storage"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	var status bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Every command migrates the database on startup; this command does it explicitly or reports the schema version.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := storage.NewSQLiteStorage(config.DatabasePath())
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer closeStorage(store)

			out := cmd.OutOrStdout()
			current, err := store.SchemaVersion(cmd.Context())
			if err != nil {
				return err
			}

			if status {
				fmt.Fprintln(out, cli.RenderKeyValues([][2]string{
					{"Database", store.Path()},
					{"Schema version", fmt.Sprint(current)},
					{"Latest version", fmt.Sprint(storage.ExpectedSchemaVersion)},
				}))
				return nil
			}

			if current == storage.ExpectedSchemaVersion {
				fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Database is up to date (version %d)", current)))
				return nil
			}

			if err := store.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Migrated database from version %d to %d", current, storage.ExpectedSchemaVersion)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&status, "status", false, "show the schema version without migrating")

	return cmd
}
