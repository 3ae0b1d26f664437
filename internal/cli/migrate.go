package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AI2HU/gauge/internal/db"
	"github.com/AI2HU/gauge/internal/db/sqlite"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage database migrations",
	Long:  `Run the embedded SQL migrations with golang-migrate.`,
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Run all pending migrations",
	Long:  `Apply all pending database migrations.`,
	RunE:  runMigrateUp,
}

var migrateVersionCmd = &cobra.Command{
	Use:     "version",
	Aliases: []string{"status"},
	Short:   "Show current migration version",
	Long:    `Show the current database migration version.`,
	RunE:    runMigrateVersion,
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

func openSQLite(ctx context.Context) (*sqlite.SQLite, error) {
	if cfg.SQLDatabase.Provider != "sqlite" {
		return nil, fmt.Errorf("migrations only apply to the sqlite provider, configured: %s", cfg.SQLDatabase.Provider)
	}

	s, err := sqlite.New(dbConfig(cfg.SQLDatabase))
	if err != nil {
		return nil, err
	}
	if err := s.Open(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	fmt.Printf("%s🔄 Running database migrations...%s\n", InfoStyle, Reset)

	s, err := openSQLite(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Disconnect(cmd.Context())

	if err := db.RunMigrations(s.DB()); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	fmt.Printf("%s✅ Migrations completed successfully!%s\n", SuccessStyle, Reset)
	return printMigrationVersion(s)
}

func runMigrateVersion(cmd *cobra.Command, args []string) error {
	fmt.Printf("%s📊 Migration Status%s\n", HeaderStyle, Reset)
	fmt.Printf("%s===================%s\n", DimStyle, Reset)

	s, err := openSQLite(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Disconnect(cmd.Context())

	return printMigrationVersion(s)
}

func printMigrationVersion(s *sqlite.SQLite) error {
	version, dirty, ok, err := db.MigrationVersion(s.DB())
	if err != nil {
		return err
	}

	if !ok {
		fmt.Printf("%sNo migrations applied yet%s\n", WarningStyle, Reset)
		return nil
	}

	fmt.Println(FormatLabelValue("Current migration version:", fmt.Sprintf("%d", version)))
	if dirty {
		fmt.Printf("%s⚠️  Database is dirty, the last migration failed part way%s\n", WarningStyle, Reset)
	}
	return nil
}
