package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/sharelease/pkg/leasedb"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the LeaseDB schema (create or update tables, seed well-known accounts)",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ldb, err := leasedb.New(&cfg.LeaseDB)
	if err != nil {
		return fmt.Errorf("migrate lease database: %w", err)
	}
	defer ldb.Close()

	if err := ldb.Healthcheck(cmd.Context()); err != nil {
		return fmt.Errorf("healthcheck after migrate: %w", err)
	}

	fmt.Println("lease database schema is up to date")
	return nil
}
