package main

import (
	"fmt"

	"github.com/trezcool/schoolgate/storage/database"
)

// mockable
var (
	migrateUpFunc        = database.Migrate
	migrateDownFunc      = database.MigrateDown
	migrationVersionFunc = database.MigrationVersion
)

func (cli *commandLine) migrate(command string) error {
	switch command {
	case "up":
		if err := migrateUpFunc(cli.conf); err != nil {
			return err
		}
	case "down":
		if err := migrateDownFunc(cli.conf); err != nil {
			return err
		}
	case "version":
	default:
		return fmt.Errorf("%q: no such command", command)
	}

	version, dirty, err := migrationVersionFunc(cli.conf)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "version: %d (dirty: %t)\n", version, dirty)
	return nil
}
