package main

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/trezcool/masomo-admin/storage/database"
)

var runMigrationFunc = database.RunMigration // mockable

func (cli *commandLine) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate COMMAND [VERSION]",
		Short: "Migrate the database: up, up-by-one, up-to VERSION, down, down-to VERSION, redo, version",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return usageErr(cmd)
			}
			return cli.migrate(args)
		},
	}
}

func (cli *commandLine) migrate(args []string) error {
	command := args[0]

	var version int64
	switch command {
	case "up-to", "down-to":
		if len(args) < 2 {
			return errors.Errorf("%s must be of form: admin migrate %s VERSION", command, command)
		}
		v, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return errors.Errorf("version must be a number (got '%s')", args[1])
		}
		version = v
	}

	if cli.db == nil {
		return errors.New("migrations require the postgres storage")
	}
	current, err := runMigrationFunc(cli.db, command, version)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "database version: %d\n", current)
	return nil
}
