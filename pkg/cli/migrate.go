package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type migrator interface {
	Migrate(ctx context.Context) error
}

func migrateCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "migrate",
		Usage: "Create the tables used by the postgres and sqlite stores",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.From(ctx).Warn("failed to close repository", "error", err)
				}
			}()

			m, ok := repo.(migrator)
			if !ok {
				return goerr.New("store has no schema to migrate", goerr.V("store", cfg.store))
			}
			if err := m.Migrate(ctx); err != nil {
				return goerr.Wrap(err, "failed to migrate", goerr.V("store", cfg.store))
			}

			fmt.Fprintf(c.Root().Writer, "migrated %s store\n", cfg.store)
			return nil
		},
	}
}
