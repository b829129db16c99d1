package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/model"
	"github.com/m-mizutani/lily/pkg/service/mcp"
	"github.com/m-mizutani/lily/pkg/tool"
	"github.com/m-mizutani/lily/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func mcpCommand() *cli.Command {
	var (
		cfg     config
		address string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "address",
			Aliases:     []string{"a"},
			Usage:       "Address whose tasks and notes the tools operate on",
			Sources:     cli.EnvVars("LILY_ADDRESS"),
			Destination: &address,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the task tools to an MCP client over stdio",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			loc, err := cfg.location()
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.From(ctx).Warn("failed to close repository", "error", err)
				}
			}()

			addr := model.Address(address)
			if err := repo.EnsureUser(ctx, addr); err != nil {
				return goerr.Wrap(err, "failed to ensure user", goerr.V("address", addr))
			}

			srv, err := mcp.NewServer(tool.New(repo, tool.WithLocation(loc)), addr, version)
			if err != nil {
				return err
			}

			logging.From(ctx).Info("serving MCP over stdio", "address", addr)
			return srv.Run(ctx)
		},
	}
}
