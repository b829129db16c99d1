package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/lily/pkg/adapter"
	"github.com/m-mizutani/lily/pkg/usecase/scratch"
	"github.com/m-mizutani/lily/pkg/usecase/sweep"
	"github.com/m-mizutani/lily/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func sweepCommand() *cli.Command {
	var cfg config

	flags := []cli.Flag{}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, channelFlags(&cfg)...)

	return &cli.Command{
		Name:  "sweep",
		Usage: "Deliver reminders that are due now, once",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			wa, err := cfg.newWhatsApp()
			if err != nil {
				return err
			}
			tg, err := cfg.newTelegram()
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

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			sweeper := sweep.New(repo, scratch.New(gemini), adapter.NewRouter(wa, tg))
			n, err := sweeper.Run(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "processed: %d\n", n)
			return nil
		},
	}
}
