package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/model"
	"github.com/m-mizutani/lily/pkg/tool"
	"github.com/m-mizutani/lily/pkg/usecase/conversation"
	"github.com/m-mizutani/lily/pkg/usecase/scratch"
	"github.com/m-mizutani/lily/pkg/usecase/sweep"
	"github.com/m-mizutani/lily/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// consoleSender prints reminders instead of delivering them to a channel
type consoleSender struct {
	w io.Writer
}

func (x *consoleSender) Send(ctx context.Context, addr model.Address, text string) error {
	_, err := fmt.Fprintf(x.w, "\n⏰ [%s]\n%s\n\n", addr, text)
	return err
}

func chatCommand() *cli.Command {
	var (
		cfg           config
		address       string
		sweepInterval time.Duration
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "address",
			Aliases:     []string{"a"},
			Usage:       "Address to talk as (phone number, or tg_<chat id>)",
			Value:       "local",
			Sources:     cli.EnvVars("LILY_ADDRESS"),
			Destination: &address,
		},
		&cli.DurationFlag{
			Name:        "sweep-interval",
			Usage:       "Print due reminders at this interval. Requires --store=memory",
			Destination: &sweepInterval,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Talk to the assistant from a terminal. Replies are printed, not sent",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			// a shared store would hand other users' reminders to this console
			if sweepInterval > 0 && cfg.store != storeMemory {
				return goerr.New("sweep-interval requires --store=memory")
			}

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

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			addr := model.Address(address)
			if err := repo.EnsureUser(ctx, addr); err != nil {
				return goerr.Wrap(err, "failed to ensure user", goerr.V("address", addr))
			}

			surface := tool.New(repo, tool.WithLocation(loc))
			engine := conversation.New(repo, gemini, surface)

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			if sweepInterval > 0 {
				sweeper := sweep.New(repo, scratch.New(gemini), &consoleSender{w: rl.Stdout()})
				go runSweepTicker(ctx, sweeper, sweepInterval)
			}

			w := c.Root().Writer
			fmt.Fprintf(w, "Chat session started as %s. Type 'exit' to quit.\n", addr)

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) {
					if line == "" {
						break
					}
					continue
				}
				if errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				message := strings.TrimSpace(line)
				if message == "exit" || message == "quit" {
					break
				}
				if message == "" {
					continue
				}

				s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(os.Stderr))
				s.Suffix = " thinking..."
				s.Start()
				reply, err := engine.Process(ctx, addr, model.NewTextContent(model.AnnotateLinks(message)))
				s.Stop()

				if err != nil {
					// one failed turn does not end the session
					logging.From(ctx).Error("failed to process message", "error", err)
					fmt.Fprintf(w, "(failed to get a reply: %v)\n", err)
					continue
				}
				fmt.Fprintf(w, "%s\n", reply)
			}

			fmt.Fprintf(w, "\nChat session completed\n")
			return nil
		},
	}
}

func runSweepTicker(ctx context.Context, sweeper *sweep.Sweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweeper.Run(ctx); err != nil {
				logging.From(ctx).Error("sweep failed", "error", err)
			}
		}
	}
}
