package cli

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lily/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const version = "0.1.0"

type Error struct {
	Code    int
	Message string
}

// loadEnvFiles reads LILY_ENV_FILE, or .env and .env.local. Variables
// already set in the environment win.
func loadEnvFiles() {
	if f := os.Getenv("LILY_ENV_FILE"); f != "" {
		_ = godotenv.Load(f)
		return
	}
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

func Run(ctx context.Context, argv []string) *Error {
	loadEnvFiles()

	var (
		logLevel  string
		logFormat string
	)

	cmd := &cli.Command{
		Name:    "lily",
		Usage:   "Conversational reminder assistant",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Aliases:     []string{"l"},
				Usage:       "Log level (debug, info, warn, error)",
				Value:       "info",
				Sources:     cli.EnvVars("LILY_LOG_LEVEL"),
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "Log format (console, json)",
				Value:       "console",
				Sources:     cli.EnvVars("LILY_LOG_FORMAT"),
				Destination: &logFormat,
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			sweepCommand(),
			chatCommand(),
			mcpCommand(),
			migrateCommand(),
		},
	}

	// logging is configured once root flags are parsed, before any subcommand runs
	for _, sub := range cmd.Commands {
		action := sub.Action
		sub.Action = func(ctx context.Context, c *cli.Command) error {
			format, err := logging.ParseFormat(logFormat)
			if err != nil {
				return goerr.Wrap(err, "invalid log format")
			}
			// stdout belongs to command output and the MCP stdio transport
			logger := logging.NewWithFormat(logLevel, format, os.Stderr)
			logging.SetDefault(logger)
			return action(logging.With(ctx, logger), c)
		}
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
