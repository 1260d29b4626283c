package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/briefwell/briefwell/pkg/cmd"
	"github.com/briefwell/briefwell/pkg/commandqueue"
	"github.com/briefwell/briefwell/pkg/log"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "briefwell-api",
		Usage:                 "Create and manage scheduled research reports",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for the command queue",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password for the command queue",
				Sources: cli.EnvVars("REDIS_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.Setup("briefwell-api", command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Briefwell API")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			commands, err := commandqueue.NewQueue(ctx, commandqueue.Config{
				Addr:     command.String("redis-addr"),
				Password: command.String("redis-password"),
			}, logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := commands.Stop(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close command queue", "error", err)
				}
			}()

			api := NewAPI(logger, persistence, commands)

			return api.Start(int(command.Int("port")))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
