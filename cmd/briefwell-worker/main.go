package main

import (
	"context"
	"os"
	"time"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/briefwell/briefwell/pkg/cmd"
	"github.com/briefwell/briefwell/pkg/commandqueue"
	"github.com/briefwell/briefwell/pkg/delivery"
	"github.com/briefwell/briefwell/pkg/engine"
	"github.com/briefwell/briefwell/pkg/log"
	"github.com/briefwell/briefwell/pkg/otelhelper"
	"github.com/briefwell/briefwell/pkg/research"
)

func main() {
	command := &cli.Command{
		Name:                  "briefwell-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to execute report research and delivery",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
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
				Name:    "research-backend",
				Usage:   "Research backend (llm, local)",
				Value:   "llm",
				Sources: cli.EnvVars("RESEARCH_BACKEND"),
			},
			&cli.StringFlag{
				Name:    "llm-base-url",
				Usage:   "Base URL of the chat-completions endpoint",
				Sources: cli.EnvVars("LLM_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "llm-api-key",
				Usage:   "API key for the research endpoint",
				Sources: cli.EnvVars("LLM_API_KEY"),
			},
			&cli.StringFlag{
				Name:    "llm-model",
				Usage:   "Model name for the research endpoint",
				Sources: cli.EnvVars("LLM_MODEL"),
			},
			&cli.StringFlag{
				Name:    "smtp-addr",
				Usage:   "SMTP server address (host:port)",
				Value:   "localhost:25",
				Sources: cli.EnvVars("SMTP_ADDR"),
			},
			&cli.StringFlag{
				Name:    "smtp-from",
				Usage:   "From address for delivered reports",
				Value:   "reports@briefwell.local",
				Sources: cli.EnvVars("SMTP_FROM"),
			},
			&cli.StringFlag{
				Name:    "smtp-username",
				Usage:   "SMTP AUTH username",
				Sources: cli.EnvVars("SMTP_USERNAME"),
			},
			&cli.StringFlag{
				Name:    "smtp-password",
				Usage:   "SMTP AUTH password",
				Sources: cli.EnvVars("SMTP_PASSWORD"),
			},
			&cli.DurationFlag{
				Name:    "retry-backoff",
				Usage:   "Base delay between research retries",
				Value:   30 * time.Second,
				Sources: cli.EnvVars("RETRY_BACKOFF"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing",
				Sources: cli.EnvVars("OTEL_TRACING"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.Setup("briefwell-worker", command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger = logger.With("worker_id", workerID)
			logger.InfoContext(ctx, "Initializing Briefwell Worker")

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), "briefwell-worker", logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			researcher, err := research.NewResearcher(research.Config{
				Backend: command.String("research-backend"),
				LLM: research.LLMConfig{
					BaseURL: command.String("llm-base-url"),
					APIKey:  command.String("llm-api-key"),
					Model:   command.String("llm-model"),
				},
			}, logger)
			if err != nil {
				return err
			}

			deliverer, err := delivery.NewSMTPSender(delivery.SMTPConfig{
				Addr:     command.String("smtp-addr"),
				From:     command.String("smtp-from"),
				Username: command.String("smtp-username"),
				Password: command.String("smtp-password"),
			}, logger)
			if err != nil {
				return err
			}

			commands, err := commandqueue.NewQueue(ctx, commandqueue.Config{
				Addr:     command.String("redis-addr"),
				Password: command.String("redis-password"),
			}, logger)
			if err != nil {
				return err
			}

			var tracer trace.Tracer
			if command.Bool("tracing") {
				tracer, err = otelhelper.NewTracer(ctx, "briefwell-worker")
				if err != nil {
					return err
				}
			}

			config := engine.DefaultConfig()
			config.RetryBackoff = command.Duration("retry-backoff")

			executionEngine := engine.NewEngine(
				persistence,
				researcher,
				deliverer,
				eventBus,
				config,
				workerID,
				logger,
			)

			worker := NewWorkerManager(
				workerID,
				persistence,
				executionEngine,
				eventBus,
				commands,
				tracer,
				logger,
			)

			if err := worker.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Failed to start worker", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
