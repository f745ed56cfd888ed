package main

import (
	"context"
	"os"
	"time"

	"github.com/bizbooks/approvalflow/pkg/cmd"
	"github.com/bizbooks/approvalflow/pkg/log"
	"github.com/bizbooks/approvalflow/pkg/resolver"
	"github.com/bizbooks/approvalflow/pkg/workflow"
	cli "github.com/urfave/cli/v3"
)

func main() {
	logger := log.WithModule("sweeper")

	command := &cli.Command{
		Name:                  "approvalflow-sweeper",
		Usage:                 "Auto-approve steps past their escalation deadline",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel, none)",
				Value:   "none",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "activity-types",
				Usage:   "Comma-separated activity types this deployment approves",
				Sources: cli.EnvVars("ACTIVITY_TYPES"),
			},
			&cli.StringFlag{
				Name:    "directory-file",
				Usage:   "Path to the org directory snapshot (managers and role grants)",
				Sources: cli.EnvVars("DIRECTORY_FILE"),
			},
			&cli.DurationFlag{
				Name:    "sweep-interval",
				Usage:   "Interval between escalation sweeps",
				Value:   time.Hour,
				Sources: cli.EnvVars("SWEEP_INTERVAL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Approvalflow Sweeper")

			registry := cmd.NewRegistry(logger, command.String("activity-types"))

			dir, err := cmd.NewDirectory(command.String("directory-file"))
			if err != nil {
				return err
			}

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)
			if eventBus != nil {
				defer func() {
					if err := eventBus.Close(); err != nil {
						logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
					}
				}()
			}

			stepResolver := resolver.NewResolver(logger, dir)
			engine := workflow.NewEngine(logger, persistence, registry, stepResolver, dir, eventBus)
			sweeper := workflow.NewSweeper(logger, engine, persistence)

			daemon := NewDaemon(logger, sweeper)

			return daemon.Start(ctx, command.Duration("sweep-interval"))
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
