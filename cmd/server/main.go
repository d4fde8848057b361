package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

const (
	defaultListen    = ":8080"
	defaultServerURL = "http://localhost:8080"
	memoryDatabase   = "memory://"
)

func main() {
	cmd := &cli.Command{
		Name:                  "quote-sentinel",
		Usage:                 "Track, diagnose and recover quote automation workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Postgres DSN, or memory:// for an in-process store",
				Value:   memoryDatabase,
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for step events, operator alerts and follow-ups (empty disables)",
				Sources: cli.EnvVars("REDIS_ADDR"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML policy file",
				Sources: cli.EnvVars("CONFIG_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			sweepCommand(),
			breakerCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API, step-event consumer, sweep scheduler and follow-up workers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "listen",
				Aliases: []string{"l"},
				Usage:   "HTTP listen address",
				Value:   defaultListen,
				Sources: cli.EnvVars("LISTEN_ADDR"),
			},
			&cli.StringFlag{
				Name:    "mailer-url",
				Usage:   "Base URL of the mail service that sends supplier follow-ups (empty leaves them queued)",
				Sources: cli.EnvVars("MAILER_URL"),
			},
			&cli.IntFlag{
				Name:  "follow-up-workers",
				Usage: "Concurrent follow-up senders",
				Value: 2,
			},
			&cli.DurationFlag{
				Name:  "summary-window",
				Usage: "Default window of the health summary",
				Value: defaultSummaryWindow,
			},
		},
		Action: runServe,
	}
}

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:      "sweep",
		Usage:     "Run one alert sweep (stuck, supplier-response, acceptance, failure-rate) or all of them",
		ArgsUsage: "<name|all>",
		Action:    runSweep,
	}
}

func breakerCommand() *cli.Command {
	return &cli.Command{
		Name:  "breaker",
		Usage: "Inspect or reset the circuit breakers of a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "Base URL of the running server",
				Value:   defaultServerURL,
				Sources: cli.EnvVars("SENTINEL_SERVER"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "Print breaker health",
				Action: runBreakerList,
			},
			{
				Name:      "reset",
				Usage:     "Force a breaker back to CLOSED",
				ArgsUsage: "<service>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Reset every breaker",
					},
				},
				Action: runBreakerReset,
			},
		},
	}
}
