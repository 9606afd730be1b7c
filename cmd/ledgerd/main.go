package main

import (
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

var (
	// Version information (set via ldflags during build)
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	app := &cli.App{
		Name:  "ledgerd",
		Usage: "Distributed ledger node CLI",
		Description: `A command-line tool for operating and debugging a ledgerd node.

Use this CLI to submit and endorse transactions, inspect the storage agent,
stream commit events from NATS, and manage signing keys.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Database inspection commands
			{
				Name:  "db",
				Usage: "Storage agent inspection commands",
				Subcommands: []*cli.Command{
					migrateCommand(),
					getAccountCommand(),
					getTransactionCommand(),
					listTransactionsCommand(),
				},
			},
			// NATS commit event streaming commands
			{
				Name:  "nats",
				Usage: "Commit event streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
					inspectStreamCommand(),
				},
			},
			// Client commands (HTTP API)
			clientCommands(),
			// Key management commands
			keysCommands(),
			// Server utility commands
			{
				Name:  "server",
				Usage: "Server utility commands",
				Subcommands: []*cli.Command{
					healthCommand(),
					versionCommand(),
				},
			},
		},
		// Global flags available to all commands
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Database connection URL",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Ledger node URL",
				EnvVars: []string{"LEDGERD_SERVER_URL"},
				Value:   "http://localhost:9293",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
			},
			&cli.StringFlag{
				Name:    "identity",
				Usage:   "Service identity for authenticated calls",
				EnvVars: []string{"LEDGERD_IDENTITY"},
			},
			&cli.StringFlag{
				Name:    "secret",
				Usage:   "Pre-shared secret for authenticated calls",
				EnvVars: []string{"LEDGERD_SECRET"},
			},
			&cli.BoolFlag{
				Name:    "json",
				Aliases: []string{"j"},
				Usage:   "Output in JSON format",
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
