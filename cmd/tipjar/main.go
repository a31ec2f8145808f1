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
		Name:  "tipjar",
		Usage: "Stacks tip-jar service CLI",
		Description: `A command-line tool for interacting with the tip-jar contract and service.

Use this CLI to inspect the tip feed, drive a wallet session against a
signing agent, and follow tip events from NATS.`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Commands: []*cli.Command{
			// Read-model query commands (HTTP API)
			{
				Name:  "query",
				Usage: "Tip feed query commands",
				Subcommands: []*cli.Command{
					statsCommand(),
					listTipsCommand(),
					getTipCommand(),
					refreshCommand(),
				},
			},
			// Wallet session and submission commands
			{
				Name:  "wallet",
				Usage: "Wallet session and transaction commands",
				Subcommands: []*cli.Command{
					walletConnectCommand(),
					walletDisconnectCommand(),
					walletStatusCommand(),
					walletTipCommand(),
					walletWithdrawCommand(),
				},
			},
			// NATS tip streaming commands
			{
				Name:  "nats",
				Usage: "NATS tip streaming commands",
				Subcommands: []*cli.Command{
					subscribeCommand(),
				},
			},
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
				Name:    "server-url",
				Usage:   "Tipjar service URL",
				EnvVars: []string{"SERVER_URL"},
				Value:   "http://localhost:8080",
			},
			&cli.StringFlag{
				Name:    "nats-url",
				Usage:   "NATS server URL",
				EnvVars: []string{"NATS_URL"},
				Value:   "nats://localhost:4222",
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
