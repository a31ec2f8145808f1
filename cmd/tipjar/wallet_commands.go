package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/tipjarhq/tipjar/service/config"
	"github.com/tipjarhq/tipjar/service/stacks"
	"github.com/tipjarhq/tipjar/service/wallet"
	"github.com/urfave/cli/v2"
)

// walletFlags are shared by all wallet subcommands. The signer agent is
// an external process exposing the signing endpoint; the session file
// carries the connected address between CLI invocations.
func walletFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "signer-url",
			Usage:   "Signing agent endpoint URL",
			EnvVars: []string{"SIGNER_URL"},
		},
		&cli.StringFlag{
			Name:    "session-path",
			Usage:   "Path to the persisted wallet session file",
			EnvVars: []string{"SESSION_PATH"},
		},
	}
}

// newWalletSession builds the session from flags plus the environment
// config (for defaults like the session path).
func newWalletSession(c *cli.Context, cfg *config.Config) (*wallet.Session, error) {
	signerURL := c.String("signer-url")
	if signerURL == "" {
		signerURL = cfg.SignerURL
	}
	if signerURL == "" {
		return nil, fmt.Errorf("signer-url is required (set SIGNER_URL env var or use --signer-url)")
	}

	sessionPath := c.String("session-path")
	if sessionPath == "" {
		sessionPath = cfg.SessionPath
	}

	logger := cliLogger()
	store := wallet.NewFileStore(sessionPath)
	agent := wallet.NewHTTPAgent(signerURL, nil, logger)
	return wallet.NewSession(agent, store, nil, logger), nil
}

func newSubmitter(session *wallet.Session, cfg *config.Config) *wallet.Submitter {
	contract := stacks.ContractConfig{
		APIBaseURL:      cfg.APIBaseURL,
		ContractAddress: cfg.ContractAddress,
		ContractName:    cfg.ContractName,
		OwnerAddress:    cfg.OwnerAddress,
	}
	return wallet.NewSubmitter(session, contract, cfg.Network, cfg.PostConditionMode, nil, cliLogger())
}

func walletConnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "connect",
		Usage: "Connect to the signing agent and persist the session",
		Flags: walletFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			session, err := newWalletSession(c, cfg)
			if err != nil {
				return err
			}

			if err := session.Connect(context.Background()); err != nil {
				return fmt.Errorf("connect failed: %w", err)
			}

			fmt.Printf("Connected: %s\n", session.Address())
			return nil
		},
	}
}

func walletDisconnectCommand() *cli.Command {
	return &cli.Command{
		Name:  "disconnect",
		Usage: "Disconnect from the signing agent and clear the session",
		Flags: walletFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			session, err := newWalletSession(c, cfg)
			if err != nil {
				return err
			}

			if err := session.Disconnect(context.Background()); err != nil {
				return fmt.Errorf("disconnect failed: %w", err)
			}

			fmt.Println("Disconnected.")
			return nil
		},
	}
}

func walletStatusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the current wallet session state",
		Flags: walletFlags(),
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			session, err := newWalletSession(c, cfg)
			if err != nil {
				return err
			}

			status := session.Status()

			if c.Bool("json") {
				data, err := json.MarshalIndent(map[string]string{
					"state":   string(status.State),
					"address": status.Address,
					"error":   status.Err,
				}, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal status: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("State:   %s\n", status.State)
			if status.Address != "" {
				fmt.Printf("Address: %s\n", status.Address)
			}
			if status.Err != "" {
				fmt.Printf("Error:   %s\n", status.Err)
			}
			return nil
		},
	}
}

func walletTipCommand() *cli.Command {
	return &cli.Command{
		Name:      "tip",
		Usage:     "Send a tip to the tip-jar contract",
		ArgsUsage: "AMOUNT_STX [MESSAGE]",
		Flags: append(walletFlags(),
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the agent to sign and broadcast",
				Value: 2 * time.Minute,
			},
		),
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("tip amount in STX is required")
			}

			amount, err := strconv.ParseFloat(c.Args().Get(0), 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", c.Args().Get(0))
			}
			message := c.Args().Get(1)

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			session, err := newWalletSession(c, cfg)
			if err != nil {
				return err
			}
			submitter := newSubmitter(session, cfg)

			// The tracker rejects overlapping submissions and resets to
			// idle a few seconds after settling.
			tracker := wallet.NewTxTracker(wallet.DefaultTxResetDelay)
			if !tracker.Begin() {
				return fmt.Errorf("a submission is already in flight")
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			txID, err := submitter.SendTip(ctx, amount, message)
			if err != nil {
				tracker.Fail(err)
				return fmt.Errorf("tip failed: %w", err)
			}
			tracker.Succeed(txID)

			fmt.Printf("Tip submitted: %s STX\n", stacks.FormatSTX(mustMicro(amount)))
			fmt.Printf("Transaction:   %s\n", txID)
			return nil
		},
	}
}

func walletWithdrawCommand() *cli.Command {
	return &cli.Command{
		Name:  "withdraw",
		Usage: "Withdraw the contract balance (owner only)",
		Flags: append(walletFlags(),
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait for the agent to sign and broadcast",
				Value: 2 * time.Minute,
			},
		),
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			session, err := newWalletSession(c, cfg)
			if err != nil {
				return err
			}
			submitter := newSubmitter(session, cfg)

			ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
			defer cancel()

			txID, err := submitter.Withdraw(ctx)
			if err != nil {
				return fmt.Errorf("withdraw failed: %w", err)
			}

			fmt.Printf("Withdrawal submitted: %s\n", txID)
			return nil
		},
	}
}

// mustMicro converts a validated STX amount to microSTX for display.
// The submitter has already rejected unrepresentable amounts.
func mustMicro(amountSTX float64) uint64 {
	micro, err := stacks.STXToMicro(amountSTX)
	if err != nil {
		return 0
	}
	return micro
}
