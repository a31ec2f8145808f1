package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/itchyny/gojq"
	"github.com/tipjarhq/tipjar/client"
	"github.com/tipjarhq/tipjar/service/stacks"
	"github.com/urfave/cli/v2"
)

func cliLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))
}

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show aggregate tip-jar state",
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server-url"), nil, cliLogger())

			stats, err := cl.Stats(context.Background())
			if err != nil {
				return fmt.Errorf("failed to fetch stats: %w", err)
			}

			if c.Bool("json") {
				data, err := json.MarshalIndent(stats, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal stats: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			fmt.Printf("Tip count:    %d\n", stats.TipCount)
			fmt.Printf("Total tipped: %s STX\n", stats.TotalTippedSTX)
			fmt.Printf("Balance:      %s STX\n", stats.BalanceSTX)
			fmt.Printf("Updated:      %s\n", stats.UpdatedAt.Format(time.RFC3339))
			if stats.LastErr != "" {
				fmt.Printf("Last error:   %s\n", stats.LastErr)
			}
			return nil
		},
	}
}

func listTipsCommand() *cli.Command {
	return &cli.Command{
		Name:  "tips",
		Usage: "List the recent tip feed, newest first",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "must-jq",
				Usage:   "jq filter expression a tip must satisfy (can be specified multiple times, all must match)",
				Aliases: []string{"jq"},
			},
		},
		Action: func(c *cli.Context) error {
			filters, err := compileJQFilters(c.StringSlice("must-jq"))
			if err != nil {
				return err
			}

			cl := client.NewClient(c.String("server-url"), nil, cliLogger())

			feed, err := cl.ListTips(context.Background())
			if err != nil {
				return fmt.Errorf("failed to fetch tips: %w", err)
			}

			tips := feed.Tips
			if len(filters) > 0 {
				tips, err = filterTips(tips, filters)
				if err != nil {
					return err
				}
			}

			if c.Bool("json") {
				data, err := json.MarshalIndent(tips, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal tips: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			if len(tips) == 0 {
				fmt.Println("No tips yet.")
				return nil
			}

			for _, tip := range tips {
				printTip(tip)
			}
			fmt.Printf("%d tip(s), updated %s\n", len(tips), feed.UpdatedAt.Format(time.RFC3339))
			return nil
		},
	}
}

func getTipCommand() *cli.Command {
	return &cli.Command{
		Name:      "tip",
		Usage:     "Show a single tip by id",
		ArgsUsage: "TIP_ID",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("tip id is required")
			}

			id, err := strconv.ParseUint(c.Args().Get(0), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid tip id %q", c.Args().Get(0))
			}

			cl := client.NewClient(c.String("server-url"), nil, cliLogger())

			tip, err := cl.GetTip(context.Background(), id)
			if err != nil {
				return fmt.Errorf("failed to fetch tip: %w", err)
			}

			if c.Bool("json") {
				data, err := json.MarshalIndent(tip, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal tip: %w", err)
				}
				fmt.Println(string(data))
				return nil
			}

			printTip(tip)
			return nil
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Ask the service to re-read the ledger on its next poll",
		Action: func(c *cli.Context) error {
			cl := client.NewClient(c.String("server-url"), nil, cliLogger())

			if err := cl.Refresh(context.Background()); err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}

			fmt.Println("Refresh requested.")
			return nil
		},
	}
}

func printTip(tip *client.Tip) {
	fmt.Printf("#%d  %s  %s STX  (block %d)\n",
		tip.ID,
		stacks.TruncateAddress(tip.Tipper),
		stacks.FormatSTX(tip.Amount),
		tip.BlockHeight,
	)
	if tip.Message != "" {
		fmt.Printf("    %q\n", tip.Message)
	}
}

// compileJQFilters parses and compiles the given jq expressions.
func compileJQFilters(exprs []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(exprs))
	for i, expr := range exprs {
		query, err := gojq.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
		}
	}
	return compiled, nil
}

// filterTips keeps the tips for which every compiled filter is truthy.
// Each tip is round-tripped through JSON so filters see the wire field
// names (id, tipper, amount, message, block_height).
func filterTips(tips []*client.Tip, filters []*gojq.Code) ([]*client.Tip, error) {
	kept := make([]*client.Tip, 0, len(tips))
	for _, tip := range tips {
		data, err := json.Marshal(tip)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal tip %d: %w", tip.ID, err)
		}
		var obj interface{}
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tip %d: %w", tip.ID, err)
		}

		if matchesAll(obj, filters) {
			kept = append(kept, tip)
		}
	}
	return kept, nil
}

// matchesAll reports whether every filter produces a truthy first result.
func matchesAll(obj interface{}, filters []*gojq.Code) bool {
	for _, code := range filters {
		iter := code.Run(obj)
		v, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := v.(error); isErr {
			return false
		}
		if !isTruthy(v) {
			return false
		}
	}
	return true
}

func isTruthy(v interface{}) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	// Everything else (numbers, strings, objects, arrays) is truthy
	return true
}
