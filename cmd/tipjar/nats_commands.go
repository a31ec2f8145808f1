package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	natspkg "github.com/tipjarhq/tipjar/service/nats"
	"github.com/tipjarhq/tipjar/service/stacks"
	"github.com/urfave/cli/v2"
)

// subscribeCommand subscribes to tip events from the JetStream stream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:  "subscribe",
		Usage: "Subscribe to tip events",
		Description: `Subscribe to real-time tip events published to NATS JetStream.

Events are published to the subject: tips.{tip_id}

Example:
  tipjar nats subscribe --json`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "tipjar-cli",
			},
		},
		Action: func(c *cli.Context) error {
			natsURL := c.String("nats-url")
			durable := c.Bool("durable")
			consumerName := c.String("consumer-name")
			jsonOutput := c.Bool("json")

			return streamTips(natsURL, durable, consumerName, jsonOutput)
		},
	}
}

// streamTips connects to NATS and prints tip events until interrupted.
func streamTips(natsURL string, durable bool, consumerName string, jsonOutput bool) error {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if !jsonOutput {
		fmt.Printf("Subscribing to: %s\n", natspkg.StreamSubjects)
		fmt.Printf("  NATS: %s\n", natsURL)
		if durable {
			fmt.Printf("  Consumer: %s (durable)\n", consumerName)
		}
		fmt.Printf("\nWaiting for tips... (Ctrl-C to exit)\n\n")
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: natspkg.StreamSubjects,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}

	if durable {
		consumerConfig.Durable = consumerName
		consumerConfig.Name = consumerName
	}

	cons, err := js.CreateOrUpdateConsumer(context.Background(), natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	msgChan := make(chan jetstream.Msg, 10)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		msgChan <- msg
	})
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	defer cc.Stop()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case msg := <-msgChan:
			var event natspkg.TipEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				msg.Ack()
				continue
			}

			if jsonOutput {
				data, _ := json.Marshal(event)
				fmt.Println(string(data))
			} else {
				fmt.Printf("Tip #%d\n", event.ID)
				fmt.Printf("  From:   %s\n", stacks.TruncateAddress(event.Tipper))
				fmt.Printf("  Amount: %s STX\n", stacks.FormatSTX(event.Amount))
				if event.Message != "" {
					fmt.Printf("  Message: %q\n", event.Message)
				}
				fmt.Printf("  Block:  %d\n", event.BlockHeight)
				fmt.Printf("  Published: %s\n\n", event.PublishedAt.Format(time.RFC3339))
			}

			msg.Ack()

		case <-shutdown:
			if !jsonOutput {
				fmt.Println("\nDone.")
			}
			return nil
		}
	}
}
