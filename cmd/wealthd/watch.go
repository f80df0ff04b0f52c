package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/groblegark/wealthd/internal/events"
	"github.com/groblegark/wealthd/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch [topic]",
	Short:   "Tail bus events (defaults to every wealth.> topic)",
	GroupID: "events",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := "wealth.>"
		if len(args) == 1 {
			topic = args[0]
		}

		natsURL := os.Getenv("WEALTHD_NATS_URL")
		if natsURL == "" {
			natsURL = nats.DefaultURL
		}

		sub, err := events.NewNATSSubscriber(natsURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.Printf("nats: disconnected: %v", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				log.Printf("nats: reconnected")
			}),
		)
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(topic)
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		defer cancel()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		fmt.Fprintf(os.Stderr, "watching %s on %s\n", ui.RenderAccent(topic), natsURL)

		for {
			select {
			case <-ctx.Done():
				return nil
			case payload, ok := <-ch:
				if !ok {
					return nil
				}
				printEvent(payload)
			}
		}
	},
}

// printEvent writes one payload per line, compacted, so the output is
// greppable.
func printEvent(payload []byte) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, payload); err != nil {
		fmt.Println(string(payload))
		return
	}
	fmt.Println(buf.String())
}
