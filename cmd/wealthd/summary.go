package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/Rhymond/go-money"
	"github.com/spf13/cobra"

	"github.com/groblegark/wealthd/internal/ui"
)

var summaryCmd = &cobra.Command{
	Use:     "summary <user-id>",
	Short:   "Show a user's balances and asset positions",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		summary, err := api.GetSummary(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("fetching summary: %w", err)
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(summary, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("User: %s\n", ui.RenderAccent(summary.UserID))
		valuation := ui.RenderStatus(string(summary.Valuation))
		if summary.MissingValuations > 0 {
			valuation += ui.RenderMuted(fmt.Sprintf(" (%d pending)", summary.MissingValuations))
		}
		fmt.Printf("Valuation: %s\n", valuation)

		if len(summary.BalancesByCurrency) > 0 {
			fmt.Println("\nBalances:")
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, currency := range sortedKeys(summary.BalancesByCurrency) {
				fmt.Fprintf(w, "  %s\t%s\n", currency, formatMinor(summary.BalancesByCurrency[currency], currency))
			}
			w.Flush()
		}

		if len(summary.AssetPositions) > 0 {
			fmt.Println("\nPositions:")
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			for _, symbol := range sortedKeys(summary.AssetPositions) {
				fmt.Fprintf(w, "  %s\t%s\n", symbol, summary.AssetPositions[symbol])
			}
			w.Flush()
		}

		return nil
	},
}

// formatMinor renders a minor-unit amount in its currency's display format.
// Unknown currency codes fall back to go-money's default two-decimal template.
func formatMinor(amount int64, currency string) string {
	return money.New(amount, currency).Display()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
