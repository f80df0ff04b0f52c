package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var accountsCmd = &cobra.Command{
	Use:     "accounts <user-id>",
	Short:   "List a user's per-account balances",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		views, err := api.ListAccounts(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("listing accounts: %w", err)
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(views, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ACCOUNT\tSOURCE\tBALANCES\tPOSITIONS")
		for _, v := range views {
			var balances []string
			for _, currency := range sortedKeys(v.BalancesByCurrency) {
				balances = append(balances, formatMinor(v.BalancesByCurrency[currency], currency))
			}
			var positions []string
			for _, symbol := range sortedKeys(v.AssetPositions) {
				positions = append(positions, v.AssetPositions[symbol]+" "+symbol)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				v.AccountID,
				v.Source,
				strings.Join(balances, ", "),
				strings.Join(positions, ", "),
			)
		}
		w.Flush()
		fmt.Printf("\n%d accounts\n", len(views))
		return nil
	},
}
