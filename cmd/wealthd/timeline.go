package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/groblegark/wealthd/internal/model"
	"github.com/groblegark/wealthd/internal/ui"
)

var timelineCmd = &cobra.Command{
	Use:     "timeline <user-id>",
	Short:   "Show a user's event timeline, newest first",
	GroupID: "views",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		cursor, _ := cmd.Flags().GetString("cursor")

		resp, err := api.GetTimeline(context.Background(), args[0], limit, cursor)
		if err != nil {
			return fmt.Errorf("fetching timeline: %w", err)
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(resp, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "OCCURRED\tSOURCE\tKIND\tAMOUNT\tSTATUS\tDESCRIPTION")
		for _, e := range resp.Entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				e.OccurredAt.Local().Format(time.DateTime),
				e.Source,
				e.Kind,
				entryAmount(e),
				ui.RenderStatus(string(e.Status)),
				truncate(e.Description, 40),
			)
		}
		w.Flush()

		if resp.NextCursor != "" {
			fmt.Printf("\nnext: --cursor %s\n", ui.RenderMuted(resp.NextCursor))
		}
		return nil
	},
}

func init() {
	timelineCmd.Flags().Int("limit", 50, "entries per page")
	timelineCmd.Flags().String("cursor", "", "resume from a previous page's next cursor")
}

// entryAmount renders whichever leg the entry carries, fiat or asset.
func entryAmount(e *model.TimelineEntry) string {
	if e.FiatAmountMinor != nil {
		return formatMinor(*e.FiatAmountMinor, e.FiatCurrency)
	}
	if e.AssetSymbol != "" {
		return e.AssetAmount + " " + e.AssetSymbol
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
