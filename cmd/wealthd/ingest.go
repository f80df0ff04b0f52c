package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/groblegark/wealthd/internal/ui"
)

var ingestCmd = &cobra.Command{
	Use:     "ingest <source> [file]",
	Short:   "Submit a normalized provider payload (reads stdin when no file)",
	GroupID: "events",
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		source := args[0]

		var payload []byte
		var err error
		if len(args) == 2 {
			payload, err = os.ReadFile(args[1])
		} else {
			payload, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("reading payload: %w", err)
		}

		resp, err := api.Ingest(context.Background(), source, payload)
		if err != nil {
			return fmt.Errorf("ingesting event: %w", err)
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(resp, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		if resp.Deduplicated {
			fmt.Printf("%s %s (already ingested)\n", ui.RenderMuted("deduplicated"), resp.RawEventID)
			return nil
		}
		fmt.Printf("%s %s job=%s\n", ui.RenderOK("accepted"), resp.RawEventID, resp.JobID)
		return nil
	},
}
