package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/groblegark/wealthd/internal/ui"
)

var jobsCmd = &cobra.Command{
	Use:     "jobs",
	Short:   "Inspect and manage the background job queue",
	GroupID: "jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queue entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		jobType, _ := cmd.Flags().GetString("type")
		limit, _ := cmd.Flags().GetInt("limit")

		jobs, err := api.ListJobs(context.Background(), status, jobType, limit)
		if err != nil {
			return fmt.Errorf("listing jobs: %w", err)
		}

		if jsonOutput {
			data, _ := json.MarshalIndent(jobs, "", "  ")
			fmt.Println(string(data))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tSTATUS\tATTEMPTS\tAGE\tLAST ERROR")
		now := time.Now().UTC()
		for _, j := range jobs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				j.ID,
				j.Type,
				ui.RenderStatus(string(j.Status)),
				j.Attempts,
				now.Sub(j.CreatedAt).Truncate(time.Second),
				truncate(j.LastError, 50),
			)
		}
		w.Flush()
		fmt.Printf("\n%d jobs\n", len(jobs))
		return nil
	},
}

var jobsResetCmd = &cobra.Command{
	Use:   "reset-failed",
	Short: "Move every FAILED job back to PENDING",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := api.ResetFailedJobs(context.Background())
		if err != nil {
			return fmt.Errorf("resetting failed jobs: %w", err)
		}

		if jsonOutput {
			fmt.Printf("{\"reset\": %d}\n", n)
			return nil
		}
		fmt.Printf("%s %d jobs\n", ui.RenderOK("reset"), n)
		return nil
	},
}

func init() {
	jobsListCmd.Flags().String("status", "", "filter by status (PENDING, RUNNING, DONE, FAILED)")
	jobsListCmd.Flags().String("type", "", "filter by job type")
	jobsListCmd.Flags().Int("limit", 50, "maximum entries")

	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsResetCmd)
}
