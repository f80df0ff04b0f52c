package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/groblegark/wealthd/internal/client"
	"github.com/groblegark/wealthd/internal/ui"
)

var (
	httpURL    string
	authToken  string
	jsonOutput bool
	noColor    bool

	api *client.Client
)

func defaultHTTPURL() string {
	if s := os.Getenv("WEALTHD_HTTP_URL"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

func defaultAuthToken() string {
	return os.Getenv("WEALTHD_AUTH_TOKEN")
}

var rootCmd = &cobra.Command{
	Use:   "wealthd <command>",
	Short: "Wealth event reconciliation service and CLI",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor || !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
		api = client.New(httpURL, authToken)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&httpURL, "http-url", defaultHTTPURL(), "HTTP server URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", defaultAuthToken(), "bearer token for the API")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "events", Title: "Events:"},
		&cobra.Group{ID: "views", Title: "Views:"},
		&cobra.Group{ID: "jobs", Title: "Jobs:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false

	// Events
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(watchCmd)

	// Views
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(accountsCmd)
	rootCmd.AddCommand(timelineCmd)

	// Jobs
	rootCmd.AddCommand(jobsCmd)

	// System
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workCmd)
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
