package cli

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8000"

// RootCmd is the grnctl root command. All sub-commands are registered here.
func RootCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "grnctl",
		Short:         "grnctl submits and inspects gene regulatory network inference jobs.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(a.Out)

	server := os.Getenv("WEBGENIE_URL")
	if server == "" {
		server = defaultServer
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&a.Params.Server, "server", server, "API base URL (env WEBGENIE_URL)")
	flags.StringVar(&a.Params.APIKey, "api-key", os.Getenv("WEBGENIE_API_KEY"), "API key (env WEBGENIE_API_KEY)")
	flags.DurationVar(&a.Params.Timeout, "timeout", 30*time.Second, "HTTP request timeout")
	flags.BoolVar(&a.Params.JSON, "json", false, "print JSON instead of tables")

	cmd.AddCommand(
		submitCmd(a),
		getCmd(a),
		listCmd(a),
		logsCmd(a),
		cancelCmd(a),
		watchCmd(a),
		summaryCmd(a),
		compareCmd(a),
		downloadCmd(a),
		algorithmsCmd(a),
		analyzeCmd(a),
	)
	return cmd
}
