package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	verbose    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "wsclient",
		Short: "Websocket client with message routing and journaling",
		Long: `wsclient connects to a websocket endpoint, prints every inbound
message by kind (text, structured JSON or binary) and can record the
stream to PostgreSQL.

Examples:
  wsclient stream --config configs/wsclient.yaml
  wsclient stream --send-stdin < requests.txt
  wsclient version --short`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "configs/wsclient.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log at debug level")

	rootCmd.AddCommand(
		streamCmd(opts),
		versionCmd(),
	)
	return rootCmd
}
