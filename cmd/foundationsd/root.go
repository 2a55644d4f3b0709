package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd constructs the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "foundationsd",
		Short: "Serve an on-device text generation model over HTTP",
		Long: `foundationsd exposes a local text generation model over HTTP.

POST /inference generates text; GET /health and GET /status report liveness
and model availability. One generation runs at a time; others queue.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "Config file (.yaml, .yml, .json or .toml)")

	root.AddCommand(newServeCmd(), newStatusCmd(), newVersionCmd())
	return root
}
