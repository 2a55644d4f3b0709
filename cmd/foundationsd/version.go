package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"foundationsd/internal/backend"
	"foundationsd/internal/httpapi"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and build features",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "foundationsd %s (%s %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "in-process llama: %t\n", backend.LlamaBuilt)
			fmt.Fprintf(out, "swagger ui:       %t\n", httpapi.SwaggerBuilt)
			return nil
		},
	}
}
