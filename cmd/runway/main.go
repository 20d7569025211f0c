// Command runway serves the governance control API and inspects the
// capability catalog, failure taxonomy and runway transition table.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "runway",
		Short:         "Governed action execution",
		Long:          "runway routes every UI action through the capability registry, the risk tiers and the governance runway before it reaches the backend.",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("output", "o", "table", "output format: table, yaml or json")

	root.AddCommand(
		newServeCmd(),
		newCapabilitiesCmd(),
		newFailuresCmd(),
		newRunwayCmd(),
		newTokenCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
