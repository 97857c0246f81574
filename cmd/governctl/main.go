package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "governctl",
		Short:         "Operator tooling for the LLM governance gateway",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newEstimateCmd(),
		newProvidersCmd(),
		newTokenCmd(),
		newSpendCmd(openRecorder),
	)
	return root
}
