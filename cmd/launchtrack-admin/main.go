package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "launchtrack-admin",
		Short:         "Maintenance commands for the LaunchTrack attribution store",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tickCmd())
	rootCmd.AddCommand(reattributeCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(matchRateCmd())
	rootCmd.AddCommand(tokenCmd())

	return rootCmd
}
