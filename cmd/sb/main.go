package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sb",
		Short: "Switchboard routes stateful tool calls to station workers",
		Long:  "Switchboard routes stateful tool calls from agents to a fleet of worker stations.",
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newOperatorCmd())
	cmd.AddCommand(newStationCmd())
	cmd.AddCommand(newUpCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newCallsCmd())
	cmd.AddCommand(newRewireCmd())
	cmd.AddCommand(newDoctorCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sb %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
