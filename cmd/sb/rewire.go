package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zulandar/switchboard/internal/rewire"
)

func newRewireCmd() *cobra.Command {
	var (
		serverURL string
		timeout   int
		output    string
	)

	cmd := &cobra.Command{
		Use:   "rewire <tools.yaml>",
		Short: "Point a tool-definition file at an operator",
		Long:  "Rewrites a training tool-definition file so every tool goes through the operator proxy: swaps the tool class, injects server_url, and sets the per-query timeout.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRewire(cmd, args[0], serverURL, timeout, output)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server-url", "", "operator base URL to inject (required)")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "per-query timeout in seconds (default 600)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default <input>_with_server_urls.yaml)")
	_ = cmd.MarkFlagRequired("server-url")
	return cmd
}

func runRewire(cmd *cobra.Command, input, serverURL string, timeout int, output string) error {
	doc, err := rewire.Load(input)
	if err != nil {
		return err
	}

	rewritten, err := rewire.Rewrite(doc, rewire.Options{
		ServerURL:       serverURL,
		TimeoutPerQuery: timeout,
	})
	if err != nil {
		return err
	}

	if output == "" {
		output = rewire.OutputPath(input)
	}
	if err := rewire.Save(output, rewritten); err != nil {
		return err
	}

	// Names come from the input doc; the rewrite replaces every class with
	// the proxy class.
	names := rewire.ToolNames(doc)
	fmt.Fprintf(cmd.OutOrStdout(), "Rewired %d tool(s) [%s] -> %s\n",
		len(names), strings.Join(names, ", "), output)
	return nil
}
