package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve",
		Short: "Resolve the ast-grep executable and print where it came from",
		Long: `Resolve the ast-grep executable, downloading it if needed, and print
its path, version and the strategy that found it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.initializedManager(cmd.Context())
			if err != nil {
				return err
			}

			res, _ := m.Resolution()
			version := res.Version
			if version == "" {
				version = "unknown"
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "path:     %s\n", res.Path)
			fmt.Fprintf(out, "version:  %s\n", version)
			fmt.Fprintf(out, "strategy: %s\n", res.Strategy)
			return nil
		},
	}
}
