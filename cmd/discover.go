package cmd

import (
	"github.com/spf13/cobra"
)

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover <url>",
		Short: "Finds the RSS/Atom feeds a site advertises",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			result, err := a.Discoverer().Discover(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if result.Feeds == nil {
				result.Feeds = []string{}
			}
			return writeOutput(cmd, result)
		},
	}
}
