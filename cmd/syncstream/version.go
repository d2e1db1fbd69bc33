package main

import (
	"fmt"

	"github.com/spf13/cobra"

	intrnl "github.com/Falco0906/syncstream/internal"
)

func newVersionCmd() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		// no config needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "syncstream %s\n", intrnl.Version)
			if !check {
				return nil
			}
			latest, err := intrnl.GetLatestVersion(cmd.Context())
			if err != nil {
				return fmt.Errorf("check for updates: %w", err)
			}
			if intrnl.CompareVersions(latest, intrnl.Version) > 0 {
				fmt.Fprintf(out, "A newer release is available: %s\n%s\n", latest, intrnl.GetDownloadURL(latest))
			} else {
				fmt.Fprintln(out, "You are on the latest release.")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "check GitHub for a newer release")
	return cmd
}
