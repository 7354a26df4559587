// Package version provides the version command for torpedo.
package version

import (
	"fmt"

	"github.com/repotorpedo/torpedo/app"
	"github.com/spf13/cobra"
)

// NewCmdVersion creates the version command
func NewCmdVersion() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display version information for torpedo.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), app.Version)
			return err
		},
	}

	return cmd
}
