// Package status provides the status command showing the current session.
package status

import (
	"fmt"

	"github.com/repotorpedo/torpedo/cmd/output"
	"github.com/repotorpedo/torpedo/cmd/utils"
	"github.com/spf13/cobra"
)

// NewCmdStatus creates the status command
func NewCmdStatus() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the signed-in account, connected hosts and the next step",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd)
		},
	}

	return cmd
}

func runStatus(cmd *cobra.Command) error {
	s, err := utils.Services()
	if err != nil {
		return err
	}

	out, err := output.PrintSessionStatus(s.Session.View())
	if err != nil {
		return utils.HandleCommandError(cmd, "printing session status", err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}
