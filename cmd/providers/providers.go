// Package providers implements the command listing the provider catalog.
package providers

import (
	"fmt"

	"github.com/repotorpedo/torpedo/cmd/output"
	"github.com/repotorpedo/torpedo/cmd/utils"
	"github.com/spf13/cobra"
)

func NewCmdProviders() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List providers and their connection status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := utils.Services()
			if err != nil {
				return err
			}

			out, err := output.PrintProviderList(s.Session.View().Providers)
			if err != nil {
				return utils.HandleCommandError(cmd, "printing provider list table", err)
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
}
