// Package history implements the commands that show, export and import
// the deployment history.
package history

import (
	"fmt"
	"os"

	"github.com/repotorpedo/torpedo/cmd/output"
	"github.com/repotorpedo/torpedo/cmd/utils"
	"github.com/spf13/cobra"
)

func NewCmdHistory() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past deployments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd)
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "Show past deployments, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(cmd)
		},
	})
	cmd.AddCommand(newCmdExport())
	cmd.AddCommand(newCmdImport())
	return cmd
}

func runList(cmd *cobra.Command) error {
	s, err := utils.Services()
	if err != nil {
		return err
	}

	recs, err := s.History.List(cmd.Context())
	if err != nil {
		return utils.HandleCommandError(cmd, "list history", err)
	}

	out, err := output.PrintHistoryList(recs)
	if err != nil {
		return utils.HandleCommandError(cmd, "printing history table", err)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), out)
	return err
}

func newCmdExport() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the history as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := utils.Services()
			if err != nil {
				return err
			}

			data, err := s.History.Export(cmd.Context())
			if err != nil {
				return utils.HandleCommandError(cmd, "export history", err)
			}

			if file == "" || file == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(file, data, 0o600); err != nil {
				return utils.HandleCommandError(cmd, "export history", fmt.Errorf("failed to write %s: %w", file, err))
			}
			return output.FprintSuccess(cmd, "History exported to %s", file)
		},
	}

	cmd.Flags().StringVarP(&file, "output", "o", "", "File to write (stdout when empty)")
	return cmd
}

func newCmdImport() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the history with a JSON export",
		Long: `Replace the deployment history with the records of a JSON export.
The file is validated as a whole; nothing changes when any record is invalid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := utils.Services()
			if err != nil {
				return err
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return utils.HandleCommandError(cmd, "import history", fmt.Errorf("failed to read %s: %w", args[0], err))
			}

			n, err := s.History.Import(cmd.Context(), data)
			if err != nil {
				return utils.HandleCommandError(cmd, "import history", err, "file", args[0])
			}
			return output.FprintSuccess(cmd, "Imported %d records.", n)
		},
	}
}
