// Package root implements the command line interface for torpedo.
package root

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/repotorpedo/torpedo/app"
	"github.com/repotorpedo/torpedo/cmd/connect"
	"github.com/repotorpedo/torpedo/cmd/deploy"
	"github.com/repotorpedo/torpedo/cmd/history"
	"github.com/repotorpedo/torpedo/cmd/output"
	"github.com/repotorpedo/torpedo/cmd/providers"
	"github.com/repotorpedo/torpedo/cmd/serve"
	"github.com/repotorpedo/torpedo/cmd/status"
	"github.com/repotorpedo/torpedo/cmd/utils"
	"github.com/repotorpedo/torpedo/cmd/version"
	"github.com/repotorpedo/torpedo/config"
	"github.com/repotorpedo/torpedo/logging"
	"github.com/spf13/cobra"
)

// skipInit lists commands that run without opening the data directory.
var skipInit = map[string]bool{
	"version":    true,
	"help":       true,
	"completion": true,
}

func Execute() {
	err := NewCmdRoot(config.GetDefaultDataDir()).Execute()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := app.Shutdown(ctx); shutdownErr != nil {
		_, _ = fmt.Fprintf(os.Stderr, "shutdown: %s\n", shutdownErr)
	}

	if err != nil {
		cancel()
		os.Exit(utils.ExitCode(err))
	}
}

func NewCmdRoot(defaultDataDir string) *cobra.Command {
	var dataDir string

	cmd := &cobra.Command{
		Use:   "torpedo",
		Short: "Deploy static sites from GitHub or local files in one step",
		Long: `torpedo connects your GitHub account and hosting providers, then
publishes a repository or a folder of files and reports progress until
the site is live. Past deployments are kept in a local history.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if skipInit[cmd.Name()] {
				return nil
			}
			return initialize(cmd, dataDir)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().
		StringVarP(&dataDir, "data-dir", "d", defaultDataDir, "Data directory for torpedo configuration and state")
	cmd.PersistentFlags().VarP(logging.LogLevel, "log-level", "l", "Set log verbosity level")
	cmd.PersistentFlags().VarP(output.NoColor, "no-color", "c", "Disable colored terminal output")
	cmd.PersistentFlags().Lookup("no-color").NoOptDefVal = "true"

	cmd.AddCommand(providers.NewCmdProviders())
	cmd.AddCommand(connect.NewCmdConnect())
	cmd.AddCommand(connect.NewCmdDisconnect())
	cmd.AddCommand(connect.NewCmdLogout())
	cmd.AddCommand(status.NewCmdStatus())
	cmd.AddCommand(deploy.NewCmdDeploy())
	cmd.AddCommand(history.NewCmdHistory())
	cmd.AddCommand(serve.NewCmdServe())
	cmd.AddCommand(version.NewCmdVersion())
	return cmd
}

func initialize(cmd *cobra.Command, dataDir string) error {
	cfg, err := config.NewConfigForCLI(dataDir)
	if err != nil {
		return utils.HandleCommandError(cmd, "load configuration", err)
	}

	// CLI flags override config
	colorDisabled := !cfg.ColorEnabled
	if output.NoColor.IsSet() {
		colorDisabled = true
	}
	output.InitColors(colorDisabled)

	logLevel := cfg.LogLevel
	if logging.LogLevel.IsSet() {
		logLevel = logging.LogLevel.String()
	}
	logging.InitLogging(logging.Options{Level: logLevel, Format: cfg.LogFormat})

	if err := app.InitializeWithConfig(cfg, app.Options{Notice: cmd.ErrOrStderr()}); err != nil {
		return utils.HandleCommandError(cmd, "initialize", err)
	}
	return nil
}
