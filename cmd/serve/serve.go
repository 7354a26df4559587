// Package serve implements the command that runs the HTTP API.
package serve

import (
	"log/slog"
	"net"

	"github.com/repotorpedo/torpedo/app"
	"github.com/repotorpedo/torpedo/cmd/output"
	"github.com/repotorpedo/torpedo/cmd/utils"
	"github.com/repotorpedo/torpedo/web"
	"github.com/repotorpedo/torpedo/web/handlers"
	"github.com/spf13/cobra"
)

// NewCmdServe creates a command that serves the JSON API, the OAuth callback
// and the metrics endpoint until interrupted.
func NewCmdServe() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the torpedo HTTP API",
		Long: `Serve the torpedo API for a browser or desktop front end.
Connections, deployments and history are exposed under /api, progress is
streamed over a websocket and Prometheus metrics are served on /metrics.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (defaults to the configured HTTP host and port)")
	return cmd
}

func runServe(cmd *cobra.Command, addr string) error {
	s, err := utils.Services()
	if err != nil {
		return err
	}
	if addr == "" {
		if cfg := app.GetConfig(); cfg != nil {
			addr = cfg.HTTPAddr()
		}
	}

	ctx, cancel := utils.SignalContext(cmd.Context())
	defer cancel()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return utils.HandleCommandError(cmd, "serve", err, "addr", addr)
	}

	api := handlers.NewAPI(ctx, handlers.Services{
		Catalog:     s.Catalog,
		Connections: s.Orchestrator,
		Changes:     s.Connections,
		Deployments: s.Pipeline,
		History:     s.History,
		Session:     s.Session,
	})

	var callbacks web.CallbackRoutes
	if s.Callbacks != nil {
		callbacks = s.Callbacks
	}
	router := web.NewRouter(api, s.Metrics.Handler(), callbacks)

	slog.Info("Starting API server", "layer", "cmd", "addr", ln.Addr().String())
	if err := output.FprintPlain(cmd, "Listening on http://%s", ln.Addr()); err != nil {
		_ = ln.Close()
		return err
	}

	if err := web.NewServer(addr, router).Serve(ctx, ln); err != nil {
		return utils.HandleCommandError(cmd, "serve", err)
	}
	slog.Info("API server stopped", "layer", "cmd")
	return nil
}
