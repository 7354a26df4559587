// Package connect implements the commands that connect and disconnect providers.
package connect

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/repotorpedo/torpedo/cmd/output"
	"github.com/repotorpedo/torpedo/cmd/utils"
	"github.com/repotorpedo/torpedo/connection"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func NewCmdConnect() *cobra.Command {
	var apiKey string

	cmd := &cobra.Command{
		Use:   "connect <provider>",
		Short: "Connect a provider account",
		Long: `Connect torpedo to a provider.

OAuth providers open the browser to authorize torpedo; press Ctrl-C to give up.
API-key providers take the key from --api-key or prompt for it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd, args[0], apiKey)
		},
	}

	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key for providers that use one")
	return cmd
}

func runConnect(cmd *cobra.Command, providerID, apiKey string) error {
	s, err := utils.Services()
	if err != nil {
		return err
	}

	p, ok := s.Catalog.Get(providerID)
	if !ok {
		return utils.HandleCommandError(cmd, "connect",
			domain.ValidationError("connect", "unknown provider %q", providerID))
	}

	var opts []connection.ConnectOption
	if p.AuthMethod == domain.AuthMethodAPIKey {
		if apiKey == "" {
			if apiKey, err = readAPIKey(cmd, p); err != nil {
				return utils.HandleCommandError(cmd, "read api key", err)
			}
		}
		opts = append(opts, connection.WithAPIKey(apiKey))
	} else {
		_ = output.FprintPlain(cmd, "Waiting for %s authorization in your browser...", p.Name)
	}

	ctx, cancel := utils.SignalContext(cmd.Context())
	defer cancel()

	conn, err := s.Orchestrator.BeginConnection(ctx, providerID, opts...)
	if errors.Is(err, context.Canceled) || errors.Is(err, connection.ErrCancelled) {
		_ = output.Fprint(cmd, output.Warning, "Connection to %s cancelled.", p.Name)
		return err
	}
	if err != nil {
		return utils.HandleCommandError(cmd, "connect", err, "provider_id", providerID)
	}

	if conn.AccountLabel != "" {
		return output.FprintSuccess(cmd, "Connected to %s as %s.", p.Name, conn.AccountLabel)
	}
	return output.FprintSuccess(cmd, "Connected to %s.", p.Name)
}

// readAPIKey prompts without echo on a terminal and reads one line otherwise.
func readAPIKey(cmd *cobra.Command, p domain.Provider) (string, error) {
	prompt := p.Name + " API key"
	if p.KeyHint != "" {
		prompt += " (" + p.KeyHint + ")"
	}
	if _, err := fmt.Fprint(cmd.ErrOrStderr(), prompt+": "); err != nil {
		return "", err
	}

	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		key, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read API key: %w", err)
		}
		return strings.TrimSpace(string(key)), nil
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read API key: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func NewCmdDisconnect() *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect <provider>",
		Short: "Disconnect a provider account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := utils.Services()
			if err != nil {
				return err
			}
			if err := s.Orchestrator.Disconnect(cmd.Context(), args[0]); err != nil {
				return utils.HandleCommandError(cmd, "disconnect", err, "provider_id", args[0])
			}
			return output.FprintSuccess(cmd, "Disconnected %s.", args[0])
		},
	}
}

func NewCmdLogout() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Disconnect every provider and end the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := utils.Services()
			if err != nil {
				return err
			}
			if err := s.Orchestrator.DisconnectAll(cmd.Context()); err != nil {
				return utils.HandleCommandError(cmd, "logout", err)
			}
			return output.FprintSuccess(cmd, "Signed out.")
		},
	}
}
