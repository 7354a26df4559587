// Package deploy implements the command that publishes a site.
package deploy

import (
	"errors"
	"strings"

	"github.com/repotorpedo/torpedo/cmd/output"
	"github.com/repotorpedo/torpedo/cmd/utils"
	"github.com/repotorpedo/torpedo/domain"
	"github.com/spf13/cobra"
)

type options struct {
	provider string
	repo     string
	branch   string
	assets   []string
	name     string
	env      []string
	detach   bool
}

func NewCmdDeploy() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a repository or local files to a hosting provider",
		Long: `Deploy a static site to a connected hosting provider.

The source is either a GitHub repository (--repo owner/name, an https URL or
an scp-like git address) or a set of local files (--asset, repeatable) that
must include an index.html. Progress is printed until the deployment ends;
Ctrl-C cancels it.`,
		Example: `  torpedo deploy -p render -r octo/site -b gh-pages
  torpedo deploy -p netlify -a site/index.html -a site/app.js -e MODE=prod`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.provider, "provider", "p", "", "Hosting provider to deploy to")
	cmd.Flags().StringVarP(&opts.repo, "repo", "r", "", "Repository to deploy")
	cmd.Flags().StringVarP(&opts.branch, "branch", "b", "", "Branch of the repository (default branch when empty)")
	cmd.Flags().StringArrayVarP(&opts.assets, "asset", "a", nil, "Local file to deploy (repeatable)")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "Project name (derived from the source when empty)")
	cmd.Flags().StringArrayVarP(&opts.env, "env", "e", nil, "Environment variable KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&opts.detach, "detach", false, "Print the attempt ID and return without waiting")
	_ = cmd.MarkFlagRequired("provider")
	cmd.MarkFlagsMutuallyExclusive("repo", "asset")
	cmd.MarkFlagsOneRequired("repo", "asset")

	return cmd
}

func (o options) request() (domain.DeploymentRequest, error) {
	req := domain.DeploymentRequest{
		TargetProvider: strings.TrimSpace(o.provider),
		ProjectName:    strings.TrimSpace(o.name),
	}
	if o.repo != "" {
		req.Source = domain.RepositorySource(o.repo)
		if o.branch != "" {
			req.Source.Branch = o.branch
		}
	} else {
		if o.branch != "" {
			return req, domain.ValidationError("deploy", "--branch only applies to --repo")
		}
		req.Source = domain.ManifestSource(o.assets...)
	}
	for _, s := range o.env {
		v, err := domain.ParseEnvVar(s)
		if err != nil {
			return req, err
		}
		req.EnvVars = append(req.EnvVars, v)
	}
	return req, nil
}

func runDeploy(cmd *cobra.Command, opts options) error {
	s, err := utils.Services()
	if err != nil {
		return err
	}

	req, err := opts.request()
	if err != nil {
		return utils.HandleCommandError(cmd, "deploy", err)
	}

	ctx, cancel := utils.SignalContext(cmd.Context())
	defer cancel()

	attempt, err := s.Pipeline.Submit(ctx, req)
	if err != nil {
		return utils.HandleCommandError(cmd, "deploy", err, "provider_id", req.TargetProvider)
	}

	if err := output.FprintPlain(cmd, "Deploying %s to %s (%s)", req.Source, req.TargetProvider, attempt.ID); err != nil {
		return err
	}
	if opts.detach {
		return nil
	}

	updates, err := s.Pipeline.Subscribe(attempt.ID)
	if err != nil {
		return utils.HandleCommandError(cmd, "deploy", err)
	}

	var last string
	interrupted := ctx.Done()
	for {
		select {
		case <-interrupted:
			interrupted = nil
			// A finished attempt can no longer be cancelled; its result still arrives.
			if err := s.Pipeline.Cancel(attempt.ID); err != nil && !errors.Is(err, domain.ErrState) {
				return utils.HandleCommandError(cmd, "cancel deployment", err)
			}
		case snap, ok := <-updates:
			if !ok {
				return report(cmd, attempt)
			}
			attempt = snap
			if line := output.PrintProgress(snap); line != last {
				last = line
				if err := output.FprintPlain(cmd, "%s", line); err != nil {
					return err
				}
			}
		}
	}
}

func report(cmd *cobra.Command, a domain.DeploymentAttempt) error {
	switch a.State {
	case domain.AttemptStateSuccess:
		if url := a.WebURL(); url != "" {
			return output.FprintSuccess(cmd, "Deployed to %s", url)
		}
		return output.FprintSuccess(cmd, "Deployment finished.")
	case domain.AttemptStateCancelled:
		_ = output.Fprint(cmd, output.Warning, "Deployment cancelled.")
		return domain.StateError("deploy", "deployment cancelled")
	default:
		var err error = domain.ProviderError("deploy", "deployment failed")
		if a.Error != nil {
			err = a.Error
		}
		return utils.HandleCommandError(cmd, "deploy", err, "attempt_id", a.ID.String())
	}
}
