package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DeployOptions holds flags for the deploy command.
type DeployOptions struct {
	*RootOptions
	Target string
	To     string
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeployOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deploy [target]",
		Short: "Deploy plan changes to a target",
		Long: `Deploy every not-yet-deployed change, in plan order, up to and
including the change named by --to (default @HEAD).

Example:
  strata deploy db:sqlite:app.db
  strata deploy prod --to @v1.0.0
  strata deploy --to users^`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.Target = args[0]
			}
			return runDeploy(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.To, "to", "", "deploy up to this change or tag (default @HEAD)")
	return cmd
}

func runDeploy(cmd *cobra.Command, opts *DeployOptions) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, opts.RootOptions, opts.Target)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireOperator(s.Config); err != nil {
		return err
	}

	if err := s.Orchestrator().Deploy(ctx, opts.To); err != nil {
		return WrapExitError(ExitFailure, "deploy failed", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deployed %s\n", s.Project.Plan.Project)
	return nil
}
