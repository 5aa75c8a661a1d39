package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RevertOptions holds flags for the revert command.
type RevertOptions struct {
	*RootOptions
	Target string
	To     string
}

// NewRevertCommand creates the revert command.
func NewRevertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RevertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "revert [target]",
		Short: "Revert deployed changes from a target",
		Long: `Revert deployed changes in reverse plan order, down to but not
including the change named by --to. Without --to, everything is reverted.

Example:
  strata revert db:sqlite:app.db --to @v1.0.0
  strata revert prod --to @HEAD^`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.Target = args[0]
			}
			return runRevert(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.To, "to", "", "revert down to (but not including) this change or tag")
	return cmd
}

func runRevert(cmd *cobra.Command, opts *RevertOptions) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, opts.RootOptions, opts.Target)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := requireOperator(s.Config); err != nil {
		return err
	}

	if err := s.Orchestrator().Revert(ctx, opts.To); err != nil {
		return WrapExitError(ExitFailure, "revert failed", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reverted %s\n", s.Project.Plan.Project)
	return nil
}
