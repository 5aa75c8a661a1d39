package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// AddOptions holds flags for the add command.
type AddOptions struct {
	*RootOptions
	Requires  []string
	Conflicts []string
	Note      string
}

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <change>",
		Short: "Add a change to the plan",
		Long: `Append a change to the plan and create template deploy, revert,
and verify scripts for it.

Example:
  strata add users -n 'Creates table to track our users.'
  strata add flips --requires users -n 'Adds table for storing flips.'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Requires, "requires", "r", nil, "change(s) this one requires")
	cmd.Flags().StringSliceVarP(&opts.Conflicts, "conflicts", "x", nil, "change(s) this one conflicts with")
	cmd.Flags().StringVarP(&opts.Note, "note", "n", "", "note describing the change")
	return cmd
}

func runAdd(cmd *cobra.Command, opts *AddOptions, name string) error {
	cfg, pr, err := loadProject(opts.RootOptions)
	if err != nil {
		return err
	}
	if err := requireOperator(cfg); err != nil {
		return err
	}
	c, err := pr.AddChange(name, opts.Requires, opts.Conflicts, operator(cfg), opts.Note)
	if err != nil {
		return WrapExitError(ExitCommandError, "add failed", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "added %s (%s)\n", c.Name, c.ID)
	return nil
}
