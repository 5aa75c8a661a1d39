package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ReworkOptions holds flags for the rework command.
type ReworkOptions struct {
	*RootOptions
	Requires []string
	Note     string
}

// NewReworkCommand creates the rework command.
func NewReworkCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReworkOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rework <change>",
		Short: "Rework an existing change",
		Long: `Append a new version of an existing change to the plan. The prior
version must be pinned by a tag; its scripts are preserved under
"name@tag.sql" so both versions stay deployable, and the new entry depends
on the pinned version. Nothing is deployed — edit the scripts, then deploy.

Example:
  strata rework hashtags -n 'Adds the #hashtag unique index.'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRework(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Requires, "requires", "r", nil, "additional change(s) the new version requires")
	cmd.Flags().StringVarP(&opts.Note, "note", "n", "", "note describing the rework")
	return cmd
}

func runRework(cmd *cobra.Command, opts *ReworkOptions, name string) error {
	cfg, pr, err := loadProject(opts.RootOptions)
	if err != nil {
		return err
	}
	if err := requireOperator(cfg); err != nil {
		return err
	}
	c, err := pr.Rework(name, opts.Requires, operator(cfg), opts.Note)
	if err != nil {
		return WrapExitError(ExitCommandError, "rework failed", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "reworked %s (%s), superseding %s\n", c.Name, c.ID, c.ReworkOf)
	return nil
}
