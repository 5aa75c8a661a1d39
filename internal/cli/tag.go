package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// TagOptions holds flags for the tag command.
type TagOptions struct {
	*RootOptions
	Note string
}

// NewTagCommand creates the tag command.
func NewTagCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TagOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "tag <name>",
		Short:         "Tag the latest change in the plan",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTag(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVarP(&opts.Note, "note", "n", "", "note describing the tag")
	return cmd
}

func runTag(cmd *cobra.Command, opts *TagOptions, name string) error {
	cfg, pr, err := loadProject(opts.RootOptions)
	if err != nil {
		return err
	}
	if err := requireOperator(cfg); err != nil {
		return err
	}
	t, err := pr.AddTag(name, operator(cfg), opts.Note)
	if err != nil {
		return WrapExitError(ExitCommandError, "tag failed", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "tagged @%s (%s)\n", t.Name, t.ID)
	return nil
}
