package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	Target string
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "status [target]",
		Short:         "Show where a target sits relative to the plan",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.Target = args[0]
			}
			return runStatus(cmd, opts)
		},
	}
	return cmd
}

func runStatus(cmd *cobra.Command, opts *StatusOptions) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, opts.RootOptions, opts.Target)
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.Orchestrator().Status(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "status failed", err)
	}

	type pending struct {
		Change string `json:"change"`
		ID     string `json:"id"`
	}
	payload := struct {
		Project  string    `json:"project"`
		Deployed int       `json:"deployed"`
		Tags     []string  `json:"tags,omitempty"`
		Pending  []pending `json:"pending,omitempty"`
		UpToDate bool      `json:"up_to_date"`
	}{Project: st.Project, Deployed: len(st.Deployed), Tags: st.Tags, UpToDate: st.UpToDate()}
	for _, c := range st.Pending {
		payload.Pending = append(payload.Pending, pending{Change: c.Name, ID: c.ID})
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Emit(payload, func(w io.Writer) {
		fmt.Fprintf(w, "# project %s\n", st.Project)
		if len(st.Deployed) > 0 {
			last := st.Deployed[len(st.Deployed)-1]
			fmt.Fprintf(w, "# change  %s (%s)\n", last.Change, last.ChangeID)
		}
		if st.UpToDate() {
			fmt.Fprintln(w, "nothing to deploy (up-to-date)")
			return
		}
		fmt.Fprintf(w, "undeployed change(s):\n")
		for _, c := range st.Pending {
			fmt.Fprintf(w, "  %s\n", c.Name)
		}
	})
}
