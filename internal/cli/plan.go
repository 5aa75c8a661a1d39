package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/plan"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Validate bool
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "plan",
		Short:         "List plan entries, or validate the plan file",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.Validate, "validate", false, "check the plan for unresolvable dependencies")
	return cmd
}

func runPlan(cmd *cobra.Command, opts *PlanOptions) error {
	_, pr, err := loadProject(opts.RootOptions)
	if err != nil {
		return err
	}
	p := pr.Plan

	if opts.Validate {
		if len(p.MissingDependencies) > 0 {
			return WrapExitError(ExitCommandError, "plan validation failed",
				fmt.Errorf("unresolvable dependencies: %s", strings.Join(p.MissingDependencies, ", ")))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "plan %s ok: %d entries\n", p.Project, len(p.Entries()))
		return nil
	}

	type entry struct {
		Type     string   `json:"type"`
		Name     string   `json:"name"`
		ID       string   `json:"id"`
		Requires []string `json:"requires,omitempty"`
		Note     string   `json:"note,omitempty"`
	}
	payload := struct {
		Project string  `json:"project"`
		URI     string  `json:"uri,omitempty"`
		Entries []entry `json:"entries"`
	}{Project: p.Project, URI: p.URI}
	for _, e := range p.Entries() {
		switch v := e.(type) {
		case *plan.Change:
			payload.Entries = append(payload.Entries, entry{
				Type: "change", Name: v.Name, ID: v.ID, Requires: v.Requires, Note: v.Note,
			})
		case *plan.Tag:
			payload.Entries = append(payload.Entries, entry{
				Type: "tag", Name: "@" + v.Name, ID: v.ID, Note: v.Note,
			})
		}
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Emit(payload, func(w io.Writer) {
		fmt.Fprintf(w, "# project %s\n", p.Project)
		for _, e := range payload.Entries {
			fmt.Fprintf(w, "%-6s  %s  %s\n", e.Type, e.ID, e.Name)
		}
	})
}
