package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
	Target string
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "verify [target]",
		Short:         "Run verify scripts for deployed changes",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.Target = args[0]
			}
			return runVerify(cmd, opts)
		},
	}
	return cmd
}

func runVerify(cmd *cobra.Command, opts *VerifyOptions) error {
	ctx := cmd.Context()
	s, err := openSession(ctx, opts.RootOptions, opts.Target)
	if err != nil {
		return err
	}
	defer s.Close()

	report, err := s.Orchestrator().Verify(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "verify could not run", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	type failure struct {
		Change string `json:"change"`
		Error  string `json:"error"`
	}
	payload := struct {
		Checked  int       `json:"checked"`
		Skipped  []string  `json:"skipped,omitempty"`
		Failures []failure `json:"failures,omitempty"`
	}{Checked: report.Checked, Skipped: report.Skipped}
	for _, f := range report.Failures {
		payload.Failures = append(payload.Failures, failure{Change: f.Change, Error: f.Err.Error()})
	}
	if err := out.Emit(payload, func(w io.Writer) {
		fmt.Fprintf(w, "verified %d change(s), %d skipped\n", report.Checked, len(report.Skipped))
		for _, f := range report.Failures {
			fmt.Fprintf(w, "  not ok %s: %v\n", f.Change, f.Err)
		}
	}); err != nil {
		return err
	}

	if report.Failed() {
		return WrapExitError(ExitFailure, fmt.Sprintf("%d change(s) failed verification", len(report.Failures)), nil)
	}
	return nil
}
