package cli

import (
	"fmt"
	"io"

	"github.com/goliatone/go-repository-hotstorage/hotstorage"
	"github.com/spf13/cobra"
)

// NewVerifyCommand creates the verify command. It exits with ExitFailure
// when an inconsistency is found.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <prefix>",
		Short: "Check that every cached record's indexes resolve to it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, cmd, args[0])
		},
	}
}

func runVerify(opts *RootOptions, cmd *cobra.Command, prefix string) error {
	container, err := newContainer(opts, cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	report, err := hotstorage.VerifyPrefix(cmd.Context(), container.Store(), container.KeyBuilder(), prefix)
	if err != nil {
		return WrapExitError(ExitCommandError, "verify", err)
	}

	err = newFormatter(opts, cmd).Emit(report, func(w io.Writer) {
		fmt.Fprintf(w, "%s: %d records\n", report.Prefix, report.Records)
		for _, pk := range report.MissingRecords {
			fmt.Fprintf(w, "missing record  %s\n", pk)
		}
		for _, p := range report.BrokenIndexes {
			target := p.Target
			if target == "" {
				target = "(missing)"
			}
			fmt.Fprintf(w, "broken index    %s of %s -> %s\n", p.IndexKey, p.PK, target)
		}
		if report.Consistent() {
			fmt.Fprintln(w, "consistent")
		}
	})
	if err != nil {
		return err
	}
	if !report.Consistent() {
		return NewExitError(ExitFailure, fmt.Sprintf("%s is inconsistent", prefix))
	}
	return nil
}
