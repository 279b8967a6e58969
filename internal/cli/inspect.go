package cli

import (
	"fmt"
	"io"

	"github.com/goliatone/go-repository-hotstorage/hotstorage"
	"github.com/spf13/cobra"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <prefix> <pk>",
		Short: "Show the cached blob, all-ids membership and indexes of a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(rootOpts, cmd, args[0], args[1])
		},
	}
}

func runInspect(opts *RootOptions, cmd *cobra.Command, prefix, pk string) error {
	container, err := newContainer(opts, cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	entry, err := hotstorage.Inspect(cmd.Context(), container.Store(), container.KeyBuilder(), prefix, pk)
	if err != nil {
		return WrapExitError(ExitCommandError, "inspect", err)
	}

	return newFormatter(opts, cmd).Emit(entry, func(w io.Writer) {
		fmt.Fprintf(w, "record   %s\n", entry.RecordKey)
		if entry.Cached {
			fmt.Fprintf(w, "cached   yes (%d bytes)\n", entry.Size)
		} else {
			fmt.Fprintln(w, "cached   no")
		}
		fmt.Fprintf(w, "listed   %t\n", entry.Listed)
		fmt.Fprintf(w, "indexes  %d\n", len(entry.Indexes))
		for _, idx := range entry.Indexes {
			target := idx.Target
			if target == "" {
				target = "(missing)"
			}
			fmt.Fprintf(w, "  %s -> %s\n", idx.Key, target)
		}
	})
}
