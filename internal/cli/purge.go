package cli

import (
	"fmt"
	"io"

	"github.com/goliatone/go-repository-hotstorage/hotstorage"
	"github.com/spf13/cobra"
)

type purgeOptions struct {
	yes bool
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &purgeOptions{}

	cmd := &cobra.Command{
		Use:   "purge <prefix>",
		Short: "Delete every cached entry reachable from a prefix's all-ids set",
		Long: `Delete the blob, index keys and index registry of every record listed in
the all-ids set of a prefix, then the set itself.

Nothing is deleted from the backing database. Lookups by primary key report
not found until the records are saved or warmed again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !opts.yes {
				return NewExitError(ExitCommandError, "refusing to purge without --yes")
			}
			return runPurge(rootOpts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "confirm the purge")
	return cmd
}

type purgeResult struct {
	Prefix string `json:"prefix"`
	Purged int    `json:"purged"`
}

func runPurge(opts *RootOptions, cmd *cobra.Command, prefix string) error {
	container, err := newContainer(opts, cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	n, err := hotstorage.PurgePrefix(cmd.Context(), container.Store(), container.KeyBuilder(), prefix)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("purge stopped after %d records", n), err)
	}
	container.Logger().Info("prefix purged", "prefix", prefix, "records", n)

	result := purgeResult{Prefix: prefix, Purged: n}
	return newFormatter(opts, cmd).Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "purged %d records from %s\n", n, prefix)
	})
}
