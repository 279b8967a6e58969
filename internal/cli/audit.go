package cli

import (
	"fmt"
	"io"

	"github.com/goliatone/go-repository-hotstorage/bunstore"
	"github.com/spf13/cobra"
)

type auditOptions struct {
	table    string
	pkColumn string
}

// NewAuditCommand creates the audit command. It compares a prefix's all-ids
// set with the rows of the backing table and lists cached records whose row
// is gone, which happens when the database is written around the cache.
func NewAuditCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &auditOptions{}

	cmd := &cobra.Command{
		Use:   "audit <prefix>",
		Short: "List cached records that no longer exist in the backing database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.table == "" {
				return NewExitError(ExitCommandError, "--table is required")
			}
			return runAudit(rootOpts, opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.table, "table", "", "backing table name")
	cmd.Flags().StringVar(&opts.pkColumn, "pk-column", "id", "primary key column")
	return cmd
}

type auditResult struct {
	Prefix  string   `json:"prefix"`
	Table   string   `json:"table"`
	Checked int      `json:"checked"`
	Orphans []string `json:"orphans,omitempty"`
}

func runAudit(rootOpts *RootOptions, opts *auditOptions, cmd *cobra.Command, prefix string) error {
	container, err := newContainer(rootOpts, cmd)
	if err != nil {
		return err
	}
	defer container.Close()

	db, err := container.OpenDatabase()
	if err != nil {
		return WrapExitError(ExitCommandError, "open database", err)
	}

	ctx := cmd.Context()
	keys := container.KeyBuilder()
	ids, err := container.Store().Members(ctx, keys.AllIDsKey(prefix))
	if err != nil {
		return WrapExitError(ExitCommandError, "read all-ids set", err)
	}

	result := auditResult{Prefix: prefix, Table: opts.table, Checked: len(ids)}
	for _, id := range ids {
		n, err := bunstore.CountRows(ctx, db, opts.table, opts.pkColumn, id)
		if err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("count %s", id), err)
		}
		if n == 0 {
			result.Orphans = append(result.Orphans, id)
		}
	}

	err = newFormatter(rootOpts, cmd).Emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "%s: %d cached records checked against %s\n", prefix, result.Checked, opts.table)
		for _, id := range result.Orphans {
			fmt.Fprintf(w, "orphan  %s\n", id)
		}
	})
	if err != nil {
		return err
	}
	if len(result.Orphans) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d orphaned records", len(result.Orphans)))
	}
	return nil
}
