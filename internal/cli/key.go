package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/goliatone/go-repository-hotstorage/cache"
	"github.com/spf13/cobra"
)

// NewKeyCommand creates the key command, which prints the cache keys a
// record or an exact-match query maps to. It does not touch the cache.
func NewKeyCommand(rootOpts *RootOptions) *cobra.Command {
	var pk string

	cmd := &cobra.Command{
		Use:   "key <prefix> [field=value...]",
		Short: "Print the cache keys for a primary key or a unique constraint",
		Example: `  hotstorage key myapp.person --pk 42
  hotstorage key myapp.phonenumber person_id=42 phone_number=555-0100`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKey(rootOpts, cmd, args[0], pk, args[1:])
		},
	}

	cmd.Flags().StringVar(&pk, "pk", "", "primary key value")
	return cmd
}

type keyResult struct {
	Record   string `json:"record,omitempty"`
	Registry string `json:"registry,omitempty"`
	All      string `json:"all"`
	Index    string `json:"index,omitempty"`
}

func runKey(opts *RootOptions, cmd *cobra.Command, prefix, pk string, pairs []string) error {
	if pk == "" && len(pairs) == 0 {
		return NewExitError(ExitCommandError, "need --pk or at least one field=value pair")
	}

	fields, err := parsePairs(pairs)
	if err != nil {
		return err
	}

	keys := cache.NewDefaultKeyBuilder()
	result := keyResult{All: keys.AllIDsKey(prefix)}
	if pk != "" {
		result.Record = keys.RecordKey(prefix, pk)
		result.Registry = keys.RegistryKey(prefix, pk)
	}
	if len(fields) > 0 {
		result.Index = keys.IndexKey(prefix, fields)
	}

	return newFormatter(opts, cmd).Emit(result, func(w io.Writer) {
		if result.Record != "" {
			fmt.Fprintf(w, "record    %s\n", result.Record)
			fmt.Fprintf(w, "registry  %s\n", result.Registry)
		}
		if result.Index != "" {
			fmt.Fprintf(w, "index     %s\n", result.Index)
		}
		fmt.Fprintf(w, "all       %s\n", result.All)
	})
}

// parsePairs reads field=value arguments. Values are kept as strings, which
// format the same as the column values most keys are built from.
func parsePairs(pairs []string) (map[string]any, error) {
	fields := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		field, value, ok := strings.Cut(pair, "=")
		if !ok || field == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid pair %q, want field=value", pair))
		}
		if _, dup := fields[field]; dup {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("field %q given twice", field))
		}
		fields[field] = value
	}
	return fields, nil
}
