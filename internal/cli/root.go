package cli

import (
	"fmt"

	"github.com/goliatone/go-repository-hotstorage/pkg/di"
	"github.com/goliatone/go-repository-hotstorage/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Format     string // "json" | "text"
	Verbose    bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command of the maintenance CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "hotstorage",
		Short: "Inspect and repair hot storage cache entries",
		Long: `Maintenance tool for the hot storage cache.

Works on key prefixes only, so it can inspect any record type without its Go
definition. Point --config at the same YAML file the service loads.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging on stderr")

	cmd.AddCommand(NewInspectCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))
	cmd.AddCommand(NewKeyCommand(opts))
	cmd.AddCommand(NewAuditCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadConfig falls back to the defaults when no file is given.
func loadConfig(opts *RootOptions) (di.Config, error) {
	if opts.ConfigPath == "" {
		return di.DefaultConfig(), nil
	}
	cfg, err := di.LoadConfig(opts.ConfigPath)
	if err != nil {
		return cfg, WrapExitError(ExitCommandError, "load config", err)
	}
	return cfg, nil
}

// newContainer builds a container whose logs go to the command's stderr.
// Metrics are collected on a private registry since nothing scrapes them.
func newContainer(opts *RootOptions, cmd *cobra.Command) (*di.Container, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	level := logging.ParseLevel(cfg.Log.Level)
	if opts.Verbose {
		level = logging.ParseLevel("debug")
	}
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), level, cfg.Log.JSON)

	container, err := di.NewContainer(cfg,
		di.WithLogger(logger),
		di.WithRegisterer(prometheus.NewRegistry()),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "build container", err)
	}
	return container, nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
	}
}
