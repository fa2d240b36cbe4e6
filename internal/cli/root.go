// Package cli implements the lsassetdata command line.
package cli

import (
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/intelliw/LSAssetDataService/internal/config"
	"github.com/intelliw/LSAssetDataService/internal/logging"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lsassetdata",
		Short: "LS Asset Data Service",
		Long: `Extracts asset changes from the agility and CORE databases and stages them
as CSV/XLSX files for import into CORE.

Configuration is read from --config (YAML) and LSASSETDATA_* environment
variables, e.g. LSASSETDATA_DATABASE_SERVER=sqlreplica.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	bindRootFlags(cmd.PersistentFlags(), opts)

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewJobsCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewRFIDCommand(opts))

	return cmd
}

func bindRootFlags(fs *pflag.FlagSet, opts *RootOptions) {
	fs.StringVarP(&opts.ConfigPath, "config", "c", "", "path to the YAML config file")
	fs.BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	fs.StringVar(&opts.Format, "format", "text", "output format (json|text)")
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// loadConfig reads the configuration, mapping failures to ExitConfigError.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitConfigError, "cannot load configuration", err)
	}
	if opts.Verbose {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

// newLogger builds the service logger. The closer flushes the log file.
func newLogger(cfg *config.Config) (*log.Entry, io.Closer, error) {
	logger, closer, err := logging.Configure(cfg.Logging)
	if err != nil {
		return nil, nil, WrapExitError(ExitConfigError, "cannot configure logging", err)
	}
	return log.NewEntry(logger).WithField("service", "LSAssetDataService"), closer, nil
}
