package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/intelliw/LSAssetDataService/internal/app"
)

// ServiceName is the name the service is registered under on Windows.
const ServiceName = "LSAssetDataService"

// NewServeCommand creates the serve command.
func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the extraction service until interrupted",
		Long: `Runs every enabled job on the configured interval while this host is the
active node. Stops on SIGINT or SIGTERM after in-flight runs finish. When
started by the Windows service control manager it also honours pause and
continue.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

// openApp loads the configuration and builds the service. cleanup closes the
// app and then the log file.
func openApp(ctx context.Context, opts *RootOptions) (a *app.App, cleanup func(), err error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, nil, err
	}
	lg, closer, err := newLogger(cfg)
	if err != nil {
		return nil, nil, err
	}

	a, err = app.New(ctx, cfg, lg)
	if err != nil {
		lg.WithError(err).Error("cannot initialise service")
		closer.Close()
		return nil, nil, WrapExitError(ExitConfigError, "cannot initialise service", err)
	}
	return a, func() {
		if err := a.Close(); err != nil {
			lg.WithError(err).Warn("cannot release resources")
		}
		closer.Close()
	}, nil
}

func serve(ctx context.Context, opts *RootOptions) error {
	a, cleanup, err := openApp(ctx, opts)
	if err != nil {
		return err
	}
	defer cleanup()
	return a.Serve(ctx)
}
