package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/intelliw/LSAssetDataService/internal/app"
	"github.com/intelliw/LSAssetDataService/internal/etl"
)

// NewRunCommand creates the run command.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job>",
		Short: "Run one extraction now",
		Long: `Runs a single extraction for job regardless of the server status and prints
the outcome. The run is recorded in the run history like a scheduled one.

Example:
  lsassetdata run workflow --config /etc/lsassetdata.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			lg, closer, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer closer.Close()

			a, err := app.New(cmd.Context(), cfg, lg)
			if err != nil {
				return WrapExitError(ExitConfigError, "cannot initialise service", err)
			}
			defer a.Close()

			result, runErr := a.Service().RunJob(cmd.Context(), args[0])
			if result == nil {
				return WrapExitError(ExitFailure, "run not started", runErr)
			}
			p := printer{format: opts.Format, w: cmd.OutOrStdout()}
			if err := p.print(result, func(w io.Writer) { printRunResult(w, result) }); err != nil {
				return err
			}
			if runErr != nil {
				return WrapExitError(ExitFailure, "run failed", runErr)
			}
			return nil
		},
	}
}

func printRunResult(w io.Writer, r *etl.RunResult) {
	fmt.Fprintf(w, "job:       %s\n", r.Job)
	fmt.Fprintf(w, "run id:    %s\n", r.RunID)
	fmt.Fprintf(w, "status:    %s\n", r.Status)
	fmt.Fprintf(w, "cutoff:    %s (%s)\n", r.Cutoff.Time.Format(etl.SQLDateTimeLayout), r.Cutoff.Source)
	if !r.Watermark.IsZero() {
		fmt.Fprintf(w, "watermark: %s\n", r.Watermark.Format(etl.SQLDateTimeLayout))
	}
	fmt.Fprintf(w, "rows:      %d read, %d written, %d skipped\n", r.RowsRead, r.RowsWritten, r.RowsSkipped)
	if r.File != "" {
		fmt.Fprintf(w, "file:      %s\n", filepath.Base(r.File))
	}
	if r.Archived > 0 {
		fmt.Fprintf(w, "archived:  %d\n", r.Archived)
	}
	fmt.Fprintf(w, "duration:  %s\n", r.Duration)
	if r.Err != nil {
		fmt.Fprintf(w, "error:     %v\n", r.Err)
	}
}
