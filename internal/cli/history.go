package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/intelliw/LSAssetDataService/internal/etl"
	"github.com/intelliw/LSAssetDataService/internal/storage"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <job>",
		Short: "Show recent runs of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			store, err := storage.Open(cmd.Context(), cfg.History)
			if err != nil {
				return WrapExitError(ExitConfigError, "cannot open run history", err)
			}
			defer store.Close()

			logs, err := store.List(cmd.Context(), args[0], limit)
			if err != nil {
				return WrapExitError(ExitFailure, "cannot list run history", err)
			}
			if logs == nil {
				logs = []etl.RunLog{}
			}
			p := printer{format: opts.Format, w: cmd.OutOrStdout()}
			return p.print(logs, func(w io.Writer) { printHistory(w, logs) })
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", storage.DefaultListLimit, "number of runs to show")
	return cmd
}

func printHistory(w io.Writer, logs []etl.RunLog) {
	if len(logs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tSTATUS\tCUTOFF\tROWS\tSKIPPED\tFILE\tERROR")
	for _, l := range logs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			l.StartedAt.Local().Format(etl.SQLDateTimeLayout), l.Status,
			l.Cutoff.Local().Format(etl.SQLDateTimeLayout),
			l.RowsWritten, l.RowsSkipped, filepath.Base(l.File), l.Error)
	}
	tw.Flush()
}
