package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/intelliw/LSAssetDataService/internal/app"
	"github.com/intelliw/LSAssetDataService/internal/etl"
	"github.com/intelliw/LSAssetDataService/internal/logging"
)

type jobInfo struct {
	etl.StrategySpec
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir"`
}

// NewJobsCommand creates the jobs command.
func NewJobsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List the extraction jobs and their output files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			var infos []jobInfo
			for _, name := range etl.ListStrategies() {
				s, err := etl.NewStrategy(name, app.JobSettings(cfg, name, logging.Discard()))
				if err != nil {
					return WrapExitError(ExitConfigError, "job "+name, err)
				}
				infos = append(infos, jobInfo{StrategySpec: s.Spec(), Enabled: cfg.JobEnabled(name), Dir: cfg.JobDir(name)})
			}
			p := printer{format: opts.Format, w: cmd.OutOrStdout()}
			return p.print(infos, func(w io.Writer) { printJobs(w, infos) })
		},
	}
}

func printJobs(w io.Writer, infos []jobInfo) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "JOB\tENABLED\tFILE\tRETAIN\tOVERWRITE\tDIR")
	for _, j := range infos {
		fmt.Fprintf(tw, "%s\t%t\t%s_yyyy_MM_dd_HH_mm.%s\t%d\t%t\t%s\n",
			j.Name, j.Enabled, j.Prefix, j.Ext(), j.Retain, j.Overwrite, j.Dir)
	}
	tw.Flush()
}
