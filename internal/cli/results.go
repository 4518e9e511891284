package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func summaryCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <jobId>",
		Short: "Show network statistics for a completed job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := a.api().Summary(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printSummary(sum)
		},
	}
}

func compareCmd(a *App) *cobra.Command {
	var directed bool
	cmd := &cobra.Command{
		Use:   "compare <jobA> <jobB>",
		Short: "Compare the edge sets of two completed jobs",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmp, err := a.api().Compare(cmd.Context(), args[0], args[1], directed)
			if err != nil {
				return err
			}
			return a.printComparison(cmp)
		},
	}
	cmd.Flags().BoolVar(&directed, "directed", false, "treat (a,b) and (b,a) as different edges")
	return cmd
}

func downloadCmd(a *App) *cobra.Command {
	var (
		format string
		output string
	)
	cmd := &cobra.Command{
		Use:   "download <jobId>",
		Short: "Download a job's network",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			var w io.Writer = a.Out
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer func() {
					if cerr := f.Close(); err == nil {
						err = cerr
					}
				}()
				w = f
			}
			if err := a.api().DownloadNetwork(cmd.Context(), args[0], format, w); err != nil {
				return err
			}
			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", output)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "tsv", "tsv, csv, json or graphml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}
