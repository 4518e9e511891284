package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/webgenie/internal/network"
)

// analyzeCmd groups the offline commands that read network files directly.
func analyzeCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze local network files without a server",
	}
	cmd.AddCommand(analyzeSummaryCmd(a), analyzeCompareCmd(a), analyzeExportCmd(a))
	return cmd
}

func analyzeSummaryCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "summary <network.tsv>",
		Short: "Topology statistics of a network file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := network.ParseFile(args[0])
			if err != nil {
				return err
			}
			a.reportWarnings(cmd, args[0], res)
			sum := network.Summarize(res.Edges)
			sum.SkippedRows = res.Skipped
			return a.printSummary(&sum)
		},
	}
}

func analyzeCompareCmd(a *App) *cobra.Command {
	var directed bool
	cmd := &cobra.Command{
		Use:   "compare <a.tsv> <b.tsv>",
		Short: "Edge-set overlap of two network files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resA, err := network.ParseFile(args[0])
			if err != nil {
				return err
			}
			resB, err := network.ParseFile(args[1])
			if err != nil {
				return err
			}
			a.reportWarnings(cmd, args[0], resA)
			a.reportWarnings(cmd, args[1], resB)
			cmp := network.Compare(resA.Edges, resB.Edges, network.CompareOptions{Directed: directed})
			return a.printComparison(&cmp)
		},
	}
	cmd.Flags().BoolVar(&directed, "directed", false, "treat (a,b) and (b,a) as different edges")
	return cmd
}

func analyzeExportCmd(a *App) *cobra.Command {
	var (
		format     string
		output     string
		undirected bool
	)
	cmd := &cobra.Command{
		Use:   "export <network.tsv>",
		Short: "Convert a network file to csv, json or graphml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			f, err := network.ParseFormat(format)
			if err != nil {
				return err
			}
			res, err := network.ParseFile(args[0])
			if err != nil {
				return err
			}
			a.reportWarnings(cmd, args[0], res)

			w := a.Out
			if output != "" && output != "-" {
				out, err := os.Create(output)
				if err != nil {
					return err
				}
				defer func() {
					if cerr := out.Close(); err == nil {
						err = cerr
					}
				}()
				w = out
			}
			return network.Export(w, res.Edges, f, !undirected)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "tsv, csv, json or graphml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&undirected, "undirected", false, "mark the GraphML graph undirected")
	return cmd
}

func (a *App) reportWarnings(cmd *cobra.Command, path string, res *network.ParseResult) {
	if res.Skipped == 0 {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: skipped %d malformed rows\n", path, res.Skipped)
	for _, w := range res.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", w)
	}
}
