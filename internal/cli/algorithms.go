package cli

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func algorithmsCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "algorithms",
		Aliases: []string{"algs"},
		Short:   "List the available inference algorithms",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			algs, err := a.api().Algorithms(cmd.Context())
			if err != nil {
				return err
			}
			if a.Params.JSON {
				return a.printJSON(algs)
			}
			w := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDISPLAY NAME\tIMAGE")
			for _, alg := range algs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", alg.Name, alg.DisplayName, alg.Image)
			}
			return w.Flush()
		},
	}
	cmd.AddCommand(algorithmGetCmd(a), algorithmImageCmd(a))
	return cmd
}

func algorithmGetCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <name>",
		Short: "Show an algorithm and its parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			alg, err := a.api().Algorithm(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.Params.JSON {
				return a.printJSON(alg)
			}
			fmt.Fprintf(a.Out, "%s (%s)\n%s\nImage: %s\n", alg.DisplayName, alg.Name, alg.Description, alg.Image)
			if len(alg.Parameters) == 0 {
				return nil
			}
			names := make([]string, 0, len(alg.Parameters))
			for n := range alg.Parameters {
				names = append(names, n)
			}
			sort.Strings(names)

			w := tabwriter.NewWriter(a.Out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "\nPARAMETER\tTYPE\tDEFAULT\tDESCRIPTION")
			for _, n := range names {
				p := alg.Parameters[n]
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", n, p.Type, p.Default, p.Description)
			}
			return w.Flush()
		},
	}
}

func algorithmImageCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "image <name>",
		Short: "Check whether an algorithm's container image is present",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.api().CheckImage(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.Params.JSON {
				return a.printJSON(st)
			}
			state := "missing"
			if st.Available {
				state = "available"
			}
			fmt.Fprintf(a.Out, "%s: %s\n", st.Image, state)
			return nil
		},
	}
}
