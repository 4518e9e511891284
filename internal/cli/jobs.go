package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kiranshivaraju/webgenie/internal/client"
	"github.com/kiranshivaraju/webgenie/internal/jobs"
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

func submitCmd(a *App) *cobra.Command {
	var (
		datasetID   string
		algorithm   string
		params      []string
		name        string
		description string
		watch       bool
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit an inference job",
		Example: `  grnctl submit --dataset ds-1 --algorithm genie3 --param n_trees=500
  grnctl submit --dataset ds-1 --algorithm ppcor --param method=spearman --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}
			req := jobs.SubmitRequest{
				DatasetID:  datasetID,
				Algorithm:  algorithm,
				Parameters: parsed,
			}
			if name != "" {
				req.Name = &name
			}
			if description != "" {
				req.Description = &description
			}

			job, err := a.api().Submit(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("submit: %w", err)
			}
			if !watch {
				return a.printJob(job)
			}
			fmt.Fprintf(a.Out, "Submitted %s\n", job.ID)
			return a.watch(cmd, job.ID)
		},
	}
	cmd.Flags().StringVar(&datasetID, "dataset", "", "dataset id")
	cmd.Flags().StringVar(&algorithm, "algorithm", "", "algorithm name")
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "algorithm parameter key=value (repeatable)")
	cmd.Flags().StringVar(&name, "name", "", "job name")
	cmd.Flags().StringVar(&description, "description", "", "job description")
	cmd.Flags().BoolVar(&watch, "watch", false, "follow the job until it finishes")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("algorithm")
	return cmd
}

func getCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "get <jobId>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := a.api().GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.printJob(job)
		},
	}
}

func listCmd(a *App) *cobra.Command {
	var opts client.ListOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, meta, err := a.api().ListJobs(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if a.Params.JSON {
				return a.printJSON(map[string]any{"jobs": list, "meta": meta})
			}
			if err := a.printJobTable(list); err != nil {
				return err
			}
			fmt.Fprintf(a.Out, "\nPage %d, %d of %d jobs\n", meta.Page, len(list), meta.Total)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Status, "status", "", "filter by status")
	cmd.Flags().StringVar(&opts.DatasetID, "dataset", "", "filter by dataset id")
	cmd.Flags().StringVar(&opts.Algorithm, "algorithm", "", "filter by algorithm")
	cmd.Flags().IntVar(&opts.Skip, "skip", 0, "number of jobs to skip")
	cmd.Flags().IntVar(&opts.Limit, "limit", 10, "page size")
	return cmd
}

func logsCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "logs <jobId>",
		Short: "Print a job's execution log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logs, err := a.api().Logs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprint(a.Out, logs)
			return nil
		},
	}
}

func cancelCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <jobId>",
		Short: "Cancel a pending or running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := a.api().Cancel(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("cancel %s: %w", args[0], err)
			}
			fmt.Fprintf(a.Out, "Cancelled %s\n", job.ID)
			return nil
		},
	}
}

func watchCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <jobId>",
		Short: "Follow a job's status until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.watch(cmd, args[0])
		},
	}
}

// watch streams status lines and fails when the job did not complete.
func (a *App) watch(cmd *cobra.Command, id string) error {
	last, err := a.api().Watch(cmd.Context(), id, func(j *models.Job) error {
		fmt.Fprintf(a.Out, "%s\t%s\t%.0f%%\n", j.ID, j.Status, j.Progress)
		return nil
	})
	if err != nil {
		return err
	}
	if last != nil && last.Status != models.JobStatusCompleted {
		msg := string(last.Status)
		if last.ErrorMessage != nil {
			msg += ": " + *last.ErrorMessage
		}
		return fmt.Errorf("job %s ended %s", id, msg)
	}
	return nil
}
