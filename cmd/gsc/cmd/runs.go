package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"search-analytics-node/internal/store"
)

func newRunsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded node runs",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show <run-id>",
		Short: "Print a run's table, or its error when it failed",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := startRuntime(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer rt.close()

			run, err := rt.store.GetRun(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}

			stderr := cmd.ErrOrStderr()
			fmt.Fprintln(stderr, dimStyle.Render(fmt.Sprintf("%s %s/%s %s", run.ID, run.Workflow, run.Node, run.Status)))
			switch run.Status {
			case store.StatusFailed:
				msg := "unknown error"
				if run.Error != nil {
					msg = *run.Error
				}
				return fmt.Errorf("run failed: %s", msg)
			case store.StatusQueued, store.StatusRunning:
				fmt.Fprintln(stderr, warnStyle.Render("Run has not finished yet."))
				return nil
			}
			return writeTable(cmd.OutOrStdout(), stderr, opts, run.Table, run.Warnings, "")
		},
	})

	return cmd
}
