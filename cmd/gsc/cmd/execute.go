package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"search-analytics-node/internal/node"
)

// executeNode runs one node for the selected workflow and renders its table.
// A failed run still prints its id so it can be inspected with "runs show".
func executeNode(cmd *cobra.Command, opts *rootOptions, nodeName string, params any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode %s parameters: %w", nodeName, err)
	}

	rt, err := startRuntime(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer rt.close()

	res, err := rt.executor.Execute(cmd.Context(), node.ExecuteRequest{
		Workflow: opts.workflow,
		Node:     nodeName,
		Params:   raw,
	})
	if err != nil {
		if res != nil && res.RunID != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), dimStyle.Render("run "+res.RunID))
		}
		return err
	}

	return writeTable(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, res.Table, res.Warnings, res.RunID)
}
