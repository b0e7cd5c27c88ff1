package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"search-analytics-node/internal/envutil"
	"search-analytics-node/internal/gsc"
	"search-analytics-node/internal/table"
)

var errUsage = errors.New("usage")

type rootOptions struct {
	workflow string
	format   string
	out      string
	logLevel string

	writer table.Writer
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "gsc",
		Short:         "Run Google Search Console nodes against a workflow's stored credential",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.workflow == "" {
				return fmt.Errorf("%w: --workflow must not be empty", errUsage)
			}
			w, err := table.NewWriter(opts.format)
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			opts.writer = w
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&opts.workflow, "workflow", envutil.String(os.Getenv, "GSC_WORKFLOW", "default"), "Workflow whose credential and runs are used")
	pf.StringVar(&opts.format, "format", envutil.String(os.Getenv, "GSC_FORMAT", "table"), "Output format: table, csv, json, jsonl, yaml")
	pf.StringVar(&opts.out, "out", "", "Write the table to this file instead of stdout")
	pf.StringVar(&opts.logLevel, "log-level", envutil.String(os.Getenv, "LOG_LEVEL", "warn"), "Log level for diagnostics on stderr")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})

	rootCmd.AddCommand(
		newAuthCmd(opts),
		newQueryCmd(opts),
		newInspectCmd(opts),
		newPropertiesCmd(opts),
		newRunsCmd(opts),
	)
	return rootCmd
}

// Execute runs the CLI and returns the process exit code: 2 for usage and
// request errors, 1 for everything else.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	return exitCode(root.ExecuteContext(ctx), root)
}

// usageArgs reports positional argument errors as usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		return nil
	}
}

func exitCode(err error, root *cobra.Command) int {
	if err == nil {
		return 0
	}
	fmt.Fprintln(root.ErrOrStderr(), errorStyle.Render("ERROR:"), err)
	if errors.Is(err, errUsage) || errors.Is(err, gsc.ErrRequest) {
		return 2
	}
	return 1
}
