package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"search-analytics-node/internal/table"
)

var (
	warnStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("196"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

func printWarnings(w io.Writer, warnings []string) {
	for _, warning := range warnings {
		fmt.Fprintln(w, warnStyle.Render("WARNING:"), warning)
	}
}

// writeTable renders t to --out or stdout. Warnings go to stderr so piped
// output stays machine-readable.
func writeTable(stdout, stderr io.Writer, opts *rootOptions, t *table.Table, warnings []string, runID string) (err error) {
	printWarnings(stderr, warnings)

	dst := stdout
	if opts.out != "" {
		f, err := os.Create(opts.out)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		dst = f
	}

	if t == nil {
		t = table.New()
	}
	if err := opts.writer.Write(t, dst); err != nil {
		return fmt.Errorf("write %s output: %w", opts.writer.Extension(), err)
	}

	if opts.out != "" {
		fmt.Fprintln(stderr, okStyle.Render(fmt.Sprintf("Wrote %d rows to %s", t.Len(), opts.out)))
	}
	if runID != "" {
		fmt.Fprintln(stderr, dimStyle.Render("run "+runID))
	}
	return nil
}
