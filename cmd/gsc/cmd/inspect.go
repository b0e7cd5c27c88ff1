package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"search-analytics-node/internal/envutil"
	"search-analytics-node/internal/inspection"
	"search-analytics-node/internal/node"
)

func newInspectCmd(opts *rootOptions) *cobra.Command {
	var (
		req      inspection.Request
		urlsFile string
		modules  []string
	)

	cmd := &cobra.Command{
		Use:   "inspect [url...]",
		Short: "Inspect the index status of URLs in a property",
		Example: `  gsc inspect --site sc-domain:example.com https://example.com/a https://example.com/b
  gsc inspect --site sc-domain:example.com --urls-file urls.txt --module is --module mu --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.URLs = append(req.URLs, args...)
			if urlsFile != "" {
				fromFile, err := readLines(urlsFile)
				if err != nil {
					return err
				}
				req.URLs = append(req.URLs, fromFile...)
			}
			if len(req.URLs) == 0 {
				return fmt.Errorf("%w: no URLs to inspect, pass them as arguments or with --urls-file", errUsage)
			}

			if cmd.Flags().Changed("module") {
				m, err := parseModules(modules)
				if err != nil {
					return err
				}
				req.Modules = m
			}
			return executeNode(cmd, opts, node.URLInspectionNode, req)
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Site, "site", envutil.String(os.Getenv, "GSC_SITE", ""), "Property the URLs belong to")
	f.StringVar(&urlsFile, "urls-file", "", "File with one URL per line")
	f.StringSliceVar(&modules, "module", nil, "Result module (repeatable): is, mu, amp, rr (default is)")
	f.BoolVar(&req.JSON, "json", false, "Keep each module as one JSON column instead of flat columns")
	f.BoolVar(&req.WebLink, "web-link", false, "Add a link to the inspection in Search Console")

	return cmd
}

func parseModules(names []string) (*inspection.Modules, error) {
	m := &inspection.Modules{}
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "is", "index_status":
			m.IndexStatus = true
		case "mu", "mobile_usability":
			m.MobileUsability = true
		case "amp":
			m.AMP = true
		case "rr", "rich_results":
			m.RichResults = true
		default:
			return nil, fmt.Errorf("%w: unknown module %q (is, mu, amp, rr)", errUsage, name)
		}
	}
	return m, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open urls file: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read urls file: %w", err)
	}
	return lines, nil
}
