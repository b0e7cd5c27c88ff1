package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"search-analytics-node/internal/envutil"
	"search-analytics-node/internal/node"
	"search-analytics-node/internal/query"
)

func newQueryCmd(opts *rootOptions) *cobra.Command {
	var req query.Request
	var interval string

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Fetch search analytics rows for a property",
		Example: `  gsc query --site sc-domain:example.com --dimension page --dimension query --limit 1000
  gsc query --site https://example.com/ --start 2024-01-01 --end 2024-01-31 --format csv --out jan.csv`,
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Interval = query.Interval(interval)
			return executeNode(cmd, opts, node.QueryNode, req)
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Site, "site", envutil.String(os.Getenv, "GSC_SITE", ""), "Property URL, e.g. sc-domain:example.com or https://example.com/")
	f.StringVar(&interval, "interval", "", "Preset interval: d7, d28, d90, d180, d365 (default d28 unless dates are given)")
	f.StringVar(&req.StartDate, "start", "", "Start date YYYY-MM-DD")
	f.StringVar(&req.EndDate, "end", "", "End date YYYY-MM-DD")
	f.StringSliceVar(&req.Dimensions, "dimension", envutil.List(os.Getenv, "GSC_DIMENSIONS", nil), "Dimension to group by (repeatable): date, country, device, page, query, searchAppearance")
	f.StringVar(&req.SearchType, "search-type", "", "Search type: web, discover, googleNews, news, image, video")
	f.StringVar(&req.Aggregation, "aggregation", "", "Aggregation: auto, byPage, byProperty, byNewsShowcasePanel")
	f.StringVar(&req.DataState, "data-state", "", "Data state: final or all")
	f.IntVar(&req.Limit, "limit", 0, "Maximum number of rows, 0 for all available data")

	return cmd
}
