// Package query runs paginated search analytics queries and assembles the
// result table.
package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"search-analytics-node/config"
	"search-analytics-node/internal/gsc"
	"search-analytics-node/internal/table"
)

const (
	// MaxPageSize is the largest rowLimit the API accepts per request.
	MaxPageSize = 25000
	// FreeRowCap bounds "all data" and any larger limit without a license.
	FreeRowCap = 100000

	maxPageDelay  = time.Second
	pageDelayStep = 100 * time.Millisecond
)

var MetricColumns = []string{"clicks", "impressions", "ctr", "position"}

type Querier interface {
	QuerySearchAnalytics(ctx context.Context, siteURL string, body gsc.QueryBody) (gsc.QueryResponse, error)
}

type Service struct {
	logger     *zap.SugaredLogger
	pageSize   int
	maxRetries int
	retryBase  time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewService(cfg *config.Config, logger *zap.SugaredLogger) *Service {
	s := &Service{
		logger:     logger,
		pageSize:   MaxPageSize,
		maxRetries: 3,
		retryBase:  500 * time.Millisecond,
		now:        time.Now,
		sleep:      sleepContext,
	}
	if cfg != nil {
		if cfg.Query.PageSize > 0 && cfg.Query.PageSize <= MaxPageSize {
			s.pageSize = cfg.Query.PageSize
		}
		if cfg.Query.MaxRetries >= 0 {
			s.maxRetries = cfg.Query.MaxRetries
		}
		if cfg.Query.RetryBaseDelay > 0 {
			s.retryBase = cfg.Query.RetryBaseDelay
		}
	}
	return s
}

type RunOptions struct {
	IsPro bool

	// Progress is called before each page with the rows fetched so far and the
	// effective limit (0 when unbounded).
	Progress func(fetched, limit int)
}

type Result struct {
	Table    *table.Table
	Warnings []string
	Pages    int
}

// Run validates req and pages through the API until the limit is reached or
// a short page signals the end of the data. Pages are fetched sequentially;
// transient page failures are retried with exponential backoff and the whole
// run aborts once retries are exhausted.
func (s *Service) Run(ctx context.Context, api Querier, req Request, opts RunOptions) (*Result, error) {
	start, end, err := req.Resolve(s.now())
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	capped := false
	if !opts.IsPro && (limit == 0 || limit > FreeRowCap) {
		limit = FreeRowCap
		capped = true
	}

	columns := append(append([]string{}, req.Dimensions...), MetricColumns...)
	out := &Result{Table: table.New(columns...)}

	body := gsc.QueryBody{
		StartDate:       start.Format(dateLayout),
		EndDate:         end.Format(dateLayout),
		Dimensions:      req.Dimensions,
		Type:            req.searchType(),
		AggregationType: req.aggregation(),
		DataState:       req.dataState(),
	}

	seen := make(map[string]struct{})
	fetched, duplicates := 0, 0

	for page := 0; ; page++ {
		body.RowLimit = s.pageSize
		if limit > 0 && limit-fetched < body.RowLimit {
			body.RowLimit = limit - fetched
		}

		if page > 0 {
			if err := s.sleep(ctx, pageDelay(page)); err != nil {
				return nil, err
			}
		}
		if opts.Progress != nil {
			opts.Progress(fetched, limit)
		}

		resp, err := s.fetchPage(ctx, api, req.Site, body)
		if err != nil {
			s.logger.Errorw("query_page_failed",
				"site", req.Site,
				"page", page,
				"start_row", body.StartRow,
				"err", err,
			)
			return nil, err
		}
		out.Pages++

		for _, row := range resp.Rows {
			if limit > 0 && fetched >= limit {
				break
			}
			key := strings.Join(row.Keys, "\x1f")
			if _, dup := seen[key]; dup {
				duplicates++
				continue
			}
			seen[key] = struct{}{}
			out.Table.Append(toRow(req.Dimensions, row))
			fetched++
		}

		s.logger.Debugw("query_page_fetched",
			"site", req.Site,
			"page", page,
			"start_row", body.StartRow,
			"row_limit", body.RowLimit,
			"returned", len(resp.Rows),
			"fetched", fetched,
		)

		body.StartRow += len(resp.Rows)
		if len(resp.Rows) < body.RowLimit || (limit > 0 && fetched >= limit) {
			break
		}
	}

	if duplicates > 0 {
		s.logger.Warnw("query_duplicate_rows_dropped", "site", req.Site, "count", duplicates)
	}
	if capped && fetched >= limit {
		out.Warnings = append(out.Warnings, fmt.Sprintf(
			"Row limit of %d reached. Configure a valid license key to retrieve more rows.", FreeRowCap))
	}

	s.logger.Infow("query_completed",
		"site", req.Site,
		"start_date", body.StartDate,
		"end_date", body.EndDate,
		"rows", fetched,
		"pages", out.Pages,
	)
	return out, nil
}

func (s *Service) fetchPage(ctx context.Context, api Querier, site string, body gsc.QueryBody) (gsc.QueryResponse, error) {
	var resp gsc.QueryResponse
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(s.maxRetries), retry.NewExponential(s.retryBase))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		r, err := api.QuerySearchAnalytics(ctx, site, body)
		if err != nil {
			if gsc.IsTransient(err) {
				s.logger.Warnw("query_page_retry",
					"site", site,
					"start_row", body.StartRow,
					"attempt", attempt,
					"err", err,
				)
				return retry.RetryableError(err)
			}
			return err
		}
		resp = r
		return nil
	})
	return resp, err
}

func toRow(dims []string, r gsc.QueryRow) table.Row {
	row := make(table.Row, len(dims)+len(MetricColumns))
	for i, d := range dims {
		var v any
		if i < len(r.Keys) {
			v = r.Keys[i]
		}
		row[d] = v
	}
	row["clicks"] = r.Clicks
	row["impressions"] = r.Impressions
	row["ctr"] = r.CTR
	row["position"] = r.Position
	return row
}

func pageDelay(page int) time.Duration {
	d := time.Duration(page) * pageDelayStep
	if d > maxPageDelay {
		return maxPageDelay
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
