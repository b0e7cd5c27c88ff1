// Package inspection inspects a batch of URLs one by one and maps each
// inspection result into a table row.
package inspection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"search-analytics-node/config"
	"search-analytics-node/internal/gsc"
	"search-analytics-node/internal/table"
)

// MaxURLs is the vendor's daily inspection quota per property.
const MaxURLs = 2000

type Modules struct {
	IndexStatus     bool `json:"index_status"`
	MobileUsability bool `json:"mobile_usability"`
	AMP             bool `json:"amp"`
	RichResults     bool `json:"rich_results"`
}

type Request struct {
	Site string   `json:"site"`
	URLs []string `json:"urls"`

	// Modules defaults to Index Status only.
	Modules *Modules `json:"modules,omitempty"`
	JSON    bool     `json:"json"`
	WebLink bool     `json:"web_link"`
}

func (r Request) modules() Modules {
	if r.Modules == nil {
		return Modules{IndexStatus: true}
	}
	return *r.Modules
}

func ParseRequest(raw []byte) (Request, error) {
	var req Request
	if len(bytes.TrimSpace(raw)) == 0 {
		return req, gsc.Requestf("missing inspection parameters")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return req, gsc.Requestf("decode inspection parameters: %v", err)
	}
	return req, nil
}

// Validate checks batch-level constraints. Individual URLs are checked per row.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Site) == "" {
		return gsc.Requestf("site is required")
	}
	if len(r.URLs) > MaxURLs {
		return gsc.Requestf("too many URLs to inspect: Google allows up to %d URLs per property each day, got %d", MaxURLs, len(r.URLs))
	}
	return nil
}

type Inspector interface {
	InspectURL(ctx context.Context, siteURL, inspectionURL string) ([]byte, error)
}

type Service struct {
	logger *zap.SugaredLogger
	limit  rate.Limit
	burst  int
}

func NewService(cfg *config.Config, logger *zap.SugaredLogger) *Service {
	s := &Service{logger: logger, limit: rate.Inf, burst: 1}
	if cfg != nil {
		if cfg.Inspection.RatePerSecond > 0 {
			s.limit = rate.Limit(cfg.Inspection.RatePerSecond)
		}
		if cfg.Inspection.Burst > 0 {
			s.burst = cfg.Inspection.Burst
		}
	}
	return s
}

type Result struct {
	Table    *table.Table
	Warnings []string
	Failed   int
}

// Run inspects every URL in order and returns exactly one row per input URL.
// A failed inspection becomes an error row; only cancellation stops the batch.
func (s *Service) Run(ctx context.Context, api Inspector, req Request, progress func(done, total int)) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	limiter := rate.NewLimiter(s.limit, s.burst)
	out := &Result{Table: table.New(req.Columns()...)}
	total := len(req.URLs)

	for i, raw := range req.URLs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if progress != nil {
			progress(i, total)
		}

		target := strings.TrimSpace(raw)
		if err := checkURL(target); err != nil {
			out.Table.Append(errorRow(raw, req, err))
			out.Failed++
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		row, err := s.inspectOne(ctx, api, req, target)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warnw("inspection_url_failed", "site", req.Site, "url", target, "err", err)
			out.Table.Append(errorRow(raw, req, err))
			out.Failed++
			continue
		}
		out.Table.Append(row)
	}

	if progress != nil {
		progress(total, total)
	}
	if out.Failed > 0 {
		out.Warnings = append(out.Warnings, fmt.Sprintf("%d of %d URLs could not be inspected, see the Error column.", out.Failed, total))
	}

	s.logger.Infow("inspection_completed", "site", req.Site, "urls", total, "failed", out.Failed)
	return out, nil
}

func (s *Service) inspectOne(ctx context.Context, api Inspector, req Request, target string) (table.Row, error) {
	raw, err := api.InspectURL(ctx, req.Site, target)
	if err != nil {
		return nil, err
	}
	return buildRow(target, raw, req)
}

func checkURL(s string) error {
	if s == "" {
		return fmt.Errorf("empty URL")
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("not an absolute http(s) URL: %q", s)
	}
	return nil
}
