package query

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"search-analytics-node/internal/gsc"
)

type fakeQuerier struct {
	calls []gsc.QueryBody
	total int
	errs  []error
	dup   bool
}

func (f *fakeQuerier) QuerySearchAnalytics(ctx context.Context, siteURL string, body gsc.QueryBody) (gsc.QueryResponse, error) {
	f.calls = append(f.calls, body)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return gsc.QueryResponse{}, err
		}
	}

	var resp gsc.QueryResponse
	for i := body.StartRow; i < f.total && i < body.StartRow+body.RowLimit; i++ {
		key := i
		if f.dup && i%2 == 1 {
			key = i - 1
		}
		resp.Rows = append(resp.Rows, gsc.QueryRow{
			Keys:   []string{fmt.Sprintf("https://example.com/p%d", key), fmt.Sprintf("q%d", key)},
			Clicks: float64(i),
		})
	}
	return resp, nil
}

func newTestService(pageSize int) (*Service, *[]time.Duration) {
	var slept []time.Duration
	s := &Service{
		logger:     zap.NewNop().Sugar(),
		pageSize:   pageSize,
		maxRetries: 2,
		retryBase:  time.Millisecond,
		now:        func() time.Time { return time.Date(2024, 3, 10, 15, 0, 0, 0, time.UTC) },
		sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return ctx.Err()
		},
	}
	return s, &slept
}

func baseRequest() Request {
	return Request{
		Site:       "example.com",
		StartDate:  "2024-01-01",
		EndDate:    "2024-01-31",
		Dimensions: []string{"page", "query"},
		Limit:      1000,
	}
}

func TestRun_RespectsLimitAndUniqueKeys(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(300)
	api := &fakeQuerier{total: 5000}

	res, err := s.Run(context.Background(), api, baseRequest(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1000, res.Table.Len())
	require.Equal(t, []string{"page", "query", "clicks", "impressions", "ctr", "position"}, res.Table.Columns)

	seen := map[string]bool{}
	for _, r := range res.Table.Rows {
		k := r["page"].(string) + "|" + r["query"].(string)
		require.False(t, seen[k])
		seen[k] = true
	}

	require.Len(t, api.calls, 4)
	require.Equal(t, 100, api.calls[3].RowLimit)
	require.Equal(t, 900, api.calls[3].StartRow)
	require.Equal(t, "2024-01-01", api.calls[0].StartDate)
	require.Equal(t, "web", api.calls[0].Type)
	require.Equal(t, "final", api.calls[0].DataState)
	require.Equal(t, "auto", api.calls[0].AggregationType)
}

func TestRun_StopsOnShortPage(t *testing.T) {
	t.Parallel()

	s, slept := newTestService(100)
	api := &fakeQuerier{total: 250}

	req := baseRequest()
	req.Limit = 0

	var progress [][2]int
	res, err := s.Run(context.Background(), api, req, RunOptions{
		Progress: func(fetched, limit int) { progress = append(progress, [2]int{fetched, limit}) },
	})
	require.NoError(t, err)
	require.Equal(t, 250, res.Table.Len())
	require.Len(t, api.calls, 3)
	require.Empty(t, res.Warnings)
	require.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *slept)
	require.Equal(t, [][2]int{{0, FreeRowCap}, {100, FreeRowCap}, {200, FreeRowCap}}, progress)
}

func TestRun_DropsDuplicateKeys(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(100)
	api := &fakeQuerier{total: 10, dup: true}

	res, err := s.Run(context.Background(), api, baseRequest(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 5, res.Table.Len())
	require.Equal(t, 0.0, res.Table.Rows[0]["clicks"])
	require.Equal(t, 2.0, res.Table.Rows[1]["clicks"])
}

func TestRun_NonProCapWarns(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(MaxPageSize)
	api := &fakeQuerier{total: FreeRowCap + 10}

	req := baseRequest()
	req.Limit = 0

	res, err := s.Run(context.Background(), api, req, RunOptions{})
	require.NoError(t, err)
	require.Equal(t, FreeRowCap, res.Table.Len())
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], "license key")
}

func TestRun_ProIsUnbounded(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(MaxPageSize)
	api := &fakeQuerier{total: FreeRowCap + 10}

	req := baseRequest()
	req.Limit = 0

	res, err := s.Run(context.Background(), api, req, RunOptions{IsPro: true})
	require.NoError(t, err)
	require.Equal(t, FreeRowCap+10, res.Table.Len())
	require.Empty(t, res.Warnings)
}

func TestRun_EndBeforeStartMakesNoCall(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(100)
	api := &fakeQuerier{total: 10}

	req := baseRequest()
	req.StartDate, req.EndDate = "2024-02-01", "2024-01-01"

	_, err := s.Run(context.Background(), api, req, RunOptions{})
	require.ErrorIs(t, err, gsc.ErrRequest)
	require.Empty(t, api.calls)
}

func TestRun_RetriesTransientFailures(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(100)
	api := &fakeQuerier{
		total: 10,
		errs:  []error{&gsc.APIError{Endpoint: "q", Status: http.StatusBadGateway}, fmt.Errorf("connection reset")},
	}

	res, err := s.Run(context.Background(), api, baseRequest(), RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 10, res.Table.Len())
	require.Len(t, api.calls, 3)
}

func TestRun_AbortsWhenRetriesExhausted(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(100)
	fail := &gsc.APIError{Endpoint: "q", Status: http.StatusServiceUnavailable}
	api := &fakeQuerier{total: 10, errs: []error{fail, fail, fail, fail}}

	_, err := s.Run(context.Background(), api, baseRequest(), RunOptions{})
	require.Error(t, err)
	require.Len(t, api.calls, 3)

	var apiErr *gsc.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusServiceUnavailable, apiErr.Status)
}

func TestRun_QuotaIsNotRetried(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(100)
	api := &fakeQuerier{total: 10, errs: []error{&gsc.APIError{Endpoint: "q", Status: http.StatusTooManyRequests}}}

	_, err := s.Run(context.Background(), api, baseRequest(), RunOptions{})
	require.ErrorIs(t, err, gsc.ErrQuota)
	require.Len(t, api.calls, 1)
}

func TestRun_CanceledBetweenPages(t *testing.T) {
	t.Parallel()

	s, _ := newTestService(10)
	ctx, cancel := context.WithCancel(context.Background())
	api := &fakeQuerier{total: 100}

	s.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	_, err := s.Run(ctx, api, baseRequest(), RunOptions{})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, api.calls, 1)
}

func TestPageDelay(t *testing.T) {
	t.Parallel()

	require.Equal(t, 100*time.Millisecond, pageDelay(1))
	require.Equal(t, 500*time.Millisecond, pageDelay(5))
	require.Equal(t, time.Second, pageDelay(10))
	require.Equal(t, time.Second, pageDelay(42))
}
