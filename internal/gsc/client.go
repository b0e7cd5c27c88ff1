package gsc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const maxErrorBody = 32 * 1024

// Client talks to the Search Console REST API. Authorization is handled by the
// wrapped *http.Client, normally an oauth2 client bound to a credential.
type Client struct {
	http           *http.Client
	apiBase        string
	inspectionBase string
}

func NewClient(httpClient *http.Client, apiBase, inspectionBase string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:           httpClient,
		apiBase:        strings.TrimRight(apiBase, "/"),
		inspectionBase: strings.TrimRight(inspectionBase, "/"),
	}
}

type Site struct {
	SiteURL         string `json:"siteUrl"`
	PermissionLevel string `json:"permissionLevel"`
}

type sitesListResponse struct {
	SiteEntry []Site `json:"siteEntry"`
}

// QueryBody is the searchAnalytics.query request body.
type QueryBody struct {
	StartDate       string   `json:"startDate"`
	EndDate         string   `json:"endDate"`
	Dimensions      []string `json:"dimensions,omitempty"`
	Type            string   `json:"type,omitempty"`
	AggregationType string   `json:"aggregationType,omitempty"`
	DataState       string   `json:"dataState,omitempty"`
	RowLimit        int      `json:"rowLimit"`
	StartRow        int      `json:"startRow"`
}

type QueryRow struct {
	Keys        []string `json:"keys"`
	Clicks      float64  `json:"clicks"`
	Impressions float64  `json:"impressions"`
	CTR         float64  `json:"ctr"`
	Position    float64  `json:"position"`
}

type QueryResponse struct {
	Rows                    []QueryRow `json:"rows"`
	ResponseAggregationType string     `json:"responseAggregationType"`
}

type inspectRequest struct {
	InspectionURL string `json:"inspectionUrl"`
	SiteURL       string `json:"siteUrl"`
}

func (c *Client) ListSites(ctx context.Context) ([]Site, error) {
	var out sitesListResponse
	if err := c.do(ctx, "sites.list", http.MethodGet, c.apiBase+"/webmasters/v3/sites", nil, &out); err != nil {
		return nil, err
	}
	return out.SiteEntry, nil
}

func (c *Client) QuerySearchAnalytics(ctx context.Context, siteURL string, body QueryBody) (QueryResponse, error) {
	endpoint := c.apiBase + "/webmasters/v3/sites/" + url.PathEscape(siteURL) + "/searchAnalytics/query"

	var out QueryResponse
	if err := c.do(ctx, "searchanalytics.query", http.MethodPost, endpoint, body, &out); err != nil {
		return QueryResponse{}, err
	}
	return out, nil
}

// InspectURL returns the raw urlInspection.index.inspect response body.
func (c *Client) InspectURL(ctx context.Context, siteURL, inspectionURL string) ([]byte, error) {
	var out json.RawMessage
	err := c.do(ctx, "urlinspection.inspect", http.MethodPost, c.inspectionBase+"/v1/urlInspection/index:inspect",
		inspectRequest{InspectionURL: inspectionURL, SiteURL: siteURL}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, name, method, endpoint string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("gsc %s: encode request: %w", name, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("gsc %s: %w", name, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	apiRequestDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		apiRequestsTotal.WithLabelValues(name, "error").Inc()
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return fmt.Errorf("gsc %s: %w: token refresh rejected: %v", name, ErrAuthentication, err)
		}
		return fmt.Errorf("gsc %s: %w", name, err)
	}
	defer resp.Body.Close()
	apiRequestsTotal.WithLabelValues(name, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Endpoint: name, Status: resp.StatusCode, Message: errorMessage(raw)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gsc %s: decode response: %w", name, err)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var env struct {
		Error struct {
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err == nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
