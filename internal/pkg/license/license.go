package license

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultCheckURL = "https://keycheck.searchanalyticsnode.com/"

const defaultTimeout = 10 * time.Second

var newHTTPClient = func(timeout time.Duration) *http.Client {
	return &http.Client{Timeout: timeout}
}

// Check asks the key-check endpoint whether key is valid. It answers
// {"ok":true} for a valid key.
func Check(ctx context.Context, checkURL, key string, timeout time.Duration) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("missing license key")
	}
	if strings.TrimSpace(checkURL) == "" {
		checkURL = DefaultCheckURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	u, err := url.Parse(checkURL)
	if err != nil {
		return fmt.Errorf("invalid check url: %w", err)
	}
	q := u.Query()
	q.Set("key", key)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}

	resp, err := newHTTPClient(timeout).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s from key check", resp.Status)
	}

	var body struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1024*32)).Decode(&body); err != nil {
		return fmt.Errorf("decode key check response: %w", err)
	}
	if !body.OK {
		return fmt.Errorf("license key rejected")
	}
	return nil
}

// IsValid reports whether key unlocks pro limits. Any failure counts as
// "not pro".
func IsValid(ctx context.Context, checkURL, key string) bool {
	return Check(ctx, checkURL, key, defaultTimeout) == nil
}
