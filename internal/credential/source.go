package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"search-analytics-node/internal/gsc"
)

// Source is an oauth2.TokenSource bound to a credential. It refreshes lazily
// when the access token has expired and remembers the latest token so callers
// can write it back to the workflow store.
type Source struct {
	cred *Credential
	base oauth2.TokenSource
	now  func() time.Time

	mu     sync.Mutex
	latest *oauth2.Token
}

func NewSource(ctx context.Context, cfg *oauth2.Config, cred *Credential) *Source {
	s := &Source{cred: cred, now: time.Now}
	if cred.RefreshToken != "" {
		s.base = oauth2.ReuseTokenSource(cred.Token(), cfg.TokenSource(ctx, cred.Token()))
	}
	return s
}

func (s *Source) Token() (*oauth2.Token, error) {
	if s.base == nil {
		if err := s.cred.Check(s.now()); err != nil {
			return nil, err
		}
		return s.cred.Token(), nil
	}

	tok, err := s.base.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			return nil, fmt.Errorf("%w: token refresh rejected: %v", gsc.ErrAuthentication, err)
		}
		return nil, err
	}

	s.mu.Lock()
	s.latest = tok
	s.mu.Unlock()
	return tok, nil
}

// Latest returns the last token handed out, or nil.
func (s *Source) Latest() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

// HTTPClient returns a client that authorizes every request with the source.
func (s *Source) HTTPClient(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, s)
}
