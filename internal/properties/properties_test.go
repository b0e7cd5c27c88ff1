package properties

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"search-analytics-node/internal/gsc"
)

var testSites = []gsc.Site{
	{SiteURL: "sc-domain:example.com", PermissionLevel: "siteOwner"},
	{SiteURL: "https://example.com/", PermissionLevel: "siteFullUser"},
	{SiteURL: "https://other.example/", PermissionLevel: "siteUnverifiedUser"},
}

type fakeLister struct {
	sites []gsc.Site
	calls int
}

func (f *fakeLister) ListSites(ctx context.Context) ([]gsc.Site, error) {
	f.calls++
	return f.sites, nil
}

type mapCache map[string][]gsc.Site

func (m mapCache) Get(ctx context.Context, token string) ([]gsc.Site, bool) {
	s, ok := m[token]
	return s, ok
}

func (m mapCache) Set(ctx context.Context, token string, sites []gsc.Site) { m[token] = sites }

func TestRun_Filters(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		req  Request
		want []string
	}{
		{name: "all", req: Request{}, want: []string{"sc-domain:example.com", "https://example.com/", "https://other.example/"}},
		{name: "domain", req: Request{Type: Domain}, want: []string{"sc-domain:example.com"}},
		{name: "urlprefix verified", req: Request{Type: URLPrefix, Verification: VerifiedOnly}, want: []string{"https://example.com/"}},
		{name: "unverified", req: Request{Verification: UnverifiedOnly}, want: []string{"https://other.example/"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewService(zap.NewNop().Sugar(), nil)
			res, err := s.Run(context.Background(), &fakeLister{sites: testSites}, "", tc.req)
			require.NoError(t, err)

			var got []string
			for _, r := range res.Table.Rows {
				got = append(got, r["Site URL"].(string))
			}
			require.Equal(t, tc.want, got)
		})
	}
}

func TestRun_RowShape(t *testing.T) {
	t.Parallel()

	s := NewService(zap.NewNop().Sugar(), nil)
	res, err := s.Run(context.Background(), &fakeLister{sites: testSites}, "", Request{})
	require.NoError(t, err)
	require.Equal(t, Columns, res.Table.Columns)
	require.Equal(t, "Domain", res.Table.Rows[0]["Property Type"])
	require.Equal(t, "URL-Prefix", res.Table.Rows[1]["Property Type"])
	require.Equal(t, false, res.Table.Rows[2]["Verified"])
}

func TestRun_NoSitesWarns(t *testing.T) {
	t.Parallel()

	s := NewService(zap.NewNop().Sugar(), nil)
	res, err := s.Run(context.Background(), &fakeLister{}, "", Request{})
	require.NoError(t, err)
	require.Equal(t, 0, res.Table.Len())
	require.Equal(t, []string{WarnNoProperties}, res.Warnings)
}

func TestRun_InvalidFilter(t *testing.T) {
	t.Parallel()

	s := NewService(zap.NewNop().Sugar(), nil)
	api := &fakeLister{sites: testSites}
	_, err := s.Run(context.Background(), api, "", Request{Type: "amp"})
	require.ErrorIs(t, err, gsc.ErrRequest)
	require.Zero(t, api.calls)
}

func TestListSites_UsesCache(t *testing.T) {
	t.Parallel()

	cache := mapCache{}
	s := NewService(zap.NewNop().Sugar(), cache)
	api := &fakeLister{sites: testSites}

	for i := 0; i < 3; i++ {
		sites, err := s.ListSites(context.Background(), api, "token")
		require.NoError(t, err)
		require.Len(t, sites, 3)
	}
	require.Equal(t, 1, api.calls)

	_, err := s.ListSites(context.Background(), api, "")
	require.NoError(t, err)
	require.Equal(t, 2, api.calls)
}

func TestVerified(t *testing.T) {
	t.Parallel()

	urls, warnings := Verified(testSites)
	require.Equal(t, []string{"sc-domain:example.com", "https://example.com/"}, urls)
	require.Empty(t, warnings)

	_, warnings = Verified(nil)
	require.Equal(t, []string{WarnNoProperties}, warnings)

	_, warnings = Verified(testSites[2:])
	require.Equal(t, []string{WarnNoVerifiedProperty}, warnings)
}

func TestParseRequest(t *testing.T) {
	t.Parallel()

	req, err := ParseRequest(nil)
	require.NoError(t, err)
	require.Equal(t, Request{}, req)

	req, err = ParseRequest([]byte(`{"type":"domain","verification":"verified"}`))
	require.NoError(t, err)
	require.Equal(t, Domain, req.Type)

	_, err = ParseRequest([]byte(`{"verification":"maybe"}`))
	require.ErrorIs(t, err, gsc.ErrRequest)
}
