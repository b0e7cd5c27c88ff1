// Package properties lists the account's Search Console properties.
package properties

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"search-analytics-node/internal/gsc"
	"search-analytics-node/internal/table"
)

const domainPrefix = "sc-domain:"

const (
	WarnNoProperties       = "The selected Google account does not have any Search Console properties."
	WarnNoVerifiedProperty = "The selected Google account does not have any verified Search Console properties. Verify your property and then authenticate again."
)

var Columns = []string{"Site URL", "Property Type", "Permission Level", "Verified"}

type TypeFilter string

const (
	AnyType   TypeFilter = "all"
	URLPrefix TypeFilter = "urlprefix"
	Domain    TypeFilter = "domain"
)

type VerificationFilter string

const (
	AnyVerification VerificationFilter = "all"
	VerifiedOnly    VerificationFilter = "verified"
	UnverifiedOnly  VerificationFilter = "unverified"
)

type Request struct {
	Type         TypeFilter         `json:"type"`
	Verification VerificationFilter `json:"verification"`
}

func ParseRequest(raw []byte) (Request, error) {
	var req Request
	if len(bytes.TrimSpace(raw)) > 0 {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return req, gsc.Requestf("decode property parameters: %v", err)
		}
	}
	return req, req.Validate()
}

func (r Request) Validate() error {
	switch r.Type {
	case "", AnyType, URLPrefix, Domain:
	default:
		return gsc.Requestf("type %q must be one of: all urlprefix domain", r.Type)
	}
	switch r.Verification {
	case "", AnyVerification, VerifiedOnly, UnverifiedOnly:
	default:
		return gsc.Requestf("verification %q must be one of: all verified unverified", r.Verification)
	}
	return nil
}

func IsDomain(s gsc.Site) bool {
	return strings.HasPrefix(s.SiteURL, domainPrefix)
}

func IsVerified(s gsc.Site) bool {
	return !strings.Contains(strings.ToLower(s.PermissionLevel), "unverified")
}

// Verified returns the URLs of verified sites plus the warnings the
// Authenticator reports for an empty or fully unverified account.
func Verified(sites []gsc.Site) ([]string, []string) {
	var urls, warnings []string
	for _, s := range sites {
		if IsVerified(s) {
			urls = append(urls, s.SiteURL)
		}
	}
	switch {
	case len(sites) == 0:
		warnings = append(warnings, WarnNoProperties)
	case len(urls) == 0:
		warnings = append(warnings, WarnNoVerifiedProperty)
	}
	return urls, warnings
}

func (r Request) keep(s gsc.Site) bool {
	domain, verified := IsDomain(s), IsVerified(s)
	switch {
	case r.Type == URLPrefix && domain, r.Type == Domain && !domain:
		return false
	case r.Verification == VerifiedOnly && !verified, r.Verification == UnverifiedOnly && verified:
		return false
	}
	return true
}

type SiteLister interface {
	ListSites(ctx context.Context) ([]gsc.Site, error)
}

// Cache stores site lists per access token.
type Cache interface {
	Get(ctx context.Context, token string) ([]gsc.Site, bool)
	Set(ctx context.Context, token string, sites []gsc.Site)
}

type Service struct {
	logger *zap.SugaredLogger
	cache  Cache
}

func NewService(logger *zap.SugaredLogger, cache Cache) *Service {
	return &Service{logger: logger, cache: cache}
}

type Result struct {
	Table    *table.Table
	Warnings []string
}

// ListSites returns the account's sites, served from the cache when token is
// set and a fresh entry exists.
func (s *Service) ListSites(ctx context.Context, api SiteLister, token string) ([]gsc.Site, error) {
	if s.cache != nil && token != "" {
		if sites, ok := s.cache.Get(ctx, token); ok {
			s.logger.Debugw("properties_cache_hit", "sites", len(sites))
			return sites, nil
		}
	}

	sites, err := api.ListSites(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil && token != "" {
		s.cache.Set(ctx, token, sites)
	}
	return sites, nil
}

func (s *Service) Run(ctx context.Context, api SiteLister, token string, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sites, err := s.ListSites(ctx, api, token)
	if err != nil {
		return nil, err
	}

	out := &Result{Table: table.New(Columns...)}
	if len(sites) == 0 {
		out.Warnings = append(out.Warnings, WarnNoProperties)
		return out, nil
	}

	for _, site := range sites {
		if !req.keep(site) {
			continue
		}
		propertyType := "URL-Prefix"
		if IsDomain(site) {
			propertyType = "Domain"
		}
		out.Table.Append(table.Row{
			"Site URL":         site.SiteURL,
			"Property Type":    propertyType,
			"Permission Level": site.PermissionLevel,
			"Verified":         IsVerified(site),
		})
	}

	s.logger.Infow("properties_listed", "sites", len(sites), "kept", out.Table.Len())
	return out, nil
}
