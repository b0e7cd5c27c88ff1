// Package authenticator runs the OAuth2 consent flow on a loopback redirect
// and stores the resulting credential for a workflow.
package authenticator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"search-analytics-node/config"
	"search-analytics-node/internal/credential"
	"search-analytics-node/internal/gsc"
	"search-analytics-node/internal/pkg/license"
	"search-analytics-node/internal/properties"
	"search-analytics-node/internal/store"
)

const successPage = `Authorized successfully.

Revoke access of this application to your Google Account anytime at https://myaccount.google.com/connections

Heads up! Your authentication details are saved in your workflow. Anyone with access to the workflow store can use them to run queries on your Google Search Console properties.

You can close this window now.`

const (
	WarnLicenseRejected = "The license key could not be verified. Free row limits apply."
	// WarnExpirationNeedsReset is returned when a reused credential has a
	// different lifetime than the one requested.
	WarnExpirationNeedsReset = "The stored credential keeps its current expiration. Authenticate again with --reset to change it."
)

type CredentialStore interface {
	LoadCredential(ctx context.Context, workflow string) (*credential.Credential, error)
	SaveCredential(ctx context.Context, workflow string, c *credential.Credential) error
	DeleteCredential(ctx context.Context, workflow string) error
}

type Service struct {
	cfg    *config.Config
	store  CredentialStore
	props  *properties.Service
	logger *zap.SugaredLogger

	out          io.Writer
	open         func(url string) error
	listen       func() (net.Listener, error)
	checkLicense func(ctx context.Context, key string) bool
	now          func() time.Time
}

type NewServiceParams struct {
	fx.In

	Cfg    *config.Config
	Store  *store.Store
	Props  *properties.Service
	Logger *zap.SugaredLogger
}

func NewService(p NewServiceParams) *Service {
	s := &Service{
		cfg:    p.Cfg,
		store:  p.Store,
		props:  p.Props,
		logger: p.Logger,
		out:    os.Stderr,
		open:   openBrowser,
		listen: listenLoopback,
		now:    time.Now,
	}
	s.checkLicense = func(ctx context.Context, key string) bool {
		return license.IsValid(ctx, s.cfg.License.CheckURL, key)
	}
	return s
}

type Options struct {
	Workflow string
	Reset    bool

	// Expiration applies to a new credential; empty means one hour. A
	// reused credential keeps its own lifetime.
	Expiration credential.Expiration
	// LicenseKey is re-checked on a reused credential too.
	LicenseKey string

	// NoBrowser only prints the consent URL.
	NoBrowser bool
}

type Result struct {
	Credential *credential.Credential
	Reused     bool
	Warnings   []string
}

// Authenticate returns the workflow's credential. A stored credential that is
// still usable is reused unless Reset is set; otherwise the consent flow runs
// and the new credential replaces the stored one.
func (s *Service) Authenticate(ctx context.Context, opts Options) (*Result, error) {
	if opts.Workflow == "" {
		return nil, gsc.Requestf("missing workflow")
	}

	if opts.Reset {
		if err := s.store.DeleteCredential(ctx, opts.Workflow); err != nil {
			return nil, err
		}
	} else {
		existing, err := s.store.LoadCredential(ctx, opts.Workflow)
		switch {
		case err == nil && existing.Usable(s.now()):
			return s.reuse(ctx, opts, existing)
		case err == nil, errors.Is(err, store.ErrNotFound), errors.Is(err, gsc.ErrAuthentication):
		default:
			return nil, err
		}
	}

	tok, oauthCfg, err := s.consent(ctx, opts.NoBrowser)
	if err != nil {
		return nil, err
	}

	cred := credential.FromToken(tok, oauthCfg.Scopes)
	res := &Result{Credential: cred}

	api := gsc.NewClient(oauthCfg.Client(ctx, tok), s.cfg.Google.APIBaseURL, s.cfg.Google.InspectionBaseURL)
	sites, err := s.props.ListSites(ctx, api, tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	urls, warnings := properties.Verified(sites)
	cred.Properties = urls
	res.Warnings = append(res.Warnings, warnings...)

	key := opts.LicenseKey
	if key == "" {
		key = s.cfg.License.Key
	}
	if key != "" {
		res.Warnings = append(res.Warnings, s.applyLicense(ctx, cred, key)...)
	}

	cred.ApplyExpiration(opts.Expiration)
	if err := s.store.SaveCredential(ctx, opts.Workflow, cred); err != nil {
		return nil, err
	}

	s.logger.Infow("authenticator_completed",
		"workflow", opts.Workflow,
		"properties", len(urls),
		"is_pro", cred.IsPro,
		"expiration", opts.Expiration,
	)
	return res, nil
}

// reuse keeps a usable stored credential. An explicit license key is checked
// again and saved; a requested expiration that differs from the stored one
// only produces a warning.
func (s *Service) reuse(ctx context.Context, opts Options, cred *credential.Credential) (*Result, error) {
	res := &Result{Credential: cred, Reused: true}

	if opts.Expiration != "" && (opts.Expiration == credential.ExpireNever) != (cred.RefreshToken != "") {
		res.Warnings = append(res.Warnings, WarnExpirationNeedsReset)
	}

	if key := strings.TrimSpace(opts.LicenseKey); key != "" {
		res.Warnings = append(res.Warnings, s.applyLicense(ctx, cred, key)...)
		if err := s.store.SaveCredential(ctx, opts.Workflow, cred); err != nil {
			return nil, err
		}
	}

	s.logger.Infow("authenticator_reused_credential",
		"workflow", opts.Workflow,
		"is_pro", cred.IsPro,
		"warnings", len(res.Warnings),
	)
	return res, nil
}

func (s *Service) applyLicense(ctx context.Context, cred *credential.Credential, key string) []string {
	cred.IsPro = s.checkLicense(ctx, key)
	if !cred.IsPro {
		return []string{WarnLicenseRejected}
	}
	return nil
}

type callbackResult struct {
	tok *oauth2.Token
	err error
}

func (s *Service) consent(ctx context.Context, noBrowser bool) (*oauth2.Token, *oauth2.Config, error) {
	ln, err := s.listen()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", gsc.ErrAuthentication, err)
	}

	redirectURL := "http://" + ln.Addr().String() + "/"
	oauthCfg := credential.NewOAuthConfig(s.cfg.Google, redirectURL)
	state := uuid.NewString()

	results := make(chan callbackResult, 1)
	var once sync.Once
	deliver := func(r callbackResult) {
		once.Do(func() { results <- r })
	}

	mux := chi.NewRouter()
	mux.Get("/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		// Reloads and prefetches carry neither code nor error; keep waiting.
		if q.Get("code") == "" && q.Get("error") == "" {
			http.Error(w, "Waiting for authorization. Approve access in the consent screen.", http.StatusBadRequest)
			return
		}
		switch {
		case q.Get("state") != state:
			http.Error(w, "Authorization failed: state mismatch.", http.StatusBadRequest)
			deliver(callbackResult{err: fmt.Errorf("%w: oauth state mismatch", gsc.ErrAuthentication)})
			return
		case q.Get("error") != "":
			http.Error(w, "Authorization was denied. You can close this window now.", http.StatusForbidden)
			deliver(callbackResult{err: fmt.Errorf("%w: consent denied: %s", gsc.ErrAuthentication, q.Get("error"))})
			return
		}

		tok, err := oauthCfg.Exchange(ctx, q.Get("code"))
		if err != nil {
			http.Error(w, "Authorization failed: the token exchange was rejected.", http.StatusBadGateway)
			deliver(callbackResult{err: fmt.Errorf("%w: token exchange rejected: %v", gsc.ErrAuthentication, err)})
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.WriteString(w, successPage)
		deliver(callbackResult{tok: tok})
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorw("authenticator_callback_server_failed", "err", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := oauthCfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	_, _ = fmt.Fprintf(s.out, "Open this URL in your browser to authorize access:\n\n  %s\n\n", authURL)
	s.logger.Infow("authenticator_waiting_for_consent", "redirect_url", redirectURL)
	if !noBrowser {
		if err := s.open(authURL); err != nil {
			s.logger.Warnw("authenticator_open_browser_failed", "err", err)
		}
	}

	select {
	case <-ctx.Done():
		return nil, nil, fmt.Errorf("authentication canceled: %w", ctx.Err())
	case res := <-results:
		if res.err != nil {
			return nil, nil, res.err
		}
		return res.tok, oauthCfg, nil
	}
}
