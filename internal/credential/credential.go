package credential

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"search-analytics-node/config"
	"search-analytics-node/internal/gsc"
)

const portVersion = 2

// expirySkew treats tokens about to expire as already expired.
const expirySkew = 10 * time.Second

var ErrExpired = fmt.Errorf("%w: authentication expired, execute the Authenticator again", gsc.ErrAuthentication)

type Expiration string

const (
	ExpireOneHour Expiration = "one_hour"
	ExpireNever   Expiration = "never"
)

func ParseExpiration(raw string) (Expiration, error) {
	switch Expiration(raw) {
	case "", ExpireOneHour:
		return ExpireOneHour, nil
	case ExpireNever:
		return ExpireNever, nil
	default:
		return "", gsc.Requestf("unknown expiration %q (one_hour, never)", raw)
	}
}

// Credential is the bearer-token bundle the Authenticator hands to downstream nodes.
type Credential struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Scopes       []string  `json:"scopes,omitempty"`

	// Properties are the verified site URLs available at authentication time.
	Properties []string `json:"properties,omitempty"`

	IsPro bool `json:"-"`
}

func FromToken(tok *oauth2.Token, scopes []string) *Credential {
	return &Credential{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		Scopes:       scopes,
	}
}

func (c *Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  c.AccessToken,
		TokenType:    c.TokenType,
		RefreshToken: c.RefreshToken,
		Expiry:       c.Expiry,
	}
}

// Usable reports whether the credential can still authorize a call, either
// through an unexpired access token or by refreshing.
func (c *Credential) Usable(now time.Time) bool {
	if c == nil {
		return false
	}
	if c.RefreshToken != "" {
		return true
	}
	if c.AccessToken == "" {
		return false
	}
	return c.Expiry.IsZero() || now.Add(expirySkew).Before(c.Expiry)
}

func (c *Credential) Check(now time.Time) error {
	if !c.Usable(now) {
		return ErrExpired
	}
	return nil
}

// ApplyExpiration drops the refresh token unless the credential never expires.
func (c *Credential) ApplyExpiration(e Expiration) {
	if e != ExpireNever {
		c.RefreshToken = ""
	}
}

// Apply copies a refreshed token into the credential and reports whether the
// access token changed.
func (c *Credential) Apply(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" || tok.AccessToken == c.AccessToken {
		return false
	}
	c.AccessToken = tok.AccessToken
	c.TokenType = tok.TokenType
	c.Expiry = tok.Expiry
	if tok.RefreshToken != "" {
		c.RefreshToken = tok.RefreshToken
	}
	return true
}

type envelope struct {
	PortVersion *int            `json:"port_version"`
	Credentials json.RawMessage `json:"credentials"`
	IsPro       bool            `json:"is_pro"`
}

func (c *Credential) Marshal() ([]byte, error) {
	inner, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	v := portVersion
	return json.Marshal(envelope{PortVersion: &v, Credentials: inner, IsPro: c.IsPro})
}

// Unmarshal decodes a stored credential. Version 2 payloads are envelopes;
// a bare token object is the deprecated version 1 and never pro.
func Unmarshal(raw []byte) (*Credential, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: decode credential: %v", gsc.ErrAuthentication, err)
	}

	inner := env.Credentials
	isPro := env.IsPro
	switch {
	case env.PortVersion == nil:
		inner = raw
		isPro = false
	case *env.PortVersion == portVersion:
		// Older writers stored the token JSON as a string.
		if len(inner) > 0 && inner[0] == '"' {
			var s string
			if err := json.Unmarshal(inner, &s); err != nil {
				return nil, fmt.Errorf("%w: decode credential: %v", gsc.ErrAuthentication, err)
			}
			inner = []byte(s)
		}
	default:
		return nil, fmt.Errorf("%w: unknown credential version %d, reset and execute the Authenticator again", gsc.ErrAuthentication, *env.PortVersion)
	}

	var c Credential
	dec := json.NewDecoder(bytes.NewReader(inner))
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("%w: decode credential: %v", gsc.ErrAuthentication, err)
	}
	if c.AccessToken == "" && c.RefreshToken == "" {
		return nil, fmt.Errorf("%w: credential carries no token", gsc.ErrAuthentication)
	}
	c.IsPro = isPro
	return &c, nil
}

func NewOAuthConfig(g config.GoogleConfig, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   g.AuthURL,
			TokenURL:  g.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURL,
		Scopes:      g.Scopes,
	}
}
