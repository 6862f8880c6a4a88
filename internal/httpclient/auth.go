package httpclient

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Supported credential types
const (
	AuthTypeNone   = "none"
	AuthTypeBearer = "bearer"
	AuthTypeBasic  = "basic"
	AuthTypeAPIKey = "apiKey"
	AuthTypeOAuth2 = "oauth2"
)

// DefaultAPIKeyHeader carries the key when apiKey auth names no header
const DefaultAPIKeyHeader = "X-API-Key"

// Credentials are resolved secret values for one connector endpoint.
type Credentials struct {
	Type string

	Token string

	Username string
	Password string

	Header string

	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Validate checks that the fields required by the credential type are set
func (c *Credentials) Validate() error {
	if c == nil {
		return nil
	}
	switch c.Type {
	case "", AuthTypeNone:
	case AuthTypeBearer:
		if c.Token == "" {
			return fmt.Errorf("bearer auth requires a token")
		}
	case AuthTypeBasic:
		if c.Username == "" {
			return fmt.Errorf("basic auth requires a username")
		}
	case AuthTypeAPIKey:
		if c.Token == "" {
			return fmt.Errorf("apiKey auth requires a key")
		}
	case AuthTypeOAuth2:
		if c.TokenURL == "" || c.ClientID == "" || c.ClientSecret == "" {
			return fmt.Errorf("oauth2 auth requires tokenURL, clientID and a client secret")
		}
	default:
		return fmt.Errorf("unsupported auth type '%s'", c.Type)
	}
	return nil
}

// transport wraps base with the credentials. OAuth2 tokens are fetched and
// refreshed by the clientcredentials token source.
func (c *Credentials) transport(base http.RoundTripper) http.RoundTripper {
	if c == nil {
		return base
	}
	switch c.Type {
	case AuthTypeOAuth2:
		cc := &clientcredentials.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			TokenURL:     c.TokenURL,
			Scopes:       c.Scopes,
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Transport: base})
		return &oauth2.Transport{Source: cc.TokenSource(tokenCtx), Base: base}
	case AuthTypeBearer, AuthTypeBasic, AuthTypeAPIKey:
		return &staticAuthTransport{creds: c, base: base}
	}
	return base
}

type staticAuthTransport struct {
	creds *Credentials
	base  http.RoundTripper
}

func (t *staticAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	switch t.creds.Type {
	case AuthTypeBearer:
		req.Header.Set("Authorization", "Bearer "+t.creds.Token)
	case AuthTypeBasic:
		req.SetBasicAuth(t.creds.Username, t.creds.Password)
	case AuthTypeAPIKey:
		header := t.creds.Header
		if header == "" {
			header = DefaultAPIKeyHeader
		}
		req.Header.Set(header, t.creds.Token)
	}
	return t.base.RoundTrip(req)
}
