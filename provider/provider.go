// Package provider implements the outbound identity-provider capability for
// OAuth-backed accounts: refreshing wrapped provider tokens and revoking them
// on sign-out. Endpoints come from OIDC discovery with explicit overrides for
// providers that publish incomplete metadata.
package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-session-server/token"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// Options configures a Client. IssuerURL enables OIDC discovery; TokenURL and
// RevocationURL override or replace discovered endpoints.
type Options struct {
	Name          string
	IssuerURL     string
	ClientID      string
	ClientSecret  string
	TokenURL      string
	RevocationURL string
	Scopes        []string
	HTTPClient    *http.Client
}

// Client talks to one identity provider. It satisfies token.Provider.
type Client struct {
	name          string
	oauth         oauth2.Config
	revocationURL string
	httpClient    *http.Client
}

var _ token.Provider = (*Client)(nil)

// New builds a provider client, running OIDC discovery when an issuer URL is
// configured and an endpoint is missing.
func New(ctx context.Context, opts Options) (*Client, error) {
	tokenURL := opts.TokenURL
	revocationURL := opts.RevocationURL

	if opts.IssuerURL != "" && (tokenURL == "" || revocationURL == "") {
		discovered, err := oidc.NewProvider(ctx, opts.IssuerURL)
		if err != nil {
			return nil, errors.Wrap(err, "[provider.New] oidc discovery")
		}
		if tokenURL == "" {
			tokenURL = discovered.Endpoint().TokenURL
		}
		if revocationURL == "" {
			// revocation_endpoint is not part of the core discovery claims
			// the library maps, so pull it from the raw metadata.
			var metadata struct {
				RevocationEndpoint string `json:"revocation_endpoint"`
			}
			if err := discovered.Claims(&metadata); err == nil {
				revocationURL = metadata.RevocationEndpoint
			}
		}
	}

	if tokenURL == "" {
		return nil, errors.New("[provider.New] no token endpoint configured or discovered")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		name: opts.Name,
		oauth: oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
			Scopes:       opts.Scopes,
		},
		revocationURL: revocationURL,
		httpClient:    httpClient,
	}, nil
}

// Name returns the configured provider name.
func (c *Client) Name() string {
	return c.name
}

// Refresh exchanges a provider refresh token for fresh token material. A
// failed exchange wraps token.ErrProviderUnavailable; the caller decides what
// that means for the session.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*token.ProviderToken, error) {
	if refreshToken == "" {
		return nil, errors.New("[Client.Refresh] refresh token is required")
	}

	source := c.oauth.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	refreshed, err := source.Token()
	if err != nil {
		return nil, errors.Wrapf(token.ErrProviderUnavailable, "[Client.Refresh] token exchange: %v", err)
	}

	return &token.ProviderToken{
		AccessToken:  refreshed.AccessToken,
		RefreshToken: refreshed.RefreshToken,
		Expiry:       refreshed.Expiry,
	}, nil
}

// Revoke submits each token to the provider's revocation endpoint. The first
// failure aborts the batch; the caller reports partial success either way.
func (c *Client) Revoke(ctx context.Context, tokens []string) error {
	if c.revocationURL == "" {
		return errors.Wrap(token.ErrProviderUnavailable, "[Client.Revoke] provider exposes no revocation endpoint")
	}
	for _, tok := range tokens {
		if err := c.revokeOne(ctx, tok); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) revokeOne(ctx context.Context, tok string) error {
	form := url.Values{
		"token":         {tok},
		"client_id":     {c.oauth.ClientID},
		"client_secret": {c.oauth.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return errors.Wrap(err, "[Client.revokeOne] build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(token.ErrProviderUnavailable, "[Client.revokeOne] post: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Wrapf(token.ErrProviderUnavailable, "[Client.revokeOne] revocation endpoint returned %s", resp.Status)
	}
	return nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}
