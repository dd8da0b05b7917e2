// Package github implementa el lado proveedor del login con GitHub: URL de
// autorización, intercambio del code y lectura de perfil y emails.
package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	oauthgithub "golang.org/x/oauth2/github"
)

const (
	defaultAPIURL  = "https://api.github.com"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 1 << 20
)

var (
	ErrExchange = errors.New("github code exchange failed")
	ErrUpstream = errors.New("github api request failed")
)

type Profile struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Email struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

type Options struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Timeout      time.Duration

	// Sobrescribibles en tests.
	AuthURL  string
	TokenURL string
	APIURL   string
}

// Client habla con GitHub. Es seguro para uso concurrente.
type Client struct {
	oauthConfig oauth2.Config
	apiURL      string
	httpClient  *http.Client
}

func NewClient(opts Options) *Client {
	endpoint := oauthgithub.Endpoint
	if opts.AuthURL != "" {
		endpoint.AuthURL = opts.AuthURL
	}
	if opts.TokenURL != "" {
		endpoint.TokenURL = opts.TokenURL
	}
	apiURL := strings.TrimRight(opts.APIURL, "/")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		oauthConfig: oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			RedirectURL:  opts.CallbackURL,
			Scopes:       []string{"user"},
			Endpoint:     endpoint,
		},
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// AuthCodeURL construye la URL de autorización con client_id, scope y state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauthConfig.AuthCodeURL(state)
}

// Exchange cambia el code por un access token del proveedor. No reintenta.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, fmt.Errorf("%w: empty code", ErrExchange)
	}
	token, err := c.oauthConfig.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExchange, err)
	}
	return token, nil
}

// FetchProfile lee GET /user con el token del proveedor.
func (c *Client) FetchProfile(ctx context.Context, token *oauth2.Token) (Profile, error) {
	var profile Profile
	if err := c.getJSON(ctx, token, "/user", &profile); err != nil {
		return Profile{}, err
	}
	if strings.TrimSpace(profile.Login) == "" {
		return Profile{}, fmt.Errorf("%w: profile without login", ErrUpstream)
	}
	return profile, nil
}

// FetchEmails lee GET /user/emails con el token del proveedor.
func (c *Client) FetchEmails(ctx context.Context, token *oauth2.Token) ([]Email, error) {
	var emails []Email
	if err := c.getJSON(ctx, token, "/user/emails", &emails); err != nil {
		return nil, err
	}
	return emails, nil
}

// PrimaryVerifiedEmail elige el email marcado a la vez como primary y verified.
func PrimaryVerifiedEmail(emails []Email) (string, bool) {
	for _, e := range emails {
		if e.Primary && e.Verified && strings.TrimSpace(e.Email) != "" {
			return e.Email, true
		}
	}
	return "", false
}

func (c *Client) getJSON(ctx context.Context, token *oauth2.Token, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return fmt.Errorf("%w: build request: %w", ErrUpstream, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	client := c.oauthConfig.Client(c.withHTTPClient(ctx), token)
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: GET %s: %w", ErrUpstream, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("%w: read %s: %w", ErrUpstream, path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GET %s: status %d", ErrUpstream, path, resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrUpstream, path, err)
	}
	return nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}
