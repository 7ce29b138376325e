// Package catalog provides the canonical music-catalog capability: artist
// search scoped to artist entities, and top tracks for the downstream
// playlist glue.
//
// The default implementation talks to the Spotify Web API with a
// refresh-token OAuth flow. Lookups are independent, side-effect-free reads;
// the validator issues them from a bounded worker pool to respect upstream
// rate limits.
package catalog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultAPIBaseURL  = "https://api.spotify.com/v1"
	defaultAccountsURL = "https://accounts.spotify.com/api/token"
	timeout            = 15 * time.Second
)

// Artist is one canonical catalog entry.
type Artist struct {
	Name       string   `json:"name"`
	ID         string   `json:"id"`
	Popularity int      `json:"popularity"`
	Genres     []string `json:"genres"`
}

// ArtistSearcher is the catalog lookup capability consumed by the validator.
type ArtistSearcher interface {
	SearchArtist(ctx context.Context, name string, limit int) ([]Artist, error)
}

// Client is a Spotify Web API client using the refresh-token flow.
type Client struct {
	clientID     string
	clientSecret string
	refreshToken string
	apiBaseURL   string
	accountsURL  string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithAPIBaseURL points the client at a non-default (or mock) API endpoint.
func WithAPIBaseURL(u string) Option {
	return func(c *Client) { c.apiBaseURL = strings.TrimRight(u, "/") }
}

// WithAccountsURL points the token refresh at a non-default endpoint.
func WithAccountsURL(u string) Option {
	return func(c *Client) { c.accountsURL = u }
}

// NewClient creates a catalog client.
func NewClient(clientID, clientSecret, refreshToken string, opts ...Option) (*Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("client id and secret are required")
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required")
	}
	c := &Client{
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
		apiBaseURL:   defaultAPIBaseURL,
		accountsURL:  defaultAccountsURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// token returns a valid access token, refreshing when expired.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", c.refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.accountsURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("refreshing token: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token refresh failed (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("parsing token response: %w", err)
	}
	if result.AccessToken == "" {
		return "", fmt.Errorf("token refresh returned no access token")
	}

	c.accessToken = result.AccessToken
	// Refresh one minute early.
	c.tokenExpiry = time.Now().Add(time.Duration(result.ExpiresIn)*time.Second - time.Minute)
	return c.accessToken, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, v interface{}) error {
	tok, err := c.token(ctx)
	if err != nil {
		return err
	}

	u := c.apiBaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("catalog API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

// SearchArtist runs a search restricted to artist entities and returns the
// ordered hits, best match first.
func (c *Client) SearchArtist(ctx context.Context, name string, limit int) ([]Artist, error) {
	if limit <= 0 {
		limit = 3
	}

	query := url.Values{}
	query.Set("q", "artist:"+name)
	query.Set("type", "artist")
	query.Set("limit", strconv.Itoa(limit))

	var result struct {
		Artists struct {
			Items []Artist `json:"items"`
		} `json:"artists"`
	}
	if err := c.get(ctx, "/search", query, &result); err != nil {
		return nil, fmt.Errorf("searching artist %q: %w", name, err)
	}
	return result.Artists.Items, nil
}

// GetTopTracks returns the track URIs for an artist's top tracks in a
// country market. Consumed by the playlist-building glue, not by the
// validation pipeline.
func (c *Client) GetTopTracks(ctx context.Context, artistID, country string) ([]string, error) {
	if country == "" {
		country = "US"
	}

	query := url.Values{}
	query.Set("market", country)

	var result struct {
		Tracks []struct {
			URI string `json:"uri"`
		} `json:"tracks"`
	}
	if err := c.get(ctx, "/artists/"+artistID+"/top-tracks", query, &result); err != nil {
		return nil, fmt.Errorf("fetching top tracks for %s: %w", artistID, err)
	}

	uris := make([]string, 0, len(result.Tracks))
	for _, t := range result.Tracks {
		uris = append(uris, t.URI)
	}
	return uris, nil
}
