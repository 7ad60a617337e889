// Package gist is a small client for the GitHub Gist REST API, scoped to a
// single bearer token.
package gist

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTimeout is the default HTTP client timeout.
const DefaultTimeout = 30 * time.Second

// User is the authenticated GitHub account.
type User struct {
	ID        int64  `json:"id"`
	User      string `json:"user"`
	Name      string `json:"name,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
	Created   string `json:"created"`
	Updated   string `json:"updated"`
	Followers int    `json:"followers"`
	Following int    `json:"following"`
}

// Gist is the shape this API exposes for a gist: the remote metadata plus the
// display name of its primary (first) file.
type Gist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Public      bool   `json:"public"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url"`
	Created     string `json:"created"`
	Updated     string `json:"updated"`
}

// UpdateParams are the optional fields of a gist update. Nil fields are left
// untouched on the remote side. Content always targets the primary file.
type UpdateParams struct {
	Name        *string
	Public      *bool
	Description *string
	Content     *string
}

// Client talks to the GitHub API on behalf of one token. A Client is built
// per request and never shared.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient returns a Client bound to token. baseURL is the API root without
// a trailing slash, e.g. "https://api.github.com".
func NewClient(baseURL, token string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "gist_client").Logger(),
	}
}

// Wire shapes of the GitHub API.

type apiUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Followers int    `json:"followers"`
	Following int    `json:"following"`
}

type apiGistFile struct {
	Filename  string `json:"filename"`
	RawURL    string `json:"raw_url"`
	Truncated bool   `json:"truncated"`
	Content   string `json:"content"`
}

type apiGist struct {
	ID          string                 `json:"id"`
	Description string                 `json:"description"`
	Public      bool                   `json:"public"`
	CreatedAt   string                 `json:"created_at"`
	UpdatedAt   string                 `json:"updated_at"`
	Files       map[string]apiGistFile `json:"files"`
}

// firstFile returns the gist's primary file. GitHub serves files as an
// unordered map, so "first" means first by sorted filename to stay
// deterministic across calls.
func (g *apiGist) firstFile() (apiGistFile, bool) {
	if len(g.Files) == 0 {
		return apiGistFile{}, false
	}

	names := make([]string, 0, len(g.Files))
	for name := range g.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	return g.Files[names[0]], true
}

func (g *apiGist) toGist() Gist {
	gist := Gist{
		ID:          g.ID,
		Public:      g.Public,
		Description: g.Description,
		Created:     g.CreatedAt,
		Updated:     g.UpdatedAt,
	}

	if f, ok := g.firstFile(); ok {
		gist.Name = f.Filename
		gist.URL = f.RawURL
	}

	return gist
}

// User fetches the identity behind the client's token. A rejected token
// yields an *AuthError.
func (c *Client) User(ctx context.Context) (*User, error) {
	var u apiUser
	if err := c.do(ctx, http.MethodGet, "/user", nil, &u); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && (apiErr.Status == http.StatusUnauthorized || apiErr.Status == http.StatusForbidden) {
			return nil, &AuthError{Message: "invalid GitHub token"}
		}
		return nil, err
	}

	return &User{
		ID:        u.ID,
		User:      u.Login,
		Name:      u.Name,
		Avatar:    u.AvatarURL,
		Created:   u.CreatedAt,
		Updated:   u.UpdatedAt,
		Followers: u.Followers,
		Following: u.Following,
	}, nil
}

// List returns all gists owned by the authenticated user.
func (c *Client) List(ctx context.Context) ([]Gist, error) {
	var raw []apiGist
	if err := c.do(ctx, http.MethodGet, "/gists", nil, &raw); err != nil {
		return nil, err
	}

	gists := make([]Gist, 0, len(raw))
	for i := range raw {
		gists = append(gists, raw[i].toGist())
	}

	return gists, nil
}

// Get returns one gist by ID. A missing gist yields ErrNotFound.
func (c *Client) Get(ctx context.Context, gistID string) (*Gist, error) {
	raw, err := c.getRaw(ctx, gistID)
	if err != nil {
		return nil, err
	}

	g := raw.toGist()
	return &g, nil
}

// DisplayName returns the primary file name of a gist, used as its display
// name in license responses.
func (c *Client) DisplayName(ctx context.Context, gistID string) (string, error) {
	g, err := c.Get(ctx, gistID)
	if err != nil {
		return "", err
	}
	return g.Name, nil
}

// Content returns the body of one file within a gist. When fileName is empty
// the primary file is used; a named file that doesn't exist yields
// ErrFileNotFound. Truncated bodies are re-fetched from their raw URL.
func (c *Client) Content(ctx context.Context, gistID, fileName string) (string, error) {
	raw, err := c.getRaw(ctx, gistID)
	if err != nil {
		return "", err
	}

	f, err := raw.resolveFile(gistID, fileName)
	if err != nil {
		return "", err
	}

	if !f.Truncated {
		return f.Content, nil
	}

	c.logger.Debug().Str("gist_id", gistID).Str("file", f.Filename).Msg("content truncated, fetching raw URL")
	return c.fetchRaw(ctx, f.RawURL)
}

func (g *apiGist) resolveFile(gistID, fileName string) (apiGistFile, error) {
	if fileName == "" {
		f, ok := g.firstFile()
		if !ok {
			return apiGistFile{}, fmt.Errorf("gist %q has no files: %w", gistID, ErrFileNotFound)
		}
		return f, nil
	}

	f, ok := g.Files[fileName]
	if !ok {
		return apiGistFile{}, fmt.Errorf("file %q in gist %q: %w", fileName, gistID, ErrFileNotFound)
	}
	return f, nil
}

// Create makes a new gist with a single file holding content. An empty
// content is rejected by GitHub, so callers seed new documents with "[]".
func (c *Client) Create(ctx context.Context, name string, public bool, description, content string) (*Gist, error) {
	body := map[string]any{
		"description": description,
		"public":      public,
		"files": map[string]any{
			name: map[string]any{"content": content},
		},
	}

	var raw apiGist
	if err := c.do(ctx, http.MethodPost, "/gists", body, &raw); err != nil {
		return nil, err
	}

	c.logger.Debug().Str("gist_id", raw.ID).Msg("created gist")

	g := raw.toGist()
	return &g, nil
}

// Update patches a gist. Content and Name both target the primary file.
func (c *Client) Update(ctx context.Context, gistID string, params UpdateParams) (*Gist, error) {
	current, err := c.getRaw(ctx, gistID)
	if err != nil {
		return nil, err
	}

	body := map[string]any{}
	if params.Description != nil {
		body["description"] = *params.Description
	}
	if params.Public != nil {
		body["public"] = *params.Public
	}

	if params.Content != nil || params.Name != nil {
		target, err := current.resolveFile(gistID, "")
		if err != nil {
			return nil, err
		}

		file := map[string]any{}
		if params.Content != nil {
			file["content"] = *params.Content
		}
		if params.Name != nil {
			file["filename"] = *params.Name
		}
		body["files"] = map[string]any{target.Filename: file}
	}

	var raw apiGist
	if err := c.do(ctx, http.MethodPatch, "/gists/"+gistID, body, &raw); err != nil {
		return nil, err
	}

	g := raw.toGist()
	return &g, nil
}

// WriteContent overwrites one file of a gist with content. When fileName is
// empty the primary file is used; a named file must already exist.
func (c *Client) WriteContent(ctx context.Context, gistID, fileName, content string) error {
	current, err := c.getRaw(ctx, gistID)
	if err != nil {
		return err
	}

	target, err := current.resolveFile(gistID, fileName)
	if err != nil {
		return err
	}

	body := map[string]any{
		"files": map[string]any{
			target.Filename: map[string]any{"content": content},
		},
	}

	return c.do(ctx, http.MethodPatch, "/gists/"+gistID, body, nil)
}

// Delete removes a gist.
func (c *Client) Delete(ctx context.Context, gistID string) error {
	return c.do(ctx, http.MethodDelete, "/gists/"+gistID, nil, nil)
}

func (c *Client) getRaw(ctx context.Context, gistID string) (*apiGist, error) {
	var raw apiGist
	if err := c.do(ctx, http.MethodGet, "/gists/"+gistID, nil, &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

// fetchRaw downloads a raw content URL with the client's credentials.
func (c *Client) fetchRaw(ctx context.Context, rawURL string) (string, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return "", fmt.Errorf("invalid raw URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch raw content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", c.errorFromResponse(resp)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// do performs one API round trip. A non-nil out is filled from the response
// body. Remote failures come back as the typed errors of this package.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.errorFromResponse(resp)
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode github response: %w", err)
	}

	return nil
}

func (c *Client) errorFromResponse(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	message := string(b)
	var ghErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(b, &ghErr); err == nil && ghErr.Message != "" {
		message = ghErr.Message
	}

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", message, ErrNotFound)
	}

	c.logger.Debug().Int("status", resp.StatusCode).Str("message", message).Msg("github api error")

	return &APIError{Status: resp.StatusCode, Message: message}
}
