package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BioHazard786/Coderoom/internal/dns"
	"github.com/BioHazard786/Coderoom/internal/errs"
)

const (
	requestTimeout = 15 * time.Second
	maxErrorBody   = 4 << 10
)

// Tokens supplies and refreshes the bearer credentials.
type Tokens interface {
	AccessToken() string
	RefreshToken() string
	SetAccessToken(token string) error
}

// Client talks to the backend REST API.
type Client struct {
	base   string
	http   *http.Client
	tokens Tokens
}

// New creates a client for base. tokens may be nil for anonymous calls.
func New(base string, tokens Tokens) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dns.DialContext
	return &Client{
		base:   strings.TrimRight(base, "/"),
		http:   &http.Client{Timeout: requestTimeout, Transport: transport},
		tokens: tokens,
	}
}

// WithHTTPClient swaps the underlying HTTP client, for tests.
func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.http = h
	return c
}

// do sends a JSON request. A 401 triggers one token refresh and a single
// retry.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	op := method + " " + path

	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return errs.New(op, err)
		}
	}

	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return errs.New(op, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && c.canRefresh() && !credentialPath(path) {
		resp.Body.Close()
		if err := c.refresh(ctx); err != nil {
			slog.Debug("token refresh failed", "error", err)
			return errs.New(op, errs.ErrUnauthorized)
		}
		if resp, err = c.send(ctx, method, path, body); err != nil {
			return errs.New(op, err)
		}
	}
	defer resp.Body.Close()

	if err := checkStatus(op, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errs.Wrap(op, err, "decode response")
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if tok := c.tokens.AccessToken(); tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}
	return c.http.Do(req)
}

// credentialPath reports whether a 401 from path is about the submitted
// credentials rather than an expired token.
func credentialPath(path string) bool {
	return path == "/auth/login" || path == "/auth/register"
}

// Refresh exchanges the refresh token for a new access token ahead of a
// call that cannot retry, such as opening the collaboration channel.
func (c *Client) Refresh(ctx context.Context) error {
	if !c.canRefresh() {
		return errs.New("refresh token", errs.ErrNotLoggedIn)
	}
	if err := c.refresh(ctx); err != nil {
		return errs.Wrap("refresh token", errs.ErrUnauthorized, err.Error())
	}
	return nil
}

func (c *Client) canRefresh() bool {
	return c.tokens != nil && c.tokens.RefreshToken() != ""
}

func (c *Client) refresh(ctx context.Context) error {
	body, err := json.Marshal(map[string]string{"refresh_token": c.tokens.RefreshToken()})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/auth/refresh", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus("refresh token", resp); err != nil {
		return err
	}

	var tok TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return err
	}
	if tok.AccessToken == "" {
		return fmt.Errorf("refresh returned no access token")
	}
	return c.tokens.SetAccessToken(tok.AccessToken)
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	details := strings.TrimSpace(string(msg))

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return errs.Wrap(op, errs.ErrUnauthorized, details)
	case http.StatusNotFound:
		return errs.Wrap(op, errs.ErrNotFound, details)
	}
	return errs.Wrap(op, fmt.Errorf("server returned %s", resp.Status), details)
}
