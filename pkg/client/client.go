// Package client provides the HTTP client for the CloudDrive server: auth
// lifecycle, catalog fetch, raw content fetch, and the mutating operations.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MaxymDv/CloudDrive-System/pkg/protocol"
)

// Client talks to one CloudDrive server under at most one credential.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.RWMutex
	authToken string
}

// Config holds client configuration.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	AuthToken string
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		authToken: cfg.AuthToken,
	}
}

// BaseURL returns the server base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// SetAuthToken sets the bearer token for subsequent requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// AuthToken returns the current bearer token, empty when logged out.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// Register creates a new account. Returns ErrUserExists when the username
// is taken.
func (c *Client) Register(ctx context.Context, username, password string) error {
	form := url.Values{"username": {username}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/register",
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: "register", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusConflict:
		return ErrUserExists
	default:
		return c.decodeError(resp)
	}
}

// Login authenticates and installs the returned token on the client.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	form := url.Values{"username": {username}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/token",
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &NetworkError{Op: "login", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized {
		return "", ErrInvalidCredentials
	}
	if resp.StatusCode >= 300 {
		return "", c.decodeError(resp)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("parse token response: %w", err)
	}

	c.SetAuthToken(tok.AccessToken)
	return tok.AccessToken, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// Logout drops the client-side credential. The server keeps no session
// state, so there is nothing to revoke remotely.
func (c *Client) Logout() {
	c.SetAuthToken("")
}

// ListFiles fetches the full catalog under the current credential.
func (c *Client) ListFiles(ctx context.Context) ([]protocol.FileRecord, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+"/files", nil)
	if err != nil {
		return nil, err
	}
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "list files", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		return nil, c.decodeError(resp)
	}

	var files []protocol.FileRecord
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("parse file list: %w", err)
	}
	return files, nil
}

// RawContentURL builds the content URL for a storage name with a fresh
// cache-defeat nonce. A new nonce is minted on every call so that a fetch
// issued after a save never observes cached bytes.
func (c *Client) RawContentURL(storageName string) string {
	nonce := strconv.FormatInt(time.Now().UnixMilli(), 10)
	return c.baseURL + "/raw/" + url.PathEscape(storageName) + "?t=" + nonce
}

// FetchRaw fetches the raw content of a file. The URL capability needs no
// bearer header.
func (c *Client) FetchRaw(ctx context.Context, storageName string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.RawContentURL(storageName), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: "fetch content", Err: err}
	}

	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.decodeError(resp)
	}
	return resp.Body, nil
}

// Upload submits file content as a multipart form under the given display
// name. The server decides whether this creates a record or updates an
// existing one.
func (c *Client) Upload(ctx context.Context, filename string, content io.Reader) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, content); err != nil {
		return fmt.Errorf("read upload content: %w", err)
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/upload", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: "upload", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}
	return nil
}

// UpdateContent replaces the full content of a file, keyed by storage name.
func (c *Client) UpdateContent(ctx context.Context, storageName, content string) error {
	body, _ := json.Marshal(protocol.UpdateContentRequest{
		StorageName: storageName,
		Content:     content,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/update_content",
		bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: "save content", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}
	return nil
}

// Delete removes a file, keyed by storage name. For the owner this is a
// permanent delete; for anyone else the server interprets the same request
// as revoking the caller's own access.
func (c *Client) Delete(ctx context.Context, storageName string) error {
	req, err := http.NewRequestWithContext(ctx, "DELETE",
		c.baseURL+"/delete/"+url.PathEscape(storageName), nil)
	if err != nil {
		return err
	}
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: "delete", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}
	return nil
}

// Share grants the target user the given level on a file. Keyed by display
// name, not storage name; the server resolves it among the caller's own
// files.
func (c *Client) Share(ctx context.Context, filename, targetUser string, level protocol.ShareLevel) error {
	body, _ := json.Marshal(protocol.ShareRequest{
		Filename:   filename,
		TargetUser: targetUser,
		Level:      level,
	})

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/share",
		bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: "share", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		return c.decodeError(resp)
	}
	return nil
}

// decodeError builds a ValidationError from a non-2xx response, using the
// server's detail text when the body carries one and falling back to the
// generic status description.
func (c *Client) decodeError(resp *http.Response) error {
	ve := &ValidationError{Status: resp.StatusCode}
	var body protocol.ErrorResponse
	if json.NewDecoder(resp.Body).Decode(&body) == nil && body.Detail != "" {
		ve.Detail = body.Detail
	} else {
		ve.Detail = http.StatusText(resp.StatusCode)
	}
	return ve
}
